// Package captions wires CEA-608/708 closed caption extraction into the
// frame dispatcher's SEI callback path, per §4.8 ("SEI messages from a
// picture are buffered and fired exactly once when that picture is
// displayed") and SPEC_FULL §11's domain-stack wiring of github.com/zsiec/ccx.
package captions

import "github.com/zsiec/ccx"

// userDataRegisteredITUT35 is the SEI payload type carrying CEA-608/708
// caption data (Rec. H.264/H.265 D.2.6, D.1.6); only this type is run
// through ccx.ExtractCaptions.
const userDataRegisteredITUT35 = 4

// Extractor decodes buffered SEI payloads for one picture into caption
// frames, mirroring the decode loop in the teacher's
// internal/demux/mpegts.go:handleCaptionSEI but keyed per-channel instead
// of per-transport-stream-PID, since this module has no PID concept.
type Extractor struct {
	decoders map[int]*ccx.CEA608Decoder
}

// NewExtractor returns an Extractor with a fresh CEA-608 decoder per
// channel 1-4, matching the teacher's fixed 4-channel allocation.
func NewExtractor() *Extractor {
	e := &Extractor{decoders: make(map[int]*ccx.CEA608Decoder, 4)}
	for ch := 1; ch <= 4; ch++ {
		e.decoders[ch] = ccx.NewCEA608Decoder()
	}
	return e
}

// SEIMessage is one SEI payload the picture boundary detector buffered for
// a picture, tagged with its payload type.
type SEIMessage struct {
	Type    int
	Payload []byte
	PTS     int64
}

// Extract decodes every user_data_registered_itu_t_t35 SEI message in
// messages into caption frames, in message order.
func (e *Extractor) Extract(messages []SEIMessage) []*ccx.CaptionFrame {
	var frames []*ccx.CaptionFrame
	for _, m := range messages {
		if m.Type != userDataRegisteredITUT35 {
			continue
		}
		cd := ccx.ExtractCaptions(m.Payload)
		if cd == nil {
			continue
		}
		for _, pair := range cd.CC608Pairs {
			dec := e.decoders[pair.Channel]
			if dec == nil {
				continue
			}
			text := dec.Decode(pair.Data[0], pair.Data[1])
			if text == "" {
				continue
			}
			frame := &ccx.CaptionFrame{PTS: m.PTS, Text: text, Channel: pair.Channel}
			frame.Regions = dec.StyledRegions()
			frames = append(frames, frame)
		}
	}
	return frames
}
