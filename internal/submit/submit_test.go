package submit

import (
	"testing"

	"github.com/vdpu/vdpu/internal/backend"
)

func TestSubstituteReferencesSentinel(t *testing.T) {
	t.Parallel()
	b := &Builder{
		SurfaceForDPBIndex: func(idx int) (backend.SurfaceID, bool) {
			if idx == 2 {
				return backend.SurfaceID(42), true
			}
			return 0, false
		},
	}
	out := b.SubstituteReferences([]int{2, -1, 5})
	if out[0] != 42 {
		t.Errorf("out[0]: got %d want 42", out[0])
	}
	if out[1] != RefSentinel || out[2] != RefSentinel {
		t.Errorf("expected sentinel for unmapped refs, got %v", out)
	}
}

func TestDefaultHEVCScalingListSizes(t *testing.T) {
	t.Parallel()
	if got := len(DefaultHEVCScalingList(ScalingList4x4, true)); got != 16 {
		t.Errorf("4x4 list length: got %d want 16", got)
	}
	if got := len(DefaultHEVCScalingList(ScalingList8x8, true)); got != 64 {
		t.Errorf("8x8 intra list length: got %d want 64", got)
	}
	if got := len(DefaultHEVCScalingList(ScalingList8x8, false)); got != 64 {
		t.Errorf("8x8 inter list length: got %d want 64", got)
	}
}

func TestBuildRejectsEmptyPicParams(t *testing.T) {
	t.Parallel()
	if _, err := Build(nil, []byte{1}, nil, []byte{1}, 0); err == nil {
		t.Error("expected error for empty pic params")
	}
}
