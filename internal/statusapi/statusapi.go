// Package statusapi serves a small HTTPS debug endpoint reporting the
// health of every decoder session in a pool: its surface conservation
// counts (decoding, display-only and free slots). It exists purely
// for operators; no decode operation depends on it.
package statusapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vdpu/vdpu/certs"
	"github.com/vdpu/vdpu/internal/session"
)

// SessionStatus is one session's entry in the /api/sessions response.
type SessionStatus struct {
	Key         string `json:"key"`
	Decoding    int    `json:"decoding"`
	DisplayOnly int    `json:"display_only"`
	Free        int    `json:"free"`
}

// Server is a minimal HTTPS status server over a session.Pool.
type Server struct {
	pool *session.Pool
	cert *certs.CertInfo
	log  *slog.Logger

	srv *http.Server
}

// New creates a status server listening on addr, backed by pool. A
// self-signed certificate is generated on construction since the
// debug endpoint is TLS-only like the rest of the runtime's surfaces.
func New(logger *slog.Logger, addr string, pool *session.Pool) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cert, err := certs.Generate(14 * 24 * time.Hour)
	if err != nil {
		return nil, fmt.Errorf("generate status api cert: %w", err)
	}

	s := &Server{pool: pool, cert: cert, log: logger.With("component", "statusapi")}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/cert-hash", s.handleCertHash)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: corsMiddleware(mux),
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert.TLSCert},
		},
	}
	return s, nil
}

// FingerprintBase64 exposes the generated certificate's fingerprint, so a
// caller can print it for operators to pin before connecting.
func (s *Server) FingerprintBase64() string {
	return s.cert.FingerprintBase64()
}

// Start serves HTTPS until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status api listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("status api: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	keys := s.pool.List()
	out := make([]SessionStatus, 0, len(keys))
	for _, key := range keys {
		sess, ok := s.pool.Get(key)
		if !ok {
			continue
		}
		decoding, displayOnly, free := sess.Pool().Conservation()
		out = append(out, SessionStatus{Key: key, Decoding: decoding, DisplayOnly: displayOnly, Free: free})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCertHash(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"fingerprint": s.cert.FingerprintBase64()})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding status api response", "error", err)
	}
}
