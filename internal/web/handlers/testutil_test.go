package handlers

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-verify/internal/config"
	"github.com/kozaktomas/face-verify/internal/faceauth"
	"github.com/kozaktomas/face-verify/internal/registry"
)

// testConfig creates a config with defaults for testing
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("VERIFIER_BACKEND", "")
	t.Setenv("VERIFIER_MODEL", "")
	t.Setenv("VERIFIER_THRESHOLD", "")
	return config.Load()
}

// stubService is a FaceService with canned results
type stubService struct {
	registration *faceauth.Registration
	outcome      *faceauth.Outcome
	snapshot     registry.Snapshot
	err          error

	// received holds the last image passed to Register or Verify
	received []byte
}

func (s *stubService) Register(_ context.Context, image []byte) (*faceauth.Registration, error) {
	s.received = image
	if s.err != nil {
		return nil, s.err
	}
	return s.registration, nil
}

func (s *stubService) Verify(_ context.Context, probe []byte) (*faceauth.Outcome, error) {
	s.received = probe
	if s.err != nil {
		return nil, s.err
	}
	return s.outcome, nil
}

func (s *stubService) Faces(context.Context) (registry.Snapshot, error) {
	return s.snapshot, s.err
}

// pngImage returns a tiny valid PNG
func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// multipartRequest builds a POST request with data in the given form field
func multipartRequest(t *testing.T, path, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, "capture.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
