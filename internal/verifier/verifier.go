// Package verifier decides whether two face images show the same person by
// calling an external face recognition service.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kozaktomas/face-verify/internal/config"
	"github.com/kozaktomas/face-verify/internal/storage"
)

// ErrNoFace is returned when a face could not be detected in one of the images.
var ErrNoFace = errors.New("face could not be detected")

// Result is the decision for one pair of images plus its metadata.
type Result struct {
	Verified        bool    `json:"verified"`
	Distance        float64 `json:"distance"`
	Threshold       float64 `json:"threshold"`
	Model           string  `json:"model"`
	DetectorBackend string  `json:"detector_backend,omitempty"`
	DistanceMetric  string  `json:"similarity_metric"`
	Time            float64 `json:"time,omitempty"`
}

// Verifier compares two images by location.
type Verifier interface {
	Verify(ctx context.Context, img1, img2 string) (*Result, error)
}

// New builds the verifier selected by cfg. Images are read through images.
func New(cfg *config.Config, images storage.Reader) (Verifier, error) {
	httpClient := &http.Client{Timeout: cfg.Verifier.Timeout}

	switch cfg.Verifier.Backend {
	case config.VerifierDeepFace:
		return NewDeepFaceClient(cfg.Verifier.DeepFaceURL, images, DeepFaceOptions{
			Model:          cfg.Verifier.Model,
			Detector:       cfg.Verifier.Detector,
			DistanceMetric: cfg.Verifier.DistanceMetric,
			Threshold:      cfg.Verifier.Threshold,
		}, httpClient), nil
	case config.VerifierEmbedding:
		if cfg.Verifier.DistanceMetric != "cosine" {
			return nil, fmt.Errorf("embedding verifier supports only the cosine metric, got %q", cfg.Verifier.DistanceMetric)
		}
		threshold, ok := cfg.VerifierThreshold()
		if !ok {
			return nil, fmt.Errorf("no threshold known for model %q, set VERIFIER_THRESHOLD", cfg.Verifier.Model)
		}
		client := NewEmbeddingClient(cfg.Verifier.EmbeddingURL, cfg.Verifier.Model, httpClient)
		return NewEmbeddingVerifier(client, images, threshold), nil
	default:
		return nil, fmt.Errorf("unknown verifier backend %q", cfg.Verifier.Backend)
	}
}
