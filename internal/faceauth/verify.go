package faceauth

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-verify/internal/constants"
	"github.com/kozaktomas/face-verify/internal/metrics"
	"github.com/kozaktomas/face-verify/internal/registry"
	"github.com/kozaktomas/face-verify/internal/verifier"
)

// Status is the outcome of a verification attempt.
type Status string

const (
	StatusMatched           Status = "matched"
	StatusNotAuthorized     Status = "not_authorized"
	StatusNoRegisteredFaces Status = "no_registered_faces"
)

// ComparisonError records a comparison that failed. It does not stop the scan.
type ComparisonError struct {
	Entry   registry.Entry `json:"record"`
	Message string         `json:"error"`
	Err     error          `json:"-"`
}

func (e ComparisonError) Error() string {
	return fmt.Sprintf("comparing %s: %s", e.Entry.Label, e.Message)
}

func (e ComparisonError) Unwrap() error {
	return e.Err
}

// Outcome is the result of a verification attempt.
type Outcome struct {
	AttemptID string            `json:"attempt_id"`
	Status    Status            `json:"status"`
	Match     *registry.Entry   `json:"match,omitempty"`
	Result    *verifier.Result  `json:"result,omitempty"`
	Errors    []ComparisonError `json:"errors,omitempty"`
	// Compared counts verifier calls, including failed ones.
	Compared          int  `json:"compared"`
	RegistryRecovered bool `json:"registry_recovered,omitempty"`
}

// Verify compares probe against every registered face in registration order
// and stops at the first match.
func (s *Service) Verify(ctx context.Context, probe []byte) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{AttemptID: newAttemptID()}
	log := s.log.With(zap.String("attempt_id", out.AttemptID))

	snap, err := s.registry.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}
	s.noteRecovered(snap)
	s.metrics.RegistrySize.Set(float64(snap.Len()))
	out.RegistryRecovered = snap.Recovered

	if snap.Empty() {
		out.Status = StatusNoRegisteredFaces
		s.metrics.ObserveVerification(string(out.Status), start)
		log.Info("no registered faces")
		return out, nil
	}

	data, err := s.normalise(probe)
	if err != nil {
		return nil, err
	}
	probePath, err := writeProbe(s.probeDir, data)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(probePath); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove probe image", zap.String("path", probePath), zap.Error(err))
		}
	}()

	for _, entry := range snap.Entries() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cmpStart := time.Now()
		out.Compared++
		result, err := s.verifier.Verify(ctx, entry.Location, probePath)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.metrics.ObserveComparison(metrics.ComparisonError, cmpStart)
			log.Warn("comparison failed", zap.String("label", entry.Label), zap.Error(err))
			out.Errors = append(out.Errors, ComparisonError{Entry: entry, Message: err.Error(), Err: err})
			continue
		}

		if result.Verified {
			s.metrics.ObserveComparison(metrics.ComparisonMatch, cmpStart)
			match := entry
			out.Status = StatusMatched
			out.Match = &match
			out.Result = result
			s.metrics.ObserveVerification(string(out.Status), start)
			log.Info("face matched",
				zap.String("label", entry.Label),
				zap.Float64("distance", result.Distance),
				zap.Int("compared", out.Compared),
				zap.Duration("elapsed", time.Since(start)),
			)
			return out, nil
		}
		s.metrics.ObserveComparison(metrics.ComparisonNoMatch, cmpStart)
	}

	out.Status = StatusNotAuthorized
	s.metrics.ObserveVerification(string(out.Status), start)
	log.Info("not authorized",
		zap.Int("compared", out.Compared),
		zap.Int("errors", len(out.Errors)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// writeProbe stores the probe image in a fresh temporary file and returns its path.
func writeProbe(dir string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating probe directory: %w", err)
	}
	f, err := os.CreateTemp(dir, constants.ProbePattern)
	if err != nil {
		return "", fmt.Errorf("creating probe file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing probe file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing probe file: %w", err)
	}
	return path, nil
}
