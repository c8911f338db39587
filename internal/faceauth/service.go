// Package faceauth implements face registration and 1:N verification against
// the registry of previously registered faces.
package faceauth

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-verify/internal/constants"
	"github.com/kozaktomas/face-verify/internal/imaging"
	"github.com/kozaktomas/face-verify/internal/metrics"
	"github.com/kozaktomas/face-verify/internal/registry"
	"github.com/kozaktomas/face-verify/internal/storage"
	"github.com/kozaktomas/face-verify/internal/verifier"
)

// ErrInvalidImage is returned when the submitted image cannot be decoded.
var ErrInvalidImage = errors.New("invalid image")

// Options tune a Service. Zero values fall back to defaults.
type Options struct {
	ProbeDir     string
	MaxImageSize int
	JPEGQuality  int
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Service runs the registration and verification workflows. It holds no
// registry state of its own: every call loads from the registry store.
type Service struct {
	registry registry.Store
	images   storage.Store
	verifier verifier.Verifier
	log      *zap.Logger
	metrics  *metrics.Metrics
	probeDir string
	maxSize  int
	quality  int
}

// NewService creates a Service.
func NewService(reg registry.Store, images storage.Store, v verifier.Verifier, opts Options) *Service {
	s := &Service{
		registry: reg,
		images:   images,
		verifier: v,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		probeDir: opts.ProbeDir,
		maxSize:  opts.MaxImageSize,
		quality:  opts.JPEGQuality,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	if s.probeDir == "" {
		s.probeDir = os.TempDir()
	}
	if s.maxSize <= 0 {
		s.maxSize = constants.MaxImageSize
	}
	if s.quality <= 0 {
		s.quality = constants.JPEGQuality
	}
	return s
}

// Registration is the result of a successful Register call.
type Registration struct {
	Record  registry.Record
	Label   string
	Ordinal int
	// Records is the registry after the append.
	Records []registry.Record
}

// Register stores image as the next registered face and appends it to the
// registry. The label is derived from the registry size at the time of the
// append.
func (s *Service) Register(ctx context.Context, image []byte) (*Registration, error) {
	data, err := s.normalise(image)
	if err != nil {
		s.metrics.RegistrationErrors.Inc()
		return nil, err
	}

	var reg Registration
	var stored string
	records, err := s.registry.Update(ctx, func(current registry.Snapshot) ([]registry.Record, error) {
		s.noteRecovered(current)

		ordinal := current.Len() + 1
		location, err := s.images.Put(ctx, registry.FileName(ordinal), data)
		if err != nil {
			return nil, fmt.Errorf("storing %s: %w", registry.Label(ordinal), err)
		}
		stored = location

		reg.Ordinal = ordinal
		reg.Label = registry.Label(ordinal)
		reg.Record = registry.Record{Location: location}
		return append(current.Records, reg.Record), nil
	})
	if err != nil {
		s.metrics.RegistrationErrors.Inc()
		s.log.Error("registration failed", zap.Error(err))
		if stored != "" {
			s.discardImage(ctx, stored)
		}
		return nil, fmt.Errorf("registering face: %w", err)
	}

	reg.Records = records
	s.metrics.Registrations.Inc()
	s.metrics.RegistrySize.Set(float64(len(records)))
	s.log.Info("face registered",
		zap.String("label", reg.Label),
		zap.String("location", reg.Record.Location),
		zap.Int("count", len(records)),
	)
	return &reg, nil
}

// discardImage removes an image whose registry write did not commit.
func (s *Service) discardImage(ctx context.Context, location string) {
	if err := s.images.Delete(context.WithoutCancel(ctx), location); err != nil {
		s.log.Warn("failed to remove unregistered image", zap.String("location", location), zap.Error(err))
		return
	}
	s.log.Debug("removed unregistered image", zap.String("location", location))
}

// Faces returns the current registry.
func (s *Service) Faces(ctx context.Context) (registry.Snapshot, error) {
	snap, err := s.registry.Load(ctx)
	if err != nil {
		return registry.Snapshot{}, fmt.Errorf("loading registry: %w", err)
	}
	s.noteRecovered(snap)
	s.metrics.RegistrySize.Set(float64(snap.Len()))
	return snap, nil
}

func (s *Service) normalise(image []byte) ([]byte, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	data, err := imaging.ToJPEG(image, s.maxSize, s.quality)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return data, nil
}

func (s *Service) noteRecovered(snap registry.Snapshot) {
	if !snap.Recovered {
		return
	}
	s.metrics.RegistryRecovered.Inc()
	s.log.Warn("registry document was malformed and has been treated as empty")
}

func newAttemptID() string {
	return uuid.NewString()
}
