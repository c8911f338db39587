package faceauth

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-verify/internal/metrics"
	"github.com/kozaktomas/face-verify/internal/registry"
	"github.com/kozaktomas/face-verify/internal/storage"
	"github.com/kozaktomas/face-verify/internal/verifier"
)

// fakeVerifier answers by registered image location and records every call.
type fakeVerifier struct {
	mu       sync.Mutex
	calls    []string
	matches  map[string]bool
	failures map[string]error
	// probeMissing is set if a call saw a probe path that did not exist.
	probeMissing bool
	onCall       func()
}

func (f *fakeVerifier) Verify(_ context.Context, img1, img2 string) (*verifier.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, img1)
	if _, err := os.Stat(img2); err != nil {
		f.probeMissing = true
	}
	if f.onCall != nil {
		f.onCall()
	}
	if err := f.failures[img1]; err != nil {
		return nil, err
	}
	verified := f.matches[img1]
	distance := 0.9
	if verified {
		distance = 0.1
	}
	return &verifier.Result{Verified: verified, Distance: distance, Threshold: 0.68, Model: "VGG-Face"}, nil
}

type testEnv struct {
	svc      *Service
	verifier *fakeVerifier
	registry *registry.FileStore
	metrics  *metrics.Metrics
	facesDir string
	probeDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	facesDir := filepath.Join(root, "registered_images")
	probeDir := filepath.Join(root, "probes")

	reg, err := registry.NewFileStore(filepath.Join(facesDir, "registered_faces.json"))
	require.NoError(t, err)
	images, err := storage.NewLocalStore(facesDir)
	require.NoError(t, err)

	fv := &fakeVerifier{matches: map[string]bool{}, failures: map[string]error{}}
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(reg, images, fv, Options{ProbeDir: probeDir, Metrics: m})

	return &testEnv{svc: svc, verifier: fv, registry: reg, metrics: m, facesDir: facesDir, probeDir: probeDir}
}

func testImage(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.Set(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (e *testEnv) register(t *testing.T, n int) []string {
	t.Helper()
	locs := make([]string, n)
	for i := range n {
		reg, err := e.svc.Register(t.Context(), testImage(t, uint8(i*20)))
		require.NoError(t, err)
		locs[i] = reg.Record.Location
	}
	return locs
}

func probeFiles(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func TestRegister_LabelsFollowRegistrySize(t *testing.T) {
	env := newTestEnv(t)

	for i := 1; i <= 3; i++ {
		reg, err := env.svc.Register(t.Context(), testImage(t, 10))
		require.NoError(t, err)

		assert.Equal(t, i, reg.Ordinal)
		assert.Equal(t, registry.Label(i), reg.Label)
		assert.Len(t, reg.Records, i)
		assert.Equal(t, reg.Record, reg.Records[i-1])
		assert.Equal(t, filepath.Join(env.facesDir, registry.FileName(i)), reg.Record.Location)

		data, err := os.ReadFile(reg.Record.Location)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, data[:3], "stored image should be JPEG")
	}

	snap, err := env.registry.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Len())
	assert.InDelta(t, 3, testutil.ToFloat64(env.metrics.Registrations), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(env.metrics.RegistrySize), 0)
}

func TestRegister_InvalidImage(t *testing.T) {
	env := newTestEnv(t)

	for _, data := range [][]byte{nil, []byte("definitely not an image")} {
		_, err := env.svc.Register(t.Context(), data)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidImage)
	}

	snap, err := env.registry.Load(t.Context())
	require.NoError(t, err)
	assert.True(t, snap.Empty(), "invalid images must not touch the registry")
	assert.InDelta(t, 2, testutil.ToFloat64(env.metrics.RegistrationErrors), 0)
}

type failingStore struct {
	storage.Store
}

func (failingStore) Put(context.Context, string, []byte) (string, error) {
	return "", errors.New("disk full")
}

func TestRegister_StorageFailureLeavesRegistry(t *testing.T) {
	env := newTestEnv(t)
	svc := NewService(env.registry, failingStore{}, env.verifier, Options{ProbeDir: env.probeDir})

	_, err := svc.Register(t.Context(), testImage(t, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	snap, err := env.registry.Load(t.Context())
	require.NoError(t, err)
	assert.True(t, snap.Empty())
}

// rejectingRegistry runs the update function and then fails the write.
type rejectingRegistry struct {
	registry.Store
}

func (r rejectingRegistry) Update(ctx context.Context, fn registry.UpdateFunc) ([]registry.Record, error) {
	snap, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := fn(snap); err != nil {
		return nil, err
	}
	return nil, errors.New("read-only file system")
}

func TestRegister_RegistryFailureRemovesImage(t *testing.T) {
	env := newTestEnv(t)
	images, err := storage.NewLocalStore(env.facesDir)
	require.NoError(t, err)
	svc := NewService(rejectingRegistry{env.registry}, images, env.verifier, Options{ProbeDir: env.probeDir})

	_, err = svc.Register(t.Context(), testImage(t, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only file system")

	_, err = os.Stat(filepath.Join(env.facesDir, registry.FileName(1)))
	assert.ErrorIs(t, err, os.ErrNotExist, "image must be removed when the registry write fails")

	snap, err := env.registry.Load(t.Context())
	require.NoError(t, err)
	assert.True(t, snap.Empty())
}

func TestRegister_AfterCorruption(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.registry.Path(), []byte("{not json"), 0o644))

	reg, err := env.svc.Register(t.Context(), testImage(t, 1))
	require.NoError(t, err)
	assert.Equal(t, "registered_1", reg.Label)
	assert.Len(t, reg.Records, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.RegistryRecovered), 0)
}

func TestVerify_EmptyRegistry(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.svc.Verify(t.Context(), testImage(t, 1))
	require.NoError(t, err)

	assert.Equal(t, StatusNoRegisteredFaces, out.Status)
	assert.Empty(t, env.verifier.calls, "verifier must not be called")
	assert.Zero(t, out.Compared)
	assert.NotEmpty(t, out.AttemptID)
	assert.Empty(t, probeFiles(t, env.probeDir))
}

func TestVerify_FirstMatchWins(t *testing.T) {
	env := newTestEnv(t)
	locs := env.register(t, 3)
	env.verifier.matches[locs[1]] = true
	env.verifier.matches[locs[2]] = true

	out, err := env.svc.Verify(t.Context(), testImage(t, 1))
	require.NoError(t, err)

	assert.Equal(t, StatusMatched, out.Status)
	require.NotNil(t, out.Match)
	assert.Equal(t, "registered_2", out.Match.Label)
	assert.Equal(t, locs[1], out.Match.Location)
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.Verified)
	assert.Equal(t, 2, out.Compared)
	assert.Equal(t, locs[:2], env.verifier.calls, "third record must never be evaluated")
	assert.False(t, env.verifier.probeMissing)
	assert.Empty(t, probeFiles(t, env.probeDir))
}

func TestVerify_NotAuthorized(t *testing.T) {
	env := newTestEnv(t)
	locs := env.register(t, 3)

	out, err := env.svc.Verify(t.Context(), testImage(t, 1))
	require.NoError(t, err)

	assert.Equal(t, StatusNotAuthorized, out.Status)
	assert.Nil(t, out.Match)
	assert.Empty(t, out.Errors)
	assert.Equal(t, 3, out.Compared)
	assert.Equal(t, locs, env.verifier.calls)
	assert.Empty(t, probeFiles(t, env.probeDir))
}

func TestVerify_ComparisonErrorsAreNotFatal(t *testing.T) {
	env := newTestEnv(t)
	locs := env.register(t, 3)
	env.verifier.failures[locs[0]] = verifier.ErrNoFace
	env.verifier.failures[locs[1]] = errors.New("connection refused")
	env.verifier.matches[locs[2]] = true

	out, err := env.svc.Verify(t.Context(), testImage(t, 1))
	require.NoError(t, err)

	assert.Equal(t, StatusMatched, out.Status)
	assert.Equal(t, "registered_3", out.Match.Label)
	require.Len(t, out.Errors, 2)
	assert.Equal(t, "registered_1", out.Errors[0].Entry.Label)
	assert.ErrorIs(t, out.Errors[0], verifier.ErrNoFace)
	assert.Equal(t, "connection refused", out.Errors[1].Message)
	assert.InDelta(t, 2, testutil.ToFloat64(env.metrics.Comparisons.WithLabelValues(metrics.ComparisonError)), 0)
}

func TestVerify_AllComparisonsFail(t *testing.T) {
	env := newTestEnv(t)
	locs := env.register(t, 2)
	for _, loc := range locs {
		env.verifier.failures[loc] = errors.New("service unavailable")
	}

	out, err := env.svc.Verify(t.Context(), testImage(t, 1))
	require.NoError(t, err)

	assert.Equal(t, StatusNotAuthorized, out.Status)
	assert.Len(t, out.Errors, 2)
	assert.Equal(t, 2, out.Compared)
	assert.Empty(t, probeFiles(t, env.probeDir))
}

func TestVerify_MissingRegisteredImage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.registry.Append(t.Context(), registry.Record{Location: filepath.Join(env.facesDir, "gone.jpg")})
	require.NoError(t, err)

	realVerifier := verifier.NewDeepFaceClient("http://127.0.0.1:1", storage.NewResolver(nil), verifier.DeepFaceOptions{}, nil)
	svc := NewService(env.registry, nil, realVerifier, Options{ProbeDir: env.probeDir})

	out, err := svc.Verify(t.Context(), testImage(t, 1))
	require.NoError(t, err)
	assert.Equal(t, StatusNotAuthorized, out.Status)
	require.Len(t, out.Errors, 1)
	assert.ErrorIs(t, out.Errors[0], storage.ErrNotFound)
}

func TestVerify_CancelledMidScan(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, 3)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	env.verifier.onCall = cancel

	_, err := env.svc.Verify(ctx, testImage(t, 1))
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, env.verifier.calls, 1)
	assert.Empty(t, probeFiles(t, env.probeDir), "probe must be removed on error paths")
}

func TestVerify_InvalidProbe(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, 1)

	_, err := env.svc.Verify(t.Context(), []byte("garbage"))
	require.ErrorIs(t, err, ErrInvalidImage)
	assert.Empty(t, env.verifier.calls)
}

func TestVerify_EmptyRegistryInvalidImage(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.svc.Verify(t.Context(), []byte("garbage"))
	require.NoError(t, err)
	assert.Equal(t, StatusNoRegisteredFaces, out.Status)
	assert.Empty(t, env.verifier.calls)
	assert.Empty(t, probeFiles(t, env.probeDir))
}

func TestVerify_CorruptRegistry(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, 2)
	require.NoError(t, os.WriteFile(env.registry.Path(), []byte(`["a", 1]`), 0o644))

	out, err := env.svc.Verify(t.Context(), testImage(t, 1))
	require.NoError(t, err)
	assert.Equal(t, StatusNoRegisteredFaces, out.Status)
	assert.True(t, out.RegistryRecovered)
	assert.Empty(t, env.verifier.calls)
}

func TestFaces(t *testing.T) {
	env := newTestEnv(t)
	locs := env.register(t, 2)

	snap, err := env.svc.Faces(t.Context())
	require.NoError(t, err)

	entries := snap.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, registry.Entry{Ordinal: 1, Label: "registered_1", Location: locs[0]}, entries[0])
	assert.Equal(t, registry.Entry{Ordinal: 2, Label: "registered_2", Location: locs[1]}, entries[1])
	assert.False(t, snap.Recovered)
}
