package cmd

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImageFile(t *testing.T) {
	for name, want := range map[string]bool{
		"face.jpg":  true,
		"FACE.JPEG": true,
		"face.png":  true,
		"face.webp": true,
		"face.bmp":  true,
		"face.heic": false,
		"notes.txt": false,
		"noext":     false,
	} {
		assert.Equal(t, want, isImageFile(name), name)
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestCollectImages(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))
	writePNG(t, filepath.Join(dir, "nested", "b.png"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644))

	flat, err := collectImages(dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.png")}, flat)

	deep, err := collectImages(dir, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "nested", "b.png")}, deep)

	_, err = collectImages(filepath.Join(dir, "a.png"), false)
	assert.Error(t, err)
}

func TestRegisterThenList(t *testing.T) {
	root := t.TempDir()
	t.Setenv("FACES_DIR", filepath.Join(root, "faces"))
	t.Setenv("PROBE_DIR", filepath.Join(root, "probes"))
	t.Setenv("REGISTRY_BACKEND", "file")
	t.Setenv("IMAGE_STORE", "local")
	t.Setenv("VERIFIER_BACKEND", "deepface")
	t.Setenv("LOG_LEVEL", "error")

	img := filepath.Join(root, "alice.png")
	writePNG(t, img)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	rootCmd.SetArgs([]string{"register", img, img})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Registered registered_1 <- alice.png")
	assert.Contains(t, out.String(), "Registered registered_2 <- alice.png")

	out.Reset()
	rootCmd.SetArgs([]string{"faces"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "2 registered face(s)")
	assert.FileExists(t, filepath.Join(root, "faces", "registered_2.jpg"))
	assert.FileExists(t, filepath.Join(root, "faces", "registered_faces.json"))
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "face-verify dev")
}

func newServeFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().Int("port", 8080, "")
	cmd.Flags().String("host", "0.0.0.0", "")
	cmd.Flags().String("allowed-origins", "", "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestResolveServeOptions(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("WEB_PORT", "")
		t.Setenv("WEB_HOST", "")
		t.Setenv("WEB_ALLOWED_ORIGINS", "")

		port, host, origins := resolveServeOptions(newServeFlags(t))
		assert.Equal(t, 8080, port)
		assert.Equal(t, "0.0.0.0", host)
		assert.Empty(t, origins)
	})

	t.Run("EnvOverridesDefaults", func(t *testing.T) {
		t.Setenv("WEB_PORT", "9090")
		t.Setenv("WEB_HOST", "127.0.0.1")
		t.Setenv("WEB_ALLOWED_ORIGINS", "https://a.example, https://b.example")

		port, host, origins := resolveServeOptions(newServeFlags(t))
		assert.Equal(t, 9090, port)
		assert.Equal(t, "127.0.0.1", host)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, origins)
	})

	t.Run("ExplicitFlagsWin", func(t *testing.T) {
		t.Setenv("WEB_PORT", "9090")
		t.Setenv("WEB_HOST", "127.0.0.1")

		port, host, _ := resolveServeOptions(newServeFlags(t, "--port", "7000", "--host", "localhost"))
		assert.Equal(t, 7000, port)
		assert.Equal(t, "localhost", host)
	})

	t.Run("BadEnvPortIgnored", func(t *testing.T) {
		t.Setenv("WEB_PORT", "eighty")

		port, _, _ := resolveServeOptions(newServeFlags(t))
		assert.Equal(t, 8080, port)
	})
}
