package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

// Registry and image store backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
	BackendMinIO    = "minio"
)

// Verifier backends.
const (
	VerifierDeepFace  = "deepface"
	VerifierEmbedding = "embedding"
)

type Config struct {
	Storage  StorageConfig
	Database DatabaseConfig
	MinIO    MinIOConfig
	Verifier VerifierConfig
	Log      LogConfig
	Models   ModelsConfig
}

type StorageConfig struct {
	Dir             string // holds the registry document and every registered image
	RegistryFile    string // registry document name inside Dir
	RegistryBackend string // file or postgres
	ImageStore      string // local or minio
	ProbeDir        string // temporary probe images, defaults to the OS temp dir
}

// RegistryPath returns the full path of the registry document.
func (c *StorageConfig) RegistryPath() string {
	return filepath.Join(c.Dir, c.RegistryFile)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

type VerifierConfig struct {
	Backend        string        // deepface or embedding
	DeepFaceURL    string        // defaults to http://localhost:5005
	EmbeddingURL   string        // defaults to http://localhost:8000
	Model          string        // defaults to VGG-Face
	Detector       string        // defaults to opencv
	DistanceMetric string        // defaults to cosine
	Threshold      float64       // overrides the model table when > 0
	Timeout        time.Duration // zero means no client timeout
}

type LogConfig struct {
	Env   string // dev or prod
	Level string
}

type ModelsConfig struct {
	Models map[string]map[string]float64 `yaml:"models"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	return &Config{
		Storage: StorageConfig{
			Dir:             envString("FACES_DIR", "registered_images"),
			RegistryFile:    envString("REGISTRY_FILE", "registered_faces.json"),
			RegistryBackend: strings.ToLower(envString("REGISTRY_BACKEND", BackendFile)),
			ImageStore:      strings.ToLower(envString("IMAGE_STORE", BackendLocal)),
			ProbeDir:        envString("PROBE_DIR", os.TempDir()),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    envString("MINIO_BUCKET", "faces"),
			Prefix:    os.Getenv("MINIO_PREFIX"),
			UseSSL:    envBool("MINIO_USE_SSL"),
		},
		Verifier: VerifierConfig{
			Backend:        strings.ToLower(envString("VERIFIER_BACKEND", VerifierDeepFace)),
			DeepFaceURL:    os.Getenv("DEEPFACE_URL"),
			EmbeddingURL:   os.Getenv("EMBEDDING_URL"),
			Model:          envString("VERIFIER_MODEL", "VGG-Face"),
			Detector:       envString("VERIFIER_DETECTOR", "opencv"),
			DistanceMetric: envString("VERIFIER_DISTANCE_METRIC", "cosine"),
			Threshold:      envFloat("VERIFIER_THRESHOLD", 0),
			Timeout:        time.Duration(envInt("VERIFIER_TIMEOUT", 0)) * time.Second,
		},
		Log: LogConfig{
			Env:   envString("LOG_ENV", "dev"),
			Level: envString("LOG_LEVEL", "info"),
		},
		Models: models,
	}
}

// Threshold returns the distance threshold for a model and metric.
// The second return value is false when the pair is not in the table.
func (c *Config) Threshold(model, metric string) (float64, bool) {
	metrics, ok := c.Models.Models[model]
	if !ok {
		return 0, false
	}
	t, ok := metrics[metric]
	return t, ok
}

// VerifierThreshold returns the configured override or the table value for
// the configured model and metric.
func (c *Config) VerifierThreshold() (float64, bool) {
	if c.Verifier.Threshold > 0 {
		return c.Verifier.Threshold, true
	}
	return c.Threshold(c.Verifier.Model, c.Verifier.DistanceMetric)
}

// ModelNames returns the known model names in sorted order.
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models.Models))
	for name := range c.Models.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
