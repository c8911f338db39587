package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-verify/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Verifier VerifierInfo `json:"verifier"`
	Storage  StorageInfo  `json:"storage"`
	Models   []string     `json:"models"`
}

// VerifierInfo describes the active verifier settings
type VerifierInfo struct {
	Backend        string  `json:"backend"`
	Model          string  `json:"model"`
	Detector       string  `json:"detector,omitempty"`
	DistanceMetric string  `json:"distance_metric"`
	Threshold      float64 `json:"threshold,omitempty"`
}

// StorageInfo describes where the registry and images live
type StorageInfo struct {
	RegistryBackend string `json:"registry_backend"`
	ImageStore      string `json:"image_store"`
}

// Get returns the active configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	threshold, _ := h.config.VerifierThreshold()

	detector := h.config.Verifier.Detector
	if h.config.Verifier.Backend == config.VerifierEmbedding {
		detector = "" // the embedding server picks its own
	}

	respondJSON(w, http.StatusOK, ConfigResponse{
		Verifier: VerifierInfo{
			Backend:        h.config.Verifier.Backend,
			Model:          h.config.Verifier.Model,
			Detector:       detector,
			DistanceMetric: h.config.Verifier.DistanceMetric,
			Threshold:      threshold,
		},
		Storage: StorageInfo{
			RegistryBackend: h.config.Storage.RegistryBackend,
			ImageStore:      h.config.Storage.ImageStore,
		},
		Models: h.config.ModelNames(),
	})
}
