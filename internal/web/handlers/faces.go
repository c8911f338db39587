package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-verify/internal/faceauth"
	"github.com/kozaktomas/face-verify/internal/logger"
	"github.com/kozaktomas/face-verify/internal/registry"
)

// FaceService is the part of faceauth.Service the handlers use.
type FaceService interface {
	Register(ctx context.Context, image []byte) (*faceauth.Registration, error)
	Verify(ctx context.Context, probe []byte) (*faceauth.Outcome, error)
	Faces(ctx context.Context) (registry.Snapshot, error)
}

// FacesHandler handles face registration and verification endpoints
type FacesHandler struct {
	service FaceService
}

// NewFacesHandler creates a new faces handler
func NewFacesHandler(service FaceService) *FacesHandler {
	return &FacesHandler{service: service}
}

// FacesResponse lists the registered faces
type FacesResponse struct {
	Count     int              `json:"count"`
	Faces     []registry.Entry `json:"faces"`
	Recovered bool             `json:"recovered"`
}

// RegisterResponse describes a newly registered face
type RegisterResponse struct {
	Label    string `json:"label"`
	Ordinal  int    `json:"ordinal"`
	Location string `json:"location"`
	Count    int    `json:"count"`
}

// List returns the registry in registration order
func (h *FacesHandler) List(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Faces(r.Context())
	if err != nil {
		logger.From(r.Context()).Error("listing faces failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load registered faces")
		return
	}

	respondJSON(w, http.StatusOK, FacesResponse{
		Count:     snap.Len(),
		Faces:     snap.Entries(),
		Recovered: snap.Recovered,
	})
}

// Register stores the submitted image as a new registered face
func (h *FacesHandler) Register(w http.ResponseWriter, r *http.Request) {
	data, err := readImage(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reg, err := h.service.Register(r.Context(), data)
	if err != nil {
		if errors.Is(err, faceauth.ErrInvalidImage) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.From(r.Context()).Error("registration failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to register face")
		return
	}

	respondJSON(w, http.StatusCreated, RegisterResponse{
		Label:    reg.Label,
		Ordinal:  reg.Ordinal,
		Location: reg.Record.Location,
		Count:    len(reg.Records),
	})
}

// Verify compares the submitted image against every registered face
func (h *FacesHandler) Verify(w http.ResponseWriter, r *http.Request) {
	data, err := readImage(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.service.Verify(r.Context(), data)
	if err != nil {
		switch {
		case errors.Is(err, faceauth.ErrInvalidImage):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			respondError(w, http.StatusServiceUnavailable, "verification was cancelled")
		default:
			logger.From(r.Context()).Error("verification failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to verify face")
		}
		return
	}

	if out.Status == faceauth.StatusMatched {
		logger.From(r.Context()).Info("access granted",
			zap.String("attempt_id", out.AttemptID),
			zap.String("label", sanitizeForLog(out.Match.Label)),
		)
	}
	respondJSON(w, statusCode(out.Status), out)
}

func statusCode(s faceauth.Status) int {
	switch s {
	case faceauth.StatusMatched:
		return http.StatusOK
	case faceauth.StatusNotAuthorized:
		return http.StatusForbidden
	case faceauth.StatusNoRegisteredFaces:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}
