package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-verify/internal/imaging"
	"github.com/kozaktomas/face-verify/internal/storage"
)

const defaultEmbeddingURL = "http://localhost:8000"

// EmbeddingClient computes face embeddings using the embedding server
type EmbeddingClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewEmbeddingClient creates a new embedding client
func NewEmbeddingClient(baseURL, model string, client *http.Client) *EmbeddingClient {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &EmbeddingClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postMultipartImage posts the image as the "file" part of a multipart form.
func (c *EmbeddingClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", imaging.DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *EmbeddingClient) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &faceResp, nil
}

// Model returns the configured model name
func (c *EmbeddingClient) Model() string {
	return c.model
}

// EmbeddingVerifier compares the most confident face of each image by
// cosine distance.
type EmbeddingVerifier struct {
	client    *EmbeddingClient
	images    storage.Reader
	threshold float64
}

func NewEmbeddingVerifier(client *EmbeddingClient, images storage.Reader, threshold float64) *EmbeddingVerifier {
	return &EmbeddingVerifier{client: client, images: images, threshold: threshold}
}

// Verify implements Verifier.
func (v *EmbeddingVerifier) Verify(ctx context.Context, img1, img2 string) (*Result, error) {
	start := time.Now()

	first, model, err := v.bestFace(ctx, img1)
	if err != nil {
		return nil, err
	}
	second, _, err := v.bestFace(ctx, img2)
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = v.client.Model()
	}

	distance := CosineDistance(first.Embedding, second.Embedding)
	return &Result{
		Verified:       distance <= v.threshold,
		Distance:       distance,
		Threshold:      v.threshold,
		Model:          model,
		DistanceMetric: "cosine",
		Time:           time.Since(start).Seconds(),
	}, nil
}

func (v *EmbeddingVerifier) bestFace(ctx context.Context, location string) (*FaceDetection, string, error) {
	data, err := v.images.Get(ctx, location)
	if err != nil {
		return nil, "", err
	}

	resp, err := v.client.ComputeFaceEmbeddings(ctx, data)
	if err != nil {
		return nil, "", err
	}

	var best *FaceDetection
	for i := range resp.Faces {
		face := &resp.Faces[i]
		if len(face.Embedding) == 0 {
			continue
		}
		if best == nil || face.DetScore > best.DetScore {
			best = face
		}
	}
	if best == nil {
		return nil, "", fmt.Errorf("%w in %s", ErrNoFace, location)
	}
	return best, resp.Model, nil
}
