package verifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-verify/internal/imaging"
	"github.com/kozaktomas/face-verify/internal/storage"
)

const defaultDeepFaceURL = "http://localhost:5005"

// DeepFaceOptions are forwarded to the /verify endpoint.
type DeepFaceOptions struct {
	Model          string
	Detector       string
	DistanceMetric string
	// Threshold overrides the server's model default when > 0.
	Threshold float64
}

// DeepFaceClient verifies image pairs with the DeepFace REST API.
type DeepFaceClient struct {
	baseURL string
	opts    DeepFaceOptions
	images  storage.Reader
	client  *http.Client
}

// NewDeepFaceClient creates a new DeepFace client.
func NewDeepFaceClient(baseURL string, images storage.Reader, opts DeepFaceOptions, client *http.Client) *DeepFaceClient {
	if baseURL == "" {
		baseURL = defaultDeepFaceURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &DeepFaceClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		opts:    opts,
		images:  images,
		client:  client,
	}
}

type deepFaceVerifyRequest struct {
	Img1             string  `json:"img1"`
	Img2             string  `json:"img2"`
	ModelName        string  `json:"model_name,omitempty"`
	DetectorBackend  string  `json:"detector_backend,omitempty"`
	DistanceMetric   string  `json:"distance_metric,omitempty"`
	Threshold        float64 `json:"threshold,omitempty"`
	EnforceDetection bool    `json:"enforce_detection"`
	Align            bool    `json:"align"`
}

type deepFaceErrorResponse struct {
	Error string `json:"error"`
}

// Verify implements Verifier.
func (c *DeepFaceClient) Verify(ctx context.Context, img1, img2 string) (*Result, error) {
	uri1, err := c.dataURI(ctx, img1)
	if err != nil {
		return nil, err
	}
	uri2, err := c.dataURI(ctx, img2)
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(deepFaceVerifyRequest{
		Img1:             uri1,
		Img2:             uri2,
		ModelName:        c.opts.Model,
		DetectorBackend:  c.opts.Detector,
		DistanceMetric:   c.opts.DistanceMetric,
		Threshold:        c.opts.Threshold,
		EnforceDetection: true,
		Align:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
		return nil, deepFaceError(resp.StatusCode, body)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// dataURI reads the image at location and encodes it for the API.
func (c *DeepFaceClient) dataURI(ctx context.Context, location string) (string, error) {
	data, err := c.images.Get(ctx, location)
	if err != nil {
		return "", err
	}
	return "data:" + imaging.DetectMIMEType(data) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func deepFaceError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var errResp deepFaceErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		msg = errResp.Error
	}
	if strings.Contains(strings.ToLower(msg), "could not be detected") {
		return fmt.Errorf("%w: %s", ErrNoFace, msg)
	}
	return fmt.Errorf("API error (status %d): %s", status, msg)
}
