// Package replicate is a thin client for the Replicate prediction API,
// driving the IP-Adapter SDXL model used for style-transfer colorization.
package replicate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrMissingAPIToken is returned when no credential is configured; without
// one the colorization feature is disabled.
var ErrMissingAPIToken = errors.New("replicate: api token is missing")

// Pinned model for IP-Adapter SDXL style transfer: the reference image sets
// the style, the prompt steers the content.
const (
	modelVersion = "2b28ed38081a21d6150e1ed3e3187de2bcf6c9055560cd0de18f9e9c99adce0d"

	defaultBaseURL = "https://api.replicate.com/v1"
)

// State is the closed set of prediction states the API reports.
type State string

const (
	StateStarting   State = "starting"
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateCanceled   State = "canceled"
)

// ParseState maps a raw status string onto the closed enumeration, failing
// on anything unrecognized rather than passing it through.
func ParseState(s string) (State, error) {
	switch st := State(strings.TrimSpace(s)); st {
	case StateStarting, StateProcessing, StateSucceeded, StateFailed, StateCanceled:
		return st, nil
	default:
		return "", fmt.Errorf("replicate: unrecognized prediction status %q", s)
	}
}

// Prediction is the observed remote state of one generation request.
type Prediction struct {
	ID        string
	State     State
	ResultURL string
	Error     string
}

type Options struct {
	BaseURL    string
	APIToken   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIToken),
	}
}

// HasCredentials reports whether an API token is configured.
func (c *Client) HasCredentials() bool {
	return c != nil && c.token != ""
}

type predictionInput struct {
	Image             string  `json:"image"`
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt"`
	NumOutputs        int     `json:"num_outputs"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	IPAdapterScale    float64 `json:"ip_adapter_scale"`
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
	Detail string          `json:"detail"`
}

// Submit encodes both images and creates a prediction, returning the remote
// prediction id. Only the reference image is fed to the pinned model; the
// infrared image is validated here and reserved for a future ControlNet
// structure input.
func (c *Client) Submit(ctx context.Context, infraredPath, referencePath, prompt string) (string, error) {
	if c == nil || c.token == "" {
		return "", ErrMissingAPIToken
	}
	if _, err := encodeDataURI(infraredPath); err != nil {
		return "", err
	}
	referenceURI, err := encodeDataURI(referencePath)
	if err != nil {
		return "", err
	}

	payload := predictionRequest{
		Version: modelVersion,
		Input: predictionInput{
			Image:             referenceURI,
			Prompt:            prompt,
			NegativePrompt:    "blurry, low quality, distorted, deformed",
			NumOutputs:        1,
			GuidanceScale:     7.5,
			NumInferenceSteps: 30,
			IPAdapterScale:    0.8,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predictions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out predictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", fmt.Errorf("replicate: create prediction: http %d", resp.StatusCode)
		}
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if out.Detail != "" {
			return "", fmt.Errorf("replicate: create prediction: %s", out.Detail)
		}
		return "", fmt.Errorf("replicate: create prediction: http %d", resp.StatusCode)
	}
	if out.ID == "" {
		return "", errors.New("replicate: create prediction: empty prediction id")
	}
	return out.ID, nil
}

// Poll fetches the current remote state of a prediction. List-shaped output
// maps to its first element, scalar output to itself.
func (c *Client) Poll(ctx context.Context, predictionID string) (Prediction, error) {
	if c == nil || c.token == "" {
		return Prediction{}, ErrMissingAPIToken
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/predictions/"+predictionID, nil)
	if err != nil {
		return Prediction{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Prediction{}, err
	}
	defer resp.Body.Close()

	var out predictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Prediction{}, fmt.Errorf("replicate: get prediction: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if out.Detail != "" {
			return Prediction{}, fmt.Errorf("replicate: get prediction: %s", out.Detail)
		}
		return Prediction{}, fmt.Errorf("replicate: get prediction: http %d", resp.StatusCode)
	}

	state, err := ParseState(out.Status)
	if err != nil {
		return Prediction{}, err
	}

	pred := Prediction{ID: out.ID, State: state}
	if state == StateSucceeded {
		pred.ResultURL = firstOutputURL(out.Output)
	}
	if state == StateFailed {
		pred.Error = errorText(out.Error)
	}
	return pred, nil
}

// Download fetches the finished artifact bytes.
func (c *Client) Download(ctx context.Context, resultURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("replicate: download result: http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func firstOutputURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) > 0 {
			return list[0]
		}
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	return ""
}

func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg
	}
	return string(raw)
}

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

func encodeDataURI(imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("replicate: read image: %w", err)
	}
	mime, ok := mimeTypes[strings.ToLower(filepath.Ext(imagePath))]
	if !ok {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
