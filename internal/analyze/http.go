package analyze

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// HTTPAnalyzer posts images to a self-hosted analysis endpoint that returns
// cells in the same JSON shape LoadCells reads.
type HTTPAnalyzer struct {
	Endpoint string
	APIKey   string
	client   *http.Client
}

// NewHTTPAnalyzer creates an HTTP analyzer. The API key is read from the
// named environment variable and is optional.
func NewHTTPAnalyzer(endpoint, apiKeyEnv string, timeout time.Duration) *HTTPAnalyzer {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	var key string
	if apiKeyEnv != "" {
		key = os.Getenv(apiKeyEnv)
	}
	return &HTTPAnalyzer{
		Endpoint: endpoint,
		APIKey:   key,
		client:   &http.Client{Timeout: timeout},
	}
}

func (h *HTTPAnalyzer) Name() string { return "http" }

// IsConfigured checks that an endpoint is set.
func (h *HTTPAnalyzer) IsConfigured() bool {
	return h.Endpoint != ""
}

// Analyze sends the image and decodes the returned cells.
func (h *HTTPAnalyzer) Analyze(ctx context.Context, image []byte) (*Analysis, error) {
	body := map[string]any{
		"image":    base64.StdEncoding.EncodeToString(image),
		"features": []string{"TABLES"},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", h.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("analysis API returned %d: %s", resp.StatusCode, string(respBody))
	}

	return LoadCells(resp.Body)
}
