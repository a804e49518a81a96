package extern

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// FileRef points the extraction service at a document. The core never reads
// the bytes itself.
type FileRef struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Locator  string `json:"locator"`
}

// Extractor turns an uploaded document (PDF, Word, Excel, PPT, CSV, JSON)
// into plain text.
type Extractor interface {
	Extract(ctx context.Context, file FileRef) (string, error)
}

// HTTPExtractor posts the file reference to an extraction service.
type HTTPExtractor struct {
	baseURL string
	client  *http.Client
}

func NewHTTPExtractor(baseURL string, timeout time.Duration) *HTTPExtractor {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPExtractor{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (e *HTTPExtractor) Extract(ctx context.Context, file FileRef) (string, error) {
	body, err := json.Marshal(file)
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %s", ErrUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/extract", strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %s", ErrUnavailable, err)
	}
	return parsed.Text, nil
}
