package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/teslashibe/posture-guard/internal/httpc"
)

// Client calls a posture server over HTTP
type Client struct {
	baseURL string
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/")}
}

// Analyze posts one encoded image to /analyze
func (c *Client) Analyze(ctx context.Context, image []byte) (*AnalyzeResponse, error) {
	body, err := json.Marshal(AnalyzeRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, err
	}

	resp, err := httpc.PostJSON(ctx, c.baseURL+"/analyze", body)
	if err != nil {
		return nil, fmt.Errorf("analyze request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}
	return &out, nil
}

// Health checks that the server is up
func (c *Client) Health(ctx context.Context) error {
	resp, err := httpc.Get(ctx, c.baseURL+"/health")
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// StatusError is a non-200 reply from the server
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}
