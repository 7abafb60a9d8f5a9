package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"zkml-orchestrator/core/configdoc"
)

// HTTPEngine posts config documents to an engine running out of process.
// The request carries no deadline of its own; the Runner's context bounds it.
type HTTPEngine struct {
	BaseURL string
	Client  *http.Client
}

// runResponse is the body returned by the remote engine's /run endpoint
type runResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NewHTTPEngine creates a remote engine client
func NewHTTPEngine(baseURL string) *HTTPEngine {
	return &HTTPEngine{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{},
	}
}

// Run sends the document and waits for the engine's verdict
func (e *HTTPEngine) Run(ctx context.Context, doc *configdoc.Document) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/run", bytes.NewReader(doc.Body))
	if err != nil {
		return fmt.Errorf("%w: building request: %v", ErrEngineUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if doc.Path != "" {
		req.Header.Set("X-Config-Path", doc.Path)
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil && isDialError(err) {
			return fmt.Errorf("%w: %v", ErrEngineUnreachable, err)
		}
		return fmt.Errorf("engine run: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("engine run: reading response: %w", err)
	}

	var out runResponse
	if jsonErr := json.Unmarshal(body, &out); jsonErr != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("engine returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return fmt.Errorf("decoding engine response: %v", jsonErr)
	}
	if resp.StatusCode != http.StatusOK || !out.OK {
		if out.Error == "" {
			out.Error = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return fmt.Errorf("engine error: %s", out.Error)
	}
	return nil
}

// isDialError reports whether err happened before a connection to the engine existed
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
