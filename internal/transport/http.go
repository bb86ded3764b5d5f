package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSender delivers payloads by POSTing them as JSON to the destination's
// endpoint URL. The client timeout is injected from config so a hanging
// endpoint surfaces as a network-class failure instead of blocking forever.
type HTTPSender struct {
	httpClient *http.Client
}

func NewHTTPSender(timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send issues one POST with Content-Type: application/json and the raw
// payload as the body. Any 2xx status counts as acknowledged; the body is
// drained and discarded either way so the connection can be reused.
func (s *HTTPSender) Send(ctx context.Context, endpointURL string, payload json.RawMessage) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(payload))
	if err != nil {
		return Result{Class: ClassNetworkError, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Result{Class: ClassNetworkError, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Class: ClassOK, StatusCode: resp.StatusCode}
	}
	return Result{Class: ClassHTTPError, StatusCode: resp.StatusCode}
}

func httpStatusLine(code int) string {
	return fmt.Sprintf("%d %s", code, http.StatusText(code))
}

// compile-time check that HTTPSender implements Sender
var _ Sender = (*HTTPSender)(nil)
