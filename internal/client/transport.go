package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HTTPSender posts flushed batches to the server's batch-ingestion
// endpoint. Any non-2xx status fails the whole batch; there is no
// partial-acceptance contract.
type HTTPSender struct {
	baseURL string
	httpc   *http.Client
}

func NewHTTPSender(baseURL string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

type ingestRequest struct {
	Events []EventPayload `json:"events"`
}

func (s *HTTPSender) Send(ctx context.Context, sessionID uuid.UUID, payloads []EventPayload) error {
	body, err := json.Marshal(ingestRequest{Events: payloads})
	if err != nil {
		return fmt.Errorf("client.HTTPSender.Send: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/sessions/%s/events", s.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client.HTTPSender.Send: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("client.HTTPSender.Send: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("client.HTTPSender.Send: server returned %s", resp.Status)
	}

	return nil
}
