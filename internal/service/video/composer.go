package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"concord/internal/domain"
	"concord/internal/domain/models"
)

// composerSecretHeader authenticates both directions of the compose
// integration: outbound dispatches carry it, inbound callbacks present it.
const composerSecretHeader = "X-Composer-Secret"

// Client talks to the external compose worker.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a compose worker client
func NewClient(baseURL, secret string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type dispatchRequest struct {
	JobID           string   `json:"jobId"`
	InputReferences []string `json:"inputReferences"`
	OutputReference string   `json:"outputReference"`
}

type dispatchResponse struct {
	WorkerRef string `json:"workerRef"`
}

// Dispatch hands one job to the compose worker. The worker reports back
// through the callback endpoints; Dispatch only confirms acceptance.
func (c *Client) Dispatch(ctx context.Context, job *models.VideoJob) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("composer URL not configured: %w", domain.ErrConfiguration)
	}

	payload, err := json.Marshal(dispatchRequest{
		JobID:           job.ID,
		InputReferences: job.InputRefs,
		OutputReference: fmt.Sprintf("videos/%s.mp4", job.ID),
	})
	if err != nil {
		return "", fmt.Errorf("encode dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/compose", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(composerSecretHeader, c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("compose worker unreachable: %w: %v", domain.ErrDispatchFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("compose worker rejected job %s (status %d): %w: %s",
			job.ID, resp.StatusCode, domain.ErrDispatchFailure, body)
	}

	var out dispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.WorkerRef == "" {
		// Acceptance without a worker ref is still acceptance
		return job.ID, nil
	}
	return out.WorkerRef, nil
}
