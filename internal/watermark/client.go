// Package watermark integrates with the external forensic watermarking
// API and manages the watermarked variant cache.
//
// Each source .mov gets a pool of pre-watermarked variants named
// `{base}_WM{n}.mov`. Delivery consumes the lowest-numbered variant and
// a replacement job is submitted so the pool stays warm.
package watermark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"manifold/internal/config"
)

// JobOutput is one output of a watermarking job.
type JobOutput struct {
	URI  string `json:"uri"`
	WMID string `json:"wmid"`
}

// JobResponse is the API's job representation.
type JobResponse struct {
	ID      string      `json:"id"`
	Status  string      `json:"status"`
	Outputs []JobOutput `json:"outputs"`
}

type jobRequest struct {
	Watermark struct {
		WMPreset struct {
			ID string `json:"id"`
		} `json:"wm_preset"`
	} `json:"watermark"`
	Input struct {
		URI string `json:"uri"`
	} `json:"input"`
	Outputs []struct {
		URI string `json:"uri"`
	} `json:"outputs"`
}

// Client talks to the watermarking API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds an API client from configuration. Returns nil when
// no API endpoint is configured.
func NewClient(cfg config.Watermark) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if base == "" {
		return nil
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: base,
		token:   cfg.BearerToken,
		client:  &http.Client{Timeout: timeout},
	}
}

// SubmitJob submits a watermarking job and starts it immediately.
func (c *Client) SubmitJob(ctx context.Context, inputURI, outputURI, presetID string) (*JobResponse, error) {
	var req jobRequest
	req.Watermark.WMPreset.ID = presetID
	req.Input.URI = inputURI
	req.Outputs = make([]struct {
		URI string `json:"uri"`
	}, 1)
	req.Outputs[0].URI = outputURI

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode watermark job: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v3/jobs?autostart=true", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build watermark request: %w", err)
	}
	c.setHeaders(httpReq)

	return c.do(httpReq)
}

// JobStatus fetches the current state of a previously submitted job.
func (c *Client) JobStatus(ctx context.Context, apiJobID string) (*JobResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/jobs/"+apiJobID, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	c.setHeaders(req)
	return c.do(req)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) do(req *http.Request) (*JobResponse, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("watermark api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("watermark api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var job JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode watermark response: %w", err)
	}
	return &job, nil
}
