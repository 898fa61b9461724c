// Package remote is a predictor backed by a model served over HTTP. The
// server keeps the recurrent state per session; a Client is one session.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client calls a remote character model. A Client is not safe for
// concurrent use; the sampler serializes calls.
type Client struct {
	baseURL string
	apiKey  string
	session string
	client  *http.Client
}

// NewClient creates a client with a fresh session id.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		session: uuid.NewString(),
		client:  &http.Client{Timeout: timeout},
	}
}

// Session returns the session id sent with every call.
func (c *Client) Session() string { return c.session }

type predictRequest struct {
	Session string `json:"session"`
	Token   int    `json:"token"`
}

type predictResponse struct {
	Probabilities []float64 `json:"probabilities"`
	Error         *apiError `json:"error,omitempty"`
}

type resetRequest struct {
	Session string `json:"session"`
}

type apiError struct {
	Message string `json:"message"`
}

// Predict feeds token to the session and returns the next-token
// distribution.
func (c *Client) Predict(ctx context.Context, token int) ([]float64, error) {
	var result predictResponse
	if err := c.post(ctx, "/predict", predictRequest{Session: c.session, Token: token}, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, fmt.Errorf("API error: %s", result.Error.Message)
	}
	if len(result.Probabilities) == 0 {
		return nil, fmt.Errorf("no probabilities in response")
	}
	return result.Probabilities, nil
}

// Reset returns the session to its start condition.
func (c *Client) Reset(ctx context.Context) error {
	var result struct {
		Error *apiError `json:"error,omitempty"`
	}
	if err := c.post(ctx, "/reset", resetRequest{Session: c.session}, &result); err != nil {
		return err
	}
	if result.Error != nil {
		return fmt.Errorf("API error: %s", result.Error.Message)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) post(ctx context.Context, path string, reqBody, out any) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
