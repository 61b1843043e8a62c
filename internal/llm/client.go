package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hpungsan/chunkwise/internal/errors"
)

// maxErrorBody caps how much of a failed response is kept in the error detail.
const maxErrorBody = 2048

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string

	// SiteURL and SiteName are sent as HTTP-Referer and X-Title when set.
	SiteURL  string
	SiteName string

	Timeout time.Duration

	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	opts   Options
	client *http.Client
}

// NewClient returns a client for opts.BaseURL.
func NewClient(opts Options) *Client {
	c := opts.HTTPClient
	if c == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		c = &http.Client{Timeout: timeout}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{opts: opts, client: c}
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends messages with temperature 0 and returns choices[0].message.content.
// Every failure is an EXTERNAL_SERVICE_ERROR: transport errors, non-2xx
// statuses, and responses without a string completion. An empty string
// completion is returned as is.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(request{
		Model:       c.opts.Model,
		Messages:    messages,
		Temperature: 0,
	})
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.NewConfiguration("OPENROUTER_BASE_URL", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	if c.opts.SiteURL != "" {
		req.Header.Set("HTTP-Referer", c.opts.SiteURL)
	}
	if c.opts.SiteName != "" {
		req.Header.Set("X-Title", c.opts.SiteName)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(respBody))
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody]
		}
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return "", errors.NewExternalService(resp.StatusCode, detail)
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", errors.NewExternalService(resp.StatusCode, "response is not JSON: "+err.Error())
	}
	if len(apiResp.Choices) == 0 {
		return "", errors.NewExternalService(resp.StatusCode, "response has no choices")
	}

	var content string
	raw := apiResp.Choices[0].Message.Content
	if len(raw) == 0 || string(raw) == "null" || json.Unmarshal(raw, &content) != nil {
		return "", errors.NewExternalService(resp.StatusCode, "choices[0].message.content is missing or not a string")
	}
	return content, nil
}

func transportError(err error) error {
	e := errors.NewExternalService(0, err.Error())
	e.Err = err
	return e
}
