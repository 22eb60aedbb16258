// Package api connects dispatched tasks to the Anthropic API: it renders
// a task into a model conversation, streams the exchange back into the
// task record, and routes tool invocations through the process registry.
package api

import (
	"fmt"
	"os"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Client wraps the Anthropic SDK client with usage tracking.
type Client struct {
	inner   anthropic.Client
	model   anthropic.Model
	tracker *UsageTracker
}

// ClientConfig configures a new Client.
type ClientConfig struct {
	// Model is the model to converse with. Defaults to Sonnet.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, ANTHROPIC_API_KEY is used.
	APIKey string
}

// NewClient creates an Anthropic API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured and ANTHROPIC_API_KEY is not set")
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	return &Client{
		inner:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		tracker: &UsageTracker{},
	}, nil
}

// sdk returns the underlying SDK client. Package-private so the SDK types
// do not leak past this package.
func (c *Client) sdk() *anthropic.Client {
	return &c.inner
}

// Model returns the configured model name.
func (c *Client) Model() anthropic.Model {
	return c.model
}

// Tracker returns the usage tracker for this client.
func (c *Client) Tracker() *UsageTracker {
	return c.tracker
}

// UsageTracker accumulates token usage across API calls.
type UsageTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// Add records token usage from one API call.
func (t *UsageTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the accumulated input and output token counts.
func (t *UsageTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns how many API calls have been made.
func (t *UsageTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
