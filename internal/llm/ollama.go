package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient handles communication with the Ollama API for local LLM
// inference. Completions are requested with stream:true and the partial
// response fragments are reassembled in arrival order before returning.
// All completion calls are wrapped with circuit breaker protection.
type OllamaClient struct {
	baseURL        string
	client         *http.Client
	circuitBreaker *CircuitBreaker
	model          string
	temperature    float64
	topP           float64
	repeatPenalty  float64
	timeout        time.Duration
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the model name to use for completions (default: llama3.2:3b)
	Model string

	// Temperature is the sampling temperature (default: 0.2)
	Temperature float64

	// TopP is the nucleus sampling parameter (default: 0.9)
	TopP float64

	// RepeatPenalty penalizes token repetition (default: 1.1)
	RepeatPenalty float64

	// Timeout is the generation request timeout (default: 30s)
	Timeout time.Duration
}

// generateRequest is the request body for the /api/generate endpoint.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Options generateOptions `json:"options"`
	Stream  bool            `json:"stream"`
}

type generateOptions struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	RepeatPenalty float64 `json:"repeat_penalty"`
}

// generateChunk is one object of the line-delimited stream returned by
// /api/generate. Only the response fragment and the done marker matter.
type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// healthCheckTimeout bounds the /api/tags reachability probe. It is
// deliberately much shorter than the generation timeout.
const healthCheckTimeout = 5 * time.Second

// NewOllamaClient creates a new Ollama client with the given configuration.
// Zero-value fields fall back to the defaults documented on OllamaConfig.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "llama3.2:3b"
	}
	if config.Temperature == 0 {
		config.Temperature = 0.2
	}
	if config.TopP == 0 {
		config.TopP = 0.9
	}
	if config.RepeatPenalty == 0 {
		config.RepeatPenalty = 1.1
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &OllamaClient{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		client: &http.Client{
			Timeout: config.Timeout,
		},
		circuitBreaker: NewCircuitBreaker(),
		model:          config.Model,
		temperature:    config.Temperature,
		topP:           config.TopP,
		repeatPenalty:  config.RepeatPenalty,
		timeout:        config.Timeout,
	}
}

// Complete sends a streaming completion request to Ollama and returns
// the reassembled response text. The request is wrapped with circuit
// breaker protection and bounded by the configured timeout.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.complete(ctx, prompt)
	})

	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return "", err
	}

	return result.(string), nil
}

// complete is the internal implementation of Complete without circuit
// breaker wrapping.
func (c *OllamaClient) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Options: generateOptions{
			Temperature:   c.temperature,
			TopP:          c.topP,
			RepeatPenalty: c.repeatPenalty,
		},
		Stream: true,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	return readStream(resp.Body)
}

// readStream concatenates the response fragments of a line-delimited
// JSON stream in arrival order. Lines that fail to parse are skipped
// rather than failing the whole call.
func readStream(r io.Reader) (string, error) {
	var sb strings.Builder

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		sb.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read response stream: %w", err)
	}

	return strings.TrimSpace(sb.String()), nil
}

// HealthCheck verifies that Ollama is reachable by probing /api/tags
// with a short timeout. This does not use circuit breaker protection
// since it is a health check itself.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// GetModel returns the configured model name.
func (c *OllamaClient) GetModel() string {
	return c.model
}

// BaseURL returns the backend base URL, exposed for status reporting.
func (c *OllamaClient) BaseURL() string {
	return c.baseURL
}

// BreakerState returns the circuit breaker state for status reporting.
func (c *OllamaClient) BreakerState() string {
	return c.circuitBreaker.State()
}

// Compile-time assertions that OllamaClient satisfies the LLM interfaces.
var _ TextGenerator = (*OllamaClient)(nil)
var _ HealthChecker = (*OllamaClient)(nil)
