// Package openai implements the backend interface against an
// OpenAI-compatible audio API (api.openai.com, Groq, and self-hosted
// whisper servers speak the same surface).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/voxpipe/voxpipe/internal/backend"
)

const (
	// FastModel is the turbo whisper variant: quicker, but the service
	// documents it as translation-incapable.
	FastModel = "whisper-large-v3-turbo"
	// PreciseModel is the full whisper variant used as the silent
	// substitute for translation calls.
	PreciseModel = "whisper-large-v3"

	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = FastModel
)

func init() {
	backend.Default.Register("openai", func(config map[string]string) (backend.Backend, error) {
		apiKey := config["api_key"]
		if apiKey == "" {
			return nil, fmt.Errorf("openai backend: API key required (set api_key in config)")
		}
		baseURL := config["base_url"]
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		model := config["model"]
		if model == "" {
			model = defaultModel
		}
		return New(apiKey, baseURL, model), nil
	})
}

// Client calls the OpenAI-compatible transcription and translation
// endpoints. Stateless per call; safe for concurrent use.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	httpc   *http.Client
}

// New creates a client for the given API key, base URL, and configured
// model identifier.
func New(apiKey, baseURL, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		httpc:   &http.Client{Timeout: 10 * time.Minute},
	}
}

// Name identifies the backend.
func (c *Client) Name() string { return "openai" }

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Transcribe submits the file to /audio/transcriptions with the applicable
// option subset.
func (c *Client) Transcribe(ctx context.Context, path string, opts backend.Options) (backend.Payload, error) {
	return c.submit(ctx, "/audio/transcriptions", path, c.model, opts, true)
}

// Translate submits the file to /audio/translations. The service's only
// translation target is English, so any caller-supplied language hint is
// ignored and segment timestamps are never requested. When the configured
// model is the fast variant, the precise variant serves this call instead;
// the configured model is untouched for later transcriptions, and the
// substitution surfaces only through the payload's Model field.
func (c *Client) Translate(ctx context.Context, path string, opts backend.Options) (backend.Payload, error) {
	model := c.model
	if model == FastModel {
		model = PreciseModel
	}
	opts.Language = ""
	opts.TimestampGranularities = nil
	return c.submit(ctx, "/audio/translations", path, model, opts, false)
}

func (c *Client) submit(ctx context.Context, endpoint, path, model string, opts backend.Options, transcription bool) (backend.Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return backend.Payload{}, &backend.ServiceError{Backend: c.Name(), Detail: "cannot open audio file", Err: err}
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return backend.Payload{}, &backend.ServiceError{Backend: c.Name(), Detail: "build request body", Err: err}
	}
	if _, err := io.Copy(fw, f); err != nil {
		return backend.Payload{}, &backend.ServiceError{Backend: c.Name(), Detail: "read audio file", Err: err}
	}

	_ = mw.WriteField("model", model)
	_ = mw.WriteField("response_format", string(opts.Format()))
	if opts.Temperature > 0 {
		_ = mw.WriteField("temperature", strconv.FormatFloat(opts.Temperature, 'f', -1, 64))
	}
	if opts.Prompt != "" {
		_ = mw.WriteField("prompt", opts.Prompt)
	}
	if transcription && opts.Language != "" {
		_ = mw.WriteField("language", opts.Language)
	}
	if transcription && opts.WantsSegments() {
		for _, g := range opts.TimestampGranularities {
			_ = mw.WriteField("timestamp_granularities[]", g)
		}
	}
	if err := mw.Close(); err != nil {
		return backend.Payload{}, &backend.ServiceError{Backend: c.Name(), Detail: "build request body", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &body)
	if err != nil {
		return backend.Payload{}, &backend.ServiceError{Backend: c.Name(), Detail: "create request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return backend.Payload{}, &backend.ServiceError{Backend: c.Name(), Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return backend.Payload{}, &backend.ServiceError{Backend: c.Name(), Detail: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return backend.Payload{}, &backend.ServiceError{
			Backend: c.Name(),
			Status:  resp.StatusCode,
			Detail:  truncate(string(raw), 512),
		}
	}

	payload, err := parsePayload(raw, opts.Format())
	if err != nil {
		return backend.Payload{}, &backend.ServiceError{Backend: c.Name(), Detail: "decode response", Err: err}
	}
	payload.Model = model
	return payload, nil
}

// parsePayload normalizes the three response shapes the API can return.
func parsePayload(raw []byte, f backend.ResponseFormat) (backend.Payload, error) {
	if f == backend.FormatText {
		return backend.Payload{Text: strings.TrimSpace(string(raw))}, nil
	}

	var payload backend.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return backend.Payload{}, err
	}
	return payload, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
