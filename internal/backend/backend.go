// Package backend defines the transcription service abstraction the
// pipeline drives, plus the registry concrete adapters register into.
package backend

import "context"

// ResponseFormat selects the shape of the transcription response.
type ResponseFormat string

const (
	// FormatText requests the bare transcript string.
	FormatText ResponseFormat = "text"
	// FormatJSON requests a minimal JSON object with the text field.
	FormatJSON ResponseFormat = "json"
	// FormatVerboseJSON requests the structured response with segment
	// detail. The only format that honors timestamp granularities.
	FormatVerboseJSON ResponseFormat = "verbose_json"
)

// Timestamp granularity values for verbose responses.
const (
	GranularitySegment = "segment"
	GranularityWord    = "word"
)

// Options carries the caller-tunable transcription parameters. The zero
// value means: auto-detect language, no prompt bias, default response
// format, deterministic sampling.
type Options struct {
	// Language is an ISO-639-1 hint; empty means auto-detect.
	Language string
	// Prompt biases the recognizer toward expected vocabulary.
	Prompt string
	// ResponseFormat defaults to FormatVerboseJSON when empty.
	ResponseFormat ResponseFormat
	// TimestampGranularities is a subset of {segment, word}. Only sent
	// when the response format carries segment detail; otherwise dropped.
	TimestampGranularities []string
	// Temperature is passed through verbatim.
	Temperature float64
}

// Format resolves the effective response format.
func (o Options) Format() ResponseFormat {
	if o.ResponseFormat == "" {
		return FormatVerboseJSON
	}
	return o.ResponseFormat
}

// WantsSegments reports whether the response format carries segment detail.
func (o Options) WantsSegments() bool {
	return o.Format() == FormatVerboseJSON
}

// Segment is a timed piece of a transcription.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Payload is a normalized transcription or translation response.
type Payload struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
	// Model is the identifier that actually served the call, which for
	// translation may differ from the configured one.
	Model string `json:"model,omitempty"`
}

// Backend is a remote speech-recognition service. Implementations are
// stateless per call; one invocation equals one attempt against the
// service, with no retry inside.
type Backend interface {
	// Transcribe submits the audio file at path for speech-to-text.
	Transcribe(ctx context.Context, path string, opts Options) (Payload, error)
	// Translate submits the audio file for translation into the service's
	// fixed target language.
	Translate(ctx context.Context, path string, opts Options) (Payload, error)
	// Name identifies the backend for logs and metadata.
	Name() string
}
