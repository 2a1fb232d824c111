// Package pipeline composes format policy, conversion, and the remote
// transcription backend into single-file and batch operations, and
// persists transcripts with provenance metadata.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pitabwire/util"

	"github.com/voxpipe/voxpipe/internal/backend"
	"github.com/voxpipe/voxpipe/internal/convert"
	"github.com/voxpipe/voxpipe/internal/format"
)

// autoDetect is the language value reported when no hint was given and the
// backend did not resolve one.
const autoDetect = "auto-detect"

// ConversionInfo records the format pair of a performed normalization.
type ConversionInfo struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Metadata is the provenance attached to every result. FileName always
// names the original input, never a converted intermediate.
type Metadata struct {
	FileName       string          `json:"fileName"`
	OriginalPath   string          `json:"originalFilePath"`
	ProcessedPath  string          `json:"processedFilePath,omitempty"`
	WasConverted   bool            `json:"wasConverted"`
	Conversion     *ConversionInfo `json:"conversionInfo,omitempty"`
	Backend        string          `json:"backend,omitempty"`
	Model          string          `json:"model,omitempty"`
	Language       string          `json:"language,omitempty"`
	TargetLanguage string          `json:"targetLanguage,omitempty"`
	Timestamp      string          `json:"timestamp"`
}

// Result is one file's transcription or translation outcome.
type Result struct {
	Success  bool            `json:"success"`
	Payload  backend.Payload `json:"payload,omitzero"`
	Metadata Metadata        `json:"metadata"`
	Error    string          `json:"error,omitempty"`
	Err      error           `json:"-"`
}

// fileProcessor is the conversion step as the orchestrator sees it.
type fileProcessor interface {
	ProcessFile(ctx context.Context, path string) convert.Result
}

// Pipeline drives one backend with a fixed policy and conversion profile.
// Construction captures all configuration; invocations share no mutable
// state, so concurrent calls are safe without locking.
type Pipeline struct {
	policy    *format.Policy
	processor fileProcessor
	backend   backend.Backend
	now       func() time.Time
	stat      func(string) (os.FileInfo, error)
}

// New builds a pipeline around the given backend with the stock policy and
// profile.
func New(b backend.Backend) *Pipeline {
	policy := format.DefaultPolicy()
	return NewWithConfig(b, policy, convert.New(policy, convert.DefaultProfile()))
}

// NewWithConfig builds a pipeline with explicit policy and converter.
func NewWithConfig(b backend.Backend, policy *format.Policy, processor fileProcessor) *Pipeline {
	return &Pipeline{
		policy:    policy,
		processor: processor,
		backend:   b,
		now:       time.Now,
		stat:      os.Stat,
	}
}

// TranscribeFile normalizes one audio file if needed and transcribes it.
// Any failure surfaces as a single error carrying the "transcribe" stage
// prefix.
func (p *Pipeline) TranscribeFile(ctx context.Context, path string, opts backend.Options) (Result, error) {
	res, err := p.run(ctx, path, opts, false)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe %s: %w", path, err)
	}
	return res, nil
}

// TranslateFile normalizes one audio file if needed and translates it into
// the backend's fixed target language.
func (p *Pipeline) TranslateFile(ctx context.Context, path string, opts backend.Options) (Result, error) {
	res, err := p.run(ctx, path, opts, true)
	if err != nil {
		return Result{}, fmt.Errorf("translate %s: %w", path, err)
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, path string, opts backend.Options, translate bool) (Result, error) {
	log := util.Log(ctx).WithField("file", path)

	if _, err := p.stat(path); err != nil {
		return Result{}, &NotFoundError{Path: path}
	}
	if !p.policy.IsSupported(path) {
		return Result{}, &UnsupportedFormatError{Path: path, Ext: format.Ext(path)}
	}

	conv := p.processor.ProcessFile(ctx, path)
	if !conv.Success {
		return Result{}, fmt.Errorf("conversion failed: %w", conv.Err)
	}
	if conv.WasConverted {
		log.WithField("processed", conv.ProcessedPath).Debug("normalized audio for transcription")
	}

	var payload backend.Payload
	var err error
	if translate {
		payload, err = p.backend.Translate(ctx, conv.ProcessedPath, opts)
	} else {
		payload, err = p.backend.Transcribe(ctx, conv.ProcessedPath, opts)
	}
	if err != nil {
		return Result{}, err
	}

	meta := Metadata{
		FileName:      filepath.Base(path),
		OriginalPath:  path,
		ProcessedPath: conv.ProcessedPath,
		WasConverted:  conv.WasConverted,
		Backend:       p.backend.Name(),
		Model:         payload.Model,
		Timestamp:     p.now().UTC().Format(time.RFC3339),
	}
	if conv.WasConverted {
		meta.Conversion = &ConversionInfo{From: conv.OriginalFormat, To: conv.TargetFormat}
	}
	if translate {
		meta.TargetLanguage = "en"
	} else {
		meta.Language = resolveLanguage(payload, opts)
	}

	return Result{Success: true, Payload: payload, Metadata: meta}, nil
}

// resolveLanguage prefers what the backend detected, then the caller's
// hint, and reports auto-detect otherwise.
func resolveLanguage(payload backend.Payload, opts backend.Options) string {
	if payload.Language != "" {
		return payload.Language
	}
	if opts.Language != "" {
		return opts.Language
	}
	return autoDetect
}

// Info is read-only introspection for one file, with no pipeline side
// effects.
type Info struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	Extension    string    `json:"extension"`
	LastModified time.Time `json:"lastModified"`
	IsValidAudio bool      `json:"isValidAudio"`
}

// IsSupportedAudioFile reports whether the file's extension is accepted by
// this pipeline's policy.
func (p *Pipeline) IsSupportedAudioFile(path string) bool {
	return p.policy.IsSupported(path)
}

// FileInfo stats one file and reports its audio validity per policy.
func (p *Pipeline) FileInfo(path string) (Info, error) {
	fi, err := p.stat(path)
	if err != nil {
		return Info{}, &NotFoundError{Path: path}
	}
	return Info{
		Name:         filepath.Base(path),
		Size:         fi.Size(),
		Extension:    format.Ext(path),
		LastModified: fi.ModTime(),
		IsValidAudio: !fi.IsDir() && p.policy.IsSupported(path),
	}, nil
}
