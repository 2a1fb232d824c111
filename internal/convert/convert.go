// Package convert normalizes audio into the container/codec combination the
// transcription service accepts, by driving an external ffmpeg binary.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/voxpipe/voxpipe/internal/format"
)

// Profile fixes the normalization target. It is set once at construction
// and shared by every conversion for the process lifetime.
type Profile struct {
	Container    string `yaml:"container"`
	AudioCodec   string `yaml:"audio_codec"`
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
	AudioBitrate string `yaml:"audio_bitrate"`
}

// DefaultProfile returns the stock target: mono 16 kHz AAC in an mp4
// container at a bounded bitrate.
func DefaultProfile() Profile {
	return Profile{
		Container:    "mp4",
		AudioCodec:   "aac",
		SampleRate:   16000,
		Channels:     1,
		AudioBitrate: "32k",
	}
}

// ConversionError reports a failed normalization attempt, carrying the
// external binary's diagnostic output.
type ConversionError struct {
	Path   string
	Detail string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("convert %s: conversion failed", e.Path)
	}
	return fmt.Sprintf("convert %s: %s", e.Path, e.Detail)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Result is the outcome of policy-gated normalization. When Success is
// false ProcessedPath must not be used downstream.
type Result struct {
	Success        bool
	OriginalPath   string
	ProcessedPath  string
	WasConverted   bool
	OriginalFormat string
	TargetFormat   string
	Err            error
}

// commandResult captures one external command invocation.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec. Progress lines ffmpeg writes to
// stderr are forwarded to onLine as they arrive; the full stderr is still
// captured for diagnostics.
type execRunner struct {
	onLine func(line string)
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	if r.onLine != nil {
		cmd.Stderr = &teeLineWriter{buf: &stderr, onLine: r.onLine}
	} else {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	result := commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// teeLineWriter buffers everything and emits complete lines. ffmpeg
// terminates progress updates with \r, so both \r and \n split lines.
type teeLineWriter struct {
	buf     *bytes.Buffer
	pending []byte
	onLine  func(line string)
}

func (w *teeLineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	w.pending = append(w.pending, p...)
	for {
		idx := bytes.IndexAny(w.pending, "\r\n")
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(w.pending[:idx]))
		w.pending = w.pending[idx+1:]
		if line != "" {
			w.onLine(line)
		}
	}
	return len(p), nil
}

// Converter runs ffmpeg with a fixed profile. Safe for concurrent use;
// every call is a fresh invocation with no shared state beyond config.
type Converter struct {
	ffmpegPath string
	profile    Profile
	policy     *format.Policy
	runner     commandRunner
	stat       func(name string) (os.FileInfo, error)

	// OnProgress, when set, receives ffmpeg progress lines. Observability
	// only; no other component depends on it.
	OnProgress func(line string)
}

// New constructs a production converter using the ffmpeg binary on PATH.
func New(policy *format.Policy, profile Profile) *Converter {
	c := &Converter{
		ffmpegPath: "ffmpeg",
		profile:    profile,
		policy:     policy,
		stat:       os.Stat,
	}
	c.runner = &execRunner{onLine: c.emitProgress}
	return c
}

func (c *Converter) emitProgress(line string) {
	if c.OnProgress != nil && strings.Contains(line, "time=") {
		c.OnProgress(line)
	}
}

// Convert normalizes one file and returns the derived output path. The
// input must exist and require conversion per policy; callers go through
// ProcessFile for the gated variant. One attempt, no retry.
func (c *Converter) Convert(ctx context.Context, inputPath string) (string, error) {
	if _, err := c.stat(inputPath); err != nil {
		return "", &ConversionError{Path: inputPath, Detail: "input file is not accessible", Err: err}
	}

	outPath := c.policy.OutputPath(inputPath)
	args := buildFFmpegArgs(inputPath, outPath, c.profile)

	result, runErr := c.runner.Run(ctx, c.ffmpegPath, args...)
	if runErr != nil {
		return "", &ConversionError{
			Path:   inputPath,
			Detail: fmt.Sprintf("ffmpeg exited with code %d: %s", result.ExitCode, lastLine(result.Stderr)),
			Err:    runErr,
		}
	}

	info, err := c.stat(outPath)
	if err != nil {
		return "", &ConversionError{Path: inputPath, Detail: "ffmpeg completed but produced no output file", Err: err}
	}
	if info.Size() == 0 {
		return "", &ConversionError{Path: inputPath, Detail: "ffmpeg produced an empty output file"}
	}

	return outPath, nil
}

// ProcessFile gates Convert behind format policy. It never returns an
// error: conversion failure is captured in the result so the caller can
// branch without exception handling. Files already in an accepted format
// pass through untouched.
func (c *Converter) ProcessFile(ctx context.Context, path string) Result {
	if !c.policy.NeedsConversion(path) {
		return Result{
			Success:       true,
			OriginalPath:  path,
			ProcessedPath: path,
		}
	}

	srcFormat := format.Ext(path)
	outPath, err := c.Convert(ctx, path)
	if err != nil {
		return Result{
			OriginalPath:   path,
			OriginalFormat: srcFormat,
			TargetFormat:   c.policy.TargetExt(),
			Err:            err,
		}
	}

	return Result{
		Success:        true,
		OriginalPath:   path,
		ProcessedPath:  outPath,
		WasConverted:   true,
		OriginalFormat: srcFormat,
		TargetFormat:   c.policy.TargetExt(),
	}
}

// buildFFmpegArgs assembles one ffmpeg invocation for the target profile.
func buildFFmpegArgs(inputPath, outPath string, p Profile) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", strconv.Itoa(p.Channels),
		"-ar", strconv.Itoa(p.SampleRate),
		"-c:a", p.AudioCodec,
		"-b:a", p.AudioBitrate,
		"-f", p.Container,
		outPath,
	}
}

// lastLine extracts the final non-empty line of command output; ffmpeg puts
// the actionable diagnostic there.
func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// newForTests constructs a converter with injectable dependencies.
func newForTests(policy *format.Policy, profile Profile, ffmpegPath string, runner commandRunner, stat func(string) (os.FileInfo, error)) *Converter {
	return &Converter{
		ffmpegPath: ffmpegPath,
		profile:    profile,
		policy:     policy,
		runner:     runner,
		stat:       stat,
	}
}
