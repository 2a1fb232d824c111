// Package format decides which audio containers the transcription service
// accepts as-is and which need normalization first. It is pure path-string
// policy; nothing here touches the filesystem.
package format

import (
	"path/filepath"
	"strings"
)

// DefaultSupported lists the audio containers the pipeline accepts.
var DefaultSupported = []string{
	"mp3", "wav", "m4a", "flac", "ogg", "opus", "webm", "mp4", "mpeg", "mpga",
}

// DefaultConvert lists containers the transcription service cannot ingest
// directly and which must be normalized before submission.
var DefaultConvert = []string{"opus"}

// DefaultTargetExt is the container conversion normalizes into.
const DefaultTargetExt = "mp4"

// Policy answers format questions for one configured allow-list and
// conversion set.
type Policy struct {
	supported map[string]struct{}
	convert   map[string]struct{}
	targetExt string
}

// NewPolicy builds a policy from a supported allow-list, a
// conversion-required set, and the normalization target extension.
// Extensions are matched case-insensitively and without the leading dot.
func NewPolicy(supported, convert []string, targetExt string) *Policy {
	p := &Policy{
		supported: make(map[string]struct{}, len(supported)),
		convert:   make(map[string]struct{}, len(convert)),
		targetExt: strings.TrimPrefix(strings.ToLower(targetExt), "."),
	}
	for _, ext := range supported {
		p.supported[normalizeExt(ext)] = struct{}{}
	}
	for _, ext := range convert {
		p.convert[normalizeExt(ext)] = struct{}{}
	}
	return p
}

// DefaultPolicy returns the policy with the stock allow-list, conversion
// set, and target container.
func DefaultPolicy() *Policy {
	return NewPolicy(DefaultSupported, DefaultConvert, DefaultTargetExt)
}

// Ext extracts a file's extension, lowercased with the leading dot
// stripped. Empty when the path has no extension.
func Ext(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func normalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// IsSupported reports whether the file's extension is in the allow-list.
// Unknown and empty extensions are not supported.
func (p *Policy) IsSupported(path string) bool {
	ext := Ext(path)
	if ext == "" {
		return false
	}
	_, ok := p.supported[ext]
	return ok
}

// NeedsConversion reports whether the file must be normalized before it can
// be submitted to the transcription service.
func (p *Policy) NeedsConversion(path string) bool {
	ext := Ext(path)
	if ext == "" {
		return false
	}
	_, ok := p.convert[ext]
	return ok
}

// TargetExt returns the normalization target extension.
func (p *Policy) TargetExt() string {
	return p.targetExt
}

// OutputPath derives the normalized file's path: same directory, same base
// name, target extension.
func (p *Policy) OutputPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + p.targetExt
}
