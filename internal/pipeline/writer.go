package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SaveTranscript persists one successful result as a text artifact under
// outputDir, named after the original file's base name with a .txt
// extension. An existing artifact of the same name is overwritten. Only
// filesystem failure produces an error; payload shape never does.
func SaveTranscript(result Result, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", &WriteError{Path: outputDir, Err: err}
	}

	base := strings.TrimSuffix(result.Metadata.FileName, filepath.Ext(result.Metadata.FileName))
	if base == "" {
		base = "transcript"
	}
	path := filepath.Join(outputDir, base+".txt")

	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", result.Metadata.FileName)
	fmt.Fprintf(&b, "Model: %s\n", result.Metadata.Model)
	fmt.Fprintf(&b, "Generated: %s\n", result.Metadata.Timestamp)
	fmt.Fprintf(&b, "Language: %s\n", artifactLanguage(result.Metadata))
	b.WriteString("\n")
	b.WriteString(transcriptBody(result))
	b.WriteString("\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	return path, nil
}

func artifactLanguage(meta Metadata) string {
	if meta.TargetLanguage != "" {
		return meta.TargetLanguage
	}
	if meta.Language != "" {
		return meta.Language
	}
	return autoDetect
}

// transcriptBody extracts the artifact text: the payload's text field when
// present, otherwise a pretty-printed dump of the structured payload.
func transcriptBody(result Result) string {
	if text := strings.TrimSpace(result.Payload.Text); text != "" {
		return text
	}
	dump, err := json.MarshalIndent(result.Payload, "", "  ")
	if err != nil {
		return ""
	}
	return string(dump)
}
