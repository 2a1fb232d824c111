package pipeline

import "fmt"

// NotFoundError reports a missing input file.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("audio file not found: %s", e.Path)
}

// UnsupportedFormatError reports an extension outside the allow-list,
// rejected by policy before any I/O.
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return fmt.Sprintf("unsupported audio format: %s (no extension)", e.Path)
	}
	return fmt.Sprintf("unsupported audio format .%s: %s", e.Ext, e.Path)
}

// WriteError reports a failed transcript artifact write.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write transcript %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
