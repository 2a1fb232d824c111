package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voxpipe/voxpipe/internal/backend"
)

func TestProcessDirectoryFiltersAndOrders(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.mp3", "b.txt", "c.flac"} {
		mustWriteFile(t, filepath.Join(root, name), "content")
	}
	if err := os.Mkdir(filepath.Join(root, "nested.mp3"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	fb := &fakeBackend{}
	p := newTestPipeline(fb, passthroughProcessor{})

	report, err := p.ProcessDirectory(context.Background(), root, backend.Options{}, "")
	if err != nil {
		t.Fatalf("ProcessDirectory: %v", err)
	}

	if report.Total != 2 {
		t.Fatalf("total = %d, want 2 (b.txt and the directory skipped)", report.Total)
	}
	if report.Results[0].Metadata.FileName != "a.mp3" || report.Results[1].Metadata.FileName != "c.flac" {
		t.Errorf("order = [%s, %s], want [a.mp3, c.flac]",
			report.Results[0].Metadata.FileName, report.Results[1].Metadata.FileName)
	}
	if report.Successful != 2 || report.Failed != 0 {
		t.Errorf("counts = %d/%d, want 2/0", report.Successful, report.Failed)
	}
	if report.ID == "" {
		t.Error("report must carry an ID")
	}
}

func TestProcessDirectoryFailureIsolation(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		mustWriteFile(t, filepath.Join(root, name), "content")
	}

	fb := &fakeBackend{
		transcribe: func(ctx context.Context, path string, opts backend.Options) (backend.Payload, error) {
			if filepath.Base(path) == "b.mp3" {
				return backend.Payload{}, &backend.ServiceError{Backend: "fake", Detail: "corrupted audio"}
			}
			return backend.Payload{Text: "ok", Model: "m"}, nil
		},
	}
	p := newTestPipeline(fb, passthroughProcessor{})

	report, err := p.ProcessDirectory(context.Background(), root, backend.Options{}, "")
	if err != nil {
		t.Fatalf("ProcessDirectory: %v", err)
	}

	if report.Total != 3 {
		t.Fatalf("total = %d, want 3", report.Total)
	}
	if report.Successful != 2 || report.Failed != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", report.Successful, report.Failed)
	}
	if report.Successful+report.Failed != report.Total || report.Total != len(report.Results) {
		t.Error("count invariant violated")
	}

	// The failure record sits at the failing file's position.
	failed := report.Results[1]
	if failed.Success {
		t.Fatal("result[1] should be the failure record")
	}
	if failed.Metadata.FileName != "b.mp3" {
		t.Errorf("failure fileName = %q, want b.mp3", failed.Metadata.FileName)
	}
	if failed.Error == "" || failed.Err == nil {
		t.Error("failure record must carry the error")
	}
	if failed.Metadata.Timestamp == "" {
		t.Error("failure record must carry a timestamp")
	}

	// All three files were attempted.
	if len(fb.calls) != 3 {
		t.Errorf("backend calls = %d, want 3 (no file may be skipped)", len(fb.calls))
	}
}

func TestProcessDirectoryPersistsSuccessesImmediately(t *testing.T) {
	root := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "transcripts")
	for _, name := range []string{"a.mp3", "b.mp3"} {
		mustWriteFile(t, filepath.Join(root, name), "content")
	}

	fb := &fakeBackend{
		transcribe: func(ctx context.Context, path string, opts backend.Options) (backend.Payload, error) {
			if filepath.Base(path) == "b.mp3" {
				// By the time the second file runs, the first artifact
				// must already exist.
				if _, err := os.Stat(filepath.Join(outDir, "a.txt")); err != nil {
					t.Errorf("a.txt not persisted before b.mp3 started: %v", err)
				}
			}
			return backend.Payload{Text: "transcript of " + filepath.Base(path), Model: "m"}, nil
		},
	}
	p := newTestPipeline(fb, passthroughProcessor{})

	report, err := p.ProcessDirectory(context.Background(), root, backend.Options{}, outDir)
	if err != nil {
		t.Fatalf("ProcessDirectory: %v", err)
	}
	if report.Successful != 2 {
		t.Fatalf("successful = %d, want 2", report.Successful)
	}

	for _, name := range []string{"a.txt", "b.txt"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}
}

func TestProcessDirectoryNoArtifactForFailure(t *testing.T) {
	root := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "transcripts")
	mustWriteFile(t, filepath.Join(root, "a.mp3"), "content")

	fb := &fakeBackend{
		transcribe: func(ctx context.Context, path string, opts backend.Options) (backend.Payload, error) {
			return backend.Payload{}, errors.New("auth error")
		},
	}
	p := newTestPipeline(fb, passthroughProcessor{})

	report, err := p.ProcessDirectory(context.Background(), root, backend.Options{}, outDir)
	if err != nil {
		t.Fatalf("ProcessDirectory: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("failed = %d, want 1", report.Failed)
	}
	if _, err := os.Stat(filepath.Join(outDir, "a.txt")); err == nil {
		t.Error("no artifact may be written for a failed file")
	}
	if !strings.HasPrefix(report.Results[0].Error, "transcribe ") {
		t.Errorf("failure error %q lacks the stage prefix", report.Results[0].Error)
	}
}

func TestProcessDirectoryUnreadable(t *testing.T) {
	p := newTestPipeline(&fakeBackend{}, passthroughProcessor{})
	if _, err := p.ProcessDirectory(context.Background(), filepath.Join(t.TempDir(), "absent"), backend.Options{}, ""); err == nil {
		t.Fatal("expected error for an unreadable directory")
	}
}
