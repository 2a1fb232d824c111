package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/voxpipe/voxpipe/internal/backend"
	"github.com/voxpipe/voxpipe/internal/format"
	"github.com/voxpipe/voxpipe/internal/pipeline"
)

type fakeTranscriber struct {
	mu     sync.Mutex
	files  []string
	failOn string
}

func (f *fakeTranscriber) TranscribeFile(ctx context.Context, path string, opts backend.Options) (pipeline.Result, error) {
	f.mu.Lock()
	f.files = append(f.files, filepath.Base(path))
	f.mu.Unlock()

	if filepath.Base(path) == f.failOn {
		return pipeline.Result{}, errors.New("scripted failure")
	}
	return pipeline.Result{
		Success: true,
		Payload: backend.Payload{Text: "watched transcript"},
		Metadata: pipeline.Metadata{
			FileName:  filepath.Base(path),
			Timestamp: "2025-06-01T12:00:00Z",
		},
	}, nil
}

func (f *fakeTranscriber) IsSupportedAudioFile(path string) bool {
	return format.DefaultPolicy().IsSupported(path)
}

func (f *fakeTranscriber) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.files...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatcherTranscribesNewAudio(t *testing.T) {
	inbox := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	ft := &fakeTranscriber{}
	w := New(ft, backend.Options{}, outDir)
	w.settle = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, inbox) }()

	// Give the watcher a moment to register.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(inbox, "note.mp3"), []byte("audio"), 0o644); err != nil {
		t.Fatalf("writing audio: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inbox, "ignore.txt"), []byte("text"), 0o644); err != nil {
		t.Fatalf("writing text: %v", err)
	}

	if !waitFor(t, 3*time.Second, func() bool { return len(ft.seen()) >= 1 }) {
		t.Fatal("watcher never picked up note.mp3")
	}

	if !waitFor(t, 3*time.Second, func() bool {
		_, err := os.Stat(filepath.Join(outDir, "note.txt"))
		return err == nil
	}) {
		t.Fatal("transcript artifact never appeared")
	}

	seen := ft.seen()
	for _, f := range seen {
		if f == "ignore.txt" {
			t.Error("non-audio file must be ignored")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}

func TestWatcherSurvivesFailures(t *testing.T) {
	inbox := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	ft := &fakeTranscriber{failOn: "bad.mp3"}
	w := New(ft, backend.Options{}, outDir)
	w.settle = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, inbox) }()
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(inbox, "bad.mp3"), []byte("audio"), 0o644); err != nil {
		t.Fatalf("writing audio: %v", err)
	}
	if !waitFor(t, 3*time.Second, func() bool { return len(ft.seen()) >= 1 }) {
		t.Fatal("watcher never saw bad.mp3")
	}

	// The loop must still be alive for the next file.
	if err := os.WriteFile(filepath.Join(inbox, "good.mp3"), []byte("audio"), 0o644); err != nil {
		t.Fatalf("writing audio: %v", err)
	}
	if !waitFor(t, 3*time.Second, func() bool {
		_, err := os.Stat(filepath.Join(outDir, "good.txt"))
		return err == nil
	}) {
		t.Fatal("watcher died after a failed file")
	}

	cancel()
	<-done
}
