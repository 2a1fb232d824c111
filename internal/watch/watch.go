// Package watch runs the pipeline against audio files as they appear in an
// inbox directory.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pitabwire/util"

	"github.com/voxpipe/voxpipe/internal/backend"
	"github.com/voxpipe/voxpipe/internal/pipeline"
)

// transcriber is the pipeline surface the watcher drives.
type transcriber interface {
	TranscribeFile(ctx context.Context, path string, opts backend.Options) (pipeline.Result, error)
	IsSupportedAudioFile(path string) bool
}

// Watcher transcribes supported audio files dropped into a directory and
// persists their transcripts. One file at a time; a file's failure is
// logged and never stops the loop.
type Watcher struct {
	pipe      transcriber
	opts      backend.Options
	outputDir string

	// settle is how long to wait after a create event before reading the
	// file; the producer may still be flushing it.
	settle time.Duration
}

// New creates a watcher that persists transcripts into outputDir.
func New(pipe transcriber, opts backend.Options, outputDir string) *Watcher {
	return &Watcher{
		pipe:      pipe,
		opts:      opts,
		outputDir: outputDir,
		settle:    500 * time.Millisecond,
	}
}

// Run watches dir until the context is done.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", dir, err)
	}

	log := util.Log(ctx).WithField("dir", dir)
	log.Info("watching for audio files")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !w.pipe.IsSupportedAudioFile(event.Name) {
				continue
			}
			w.handle(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	log := util.Log(ctx).WithField("file", path)

	select {
	case <-ctx.Done():
		return
	case <-time.After(w.settle):
	}

	result, err := w.pipe.TranscribeFile(ctx, path, w.opts)
	if err != nil {
		log.WithError(err).Error("transcription failed")
		return
	}

	artifact, err := pipeline.SaveTranscript(result, w.outputDir)
	if err != nil {
		log.WithError(err).Error("persisting transcript failed")
		return
	}
	log.WithField("artifact", artifact).Info("transcript written")
}
