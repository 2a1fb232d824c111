package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pitabwire/util"
	"github.com/rs/xid"

	"github.com/voxpipe/voxpipe/internal/backend"
)

// Report aggregates a directory batch: one entry per discovered audio
// file, in directory-listing order, plus counts. Successful+Failed always
// equals Total, which always equals len(Results).
type Report struct {
	ID         string   `json:"id"`
	Directory  string   `json:"directory"`
	Results    []Result `json:"results"`
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
}

// ProcessDirectory transcribes every supported audio file in dir,
// sequentially and in listing order. Directories and non-audio entries are
// skipped silently. One file's failure becomes a failure record and never
// prevents the remaining files from being attempted. When outputDir is
// non-empty, each successful transcript is persisted before the next file
// starts, so partial progress survives a crash.
//
// Only a directory-level failure (unreadable dir) returns an error.
func (p *Pipeline) ProcessDirectory(ctx context.Context, dir string, opts backend.Options, outputDir string) (Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Report{}, fmt.Errorf("read audio directory %s: %w", dir, err)
	}

	report := Report{
		ID:        xid.New().String(),
		Directory: dir,
	}
	log := util.Log(ctx).WithField("batch", report.ID).WithField("dir", dir)

	for _, entry := range entries {
		if entry.IsDir() || !p.policy.IsSupported(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		result := p.processBatchFile(ctx, path, opts, outputDir)
		report.Results = append(report.Results, result)
		if result.Success {
			report.Successful++
		} else {
			report.Failed++
			log.WithField("file", entry.Name()).WithError(result.Err).Warn("file failed, continuing batch")
		}
	}

	report.Total = len(report.Results)
	log.WithField("total", report.Total).
		WithField("failed", report.Failed).
		Info("batch complete")
	return report, nil
}

// processBatchFile isolates one file's outcome: every error, of any kind,
// is converted into a failure record here.
func (p *Pipeline) processBatchFile(ctx context.Context, path string, opts backend.Options, outputDir string) Result {
	result, err := p.TranscribeFile(ctx, path, opts)
	if err != nil {
		return failureRecord(path, err, p.now())
	}

	if outputDir != "" {
		if _, err := SaveTranscript(result, outputDir); err != nil {
			return failureRecord(path, err, p.now())
		}
	}
	return result
}

func failureRecord(path string, err error, now time.Time) Result {
	return Result{
		Err:   err,
		Error: err.Error(),
		Metadata: Metadata{
			FileName:     filepath.Base(path),
			OriginalPath: path,
			Timestamp:    now.UTC().Format(time.RFC3339),
		},
	}
}
