// Command voxpipe normalizes audio files and submits them to a remote
// speech-recognition service, writing transcripts with provenance
// metadata. Single-file, directory-batch, and watch modes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pitabwire/util"

	"github.com/voxpipe/voxpipe/config"
	"github.com/voxpipe/voxpipe/internal/backend"
	"github.com/voxpipe/voxpipe/internal/convert"
	"github.com/voxpipe/voxpipe/internal/pipeline"
	"github.com/voxpipe/voxpipe/internal/watch"

	// Register transcription backends via init().
	_ "github.com/voxpipe/voxpipe/internal/backend/awstranscribe"
	_ "github.com/voxpipe/voxpipe/internal/backend/openai"
)

func main() {
	var (
		filePath   string
		dirPath    string
		watchPath  string
		outputDir  string
		configPath string
		translate  bool
		verbose    bool

		language       string
		prompt         string
		responseFormat string
		granularities  string
		temperature    float64
	)

	flag.StringVar(&filePath, "f", "", "Transcribe a single audio file")
	flag.StringVar(&dirPath, "d", "", "Transcribe every supported audio file in a directory")
	flag.StringVar(&watchPath, "w", "", "Watch a directory and transcribe audio files as they appear")
	flag.StringVar(&outputDir, "o", "", "Transcript output directory (default from config)")
	flag.StringVar(&configPath, "config", "", "Optional YAML config file")
	flag.BoolVar(&translate, "translate", false, "Translate into English instead of transcribing")
	flag.BoolVar(&verbose, "verbose", false, "Print the full result JSON for single files")

	flag.StringVar(&language, "language", "", "ISO-639-1 language hint (empty = auto-detect)")
	flag.StringVar(&prompt, "prompt", "", "Vocabulary bias prompt")
	flag.StringVar(&responseFormat, "format", "", "Response format: text|json|verbose_json")
	flag.StringVar(&granularities, "granularities", "", "Timestamp granularities, comma-separated: segment,word")
	flag.Float64Var(&temperature, "temperature", 0, "Sampling temperature")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := util.Log(ctx)

	modes := 0
	for _, m := range []string{filePath, dirPath, watchPath} {
		if m != "" {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "exactly one of -f, -d, or -w is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Error("loading configuration")
		os.Exit(1)
	}
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}

	be, err := backend.Default.Create(cfg.Backend, cfg.BackendConfig())
	if err != nil {
		log.WithError(err).Error("creating backend")
		os.Exit(1)
	}

	policy := cfg.Policy()
	pipe := pipeline.NewWithConfig(be, policy, convert.New(policy, cfg.Conversion))

	opts := backend.Options{
		Language:       language,
		Prompt:         prompt,
		ResponseFormat: backend.ResponseFormat(responseFormat),
		Temperature:    temperature,
	}
	for _, g := range strings.Split(granularities, ",") {
		if g = strings.TrimSpace(g); g != "" {
			opts.TimestampGranularities = append(opts.TimestampGranularities, g)
		}
	}

	switch {
	case filePath != "":
		runSingle(ctx, pipe, filePath, opts, outputDir, translate, verbose)
	case dirPath != "":
		runBatch(ctx, pipe, dirPath, opts, outputDir)
	case watchPath != "":
		runWatch(ctx, pipe, watchPath, opts, outputDir)
	}
}

func runSingle(ctx context.Context, pipe *pipeline.Pipeline, path string, opts backend.Options, outputDir string, translate, verbose bool) {
	log := util.Log(ctx).WithField("file", path)

	var result pipeline.Result
	var err error
	if translate {
		result, err = pipe.TranslateFile(ctx, path, opts)
	} else {
		result, err = pipe.TranscribeFile(ctx, path, opts)
	}
	if err != nil {
		log.WithError(err).Error("processing failed")
		os.Exit(1)
	}

	artifact, err := pipeline.SaveTranscript(result, outputDir)
	if err != nil {
		log.WithError(err).Error("writing transcript failed")
		os.Exit(1)
	}
	log.WithField("artifact", artifact).Info("transcript written")

	if verbose {
		printJSON(result)
	} else {
		fmt.Println(result.Payload.Text)
	}
}

func runBatch(ctx context.Context, pipe *pipeline.Pipeline, dir string, opts backend.Options, outputDir string) {
	report, err := pipe.ProcessDirectory(ctx, dir, opts, outputDir)
	if err != nil {
		util.Log(ctx).WithError(err).Error("batch failed")
		os.Exit(1)
	}
	// Per-file failures are embedded in the report; the batch itself
	// succeeded.
	printJSON(report)
}

func runWatch(ctx context.Context, pipe *pipeline.Pipeline, dir string, opts backend.Options, outputDir string) {
	w := watch.New(pipe, opts, outputDir)
	if err := w.Run(ctx, dir); err != nil {
		util.Log(ctx).WithError(err).Error("watcher stopped")
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encoding output: %v\n", err)
	}
}
