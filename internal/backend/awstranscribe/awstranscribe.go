// Package awstranscribe implements the backend interface on Amazon
// Transcribe. Audio is staged in S3 under a content-hash key, a
// transcription job is started (or reused) per hash, and the transcript
// JSON is fetched back from the bucket.
package awstranscribe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/aws/smithy-go"

	"github.com/voxpipe/voxpipe/internal/backend"
	"github.com/voxpipe/voxpipe/internal/format"
)

const defaultPollInterval = 10 * time.Second

func init() {
	backend.Default.Register("aws", func(config map[string]string) (backend.Backend, error) {
		bucket := config["bucket"]
		if bucket == "" {
			return nil, fmt.Errorf("aws backend: S3 bucket required (set bucket in config)")
		}
		region := config["region"]
		if region == "" {
			region = "us-east-1"
		}
		language := config["language"]
		if language == "" {
			language = "en-US"
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("aws backend: load SDK config: %w", err)
		}

		return &Client{
			s3Client:     s3.NewFromConfig(awsCfg),
			jobClient:    transcribe.NewFromConfig(awsCfg),
			bucket:       bucket,
			language:     language,
			pollInterval: defaultPollInterval,
		}, nil
	})
}

// s3API is the S3 subset the client uses.
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// transcribeAPI is the Transcribe subset the client uses.
type transcribeAPI interface {
	GetTranscriptionJob(ctx context.Context, in *transcribe.GetTranscriptionJobInput, opts ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
	StartTranscriptionJob(ctx context.Context, in *transcribe.StartTranscriptionJobInput, opts ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
}

// Client is the Amazon Transcribe backend.
type Client struct {
	s3Client     s3API
	jobClient    transcribeAPI
	bucket       string
	language     string
	pollInterval time.Duration
}

// Name identifies the backend.
func (c *Client) Name() string { return "aws" }

// transcriptDocument is the JSON document Transcribe writes to S3.
type transcriptDocument struct {
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
	} `json:"results"`
	Status string `json:"status"`
}

// Transcribe stages the file in S3 and runs one transcription job to
// completion. Prompt, temperature, and response-format options have no
// Amazon Transcribe equivalent and are ignored.
func (c *Client) Transcribe(ctx context.Context, path string, opts backend.Options) (backend.Payload, error) {
	hash, err := fileHash(path)
	if err != nil {
		return backend.Payload{}, &backend.ServiceError{Backend: c.Name(), Detail: "hash audio file", Err: err}
	}

	key := ObjectKey(hash, filepath.Base(path))
	job := JobName(hash)

	exists, err := c.objectExists(ctx, key)
	if err != nil {
		return backend.Payload{}, &backend.ServiceError{Backend: c.Name(), Detail: "check staged object", Err: err}
	}
	if !exists {
		if err := c.upload(ctx, key, path); err != nil {
			return backend.Payload{}, &backend.ServiceError{Backend: c.Name(), Detail: "stage audio in S3", Err: err}
		}
	}

	if err := c.runJob(ctx, job, key, path, opts); err != nil {
		return backend.Payload{}, err
	}

	text, err := c.fetchTranscript(ctx, job+".json")
	if err != nil {
		return backend.Payload{}, &backend.ServiceError{Backend: c.Name(), Detail: "fetch transcript", Err: err}
	}

	return backend.Payload{
		Text:     text,
		Language: c.resolveLanguage(opts),
		Model:    "amazon-transcribe",
	}, nil
}

// Translate is not available on this backend.
func (c *Client) Translate(ctx context.Context, path string, opts backend.Options) (backend.Payload, error) {
	return backend.Payload{}, &backend.ServiceError{Backend: c.Name(), Detail: "translation is not supported"}
}

func (c *Client) resolveLanguage(opts backend.Options) string {
	if opts.Language != "" {
		return opts.Language
	}
	return c.language
}

func (c *Client) objectExists(ctx context.Context, key string) (bool, error) {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &c.bucket, Key: &key})
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) upload(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
		Body:   f,
	})
	return err
}

// runJob starts the job unless it already exists, then polls until it
// reaches a terminal status.
func (c *Client) runJob(ctx context.Context, job, key, path string, opts backend.Options) error {
	exists, status, err := c.jobStatus(ctx, job)
	if err != nil {
		return &backend.ServiceError{Backend: c.Name(), Detail: "check job status", Err: err}
	}

	if !exists {
		mediaURI := fmt.Sprintf("s3://%s/%s", c.bucket, key)
		in := &transcribe.StartTranscriptionJobInput{
			TranscriptionJobName: &job,
			LanguageCode:         types.LanguageCode(c.languageCode(opts)),
			MediaFormat:          MediaFormat(path),
			Media:                &types.Media{MediaFileUri: &mediaURI},
			OutputBucketName:     &c.bucket,
		}
		if _, err := c.jobClient.StartTranscriptionJob(ctx, in); err != nil {
			return &backend.ServiceError{Backend: c.Name(), Detail: "start transcription job", Err: err}
		}
		status = string(types.TranscriptionJobStatusInProgress)
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		switch status {
		case string(types.TranscriptionJobStatusCompleted):
			return nil
		case string(types.TranscriptionJobStatusFailed):
			return &backend.ServiceError{Backend: c.Name(), Detail: "transcription job failed"}
		}

		select {
		case <-ctx.Done():
			return &backend.ServiceError{Backend: c.Name(), Detail: "wait for job", Err: ctx.Err()}
		case <-ticker.C:
		}

		_, status, err = c.jobStatus(ctx, job)
		if err != nil {
			return &backend.ServiceError{Backend: c.Name(), Detail: "poll job status", Err: err}
		}
	}
}

// languageCode widens a bare ISO-639-1 hint into the region-qualified code
// Transcribe expects, falling back to the configured default.
func (c *Client) languageCode(opts backend.Options) string {
	if opts.Language == "" {
		return c.language
	}
	if strings.Contains(opts.Language, "-") {
		return opts.Language
	}
	return opts.Language + "-" + strings.ToUpper(opts.Language)
}

func (c *Client) jobStatus(ctx context.Context, job string) (bool, string, error) {
	out, err := c.jobClient.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: &job,
	})
	if err != nil {
		if strings.Contains(err.Error(), "The requested job couldn't be found") {
			return false, "", nil
		}
		return false, "", err
	}
	return true, string(out.TranscriptionJob.TranscriptionJobStatus), nil
}

func (c *Client) fetchTranscript(ctx context.Context, key string) (string, error) {
	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{Bucket: &c.bucket, Key: &key})
	if err != nil {
		return "", err
	}
	defer out.Body.Close()

	var doc transcriptDocument
	if err := json.NewDecoder(out.Body).Decode(&doc); err != nil {
		return "", err
	}
	if len(doc.Results.Transcripts) == 0 {
		return "", fmt.Errorf("no transcript in job result")
	}
	return doc.Results.Transcripts[0].Transcript, nil
}

// fileHash returns the first 16 hex digits of the file's SHA-256.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16], nil
}

// ObjectKey derives the S3 staging key for a file.
func ObjectKey(hash, fileName string) string {
	return fmt.Sprintf("uploads/%s_%s", hash, fileName)
}

// JobName derives the transcription job name for a file.
func JobName(hash string) string {
	return fmt.Sprintf("transcribe-%s", hash)
}

// MediaFormat maps a file extension to what Transcribe accepts.
func MediaFormat(path string) types.MediaFormat {
	switch format.Ext(path) {
	case "mpeg", "mpga":
		return types.MediaFormatMp3
	case "opus":
		return types.MediaFormatOgg
	default:
		return types.MediaFormat(format.Ext(path))
	}
}

// IsNotFound classifies AWS "object does not exist" errors.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NotFoundException", "NoSuchKey", "404":
			return true
		}
	}
	return strings.Contains(err.Error(), "NotFound")
}
