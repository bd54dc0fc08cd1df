package trace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kennelworks/hushd/internal/config"
	"github.com/kennelworks/hushd/internal/notify"
)

// MaxUploadRetryAge is how long a failed upload keeps being retried
// before it is abandoned.
const MaxUploadRetryAge = 24 * time.Hour

const (
	uploadQueueSize     = 32
	uploadRetryInterval = 5 * time.Minute
	uploadTimeout       = 5 * time.Minute
	s3KeyPrefix         = "traces/"
)

// uploadRequest represents a trace file to be uploaded.
type uploadRequest struct {
	localPath string
	s3Key     string
	fileSize  int64
}

// pendingUpload tracks a failed upload for retry.
type pendingUpload struct {
	request      uploadRequest
	firstAttempt time.Time
	retryCount   int
	lastError    string
}

// Uploader ships trace files to S3-compatible storage in the
// background. Failed uploads are retried for up to MaxUploadRetryAge,
// then abandoned with a notification.
type Uploader struct {
	config   *config.Config
	notifier *notify.Notifier

	queue  chan uploadRequest
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu         sync.Mutex
	retryQueue []pendingUpload
	onUploaded func(localPath string)
}

// NewUploader creates an uploader. Call Start to launch the worker.
func NewUploader(cfg *config.Config, notifier *notify.Notifier) *Uploader {
	return &Uploader{
		config:   cfg,
		notifier: notifier,
		queue:    make(chan uploadRequest, uploadQueueSize),
		stopCh:   make(chan struct{}),
	}
}

// SetOnUploaded registers a callback invoked after a successful upload.
func (u *Uploader) SetOnUploaded(fn func(localPath string)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onUploaded = fn
}

// Start launches the upload worker.
func (u *Uploader) Start() {
	u.wg.Add(1)
	go u.worker()
}

// Stop drains the queue and stops the worker.
func (u *Uploader) Stop() {
	close(u.stopCh)
	u.wg.Wait()
}

// Enqueue queues a trace file for upload. A no-op when S3 is not
// configured.
func (u *Uploader) Enqueue(path string) {
	snap := u.config.Snapshot()
	if !snap.HasS3() {
		slog.Debug("trace upload skipped: s3 not configured", "path", path)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Warn("failed to stat trace file for upload", "path", path, "error", err)
		return
	}

	req := uploadRequest{
		localPath: path,
		s3Key:     s3KeyPrefix + filepath.Base(path),
		fileSize:  info.Size(),
	}

	select {
	case u.queue <- req:
		slog.Info("trace queued for upload", "file", filepath.Base(path))
	default:
		slog.Warn("trace upload queue full, dropping", "file", filepath.Base(path))
	}
}

// worker processes the upload queue, draining remaining items on
// shutdown.
func (u *Uploader) worker() {
	defer u.wg.Done()

	retryTicker := time.NewTicker(uploadRetryInterval)
	defer retryTicker.Stop()

	for {
		select {
		case <-u.stopCh:
			for {
				select {
				case req := <-u.queue:
					u.upload(req)
				default:
					return
				}
			}
		case req := <-u.queue:
			u.upload(req)
		case <-retryTicker.C:
			u.processRetryQueue()
		}
	}
}

// upload performs one attempt and queues a retry on failure.
func (u *Uploader) upload(req uploadRequest) {
	if err := u.putObject(req); err != nil {
		slog.Error("trace upload failed", "s3_key", req.s3Key, "error", err)
		u.addToRetryQueue(req, err.Error())
		return
	}
	u.uploaded(req)
}

func (u *Uploader) uploaded(req uploadRequest) {
	slog.Info("trace upload completed", "s3_key", req.s3Key)
	u.mu.Lock()
	fn := u.onUploaded
	u.mu.Unlock()
	if fn != nil {
		fn(req.localPath)
	}
}

func (u *Uploader) putObject(req uploadRequest) error {
	snap := u.config.Snapshot()
	if !snap.HasS3() {
		return fmt.Errorf("s3 is not configured")
	}

	client := createS3Client(snap)

	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		uploadTimeout,
		errors.New("s3 upload timeout"),
	)
	defer cancel()

	file, err := os.Open(req.localPath)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close trace file after upload", "path", req.localPath, "error", err)
		}
	}()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(snap.S3Bucket),
		Key:           aws.String(req.s3Key),
		Body:          file,
		ContentLength: aws.Int64(req.fileSize),
		ContentType:   aws.String("application/json"),
	})
	return err
}

// addToRetryQueue adds a failed upload to the retry queue.
func (u *Uploader) addToRetryQueue(req uploadRequest, errMsg string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, p := range u.retryQueue {
		if p.request.localPath == req.localPath {
			return
		}
	}

	u.retryQueue = append(u.retryQueue, pendingUpload{
		request:      req,
		firstAttempt: time.Now(),
		retryCount:   0,
		lastError:    errMsg,
	})

	slog.Info("trace upload queued for retry", "file", filepath.Base(req.localPath))
}

// processRetryQueue attempts all pending uploads, abandoning those past
// the retry age.
func (u *Uploader) processRetryQueue() {
	u.mu.Lock()
	if len(u.retryQueue) == 0 {
		u.mu.Unlock()
		return
	}
	pending := make([]pendingUpload, len(u.retryQueue))
	copy(pending, u.retryQueue)
	u.retryQueue = nil
	u.mu.Unlock()

	now := time.Now()

	for i := range pending {
		p := &pending[i]

		if now.Sub(p.firstAttempt) > MaxUploadRetryAge {
			slog.Warn("trace upload abandoned after 24h",
				"file", filepath.Base(p.request.localPath),
				"attempts", p.retryCount+1)
			u.notifier.TraceUploadAbandoned(filepath.Base(p.request.localPath), p.request.s3Key, p.retryCount+1, p.lastError)
			continue
		}

		p.retryCount++
		slog.Info("retrying trace upload",
			"file", filepath.Base(p.request.localPath),
			"attempt", p.retryCount)

		if !u.retryUpload(p) {
			u.mu.Lock()
			u.retryQueue = append(u.retryQueue, *p)
			u.mu.Unlock()
		}
	}
}

// retryUpload performs one retry and reports success.
func (u *Uploader) retryUpload(p *pendingUpload) bool {
	if _, err := os.Stat(p.request.localPath); os.IsNotExist(err) {
		slog.Warn("retry file no longer exists", "path", p.request.localPath)
		return true
	}

	if err := u.putObject(p.request); err != nil {
		p.lastError = err.Error()
		slog.Error("trace upload retry failed", "s3_key", p.request.s3Key, "error", err)
		return false
	}

	u.uploaded(p.request)
	return true
}

// createS3Client builds a client for the configured endpoint. Custom
// endpoints get path-style addressing for S3-compatible services.
func createS3Client(snap config.Snapshot) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		snap.S3AccessKeyID,
		snap.S3SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if snap.S3Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(snap.S3Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// TestS3Connection verifies the configured bucket by writing and
// removing a probe object.
func TestS3Connection(cfg *config.Config) error {
	snap := cfg.Snapshot()
	if !snap.HasS3() {
		return fmt.Errorf("S3 is not configured")
	}

	client := createS3Client(snap)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	testKey := fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano())
	testContent := []byte("Hushd trace storage connection test")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(snap.S3Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(snap.S3Bucket),
		Key:    aws.String(testKey),
	}); err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}

	return nil
}
