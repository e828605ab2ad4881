package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/yungbote/coverage-backend/internal/platform/logger"
)

// Archive keeps raw submissions in a GCS bucket, keyed by organisation,
// commit and submission ID.
type Archive interface {
	Put(ctx context.Context, key ArchiveKey, contentType string, body []byte) error
	Get(ctx context.Context, key ArchiveKey) ([]byte, error)
	Close() error
}

type ArchiveKey struct {
	Organisation string
	Commit       string
	SubmissionID string
}

// Object is the bucket path of the submission.
func (k ArchiveKey) Object() string {
	return path.Join("submissions", escape(k.Organisation), escape(k.Commit), k.SubmissionID)
}

type ArchiveConfig struct {
	Bucket string
	// EmulatorHost points the client at a storage emulator, e.g.
	// http://127.0.0.1:4443. Authentication is skipped in that case.
	EmulatorHost string
	// CredentialsFile is a service account key; the environment and then
	// application default credentials are used when empty.
	CredentialsFile string
}

type archive struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

func NewArchive(ctx context.Context, log *logger.Logger, cfg ArchiveConfig) (Archive, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("missing archive bucket")
	}
	client, err := newStorageClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog := log.With("service", "SubmissionArchive", "bucket", bucket)
	serviceLog.Info("Submission archive initialized", "emulator_host", cfg.EmulatorHost)
	return &archive{log: serviceLog, client: client, bucket: bucket}, nil
}

func newStorageClient(ctx context.Context, cfg ArchiveConfig) (*storage.Client, error) {
	if endpoint := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"); endpoint != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
	}
	return storage.NewClient(ctx, storageClientOptions(cfg)...)
}

func (a *archive) Put(ctx context.Context, key ArchiveKey, contentType string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(key.Object()).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{
		"organisation": key.Organisation,
		"commit":       key.Commit,
	}
	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		_ = w.Close()
		return fmt.Errorf("archive write %s: %w", key.Object(), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("archive close %s: %w", key.Object(), err)
	}
	return nil
}

func (a *archive) Get(ctx context.Context, key ArchiveKey) ([]byte, error) {
	r, err := a.client.Bucket(a.bucket).Object(key.Object()).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive open %s: %w", key.Object(), err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (a *archive) Close() error {
	return a.client.Close()
}

func escape(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.NewReplacer("/", "%2F", "..", "%2E%2E").Replace(s)
}
