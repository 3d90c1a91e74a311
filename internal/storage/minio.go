package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/facturaIA/tax-extraction-service/internal/config"
)

// PresignExpiry is how long a presigned download link stays valid.
const PresignExpiry = 24 * time.Hour

var ErrBucketMissing = errors.New("bucket does not exist")

// Store keeps uploaded tax documents and generated reports in one bucket.
type Store struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// New connects to the object store and verifies the bucket exists.
func New(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBucketMissing, cfg.Bucket)
	}

	return &Store{client: client, bucket: cfg.Bucket, now: time.Now}, nil
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

// UploadDocument stores an original document under {tenant}/YYYY/MM/{name}
// and returns "bucket/object" for persistence.
func (s *Store) UploadDocument(ctx context.Context, tenant, name string, r io.Reader, size int64, contentType string) (string, error) {
	return s.put(ctx, ObjectName(tenant, s.now(), name), r, size, contentType)
}

// UploadReport stores a rendered report next to the tenant's documents.
func (s *Store) UploadReport(ctx context.Context, tenant, name string, body []byte) (string, error) {
	object := ObjectName(tenant, s.now(), "reports/"+name)
	return s.put(ctx, object, bytes.NewReader(body), int64(len(body)), "text/markdown; charset=utf-8")
}

func (s *Store) put(ctx context.Context, object string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, object, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", object, err)
	}
	return s.bucket + "/" + object, nil
}

// PresignedURL returns a time-limited download link for a stored object.
func (s *Store) PresignedURL(ctx context.Context, objectPath string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, s.objectName(objectPath), PresignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}

// Delete removes an object. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, objectPath string) error {
	return s.client.RemoveObject(ctx, s.bucket, s.objectName(objectPath), minio.RemoveObjectOptions{})
}

func (s *Store) objectName(objectPath string) string {
	return strings.TrimPrefix(objectPath, s.bucket+"/")
}

// ObjectName builds the multi-tenant object key {tenant}/YYYY/MM/{name}.
func ObjectName(tenant string, at time.Time, name string) string {
	if tenant == "" {
		tenant = "default"
	}
	return fmt.Sprintf("%s/%d/%02d/%s", tenant, at.Year(), at.Month(), name)
}

// FileExtension maps a document content type to a file extension.
func FileExtension(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	switch strings.TrimSpace(strings.ToLower(contentType)) {
	case "application/pdf":
		return ".pdf"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return ".docx"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	case "text/csv":
		return ".csv"
	case "text/plain":
		return ".txt"
	case "text/markdown":
		return ".md"
	default:
		return ".bin"
	}
}
