package proofstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
)

// OSSConfig identifies the bucket holding proofs
type OSSConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Prefix          string
}

// OSSStore keeps proofs in an Aliyun OSS bucket. Objects are private and are
// streamed back through the admin API.
type OSSStore struct {
	bucket *oss.Bucket
	prefix string
}

// NewOSSStore connects to the configured bucket
func NewOSSStore(cfg OSSConfig) (*OSSStore, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("oss.New: %w", err)
	}
	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("oss bucket %s: %w", cfg.Bucket, err)
	}
	return &OSSStore{bucket: bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// Store uploads file and returns its key (without the bucket prefix)
func (s *OSSStore) Store(ctx context.Context, ownerID uuid.UUID, file models.ProofUpload) (string, error) {
	if file.Content == nil {
		return "", errors.New("proof content is empty")
	}
	key := newKey(ownerID, file.ContentType, file.Filename)

	opts := []oss.Option{
		oss.WithContext(ctx),
		oss.ObjectACL(oss.ACLPrivate),
		oss.ContentDisposition("inline"),
	}
	if file.ContentType != "" {
		opts = append(opts, oss.ContentType(file.ContentType))
	}

	if err := s.bucket.PutObject(s.objectKey(key), file.Content, opts...); err != nil {
		return "", fmt.Errorf("failed to upload proof: %w", err)
	}
	return key, nil
}

// Exists reports whether key is stored
func (s *OSSStore) Exists(ctx context.Context, key string) (bool, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	ok, err := s.bucket.IsObjectExist(s.objectKey(cleaned), oss.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to check proof: %w", err)
	}
	return ok, nil
}

// Delete removes key. The bool is false when nothing was stored there.
func (s *OSSStore) Delete(ctx context.Context, key string) (bool, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil || !exists {
		return false, err
	}
	cleaned, _ := cleanKey(key)
	if err := s.bucket.DeleteObject(s.objectKey(cleaned), oss.WithContext(ctx)); err != nil {
		return false, fmt.Errorf("failed to delete proof: %w", err)
	}
	return true, nil
}

// Open streams the object; a missing key yields fs.ErrNotExist
func (s *OSSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	body, err := s.bucket.GetObject(s.objectKey(cleaned), oss.WithContext(ctx))
	if err != nil {
		var se oss.ServiceError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("proof %s: %w", cleaned, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to open proof: %w", err)
	}
	return body, nil
}

func (s *OSSStore) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}
