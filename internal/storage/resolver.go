package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/ticket-conversation/internal/config"
)

// Resolver turns an opaque storage locator into a fetchable URL. The
// upload and storage of files belongs to an external collaborator; this
// service only resolves locators on explicit download requests.
type Resolver interface {
	PublicURL(ctx context.Context, storagePath string) (string, error)
}

type publicBucketResolver struct {
	baseURL string
	bucket  string
}

// NewPublicBucketResolver resolves locators against a public object bucket.
func NewPublicBucketResolver(cfg config.StorageConfig) Resolver {
	return &publicBucketResolver{
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		bucket:  cfg.Bucket,
	}
}

func (r *publicBucketResolver) PublicURL(_ context.Context, storagePath string) (string, error) {
	path := strings.TrimLeft(storagePath, "/")
	if path == "" {
		return "", fmt.Errorf("empty storage path")
	}
	return fmt.Sprintf("%s/object/public/%s/%s", r.baseURL, r.bucket, path), nil
}
