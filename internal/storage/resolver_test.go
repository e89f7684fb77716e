package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-conversation/internal/config"
)

func TestPublicBucketResolver(t *testing.T) {
	resolver := NewPublicBucketResolver(config.StorageConfig{
		PublicBaseURL: "https://storage.example.com/",
		Bucket:        "attachments",
	})

	url, err := resolver.PublicURL(context.Background(), "/t1/invoice.pdf")
	require.NoError(t, err)
	require.Equal(t, "https://storage.example.com/object/public/attachments/t1/invoice.pdf", url)
}

func TestPublicBucketResolverRejectsEmptyPath(t *testing.T) {
	resolver := NewPublicBucketResolver(config.StorageConfig{
		PublicBaseURL: "https://storage.example.com",
		Bucket:        "attachments",
	})

	_, err := resolver.PublicURL(context.Background(), "")
	require.Error(t, err)
}
