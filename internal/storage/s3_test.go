package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewS3(t *testing.T) {
	store, err := NewS3(context.Background(), S3Config{
		Bucket:          "clips",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "test-access",
		SecretAccessKey: "test-secret",
	})
	require.NoError(t, err)
	assert.NotNil(t, store)
	assert.Equal(t, "clips", store.bucket)
	assert.Equal(t, "us-east-1", store.region)
}
