package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbackend/config"
	"ragbackend/ragerrors"
)

func TestNew_RequiresEndpointAndBucket(t *testing.T) {
	_, err := New(&config.Config{})
	require.Error(t, err)
	assert.Equal(t, ragerrors.ConfigError, ragerrors.KindOf(err))
}

func TestNew_RequiresBucketWhenEndpointSet(t *testing.T) {
	_, err := New(&config.Config{S3Endpoint: "localhost:9000"})
	require.Error(t, err)
	assert.Equal(t, ragerrors.ConfigError, ragerrors.KindOf(err))
}

func TestStore_PutRejectsOversizedPayload(t *testing.T) {
	s := &Store{maxUploadSize: 4}
	_, err := s.Put(context.Background(), "tenant-1", 1, []byte("too big"), "text/plain", "txt")

	require.Error(t, err)
	assert.Equal(t, ragerrors.PayloadTooLarge, ragerrors.KindOf(err))
}

func TestStore_GetOnUnconfiguredStoreErrors(t *testing.T) {
	var s *Store
	_, err := s.Get(context.Background(), "tenant-1/1/deadbeef.txt")
	require.Error(t, err)
}
