package recall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilStoreIsNoOp(t *testing.T) {
	var s *Store
	assert.NotPanics(t, func() {
		s.Remember(context.Background(), "id", "text")
	})
	assert.Nil(t, s.Related(context.Background(), "query", 3))
}

func TestRelatedEmptyStore(t *testing.T) {
	s := New()
	require.NotNil(t, s)
	assert.Nil(t, s.Related(context.Background(), "anything", 3))
}

func TestRememberAndRelated(t *testing.T) {
	s := New()
	require.NotNil(t, s)
	ctx := context.Background()

	s.Remember(ctx, "search:1", "the quick brown fox jumps over the lazy dog")
	s.Remember(ctx, "search:2", "completely unrelated passage about orchid scripting")

	related := s.Related(ctx, "quick brown fox", 1)
	require.Len(t, related, 1)
	assert.Contains(t, related[0], "fox")
}

func TestHashBucketStable(t *testing.T) {
	a := hashBucket("abc", 256)
	b := hashBucket("abc", 256)
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 256)
}
