package flagcache

import (
	"context"
	"testing"
	"time"

	"github.com/launchdarkly/go-client-sdk/internal/flagstore"

	"github.com/launchdarkly/go-sdk-common/v3/ldreason"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeFlags(value string) map[string]flagstore.FlagValue {
	return map[string]flagstore.FlagValue{
		"flag-a": {Value: ldvalue.String(value), Version: 2, Variation: ldvalue.NewOptionalInt(1), TrackEvents: true},
		"flag-b": {Value: ldvalue.Bool(true), Version: 5, Reason: ldreason.NewEvalReasonFallthrough()},
	}
}

func recordsToMap(records []flagstore.FlagRecord) map[string]flagstore.FlagValue {
	ret := make(map[string]flagstore.FlagValue)
	for _, r := range records {
		ret[r.Key] = r.Flag
	}
	return ret
}

// testGenericAll runs the behaviors every Cache implementation must have. The cache passed in must
// be empty and allow at least two contexts.
func testGenericAll(t *testing.T, makeCache func(t *testing.T, maxContexts int) Cache) {
	ctx := context.Background()

	t.Run("load of unknown context", func(t *testing.T) {
		c := makeCache(t, 2)
		_, ok, err := c.Load(ctx, "nobody")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("save and load", func(t *testing.T) {
		c := makeCache(t, 2)
		require.NoError(t, c.Save(ctx, "user:a", makeFlags("x")))
		records, ok, err := c.Load(ctx, "user:a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, makeFlags("x"), recordsToMap(records))
	})

	t.Run("save replaces previous flags", func(t *testing.T) {
		c := makeCache(t, 2)
		require.NoError(t, c.Save(ctx, "user:a", makeFlags("x")))
		require.NoError(t, c.Save(ctx, "user:a", map[string]flagstore.FlagValue{"only": {Value: ldvalue.Int(1), Version: 1}}))
		records, ok, err := c.Load(ctx, "user:a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Len(t, records, 1)
		assert.Equal(t, "only", records[0].Key)
	})

	t.Run("oldest context is evicted beyond the limit", func(t *testing.T) {
		c := makeCache(t, 2)
		require.NoError(t, c.Save(ctx, "user:a", makeFlags("a")))
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, c.Save(ctx, "user:b", makeFlags("b")))
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, c.Save(ctx, "user:c", makeFlags("c")))

		_, ok, err := c.Load(ctx, "user:a")
		require.NoError(t, err)
		assert.False(t, ok)
		for _, k := range []string{"user:b", "user:c"} {
			_, ok, err := c.Load(ctx, k)
			require.NoError(t, err)
			assert.True(t, ok, k)
		}
	})

	t.Run("remove older than", func(t *testing.T) {
		c := makeCache(t, 2)
		require.NoError(t, c.Save(ctx, "user:a", makeFlags("a")))
		time.Sleep(10 * time.Millisecond)
		cutoff := time.Now()
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, c.Save(ctx, "user:b", makeFlags("b")))

		n, err := c.RemoveOlderThan(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, ok, _ := c.Load(ctx, "user:a")
		assert.False(t, ok)
		_, ok, _ = c.Load(ctx, "user:b")
		assert.True(t, ok)
	})
}
