//go:build integration

package cli

import (
	"testing"

	"github.com/ripkitten-co/giftcard/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishThenFetch_MemoryReplaysLog(t *testing.T) {
	env := map[string]string{
		"GIFTCARD_DATABASE_URL": testutil.SetupPostgres(t),
		"GIFTCARD_STORE":        "memory",
		"GIFTCARD_LOG_LEVEL":    "error",
	}

	_, err := execute(t, env, "publish", "issued", "card-1", "100")
	require.NoError(t, err)
	_, err = execute(t, env, "publish", "redeemed", "card-1", "30")
	require.NoError(t, err)
	_, err = execute(t, env, "publish", "issued", "gift-1", "5")
	require.NoError(t, err)

	out, err := execute(t, env, "fetch", "--prefix", "card-")
	require.NoError(t, err)
	assert.Equal(t, "card-1\tinitial=100\tremaining=70\tversion=2\n", out)

	out, err = execute(t, env, "count", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"count":2`)
}
