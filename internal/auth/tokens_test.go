package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/snackline/snackline/internal/shared"
)

func testTokenStore(t *testing.T) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenStore(client, "test-secret", time.Hour), mr
}

func TestTokenRoundTrip(t *testing.T) {
	ts, _ := testTokenStore(t)
	ctx := context.Background()

	token, err := ts.Issue(ctx, shared.Principal{ID: 3, Role: shared.RoleSalesman})
	require.NoError(t, err)
	require.Contains(t, token, ".")

	principal, err := ts.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(3), principal.ID)
	require.Equal(t, shared.RoleSalesman, principal.Role)
}

func TestTokenTamperedSignatureRejected(t *testing.T) {
	ts, _ := testTokenStore(t)
	ctx := context.Background()

	token, err := ts.Issue(ctx, shared.Principal{ID: 2, Role: shared.RoleAdmin})
	require.NoError(t, err)

	id, _, _ := strings.Cut(token, ".")
	_, err = ts.Resolve(ctx, id+".forged-signature")
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = ts.Resolve(ctx, "no-separator")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenExpires(t *testing.T) {
	ts, mr := testTokenStore(t)
	ctx := context.Background()

	token, err := ts.Issue(ctx, shared.Principal{ID: 4, Role: shared.RoleShopkeeper})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = ts.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRevokeInvalidatesToken(t *testing.T) {
	ts, _ := testTokenStore(t)
	ctx := context.Background()

	token, err := ts.Issue(ctx, shared.Principal{ID: 1, Role: shared.RoleSuperAdmin})
	require.NoError(t, err)
	require.NoError(t, ts.Revoke(ctx, token))

	_, err = ts.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrTokenInvalid)

	require.ErrorIs(t, ts.Revoke(ctx, "bad.token"), ErrTokenInvalid)
}
