package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"eCard/internal/database"
	"eCard/internal/errcode"
	"eCard/internal/profile"
)

func newTestAccounts(t *testing.T) *Accounts {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db, "auto"))
	return NewAccounts(profile.NewGormStore(db))
}

func testKeyPair(t *testing.T) ([]byte, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM
}

func TestRegisterThenLoginReturnsSameID(t *testing.T) {
	accounts := newTestAccounts(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob", "名片"} {
		created, err := accounts.Register(ctx, name, "secret1")
		require.NoError(t, err)
		require.NotZero(t, created.ID)

		logged, err := accounts.Login(ctx, name, "secret1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, logged.ID)
		assert.Equal(t, name, logged.Name)
	}
}

func TestRegisterValidation(t *testing.T) {
	accounts := newTestAccounts(t)

	_, err := accounts.Register(context.Background(), "", "pw")
	require.ErrorIs(t, err, errcode.ErrValidation)
	_, err = accounts.Register(context.Background(), "zoe", "")
	require.ErrorIs(t, err, errcode.ErrValidation)
}

func TestRegisterDuplicateNameConflicts(t *testing.T) {
	accounts := newTestAccounts(t)
	ctx := context.Background()

	_, err := accounts.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	for _, pw := range []string{"secret1", "other-password"} {
		_, err = accounts.Register(ctx, "alice", pw)
		require.ErrorIs(t, err, errcode.ErrConflict)
		assert.Equal(t, "Username already taken", errcode.Message(err, ""))
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	accounts := newTestAccounts(t)
	ctx := context.Background()
	_, err := accounts.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	_, wrongPassword := accounts.Login(ctx, "alice", "nope")
	_, unknownUser := accounts.Login(ctx, "mallory", "secret1")

	require.ErrorIs(t, wrongPassword, errcode.ErrAuth)
	require.ErrorIs(t, unknownUser, errcode.ErrAuth)
	assert.Equal(t, errcode.HTTPStatus(wrongPassword), errcode.HTTPStatus(unknownUser))
	assert.Equal(t, errcode.Message(wrongPassword, ""), errcode.Message(unknownUser, ""))
	assert.Equal(t, InvalidCredentialsMessage, errcode.Message(unknownUser, ""))
}

func TestRegisterStoresBcryptHashWithCost10(t *testing.T) {
	accounts := newTestAccounts(t)
	ctx := context.Background()

	created, err := accounts.Register(ctx, "ivy", "secret1")
	require.NoError(t, err)

	user, err := accounts.store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", user.PasswordHash)
	assert.Contains(t, user.PasswordHash, "$10$")
	assert.NotEmpty(t, user.ShareID)
}

func TestChangePassword(t *testing.T) {
	accounts := newTestAccounts(t)
	ctx := context.Background()
	created, err := accounts.Register(ctx, "jack", "secret1")
	require.NoError(t, err)

	require.ErrorIs(t, accounts.ChangePassword(ctx, created.ID, "wrong", "secret2"), errcode.ErrAuth)
	require.ErrorIs(t, accounts.ChangePassword(ctx, created.ID, "secret1", "secret1"), errcode.ErrValidation)
	require.NoError(t, accounts.ChangePassword(ctx, created.ID, "secret1", "secret2"))

	_, err = accounts.Login(ctx, "jack", "secret1")
	require.ErrorIs(t, err, errcode.ErrAuth)
	_, err = accounts.Login(ctx, "jack", "secret2")
	require.NoError(t, err)
}

func TestPasswordOverBcryptLimitIsValidationError(t *testing.T) {
	accounts := newTestAccounts(t)
	ctx := context.Background()
	long := strings.Repeat("p", MaxPasswordBytes+1)

	_, err := accounts.Register(ctx, "longpw", long)
	require.ErrorIs(t, err, errcode.ErrValidation)
	assert.Equal(t, PasswordTooLongMessage, errcode.Message(err, ""))

	created, err := accounts.Register(ctx, "longpw", strings.Repeat("p", MaxPasswordBytes))
	require.NoError(t, err)
	_, err = accounts.Login(ctx, "longpw", strings.Repeat("p", MaxPasswordBytes))
	require.NoError(t, err)

	err = accounts.ChangePassword(ctx, created.ID, strings.Repeat("p", MaxPasswordBytes), long)
	require.ErrorIs(t, err, errcode.ErrValidation)
}

func TestRegisterLongNameRoundTrips(t *testing.T) {
	accounts := newTestAccounts(t)
	ctx := context.Background()
	name := strings.Repeat("n", 300)

	created, err := accounts.Register(ctx, name, "secret1")
	require.NoError(t, err)
	logged, err := accounts.Login(ctx, name, "secret1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, logged.ID)
}

func TestTokenPairRoundTrip(t *testing.T) {
	privPEM, pubPEM := testKeyPair(t)
	svc, err := NewAuthService(privPEM, pubPEM, time.Minute, time.Hour)
	require.NoError(t, err)

	pair, err := svc.GenerateTokenPair(7, true)
	require.NoError(t, err)

	access, err := svc.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, uint(7), access.UserID)
	assert.Equal(t, TokenTypeAccess, access.TokenType)
	assert.True(t, access.MustChangePassword)

	refresh, err := svc.ValidateToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.TokenType)
	assert.NotEmpty(t, refresh.ID)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	privPEM, pubPEM := testKeyPair(t)
	svc, err := NewAuthService(privPEM, pubPEM, -time.Minute, time.Hour)
	require.NoError(t, err)

	pair, err := svc.GenerateTokenPair(1, false)
	require.NoError(t, err)

	_, err = svc.ValidateToken(pair.AccessToken)
	require.Error(t, err)
}

func TestValidateTokenRejectsForeignKey(t *testing.T) {
	privA, pubA := testKeyPair(t)
	_, pubB := testKeyPair(t)

	signer, err := NewAuthService(privA, pubA, time.Minute, time.Hour)
	require.NoError(t, err)
	verifier, err := NewAuthService(privA, pubB, time.Minute, time.Hour)
	require.NoError(t, err)

	pair, err := signer.GenerateTokenPair(1, false)
	require.NoError(t, err)
	_, err = verifier.ValidateToken(pair.AccessToken)
	require.Error(t, err)
}
