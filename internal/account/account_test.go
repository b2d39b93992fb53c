package account

import (
	"context"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dshills/gocommerce/internal/storage"
	"github.com/dshills/gocommerce/pkg/types"
)

func setupService(t *testing.T) (*Service, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc, err := New(store, Config{
		JWTSecret:  "test-secret",
		Issuer:     "gocommerce",
		Audience:   "gocommerce-clients",
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	return svc, store
}

func register(t *testing.T, svc *Service, username string) *AuthResult {
	t.Helper()
	result, err := svc.Register(context.Background(), RegisterRequest{
		Username:  username,
		Email:     username + "@example.com",
		Password:  "correct horse",
		FirstName: "Test",
	})
	require.NoError(t, err)
	return result
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	registered := register(t, svc, "alice")
	assert.Greater(t, registered.User.ID, int64(0))
	assert.NotEmpty(t, registered.Token)
	assert.NotEqual(t, "correct horse", registered.User.PasswordHash)
	assert.NotEmpty(t, registered.User.Salt)

	result, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, result.User.ID)

	claims, err := svc.ParseToken("Bearer " + result.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@example.com", claims.Email)

	_, err = svc.Login(ctx, "alice", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister_Conflicts(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	register(t, svc, "alice")

	_, err := svc.Register(ctx, RegisterRequest{Username: "alice", Email: "new@example.com", Password: "long enough"})
	assert.ErrorIs(t, err, types.ErrUsernameTaken)
	assert.ErrorIs(t, err, types.ErrConflict)

	_, err = svc.Register(ctx, RegisterRequest{Username: "alice2", Email: "alice@example.com", Password: "long enough"})
	assert.ErrorIs(t, err, types.ErrEmailTaken)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing username", RegisterRequest{Email: "a@example.com", Password: "long enough"}},
		{"bad email", RegisterRequest{Username: "a", Email: "not-an-email", Password: "long enough"}},
		{"short password", RegisterRequest{Username: "a", Email: "a@example.com", Password: "short"}},
		{"long password", RegisterRequest{Username: "a", Email: "a@example.com", Password: string(make([]byte, MaxPasswordLength+1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.req)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestParseToken_Rejects(t *testing.T) {
	svc, _ := setupService(t)
	registered := register(t, svc, "alice")

	_, err := svc.ParseToken("")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ParseToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := New(nil, Config{JWTSecret: "other-secret", Issuer: "gocommerce", Audience: "gocommerce-clients"})
	require.NoError(t, err)
	_, err = other.ParseToken(registered.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Expired
	svc.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expired, err := svc.issue(registered.User)
	require.NoError(t, err)
	_, err = svc.ParseToken(expired.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Wrong audience
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: registered.User.ID,
		StandardClaims: jwt.StandardClaims{
			Issuer:    "gocommerce",
			Audience:  "someone-else",
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
		},
	})
	signed, err := foreign.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ParseToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUpdateUser(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	alice := register(t, svc, "alice").User
	register(t, svc, "bob")

	email := "alice@new.example.com"
	last := "Liddell"
	updated, err := svc.UpdateUser(ctx, alice.ID, UpdateRequest{Email: &email, LastName: &last})
	require.NoError(t, err)
	assert.Equal(t, email, updated.Email)
	assert.Equal(t, "Liddell", updated.LastName)
	assert.Equal(t, "Test", updated.FirstName)

	taken := "bob@example.com"
	_, err = svc.UpdateUser(ctx, alice.ID, UpdateRequest{Email: &taken})
	assert.ErrorIs(t, err, types.ErrEmailTaken)

	_, err = svc.UpdateUser(ctx, 9999, UpdateRequest{})
	assert.ErrorIs(t, err, types.ErrUserNotFound)
}

func TestDeleteUser(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()
	alice := register(t, svc, "alice").User
	bob := register(t, svc, "bob").User

	require.NoError(t, store.CreateOrder(ctx, &types.Order{
		Reference:   "bob-1",
		UserID:      bob.ID,
		OrderDate:   time.Now().UTC(),
		TotalAmount: decimal.NewFromInt(1),
		Status:      types.StatusPending,
	}))

	assert.ErrorIs(t, svc.DeleteUser(ctx, bob.ID), ErrUserHasOrders)
	require.NoError(t, svc.DeleteUser(ctx, alice.ID))
	_, err := svc.GetUser(ctx, alice.ID)
	assert.ErrorIs(t, err, types.ErrUserNotFound)
	assert.ErrorIs(t, svc.DeleteUser(ctx, alice.ID), types.ErrUserNotFound)
}

func TestPreferences(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	alice := register(t, svc, "alice").User

	prefs, err := svc.GetPreferences(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, prefs)

	in, err := types.AttributesOf(map[string]any{"theme": "dark", "page_size": 25, "tags": []any{"a"}})
	require.NoError(t, err)
	_, err = svc.PutPreferences(ctx, alice.ID, in)
	require.NoError(t, err)

	prefs, err = svc.GetPreferences(ctx, alice.ID)
	require.NoError(t, err)
	theme, _ := prefs["theme"].AsString()
	assert.Equal(t, "dark", theme)
	size, _ := prefs["page_size"].AsInt64()
	assert.Equal(t, int64(25), size)

	_, err = svc.GetPreferences(ctx, 9999)
	assert.ErrorIs(t, err, types.ErrUserNotFound)
}
