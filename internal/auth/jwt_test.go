package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosthub/wifi-portal/internal/config"
	"github.com/kosthub/wifi-portal/internal/models"
	"github.com/kosthub/wifi-portal/internal/storage"
)

func newTestManager(t *testing.T) (*JWTManager, *models.User, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()

	user := &models.User{
		Email:    "admin@example.com",
		Username: "admin",
		Roles:    []string{"admin"},
		IsAdmin:  true,
		IsActive: true,
	}
	require.NoError(t, store.CreateUser(context.Background(), user))

	cfg := &config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	return NewJWTManager(cfg, store), user, store
}

func TestGenerateAndValidateToken(t *testing.T) {
	manager, user, _ := newTestManager(t)

	access, refresh, err := manager.GenerateTokenPair(user)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	claims, err := manager.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.True(t, claims.IsAdmin)
	assert.Contains(t, claims.Roles, "admin")
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	manager, user, _ := newTestManager(t)

	access, _, err := manager.GenerateTokenPair(user)
	require.NoError(t, err)

	_, err = manager.ValidateToken(access + "x")
	assert.Error(t, err)

	_, err = manager.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	manager, user, store := newTestManager(t)

	access, _, err := manager.GenerateTokenPair(user)
	require.NoError(t, err)

	other := NewJWTManager(&config.JWTConfig{
		Secret:          "different-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}, store)

	_, err = other.ValidateToken(access)
	assert.Error(t, err)
}

func TestRefreshToken(t *testing.T) {
	manager, user, _ := newTestManager(t)

	_, refresh, err := manager.GenerateTokenPair(user)
	require.NoError(t, err)

	access, newRefresh, err := manager.RefreshToken(context.Background(), refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, newRefresh)

	claims, err := manager.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestRefreshRejectsDisabledUser(t *testing.T) {
	manager, user, store := newTestManager(t)

	_, refresh, err := manager.GenerateTokenPair(user)
	require.NoError(t, err)

	user.IsActive = false
	require.NoError(t, store.UpdateUser(context.Background(), user))

	_, _, err = manager.RefreshToken(context.Background(), refresh)
	assert.Error(t, err)
}

func TestRefreshRejectsDeletedUser(t *testing.T) {
	manager, user, store := newTestManager(t)

	_, refresh, err := manager.GenerateTokenPair(user)
	require.NoError(t, err)

	require.NoError(t, store.DeleteUser(context.Background(), user.ID))

	_, _, err = manager.RefreshToken(context.Background(), refresh)
	assert.Error(t, err)
}
