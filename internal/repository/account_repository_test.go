package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataarchlabs/lab-portal/internal/database"
	"github.com/dataarchlabs/lab-portal/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))
	return db
}

func strPtr(s string) *string { return &s }

func TestAccountRepo_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepo(setupTestDB(t))

	created, err := repo.Create(ctx, NewAccount{
		Email:       "  Ada@Example.COM ",
		ExternalID:  "g-1",
		DisplayName: "Ada",
		AvatarURL:   "https://img/ada.png",
		Role:        model.RoleMember,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "ada@example.com", created.Email)
	assert.True(t, created.IsActive)

	t.Run("by id", func(t *testing.T) {
		got, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Email, got.Email)
		assert.Equal(t, "g-1", got.ExternalID)
		assert.Equal(t, "https://img/ada.png", got.AvatarURL)
		assert.Equal(t, model.RoleMember, got.Role)
		assert.True(t, got.IsActive)
	})

	t.Run("by external id", func(t *testing.T) {
		got, err := repo.FindByExternalID(ctx, "g-1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("by email is case insensitive", func(t *testing.T) {
		got, err := repo.FindByEmail(ctx, "ADA@example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
	})
}

func TestAccountRepo_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepo(setupTestDB(t))

	_, err := repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = repo.FindByExternalID(ctx, "")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = repo.Update(ctx, "missing", AccountUpdate{AvatarURL: strPtr("x")})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountRepo_CreateDefaultsInvalidRole(t *testing.T) {
	repo := NewAccountRepo(setupTestDB(t))
	acct, err := repo.Create(context.Background(), NewAccount{Email: "x@example.com", Role: "root"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, acct.Role)
}

func TestAccountRepo_Duplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepo(setupTestDB(t))

	_, err := repo.Create(ctx, NewAccount{Email: "a@x.com", ExternalID: "g1"})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   NewAccount
	}{
		{"same email", NewAccount{Email: "A@X.com", ExternalID: "g2"}},
		{"same external id", NewAccount{Email: "b@x.com", ExternalID: "g1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Create(ctx, tt.in)
			assert.ErrorIs(t, err, ErrDuplicateAccount)
		})
	}

	t.Run("accounts without external id do not collide", func(t *testing.T) {
		_, err := repo.Create(ctx, NewAccount{Email: "c@x.com"})
		require.NoError(t, err)
		_, err = repo.Create(ctx, NewAccount{Email: "d@x.com"})
		require.NoError(t, err)
	})

	t.Run("linking a taken external id", func(t *testing.T) {
		other, err := repo.FindByEmail(ctx, "c@x.com")
		require.NoError(t, err)
		_, err = repo.Update(ctx, other.ID, AccountUpdate{ExternalID: strPtr("g1")})
		assert.ErrorIs(t, err, ErrDuplicateAccount)
	})
}

func TestAccountRepo_Update(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepo(setupTestDB(t))

	acct, err := repo.Create(ctx, NewAccount{Email: "a@x.com", DisplayName: "A", Role: model.RoleAdmin})
	require.NoError(t, err)

	updated, err := repo.Update(ctx, acct.ID, AccountUpdate{
		ExternalID: strPtr("g1"),
		AvatarURL:  strPtr("https://img/a.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, acct.ID, updated.ID)
	assert.Equal(t, "g1", updated.ExternalID)
	assert.Equal(t, "https://img/a.png", updated.AvatarURL)
	assert.Equal(t, "A", updated.DisplayName)
	assert.Equal(t, model.RoleAdmin, updated.Role)
	assert.Equal(t, "a@x.com", updated.Email)

	same, err := repo.Update(ctx, acct.ID, AccountUpdate{})
	require.NoError(t, err)
	assert.Equal(t, updated.ExternalID, same.ExternalID)
}

func TestAccountRepo_LinkExternalID(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepo(setupTestDB(t))

	acct, err := repo.Create(ctx, NewAccount{Email: "a@x.com", DisplayName: "A"})
	require.NoError(t, err)

	linked, err := repo.LinkExternalID(ctx, acct.ID, "g1", "https://img/a.png")
	require.NoError(t, err)
	assert.Equal(t, "g1", linked.ExternalID)
	assert.Equal(t, "https://img/a.png", linked.AvatarURL)

	t.Run("already linked account is not relinked", func(t *testing.T) {
		_, err := repo.LinkExternalID(ctx, acct.ID, "g2", "")
		assert.ErrorIs(t, err, ErrDuplicateAccount)

		stored, err := repo.FindByID(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, "g1", stored.ExternalID)
	})

	t.Run("external id owned by another account", func(t *testing.T) {
		other, err := repo.Create(ctx, NewAccount{Email: "b@x.com"})
		require.NoError(t, err)
		_, err = repo.LinkExternalID(ctx, other.ID, "g1", "")
		assert.ErrorIs(t, err, ErrDuplicateAccount)
	})

	t.Run("missing account", func(t *testing.T) {
		_, err := repo.LinkExternalID(ctx, "missing", "g3", "")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}
