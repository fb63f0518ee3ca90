package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dataarchlabs/lab-portal/internal/model"
)

const accountColumns = "id, email, external_id, display_name, avatar_url, role, is_active, created_at, updated_at"

// NewAccount carries the fields needed to create an account. The ID and
// timestamps are assigned by the repository.
type NewAccount struct {
	Email       string
	ExternalID  string
	DisplayName string
	AvatarURL   string
	Role        model.Role
}

// AccountUpdate lists the mutable fields. Nil pointers are left untouched.
type AccountUpdate struct {
	ExternalID  *string
	DisplayName *string
	AvatarURL   *string
}

func (u AccountUpdate) empty() bool {
	return u.ExternalID == nil && u.DisplayName == nil && u.AvatarURL == nil
}

// AccountRepo persists accounts in the `accounts` table. Queries only use
// `?` placeholders so the same statements run on MySQL and SQLite.
type AccountRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// FindByID fetches an account by its identifier.
func (r *AccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByExternalID fetches the account linked to a provider subject.
func (r *AccountRepo) FindByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	if externalID == "" {
		return nil, ErrAccountNotFound
	}
	return r.findOne(ctx, "external_id = ?", externalID)
}

// FindByEmail fetches an account by normalized email.
func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, ErrAccountNotFound
	}
	return r.findOne(ctx, "email = ?", email)
}

// Create inserts a new account and returns it. A unique email or external id
// collision yields ErrDuplicateAccount.
func (r *AccountRepo) Create(ctx context.Context, in NewAccount) (*model.Account, error) {
	email := model.NormalizeEmail(in.Email)
	if email == "" {
		return nil, errors.New("create account: email is required")
	}
	role := in.Role
	if !role.Valid() {
		role = model.RoleMember
	}
	now := r.now()
	acct := &model.Account{
		ID:          uuid.NewString(),
		Email:       email,
		ExternalID:  in.ExternalID,
		DisplayName: in.DisplayName,
		AvatarURL:   in.AvatarURL,
		Role:        role,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	const q = "INSERT INTO accounts (" + accountColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := r.db.ExecContext(ctx, q,
		acct.ID, acct.Email, nullString(acct.ExternalID), acct.DisplayName,
		nullString(acct.AvatarURL), string(acct.Role), acct.IsActive, acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return acct, nil
}

// Update applies the non-nil fields of u to the account and returns the
// fresh row. ErrAccountNotFound is returned when no row matches id.
func (r *AccountRepo) Update(ctx context.Context, id string, u AccountUpdate) (*model.Account, error) {
	if u.empty() {
		return r.FindByID(ctx, id)
	}
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if u.ExternalID != nil {
		sets = append(sets, "external_id = ?")
		args = append(args, nullString(*u.ExternalID))
	}
	if u.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, *u.DisplayName)
	}
	if u.AvatarURL != nil {
		sets = append(sets, "avatar_url = ?")
		args = append(args, nullString(*u.AvatarURL))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.now(), id)

	q := "UPDATE accounts SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("update account: %w", err)
	}
	// MySQL reports 0 affected rows when values are unchanged, so a miss is
	// detected by the follow-up read rather than RowsAffected.
	return r.FindByID(ctx, id)
}

// LinkExternalID attaches externalID to an account that has none yet, and
// sets avatarURL when it is non-empty. The write only matches an unlinked
// row, so when two logins race to link one account the later one gets
// ErrDuplicateAccount instead of overwriting the first link.
func (r *AccountRepo) LinkExternalID(ctx context.Context, id, externalID, avatarURL string) (*model.Account, error) {
	if externalID == "" {
		return nil, fmt.Errorf("link account: empty external id")
	}
	q := "UPDATE accounts SET external_id = ?, updated_at = ? WHERE id = ? AND external_id IS NULL"
	args := []any{externalID, r.now(), id}
	if avatarURL != "" {
		q = "UPDATE accounts SET external_id = ?, avatar_url = ?, updated_at = ? WHERE id = ? AND external_id IS NULL"
		args = []any{externalID, avatarURL, r.now(), id}
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("link account: %w", err)
	}
	// external_id goes from NULL to a value, so a match always counts
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("link account: %w", err)
	}
	if n == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrDuplicateAccount
	}
	return r.FindByID(ctx, id)
}

func (r *AccountRepo) findOne(ctx context.Context, where string, arg any) (*model.Account, error) {
	q := "SELECT " + accountColumns + " FROM accounts WHERE " + where + " LIMIT 1"
	var (
		a          model.Account
		externalID sql.NullString
		avatarURL  sql.NullString
		role       string
	)
	err := r.db.QueryRowContext(ctx, q, arg).Scan(
		&a.ID, &a.Email, &externalID, &a.DisplayName, &avatarURL,
		&role, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	a.ExternalID = externalID.String
	a.AvatarURL = avatarURL.String
	a.Role = model.Role(role)
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
