package identity

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataarchlabs/lab-portal/internal/database"
	"github.com/dataarchlabs/lab-portal/internal/model"
	"github.com/dataarchlabs/lab-portal/internal/repository"
)

func setupStore(t *testing.T) (*repository.AccountRepo, *sql.DB) {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))
	return repository.NewAccountRepo(db), db
}

func countAccounts(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM accounts").Scan(&n))
	return n
}

func profile(externalID string, emails ...string) *model.ExternalProfile {
	return &model.ExternalProfile{Provider: "google", ExternalID: externalID, Emails: emails}
}

type recordedEvent struct {
	accountID string
	outcome   Outcome
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) AccountResolved(_ context.Context, acct *model.Account, _ string, outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{acct.ID, outcome})
}

func TestResolve_NewAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("member by default", func(t *testing.T) {
		store, db := setupStore(t)
		r := NewResolver(store, WithAdminEmails("boss@x.com"))

		p := profile("g1", "A@X.com")
		p.DisplayName = "A"
		acct, err := r.Resolve(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, model.RoleMember, acct.Role)
		assert.Equal(t, "a@x.com", acct.Email)
		assert.Equal(t, "g1", acct.ExternalID)
		assert.Equal(t, "A", acct.DisplayName)
		assert.Equal(t, 1, countAccounts(t, db))
	})

	t.Run("admin when allow-listed", func(t *testing.T) {
		store, _ := setupStore(t)
		r := NewResolver(store, WithAdminEmails(" Boss@X.com "))

		acct, err := r.Resolve(ctx, profile("g9", "boss@x.com"))
		require.NoError(t, err)
		assert.Equal(t, model.RoleAdmin, acct.Role)
	})

	t.Run("display name falls back to local part", func(t *testing.T) {
		store, _ := setupStore(t)
		acct, err := NewResolver(store).Resolve(ctx, profile("g2", "", "jane.doe@x.com"))
		require.NoError(t, err)
		assert.Equal(t, "jane.doe", acct.DisplayName)
		assert.Equal(t, "jane.doe@x.com", acct.Email)
	})
}

func TestResolve_ExistingByExternalID(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)

	seeded, err := store.Create(ctx, repository.NewAccount{
		Email: "a@x.com", ExternalID: "g1", DisplayName: "A", AvatarURL: "old.png", Role: model.RoleAdmin,
	})
	require.NoError(t, err)

	// the allow-list no longer contains the email; role must survive
	r := NewResolver(store)
	p := profile("g1", "other@x.com")
	p.AvatarURLs = []string{"new.png"}

	acct, err := r.Resolve(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, acct.ID)
	assert.Equal(t, model.RoleAdmin, acct.Role)
	assert.Equal(t, "a@x.com", acct.Email)
	assert.Equal(t, "new.png", acct.AvatarURL)
	assert.Equal(t, 1, countAccounts(t, db))
}

func TestResolve_LinksByEmail(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)

	seeded, err := store.Create(ctx, repository.NewAccount{Email: "a@x.com", DisplayName: "A"})
	require.NoError(t, err)

	p := profile("g1", "A@x.com")
	p.AvatarURLs = []string{"", "pic.png"}
	acct, err := NewResolver(store).Resolve(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, acct.ID)
	assert.Equal(t, "g1", acct.ExternalID)
	assert.Equal(t, "pic.png", acct.AvatarURL)
	assert.Equal(t, model.RoleMember, acct.Role)
	assert.Equal(t, 1, countAccounts(t, db))
}

func TestResolve_Scenario(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)
	rec := &recorder{}
	r := NewResolver(store, WithEvents(rec))

	first := profile("g1", "a@x.com")
	first.DisplayName = "A"

	a1, err := r.Resolve(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, a1.Role)

	a2, err := r.Resolve(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, a1.ID, a2.ID)
	assert.Equal(t, 1, countAccounts(t, db))

	// a second provider subject for the same email is rejected
	_, err = r.Resolve(ctx, profile("g2", "a@x.com"))
	require.Error(t, err)
	assert.True(t, IsIdentityError(err))
	assert.ErrorIs(t, err, ErrProviderConflict)

	stored, err := store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "g1", stored.ExternalID)
	assert.Equal(t, 1, countAccounts(t, db))

	require.Len(t, rec.events, 2)
	assert.Equal(t, OutcomeCreated, rec.events[0].outcome)
	assert.Equal(t, OutcomeReturning, rec.events[1].outcome)
}

func TestResolve_IdentityErrors(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)
	r := NewResolver(store)

	tests := []struct {
		name    string
		profile *model.ExternalProfile
		reason  error
	}{
		{"nil profile", nil, ErrMissingExternalID},
		{"no emails", profile("g1"), ErrMissingEmail},
		{"blank emails", profile("g1", " ", ""), ErrMissingEmail},
		{"no external id", profile(" ", "a@x.com"), ErrMissingExternalID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.profile)
			require.Error(t, err)
			assert.True(t, IsIdentityError(err))
			assert.ErrorIs(t, err, tt.reason)
		})
	}
	assert.Equal(t, 0, countAccounts(t, db))
}

func TestResolve_DisabledAccount(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)

	acct, err := store.Create(ctx, repository.NewAccount{Email: "a@x.com", ExternalID: "g1"})
	require.NoError(t, err)
	_, err = db.Exec("UPDATE accounts SET is_active = 0 WHERE id = ?", acct.ID)
	require.NoError(t, err)

	_, err = NewResolver(store).Resolve(ctx, profile("g1", "a@x.com"))
	assert.ErrorIs(t, err, ErrAccountDisabled)

	t.Run("not linked while disabled", func(t *testing.T) {
		other, err := store.Create(ctx, repository.NewAccount{Email: "b@x.com"})
		require.NoError(t, err)
		_, err = db.Exec("UPDATE accounts SET is_active = 0 WHERE id = ?", other.ID)
		require.NoError(t, err)

		_, err = NewResolver(store).Resolve(ctx, profile("g2", "b@x.com"))
		assert.ErrorIs(t, err, ErrAccountDisabled)

		stored, err := store.FindByEmail(ctx, "b@x.com")
		require.NoError(t, err)
		assert.Empty(t, stored.ExternalID)
	})
}

// racingStore lets a competing login win the insert right before the
// resolver's own Create runs.
type racingStore struct {
	*repository.AccountRepo
	once sync.Once
}

func (s *racingStore) Create(ctx context.Context, in repository.NewAccount) (*model.Account, error) {
	s.once.Do(func() {
		_, _ = s.AccountRepo.Create(ctx, in)
	})
	return s.AccountRepo.Create(ctx, in)
}

func TestResolve_RetriesLostRace(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)
	rec := &recorder{}

	acct, err := NewResolver(&racingStore{AccountRepo: store}, WithEvents(rec)).Resolve(ctx, profile("g1", "a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, "g1", acct.ExternalID)
	assert.Equal(t, 1, countAccounts(t, db))
	require.Len(t, rec.events, 1)
	assert.Equal(t, OutcomeReturning, rec.events[0].outcome)
}

type alwaysDuplicate struct{ *repository.AccountRepo }

func (alwaysDuplicate) Create(context.Context, repository.NewAccount) (*model.Account, error) {
	return nil, repository.ErrDuplicateAccount
}

func TestResolve_GivesUpAfterMaxAttempts(t *testing.T) {
	store, _ := setupStore(t)
	_, err := NewResolver(alwaysDuplicate{store}, WithMaxAttempts(2)).Resolve(context.Background(), profile("g1", "a@x.com"))
	require.Error(t, err)
	assert.False(t, IsIdentityError(err))
	assert.True(t, errors.Is(err, repository.ErrDuplicateAccount))
}

func TestResolve_ConcurrentFirstLogin(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)
	r := NewResolver(store)

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acct, err := r.Resolve(ctx, profile("g1", "race@x.com"))
			errs[i] = err
			if err == nil {
				ids[i] = acct.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, countAccounts(t, db))
}

// lookupBarrier holds the first two email lookups until both have read the
// account, so both logins see it unlinked before either writes.
type lookupBarrier struct {
	*repository.AccountRepo
	arrived sync.WaitGroup
	calls   atomic.Int32
}

func newLookupBarrier(repo *repository.AccountRepo) *lookupBarrier {
	s := &lookupBarrier{AccountRepo: repo}
	s.arrived.Add(2)
	return s
}

func (s *lookupBarrier) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	acct, err := s.AccountRepo.FindByEmail(ctx, email)
	if s.calls.Add(1) <= 2 {
		s.arrived.Done()
		s.arrived.Wait()
	}
	return acct, err
}

func TestResolve_ConcurrentLinkFirstWins(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)

	seeded, err := store.Create(ctx, repository.NewAccount{Email: "a@x.com", DisplayName: "A"})
	require.NoError(t, err)

	r := NewResolver(newLookupBarrier(store))
	subjects := []string{"g1", "g2"}
	accts := make([]*model.Account, len(subjects))
	errs := make([]error, len(subjects))
	var wg sync.WaitGroup
	for i, sub := range subjects {
		wg.Add(1)
		go func(i int, sub string) {
			defer wg.Done()
			accts[i], errs[i] = r.Resolve(ctx, profile(sub, "a@x.com"))
		}(i, sub)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "both subjects were linked")
			winner = i
			continue
		}
		assert.True(t, IsIdentityError(err))
		assert.ErrorIs(t, err, ErrProviderConflict)
	}
	require.NotEqual(t, -1, winner, "no subject was linked")
	assert.Equal(t, seeded.ID, accts[winner].ID)

	stored, err := store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, subjects[winner], stored.ExternalID)
	assert.Equal(t, 1, countAccounts(t, db))

	// the winning subject keeps its access
	again, err := NewResolver(store).Resolve(ctx, profile(subjects[winner], "a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, again.ID)
}
