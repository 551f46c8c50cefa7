package service

import (
	"context"
	"testing"

	"coachsync/internal/domain"
	"coachsync/internal/identity"
	"coachsync/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupResolver(t *testing.T) (*repository.MemoryStore, *Resolver) {
	t.Helper()
	store := repository.NewMemoryStore()
	hasher, err := identity.NewHasher("test-hash-key")
	require.NoError(t, err)
	return store, NewResolver(store, store, store, hasher, "US", zap.NewNop())
}

func TestResolve_CreatesPersonAndClient(t *testing.T) {
	store, r := setupResolver(t)
	ctx := context.Background()

	personID, err := r.Resolve(ctx, ResolveInput{
		CoachID:  "coach-1",
		RawEmail: "Ana@Example.com",
		RawPhone: "+1 (212) 555-0101",
	})
	require.NoError(t, err)
	require.NotEmpty(t, personID)

	p, err := store.GetPerson(ctx, personID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ana@example.com"}, p.Emails)
	assert.Equal(t, []string{"+12125550101"}, p.Phones)
	assert.Equal(t, "ana@example.com", p.PrimaryEmail)

	c, err := store.GetByCoachPerson(ctx, "coach-1", personID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClientStatusProspect, c.Status)
}

func TestResolve_IdempotentAcrossCaseVariation(t *testing.T) {
	store, r := setupResolver(t)
	ctx := context.Background()

	first, err := r.Resolve(ctx, ResolveInput{CoachID: "coach-1", RawEmail: "Ana@Example.com"})
	require.NoError(t, err)

	second, err := r.Resolve(ctx, ResolveInput{CoachID: "coach-1", RawEmail: "ana@example.COM "})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, store.AllPersons(), 1)
}

func TestResolve_EnrichesSingleMatch(t *testing.T) {
	store, r := setupResolver(t)
	ctx := context.Background()

	personID, err := r.Resolve(ctx, ResolveInput{CoachID: "coach-1", RawEmail: "ana@example.com"})
	require.NoError(t, err)

	// same email arrives again, now with a phone attached
	again, err := r.Resolve(ctx, ResolveInput{
		CoachID:  "coach-1",
		RawEmail: "ana@example.com",
		RawPhone: "212-555-0101",
	})
	require.NoError(t, err)
	assert.Equal(t, personID, again)

	p, err := store.GetPerson(ctx, personID)
	require.NoError(t, err)
	assert.Equal(t, []string{"+12125550101"}, p.Phones)

	// the phone now resolves on its own
	byPhone, err := r.Resolve(ctx, ResolveInput{CoachID: "coach-1", RawPhone: "+12125550101"})
	require.NoError(t, err)
	assert.Equal(t, personID, byPhone)
}

func TestResolve_NothingToResolve(t *testing.T) {
	_, r := setupResolver(t)

	_, err := r.Resolve(context.Background(), ResolveInput{CoachID: "coach-1", RawName: "Ana"})
	assert.ErrorIs(t, err, ErrNothingToResolve)

	// an invalid phone degrades to absent, so name+bad-phone is also unresolvable
	_, err = r.Resolve(context.Background(), ResolveInput{CoachID: "coach-1", RawName: "Ana", RawPhone: "not a phone"})
	assert.ErrorIs(t, err, ErrNothingToResolve)
}

func TestResolve_ConflictDefaultsToEmailAndQueuesOnce(t *testing.T) {
	store, r := setupResolver(t)
	ctx := context.Background()

	emailPerson, err := r.Resolve(ctx, ResolveInput{CoachID: "coach-1", RawEmail: "ana@example.com"})
	require.NoError(t, err)
	phonePerson, err := r.Resolve(ctx, ResolveInput{CoachID: "coach-1", RawPhone: "+12125550101"})
	require.NoError(t, err)
	require.NotEqual(t, emailPerson, phonePerson)

	// both are clients of the coach, so the tie-break falls to the email side
	in := ResolveInput{
		CoachID:   "coach-1",
		MeetingID: "m-1",
		RawEmail:  "ana@example.com",
		RawPhone:  "+12125550101",
	}
	chosen, err := r.Resolve(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, emailPerson, chosen)

	open, err := store.ListOpen(ctx, "coach-1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	a, b := domain.SortPair(emailPerson, phonePerson)
	assert.Equal(t, a, open[0].PersonAID)
	assert.Equal(t, b, open[0].PersonBID)
	assert.Equal(t, domain.ReasonEmailPhoneConflict, open[0].Reason)

	// replaying the same fragments neither flips the default nor duplicates
	// the candidate
	chosenAgain, err := r.Resolve(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, chosen, chosenAgain)
	open, err = store.ListOpen(ctx, "coach-1")
	require.NoError(t, err)
	assert.Len(t, open, 1)

	// losing side keeps its identifiers: no auto-merge happened
	pe, err := store.GetPerson(ctx, emailPerson)
	require.NoError(t, err)
	assert.Empty(t, pe.Phones)
}

func TestResolve_ConflictNeitherIsClientDefaultsToEmail(t *testing.T) {
	store, r := setupResolver(t)
	ctx := context.Background()
	hasher, err := identity.NewHasher("test-hash-key")
	require.NoError(t, err)

	// both persons exist with no client rows at all
	require.NoError(t, store.CreatePerson(ctx, &domain.Person{
		PersonID:     "p-email",
		PrimaryEmail: "ana@example.com",
		Emails:       []string{"ana@example.com"},
		EmailHashes:  [][]byte{hasher.HashEmail("ana@example.com")},
	}))
	require.NoError(t, store.CreatePerson(ctx, &domain.Person{
		PersonID:     "p-phone",
		PrimaryPhone: "+12125550101",
		Phones:       []string{"+12125550101"},
		PhoneHashes:  [][]byte{hasher.HashPhone("+12125550101")},
	}))

	chosen, err := r.Resolve(ctx, ResolveInput{
		CoachID:   "coach-1",
		MeetingID: "m-1",
		RawEmail:  "ana@example.com",
		RawPhone:  "+12125550101",
	})
	require.NoError(t, err)
	assert.Equal(t, "p-email", chosen)

	open, err := store.ListOpen(ctx, "coach-1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.ReasonEmailPhoneConflict, open[0].Reason)
}

func TestResolve_ConflictPrefersExistingClient(t *testing.T) {
	store, r := setupResolver(t)
	ctx := context.Background()

	// email person known only to coach-1, phone person is coach-2's client
	emailPerson, err := r.Resolve(ctx, ResolveInput{CoachID: "coach-1", RawEmail: "ana@example.com"})
	require.NoError(t, err)
	phonePerson, err := r.Resolve(ctx, ResolveInput{CoachID: "coach-2", RawPhone: "+12125550101"})
	require.NoError(t, err)

	chosen, err := r.Resolve(ctx, ResolveInput{
		CoachID:  "coach-2",
		RawEmail: "ana@example.com",
		RawPhone: "+12125550101",
	})
	require.NoError(t, err)
	assert.Equal(t, phonePerson, chosen)
	assert.NotEqual(t, emailPerson, chosen)

	// the ambiguity is still queued for coach-2
	open, err := store.ListOpen(ctx, "coach-2")
	require.NoError(t, err)
	assert.Len(t, open, 1)
}
