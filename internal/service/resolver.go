package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coachsync/internal/domain"
	"coachsync/internal/identity"
	"coachsync/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNothingToResolve 原始片段里既没有可用 email 也没有可用 phone
var ErrNothingToResolve = errors.New("no resolvable identity fragments")

// Resolver maps raw attendee identity fragments to a canonical Person,
// creating one when nothing matches, enriching on a single match, and
// recording a ReviewCandidate (with a deterministic default) when email and
// phone point at two different Persons. Pure data-layer operation: no network
// calls, all changes flushed before the person id is returned.
type Resolver struct {
	persons repository.PersonsRepository
	clients repository.ClientsRepository
	review  repository.ReviewRepository
	hasher  *identity.Hasher
	region  string
	logger  *zap.Logger
}

func NewResolver(
	persons repository.PersonsRepository,
	clients repository.ClientsRepository,
	review repository.ReviewRepository,
	hasher *identity.Hasher,
	defaultRegion string,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		persons: persons,
		clients: clients,
		review:  review,
		hasher:  hasher,
		region:  defaultRegion,
		logger:  logger,
	}
}

// ResolveInput raw attendee 片段（attendee 行已由 Attendee Upsert 落库）
type ResolveInput struct {
	CoachID            string
	MeetingID          string // optional, recorded on conflict candidates
	Source             string
	ExternalAttendeeID string
	RawEmail           string
	RawPhone           string
	RawName            string
}

// Resolve returns the canonical person id for the fragments in in.
// Ambiguity is never an error: conflicts are queued for review and a
// deterministic default is returned.
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (string, error) {
	if in.CoachID == "" {
		return "", fmt.Errorf("coach_id is required")
	}

	email := identity.NormalizeEmail(in.RawEmail)
	phone := identity.NormalizePhone(in.RawPhone, r.region)
	if email == "" && phone == "" {
		return "", ErrNothingToResolve
	}

	var emailPerson, phonePerson *domain.Person
	if email != "" {
		p, err := r.persons.FindByEmailHash(ctx, r.hasher.HashEmail(email))
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return "", err
		}
		emailPerson = p
	}
	if phone != "" {
		p, err := r.persons.FindByPhoneHash(ctx, r.hasher.HashPhone(phone))
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return "", err
		}
		phonePerson = p
	}

	var personID string
	switch {
	case emailPerson == nil && phonePerson == nil:
		p, err := r.createPerson(ctx, email, phone)
		if err != nil {
			return "", err
		}
		personID = p.PersonID

	case emailPerson != nil && phonePerson != nil && emailPerson.PersonID != phonePerson.PersonID:
		id, err := r.resolveConflict(ctx, in, email, phone, emailPerson, phonePerson)
		if err != nil {
			return "", err
		}
		personID = id

	default:
		// single match (or both fields hitting the same person)
		matched := emailPerson
		if matched == nil {
			matched = phonePerson
		}
		if err := r.enrich(ctx, matched, email, phone); err != nil {
			return "", err
		}
		personID = matched.PersonID
	}

	// 7. ensure the coach↔person client row exists
	if _, err := r.clients.EnsureClient(ctx, in.CoachID, personID, domain.ClientStatusProspect); err != nil {
		return "", fmt.Errorf("failed to ensure client: %w", err)
	}
	return personID, nil
}

func (r *Resolver) createPerson(ctx context.Context, email, phone string) (*domain.Person, error) {
	p := &domain.Person{
		PersonID:     uuid.NewString(),
		PrimaryEmail: email,
		PrimaryPhone: phone,
		CreatedAt:    time.Now().UTC(),
	}
	if email != "" {
		p.Emails = []string{email}
		p.EmailHashes = [][]byte{r.hasher.HashEmail(email)}
	}
	if phone != "" {
		p.Phones = []string{phone}
		p.PhoneHashes = [][]byte{r.hasher.HashPhone(phone)}
	}
	if err := r.persons.CreatePerson(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create person: %w", err)
	}
	r.logger.Debug("created person",
		zap.String("person_id", p.PersonID),
		zap.Bool("has_email", email != ""),
		zap.Bool("has_phone", phone != ""),
	)
	return p, nil
}

// enrich 把 attendee 上有而 person 上缺的标识补进去
func (r *Resolver) enrich(ctx context.Context, p *domain.Person, email, phone string) error {
	if email != "" && !p.HasEmail(email) {
		if err := r.persons.AddEmail(ctx, p.PersonID, email, r.hasher.HashEmail(email)); err != nil {
			return fmt.Errorf("failed to enrich email: %w", err)
		}
	}
	if phone != "" && !p.HasPhone(phone) {
		if err := r.persons.AddPhone(ctx, p.PersonID, phone, r.hasher.HashPhone(phone)); err != nil {
			return fmt.Errorf("failed to enrich phone: %w", err)
		}
	}
	return nil
}

// resolveConflict email 与 phone 命中了两个不同的 Person。
// Tie-break：只有一方已是该 coach 的 client 时选那一方（既有合作关系比单个
// 字段命中更强）；否则默认选 email 命中方。两种情况都登记 ReviewCandidate
// （幂等），落败方的标识绝不自动并入，只有 operator 批准的 merge 才会合并。
func (r *Resolver) resolveConflict(ctx context.Context, in ResolveInput, email, phone string, emailPerson, phonePerson *domain.Person) (string, error) {
	emailIsClient, err := r.isClient(ctx, in.CoachID, emailPerson.PersonID)
	if err != nil {
		return "", err
	}
	phoneIsClient, err := r.isClient(ctx, in.CoachID, phonePerson.PersonID)
	if err != nil {
		return "", err
	}

	chosen := emailPerson.PersonID // email is the stronger signal when truly ambiguous
	if phoneIsClient && !emailIsClient {
		chosen = phonePerson.PersonID
	}

	if err := r.recordCandidate(ctx, in, email, phone, emailPerson.PersonID, phonePerson.PersonID); err != nil {
		return "", err
	}

	r.logger.Info("identity conflict queued for review",
		zap.String("coach_id", in.CoachID),
		zap.String("email_person_id", emailPerson.PersonID),
		zap.String("phone_person_id", phonePerson.PersonID),
		zap.String("chosen_person_id", chosen),
	)
	return chosen, nil
}

func (r *Resolver) isClient(ctx context.Context, coachID, personID string) (bool, error) {
	_, err := r.clients.GetByCoachPerson(ctx, coachID, personID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Resolver) recordCandidate(ctx context.Context, in ResolveInput, email, phone, personA, personB string) error {
	a, b := domain.SortPair(personA, personB)

	// idempotent: same coach + ordered pair + meeting is recorded once
	if _, err := r.review.FindOpenPair(ctx, in.CoachID, a, b, in.MeetingID); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	c := &domain.ReviewCandidate{
		CandidateID:    uuid.NewString(),
		CoachID:        in.CoachID,
		MeetingID:      in.MeetingID,
		AttendeeSource: in.Source,
		RawEmail:       email,
		RawPhone:       phone,
		RawName:        in.RawName,
		PersonAID:      a,
		PersonBID:      b,
		Reason:         domain.ReasonEmailPhoneConflict,
		Status:         domain.ReviewStatusOpen,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.review.CreateCandidate(ctx, c); err != nil {
		return fmt.Errorf("failed to record review candidate: %w", err)
	}
	return nil
}
