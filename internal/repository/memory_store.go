package repository

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"coachsync/internal/domain"

	"github.com/google/uuid"
)

// MemoryStore backs the service when DB is disabled (dev/联测) and the
// service-level tests. One struct implements every repository interface so
// cross-entity operations (person merge, meeting merge) stay atomic under a
// single mutex.
type MemoryStore struct {
	mu         sync.RWMutex
	persons    map[string]*domain.Person
	clients    map[string]*domain.Client
	meetings   map[string]*domain.Meeting
	attendees  map[string]*domain.MeetingAttendee
	candidates map[string]*domain.ReviewCandidate
	statusLog  []domain.ClientStatusChange
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		persons:    map[string]*domain.Person{},
		clients:    map[string]*domain.Client{},
		meetings:   map[string]*domain.Meeting{},
		attendees:  map[string]*domain.MeetingAttendee{},
		candidates: map[string]*domain.ReviewCandidate{},
	}
}

var (
	_ PersonsRepository   = (*MemoryStore)(nil)
	_ ClientsRepository   = (*MemoryStore)(nil)
	_ MeetingsRepository  = (*MemoryStore)(nil)
	_ AttendeesRepository = (*MemoryStore)(nil)
	_ ReviewRepository    = (*MemoryStore)(nil)
)

func copyPerson(p *domain.Person) *domain.Person {
	cp := *p
	cp.Emails = append([]string(nil), p.Emails...)
	cp.Phones = append([]string(nil), p.Phones...)
	cp.EmailHashes = append([][]byte(nil), p.EmailHashes...)
	cp.PhoneHashes = append([][]byte(nil), p.PhoneHashes...)
	return &cp
}

func copyMeeting(m *domain.Meeting) *domain.Meeting {
	cm := *m
	cm.ExternalRefs = map[string]string{}
	for k, v := range m.ExternalRefs {
		cm.ExternalRefs[k] = v
	}
	return &cm
}

// ============================================
// PersonsRepository
// ============================================

func (s *MemoryStore) GetPerson(_ context.Context, personID string) (*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[personID]
	if !ok {
		return nil, fmt.Errorf("person %s: %w", personID, ErrNotFound)
	}
	return copyPerson(p), nil
}

func (s *MemoryStore) FindByEmailHash(_ context.Context, hash []byte) (*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.persons {
		for _, h := range p.EmailHashes {
			if bytes.Equal(h, hash) {
				return copyPerson(p), nil
			}
		}
	}
	return nil, fmt.Errorf("person by email_hash: %w", ErrNotFound)
}

func (s *MemoryStore) FindByPhoneHash(_ context.Context, hash []byte) (*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.persons {
		for _, h := range p.PhoneHashes {
			if bytes.Equal(h, hash) {
				return copyPerson(p), nil
			}
		}
	}
	return nil, fmt.Errorf("person by phone_hash: %w", ErrNotFound)
}

func (s *MemoryStore) CreatePerson(_ context.Context, p *domain.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.PersonID == "" {
		return fmt.Errorf("person_id is required")
	}
	if _, exists := s.persons[p.PersonID]; exists {
		return fmt.Errorf("person %s already exists", p.PersonID)
	}
	s.persons[p.PersonID] = copyPerson(p)
	return nil
}

func (s *MemoryStore) AddEmail(_ context.Context, personID, email string, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[personID]
	if !ok {
		return fmt.Errorf("person %s: %w", personID, ErrNotFound)
	}
	if p.HasEmail(email) {
		return nil
	}
	p.Emails = append(p.Emails, email)
	p.EmailHashes = append(p.EmailHashes, hash)
	if p.PrimaryEmail == "" {
		p.PrimaryEmail = email
	}
	return nil
}

func (s *MemoryStore) AddPhone(_ context.Context, personID, phone string, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[personID]
	if !ok {
		return fmt.Errorf("person %s: %w", personID, ErrNotFound)
	}
	if p.HasPhone(phone) {
		return nil
	}
	p.Phones = append(p.Phones, phone)
	p.PhoneHashes = append(p.PhoneHashes, hash)
	if p.PrimaryPhone == "" {
		p.PrimaryPhone = phone
	}
	return nil
}

func (s *MemoryStore) MergePersons(_ context.Context, survivorID, mergeeID string) (*domain.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if survivorID == mergeeID {
		p, ok := s.persons[survivorID]
		if !ok {
			return nil, fmt.Errorf("person %s: %w", survivorID, ErrNotFound)
		}
		return copyPerson(p), nil
	}

	survivor, ok := s.persons[survivorID]
	if !ok {
		return nil, fmt.Errorf("merge persons %s <- %s: %w", survivorID, mergeeID, ErrNotFound)
	}
	mergee, ok := s.persons[mergeeID]
	if !ok {
		return nil, fmt.Errorf("merge persons %s <- %s: %w", survivorID, mergeeID, ErrNotFound)
	}

	// 1. identifier union (survivor casing wins on collision)
	for i, email := range mergee.Emails {
		if !survivor.HasEmail(email) {
			survivor.Emails = append(survivor.Emails, email)
			survivor.EmailHashes = append(survivor.EmailHashes, mergee.EmailHashes[i])
		}
	}
	for i, phone := range mergee.Phones {
		if !survivor.HasPhone(phone) {
			survivor.Phones = append(survivor.Phones, phone)
			survivor.PhoneHashes = append(survivor.PhoneHashes, mergee.PhoneHashes[i])
		}
	}

	// 2. primary backfill
	if survivor.PrimaryEmail == "" {
		survivor.PrimaryEmail = mergee.PrimaryEmail
	}
	if survivor.PrimaryPhone == "" {
		survivor.PrimaryPhone = mergee.PrimaryPhone
	}

	// 3. reassign attendees
	for _, a := range s.attendees {
		if a.PersonID == mergeeID {
			a.PersonID = survivorID
		}
	}

	// 4. idempotent client copy, then drop mergee's rows
	for id, c := range s.clients {
		if c.PersonID != mergeeID {
			continue
		}
		if s.findClientLocked(c.CoachID, survivorID) == nil {
			nc := &domain.Client{
				ClientID:    uuid.NewString(),
				CoachID:     c.CoachID,
				PersonID:    survivorID,
				Status:      c.Status,
				FirstSeenAt: c.FirstSeenAt,
			}
			s.clients[nc.ClientID] = nc
		}
		delete(s.clients, id)
	}

	// 5. substitute review pairs; equal pairs are resolved by the merge itself
	for _, c := range s.candidates {
		changed := false
		if c.PersonAID == mergeeID {
			c.PersonAID = survivorID
			changed = true
		}
		if c.PersonBID == mergeeID {
			c.PersonBID = survivorID
			changed = true
		}
		if !changed {
			continue
		}
		if c.PersonAID == c.PersonBID {
			if c.Status == domain.ReviewStatusOpen {
				c.Status = domain.ReviewStatusResolved
				c.ResolvedPersonID = survivorID
			}
		} else {
			c.PersonAID, c.PersonBID = domain.SortPair(c.PersonAID, c.PersonBID)
		}
	}

	// 6. hard-delete mergee
	delete(s.persons, mergeeID)

	return copyPerson(survivor), nil
}

// ============================================
// ClientsRepository
// ============================================

func (s *MemoryStore) findClientLocked(coachID, personID string) *domain.Client {
	for _, c := range s.clients {
		if c.CoachID == coachID && c.PersonID == personID {
			return c
		}
	}
	return nil
}

func (s *MemoryStore) EnsureClient(_ context.Context, coachID, personID, status string) (*domain.Client, error) {
	if coachID == "" || personID == "" {
		return nil, fmt.Errorf("coach_id and person_id are required")
	}
	if status == "" {
		status = domain.ClientStatusProspect
	}
	if !domain.ValidClientStatus(status) {
		return nil, fmt.Errorf("invalid client status: %s", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.findClientLocked(coachID, personID); existing != nil {
		cp := *existing
		return &cp, nil
	}
	c := &domain.Client{
		ClientID:    uuid.NewString(),
		CoachID:     coachID,
		PersonID:    personID,
		Status:      status,
		FirstSeenAt: time.Now().UTC(),
	}
	s.clients[c.ClientID] = c
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetByCoachPerson(_ context.Context, coachID, personID string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c := s.findClientLocked(coachID, personID); c != nil {
		cp := *c
		return &cp, nil
	}
	return nil, fmt.Errorf("client for coach %s person %s: %w", coachID, personID, ErrNotFound)
}

func (s *MemoryStore) UpdateStatus(_ context.Context, coachID, clientID, status string) (*domain.Client, error) {
	if !domain.ValidClientStatus(status) {
		return nil, fmt.Errorf("invalid client status: %s", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok || c.CoachID != coachID {
		return nil, fmt.Errorf("client %s: %w", clientID, ErrNotFound)
	}
	if c.Status != status {
		s.statusLog = append(s.statusLog, domain.ClientStatusChange{
			LogID:     uuid.NewString(),
			ClientID:  clientID,
			OldStatus: c.Status,
			NewStatus: status,
			ChangedAt: time.Now().UTC(),
		})
		c.Status = status
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListByCoach(_ context.Context, coachID string) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var clients []domain.Client
	for _, c := range s.clients {
		if c.CoachID == coachID {
			clients = append(clients, *c)
		}
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].FirstSeenAt.Before(clients[j].FirstSeenAt)
	})
	return clients, nil
}

// StatusLog returns the recorded status changes (test hook).
func (s *MemoryStore) StatusLog() []domain.ClientStatusChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ClientStatusChange(nil), s.statusLog...)
}

// ============================================
// MeetingsRepository
// ============================================

func (s *MemoryStore) GetMeeting(_ context.Context, meetingID string) (*domain.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[meetingID]
	if !ok {
		return nil, fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
	}
	return copyMeeting(m), nil
}

func (s *MemoryStore) FindByICalUID(_ context.Context, icalUID string) (*domain.Meeting, error) {
	if icalUID == "" {
		return nil, fmt.Errorf("ical_uid is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.meetings {
		if m.ICalUID == icalUID {
			return copyMeeting(m), nil
		}
	}
	return nil, fmt.Errorf("meeting by ical_uid: %w", ErrNotFound)
}

func (s *MemoryStore) CreateMeeting(_ context.Context, m *domain.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.MeetingID == "" {
		return fmt.Errorf("meeting_id is required")
	}
	if m.Status == "" {
		m.Status = "scheduled"
	}
	if m.ExternalRefs == nil {
		m.ExternalRefs = map[string]string{}
	}
	if m.ICalUID != "" {
		for _, other := range s.meetings {
			if other.MeetingID != m.MeetingID && other.ICalUID == m.ICalUID {
				return fmt.Errorf("meeting ical_uid %s: %w", m.ICalUID, ErrConflict)
			}
		}
	}
	s.meetings[m.MeetingID] = copyMeeting(m)
	return nil
}

func (s *MemoryStore) UpdateMeeting(_ context.Context, m *domain.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[m.MeetingID]; !ok {
		return fmt.Errorf("meeting %s: %w", m.MeetingID, ErrNotFound)
	}
	s.meetings[m.MeetingID] = copyMeeting(m)
	return nil
}

func (s *MemoryStore) ListWindow(_ context.Context, since, until time.Time, coachID string) ([]domain.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var meetings []domain.Meeting
	for _, m := range s.meetings {
		if m.StartedAt == nil {
			continue
		}
		if m.StartedAt.Before(since) || !m.StartedAt.Before(until) {
			continue
		}
		if coachID != "" && m.CoachID != coachID {
			continue
		}
		meetings = append(meetings, *copyMeeting(m))
	}
	sort.Slice(meetings, func(i, j int) bool {
		if meetings[i].StartedAt.Equal(*meetings[j].StartedAt) {
			return meetings[i].MeetingID < meetings[j].MeetingID
		}
		return meetings[i].StartedAt.Before(*meetings[j].StartedAt)
	})
	return meetings, nil
}

func (s *MemoryStore) MergeComponent(_ context.Context, keeper *domain.Meeting, migrated []domain.MeetingAttendee, absorbedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meetings[keeper.MeetingID]; !ok {
		return fmt.Errorf("keeper meeting %s: %w", keeper.MeetingID, ErrNotFound)
	}
	s.meetings[keeper.MeetingID] = copyMeeting(keeper)

	for i := range migrated {
		a := migrated[i]
		if s.findAttendeeLocked(a.MeetingID, a.Source, a.IdentityKey) != nil {
			continue
		}
		s.attendees[a.AttendeeID] = &a
	}

	for _, id := range absorbedIDs {
		delete(s.meetings, id)
		for aid, a := range s.attendees {
			if a.MeetingID == id {
				delete(s.attendees, aid)
			}
		}
	}
	return nil
}

// ============================================
// AttendeesRepository
// ============================================

func (s *MemoryStore) findAttendeeLocked(meetingID, source, identityKey string) *domain.MeetingAttendee {
	for _, a := range s.attendees {
		if a.MeetingID == meetingID && a.Source == source && a.IdentityKey == identityKey {
			return a
		}
	}
	return nil
}

func (s *MemoryStore) ListByMeeting(_ context.Context, meetingID string) ([]domain.MeetingAttendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listAttendeesLocked(meetingID, false), nil
}

func (s *MemoryStore) ListUnresolved(_ context.Context, meetingID string) ([]domain.MeetingAttendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listAttendeesLocked(meetingID, true), nil
}

func (s *MemoryStore) listAttendeesLocked(meetingID string, unresolvedOnly bool) []domain.MeetingAttendee {
	var attendees []domain.MeetingAttendee
	for _, a := range s.attendees {
		if a.MeetingID != meetingID {
			continue
		}
		if unresolvedOnly && a.PersonID != "" {
			continue
		}
		attendees = append(attendees, *a)
	}
	sort.Slice(attendees, func(i, j int) bool {
		if attendees[i].Source == attendees[j].Source {
			return attendees[i].IdentityKey < attendees[j].IdentityKey
		}
		return attendees[i].Source < attendees[j].Source
	})
	return attendees
}

func (s *MemoryStore) UpsertAttendee(_ context.Context, a *domain.MeetingAttendee) (*domain.MeetingAttendee, error) {
	if a.MeetingID == "" || a.Source == "" || a.IdentityKey == "" {
		return nil, fmt.Errorf("meeting_id, source and identity_key are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.findAttendeeLocked(a.MeetingID, a.Source, a.IdentityKey)
	if existing == nil {
		if a.AttendeeID == "" {
			a.AttendeeID = uuid.NewString()
		}
		cp := *a
		s.attendees[cp.AttendeeID] = &cp
		out := cp
		return &out, nil
	}

	// last-write-wins per field, new non-empty values only
	if a.ExternalAttendeeID != "" {
		existing.ExternalAttendeeID = a.ExternalAttendeeID
	}
	if a.RawEmail != "" {
		existing.RawEmail = a.RawEmail
	}
	if a.RawPhone != "" {
		existing.RawPhone = a.RawPhone
	}
	if a.RawName != "" {
		existing.RawName = a.RawName
	}
	if a.Role != "" {
		existing.Role = a.Role
	}
	if a.JoinTime != nil {
		existing.JoinTime = a.JoinTime
	}
	if a.LeaveTime != nil {
		existing.LeaveTime = a.LeaveTime
	}
	if a.DurationSeconds > 0 {
		existing.DurationSeconds = a.DurationSeconds
	}
	out := *existing
	return &out, nil
}

func (s *MemoryStore) SetPerson(_ context.Context, attendeeID, personID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendees[attendeeID]
	if !ok {
		return fmt.Errorf("attendee %s: %w", attendeeID, ErrNotFound)
	}
	a.PersonID = personID
	return nil
}

// ============================================
// ReviewRepository
// ============================================

func (s *MemoryStore) FindOpenPair(_ context.Context, coachID, personAID, personBID, meetingID string) (*domain.ReviewCandidate, error) {
	a, b := domain.SortPair(personAID, personBID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.candidates {
		if c.CoachID == coachID && c.PersonAID == a && c.PersonBID == b &&
			c.MeetingID == meetingID && c.Status == domain.ReviewStatusOpen {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("open review candidate: %w", ErrNotFound)
}

func (s *MemoryStore) CreateCandidate(_ context.Context, c *domain.ReviewCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CandidateID == "" {
		c.CandidateID = uuid.NewString()
	}
	c.PersonAID, c.PersonBID = domain.SortPair(c.PersonAID, c.PersonBID)
	if c.Status == "" {
		c.Status = domain.ReviewStatusOpen
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := *c
	s.candidates[cp.CandidateID] = &cp
	return nil
}

func (s *MemoryStore) ListOpen(_ context.Context, coachID string) ([]domain.ReviewCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var candidates []domain.ReviewCandidate
	for _, c := range s.candidates {
		if c.CoachID == coachID && c.Status == domain.ReviewStatusOpen {
			candidates = append(candidates, *c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CandidateID < candidates[j].CandidateID
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates, nil
}

func (s *MemoryStore) GetCandidate(_ context.Context, coachID, candidateID string) (*domain.ReviewCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[candidateID]
	if !ok || c.CoachID != coachID {
		return nil, fmt.Errorf("review candidate %s: %w", candidateID, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) Resolve(_ context.Context, candidateID, personID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[candidateID]
	if !ok {
		return fmt.Errorf("review candidate %s: %w", candidateID, ErrNotFound)
	}
	if c.Status == domain.ReviewStatusResolved {
		return nil
	}
	c.Status = domain.ReviewStatusResolved
	c.ResolvedPersonID = personID
	return nil
}

// AllPersons returns every stored person (test hook).
func (s *MemoryStore) AllPersons() []domain.Person {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var persons []domain.Person
	for _, p := range s.persons {
		persons = append(persons, *copyPerson(p))
	}
	sort.Slice(persons, func(i, j int) bool { return persons[i].PersonID < persons[j].PersonID })
	return persons
}

// AllMeetings returns every stored meeting (test hook).
func (s *MemoryStore) AllMeetings() []domain.Meeting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var meetings []domain.Meeting
	for _, m := range s.meetings {
		meetings = append(meetings, *copyMeeting(m))
	}
	sort.Slice(meetings, func(i, j int) bool { return meetings[i].MeetingID < meetings[j].MeetingID })
	return meetings
}
