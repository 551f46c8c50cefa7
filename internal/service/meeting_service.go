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

// MeetingService Meeting/Attendee 幂等写入与 provider 事件的 ingest 流程
type MeetingService struct {
	meetings  repository.MeetingsRepository
	attendees repository.AttendeesRepository
	resolver  *Resolver
	logger    *zap.Logger
}

func NewMeetingService(
	meetings repository.MeetingsRepository,
	attendees repository.AttendeesRepository,
	resolver *Resolver,
	logger *zap.Logger,
) *MeetingService {
	return &MeetingService{
		meetings:  meetings,
		attendees: attendees,
		resolver:  resolver,
		logger:    logger,
	}
}

// MeetingInput provider 上报的一条 raw meeting
type MeetingInput struct {
	CoachID          string
	Platform         string
	StartedAt        *time.Time
	EndedAt          *time.Time
	Topic            string
	JoinURL          string
	ICalUID          string
	Location         string
	ExternalRefs     map[string]string
	TranscriptStatus string
}

// AttendeeInput provider 上报的一条 raw attendee
type AttendeeInput struct {
	Source             string
	ExternalAttendeeID string
	RawEmail           string
	RawPhone           string
	RawName            string
	Role               string
	JoinTime           *time.Time
	LeaveTime          *time.Time
	DurationSeconds    int
}

// UpsertMeeting matches by ical_uid when provided (globally, the strongest
// signal); on a hit only null/empty fields are backfilled and external_refs
// are union-merged (existing keys win). Otherwise a new meeting is created.
// Coarser time+platform dedupe belongs to the reconciliation pass, not here.
func (s *MeetingService) UpsertMeeting(ctx context.Context, in MeetingInput) (*domain.Meeting, error) {
	if in.CoachID == "" {
		return nil, fmt.Errorf("coach_id is required")
	}

	if in.ICalUID != "" {
		existing, err := s.meetings.FindByICalUID(ctx, in.ICalUID)
		if err == nil {
			return s.backfillMeeting(ctx, existing, in)
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	m := &domain.Meeting{
		MeetingID:        uuid.NewString(),
		CoachID:          in.CoachID,
		StartedAt:        in.StartedAt,
		EndedAt:          in.EndedAt,
		Platform:         in.Platform,
		Topic:            in.Topic,
		JoinURL:          in.JoinURL,
		Location:         in.Location,
		ICalUID:          in.ICalUID,
		ExternalRefs:     domain.UnionRefs(nil, in.ExternalRefs),
		TranscriptStatus: in.TranscriptStatus,
		Status:           "scheduled",
	}
	if err := s.meetings.CreateMeeting(ctx, m); err != nil {
		if errors.Is(err, repository.ErrConflict) && in.ICalUID != "" {
			// a concurrent ingest created the same ical_uid between our
			// lookup and insert; re-fetch the winner and merge once
			existing, ferr := s.meetings.FindByICalUID(ctx, in.ICalUID)
			if ferr != nil {
				return nil, ferr
			}
			return s.backfillMeeting(ctx, existing, in)
		}
		return nil, err
	}
	s.logger.Debug("created meeting",
		zap.String("meeting_id", m.MeetingID),
		zap.String("platform", m.Platform),
		zap.String("ical_uid", m.ICalUID),
	)
	return m, nil
}

// backfillMeeting 已知字段不被覆盖，只补空；refs 做保留已有键的并集
func (s *MeetingService) backfillMeeting(ctx context.Context, m *domain.Meeting, in MeetingInput) (*domain.Meeting, error) {
	if m.StartedAt == nil {
		m.StartedAt = in.StartedAt
	}
	if m.EndedAt == nil {
		m.EndedAt = in.EndedAt
	}
	if m.Platform == "" {
		m.Platform = in.Platform
	}
	if m.Topic == "" {
		m.Topic = in.Topic
	}
	if m.JoinURL == "" {
		m.JoinURL = in.JoinURL
	}
	if m.Location == "" {
		m.Location = in.Location
	}
	if m.TranscriptStatus == "" {
		m.TranscriptStatus = in.TranscriptStatus
	}
	m.ExternalRefs = domain.UnionRefs(m.ExternalRefs, in.ExternalRefs)

	if err := s.meetings.UpdateMeeting(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// UpsertAttendee captures one raw observation keyed by the derived identity.
// No identity resolution happens here; that is a separate explicit step.
func (s *MeetingService) UpsertAttendee(ctx context.Context, meetingID string, in AttendeeInput) (*domain.MeetingAttendee, error) {
	if in.Source == "" {
		return nil, fmt.Errorf("source is required")
	}
	key := identity.DeriveKey(in.ExternalAttendeeID, in.RawEmail, in.RawName)
	if key == "" {
		return nil, fmt.Errorf("attendee has no identity fragments")
	}

	a := &domain.MeetingAttendee{
		AttendeeID:         uuid.NewString(),
		MeetingID:          meetingID,
		Source:             in.Source,
		IdentityKey:        key,
		ExternalAttendeeID: in.ExternalAttendeeID,
		RawEmail:           in.RawEmail,
		RawPhone:           in.RawPhone,
		RawName:            in.RawName,
		Role:               in.Role,
		JoinTime:           in.JoinTime,
		LeaveTime:          in.LeaveTime,
		DurationSeconds:    in.DurationSeconds,
	}
	return s.attendees.UpsertAttendee(ctx, a)
}

// IngestResult 单次 provider 事件的处理计数
type IngestResult struct {
	Meeting           *domain.Meeting
	AttendeesUpserted int
	AttendeesResolved int
	AttendeesSkipped  int
}

// IngestMeeting runs the full ingestion flow for one provider event:
// meeting upsert → per-attendee upsert → identity resolution → client link.
func (s *MeetingService) IngestMeeting(ctx context.Context, meeting MeetingInput, attendees []AttendeeInput) (*IngestResult, error) {
	m, err := s.UpsertMeeting(ctx, meeting)
	if err != nil {
		return nil, err
	}

	res := &IngestResult{Meeting: m}
	for _, in := range attendees {
		a, err := s.UpsertAttendee(ctx, m.MeetingID, in)
		if err != nil {
			s.logger.Warn("skipping attendee upsert",
				zap.String("meeting_id", m.MeetingID),
				zap.String("source", in.Source),
				zap.Error(err),
			)
			res.AttendeesSkipped++
			continue
		}
		res.AttendeesUpserted++

		personID, err := s.resolver.Resolve(ctx, ResolveInput{
			CoachID:            m.CoachID,
			MeetingID:          m.MeetingID,
			Source:             in.Source,
			ExternalAttendeeID: in.ExternalAttendeeID,
			RawEmail:           in.RawEmail,
			RawPhone:           in.RawPhone,
			RawName:            in.RawName,
		})
		if err != nil {
			if errors.Is(err, ErrNothingToResolve) {
				// name-only attendee: stays unresolved until more fragments arrive
				continue
			}
			return nil, err
		}
		if err := s.attendees.SetPerson(ctx, a.AttendeeID, personID); err != nil {
			return nil, err
		}
		res.AttendeesResolved++
	}

	s.logger.Info("ingested meeting",
		zap.String("meeting_id", m.MeetingID),
		zap.String("coach_id", m.CoachID),
		zap.Int("attendees_upserted", res.AttendeesUpserted),
		zap.Int("attendees_resolved", res.AttendeesResolved),
		zap.Int("attendees_skipped", res.AttendeesSkipped),
	)
	return res, nil
}
