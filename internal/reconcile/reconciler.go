package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"coachsync/internal/domain"
	"coachsync/internal/repository"
	"coachsync/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRunInProgress another reconciliation run holds the lock.
var ErrRunInProgress = errors.New("reconciliation run already in progress")

const lockKey = "coachsync:reconcile:run"

// Locker serializes reconciliation runs across processes. A nil Locker
// disables locking (single-process deployments, tests).
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Options one reconciliation run's parameters. Zero values fall back to the
// defaults below.
type Options struct {
	CoachID          string // "" = all coaches
	LookbackHours    int
	ProximityMinutes int
	MaxRuntime       time.Duration // 0 = unbounded
}

const (
	DefaultLookbackHours    = 72
	DefaultProximityMinutes = 15
)

// Stats counters for one run. Skipped components are logged and left for the
// next run; they never fail the run.
type Stats struct {
	MeetingsScanned   int `json:"meetings_scanned"`
	ComponentsFound   int `json:"components_found"`
	ComponentsMerged  int `json:"components_merged"`
	ComponentsSkipped int `json:"components_skipped"`
	MeetingsAbsorbed  int `json:"meetings_absorbed"`
	AttendeesResolved int `json:"attendees_resolved"`
}

// Reconciler periodically collapses duplicate meetings observed from multiple
// providers into single canonical rows. Each component commits independently;
// a failed component is skipped so one bad row cannot wedge the whole window.
type Reconciler struct {
	meetings  repository.MeetingsRepository
	attendees repository.AttendeesRepository
	resolver  *service.Resolver
	locker    Locker
	logger    *zap.Logger
}

func NewReconciler(
	meetings repository.MeetingsRepository,
	attendees repository.AttendeesRepository,
	resolver *service.Resolver,
	locker Locker,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		meetings:  meetings,
		attendees: attendees,
		resolver:  resolver,
		locker:    locker,
		logger:    logger,
	}
}

// Run executes one reconciliation pass over the trailing window. Idempotent:
// a second run over already-merged meetings finds only singleton components
// and changes nothing.
func (r *Reconciler) Run(ctx context.Context, opts Options) (*Stats, error) {
	if opts.LookbackHours <= 0 {
		opts.LookbackHours = DefaultLookbackHours
	}
	if opts.ProximityMinutes <= 0 {
		opts.ProximityMinutes = DefaultProximityMinutes
	}

	if r.locker != nil {
		ttl := 30 * time.Minute
		if opts.MaxRuntime > ttl {
			ttl = opts.MaxRuntime + time.Minute
		}
		ok, err := r.locker.Acquire(ctx, lockKey, ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire run lock: %w", err)
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		defer func() {
			if err := r.locker.Release(context.Background(), lockKey); err != nil {
				r.logger.Warn("failed to release run lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	var deadline time.Time
	if opts.MaxRuntime > 0 {
		deadline = start.Add(opts.MaxRuntime)
	}

	until := start.UTC()
	since := until.Add(-time.Duration(opts.LookbackHours) * time.Hour)
	meetings, err := r.meetings.ListWindow(ctx, since, until, opts.CoachID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation window: %w", err)
	}

	proximity := time.Duration(opts.ProximityMinutes) * time.Minute
	edges := BuildEdges(meetings, proximity)
	comps := Components(len(meetings), edges)

	stats := &Stats{MeetingsScanned: len(meetings)}
	for _, comp := range comps {
		if len(comp) < 2 {
			continue
		}
		stats.ComponentsFound++

		if err := ctx.Err(); err != nil {
			r.logger.Warn("reconciliation run cancelled mid-pass", zap.Error(err))
			stats.ComponentsSkipped += remainingComponents(comps, comp)
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			r.logger.Warn("reconciliation run hit max runtime, deferring remainder",
				zap.Duration("max_runtime", opts.MaxRuntime))
			stats.ComponentsSkipped += remainingComponents(comps, comp)
			break
		}

		members := make([]domain.Meeting, 0, len(comp))
		for _, idx := range comp {
			members = append(members, meetings[idx])
		}
		absorbed, resolved, err := r.mergeComponent(ctx, members)
		if err != nil {
			ids := make([]string, 0, len(members))
			for _, m := range members {
				ids = append(ids, m.MeetingID)
			}
			r.logger.Error("skipping failed reconciliation component",
				zap.Strings("meeting_ids", ids),
				zap.Error(err),
			)
			stats.ComponentsSkipped++
			continue
		}
		stats.ComponentsMerged++
		stats.MeetingsAbsorbed += absorbed
		stats.AttendeesResolved += resolved
	}

	r.logger.Info("reconciliation run finished",
		zap.String("coach_id", opts.CoachID),
		zap.Time("since", since),
		zap.Int("meetings_scanned", stats.MeetingsScanned),
		zap.Int("components_found", stats.ComponentsFound),
		zap.Int("components_merged", stats.ComponentsMerged),
		zap.Int("components_skipped", stats.ComponentsSkipped),
		zap.Int("meetings_absorbed", stats.MeetingsAbsorbed),
		zap.Int("attendees_resolved", stats.AttendeesResolved),
		zap.Duration("elapsed", time.Since(start)),
	)
	return stats, nil
}

// mergeComponent collapses one multi-meeting component into its keeper.
// Keeper choice is deterministic: earliest started_at, meeting id as the
// tiebreak, so re-running over the same inputs picks the same survivor.
func (r *Reconciler) mergeComponent(ctx context.Context, members []domain.Meeting) (absorbed, resolved int, err error) {
	sort.Slice(members, func(i, j int) bool {
		ti, tj := members[i].StartedAt, members[j].StartedAt
		switch {
		case ti == nil && tj == nil:
			return members[i].MeetingID < members[j].MeetingID
		case ti == nil:
			return false
		case tj == nil:
			return true
		case ti.Equal(*tj):
			return members[i].MeetingID < members[j].MeetingID
		default:
			return ti.Before(*tj)
		}
	})

	keeper := members[0]
	for _, m := range members[1:] {
		foldMeeting(&keeper, m)
	}

	existing, err := r.attendees.ListByMeeting(ctx, keeper.MeetingID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list keeper attendees: %w", err)
	}
	seen := map[string]bool{}
	for _, a := range existing {
		seen[a.Source+"\x00"+a.IdentityKey] = true
	}

	var migrated []domain.MeetingAttendee
	absorbedIDs := make([]string, 0, len(members)-1)
	for _, m := range members[1:] {
		absorbedIDs = append(absorbedIDs, m.MeetingID)
		attendees, err := r.attendees.ListByMeeting(ctx, m.MeetingID)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to list absorbed attendees: %w", err)
		}
		for _, a := range attendees {
			k := a.Source + "\x00" + a.IdentityKey
			if seen[k] {
				continue
			}
			seen[k] = true
			a.AttendeeID = uuid.NewString()
			a.MeetingID = keeper.MeetingID
			migrated = append(migrated, a)
		}
	}

	if err := r.meetings.MergeComponent(ctx, &keeper, migrated, absorbedIDs); err != nil {
		return 0, 0, err
	}

	resolved, err = r.resolveKeeperAttendees(ctx, &keeper)
	if err != nil {
		// the merge itself committed; resolution is retried on the next pass
		r.logger.Warn("post-merge attendee resolution incomplete",
			zap.String("meeting_id", keeper.MeetingID),
			zap.Error(err),
		)
	}
	return len(absorbedIDs), resolved, nil
}

// foldMeeting merges one absorbed meeting into the keeper: keeper's non-empty
// fields win, external_refs union keeper-first, time span widened to cover
// both.
func foldMeeting(keeper *domain.Meeting, m domain.Meeting) {
	if keeper.Platform == "" {
		keeper.Platform = m.Platform
	}
	if keeper.Topic == "" {
		keeper.Topic = m.Topic
	}
	if keeper.JoinURL == "" {
		keeper.JoinURL = m.JoinURL
	}
	if keeper.Location == "" {
		keeper.Location = m.Location
	}
	if keeper.ICalUID == "" {
		keeper.ICalUID = m.ICalUID
	}
	if keeper.TranscriptStatus == "" {
		keeper.TranscriptStatus = m.TranscriptStatus
	}
	keeper.ExternalRefs = domain.UnionRefs(keeper.ExternalRefs, m.ExternalRefs)

	if m.StartedAt != nil && (keeper.StartedAt == nil || m.StartedAt.Before(*keeper.StartedAt)) {
		keeper.StartedAt = m.StartedAt
	}
	if m.EndedAt != nil && (keeper.EndedAt == nil || m.EndedAt.After(*keeper.EndedAt)) {
		keeper.EndedAt = m.EndedAt
	}
}

// resolveKeeperAttendees retries identity resolution for attendees that are
// still unlinked after the merge (migrated rows arrive unresolved when their
// source meeting was ingested before the person existed).
func (r *Reconciler) resolveKeeperAttendees(ctx context.Context, keeper *domain.Meeting) (int, error) {
	unresolved, err := r.attendees.ListUnresolved(ctx, keeper.MeetingID)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, a := range unresolved {
		personID, err := r.resolver.Resolve(ctx, service.ResolveInput{
			CoachID:            keeper.CoachID,
			MeetingID:          keeper.MeetingID,
			Source:             a.Source,
			ExternalAttendeeID: a.ExternalAttendeeID,
			RawEmail:           a.RawEmail,
			RawPhone:           a.RawPhone,
			RawName:            a.RawName,
		})
		if err != nil {
			if errors.Is(err, service.ErrNothingToResolve) {
				continue
			}
			return resolved, err
		}
		if err := r.attendees.SetPerson(ctx, a.AttendeeID, personID); err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}

// remainingComponents counts multi-member components from cur (inclusive) to
// the end, for the skip counter when a run is cut short.
func remainingComponents(comps [][]int, cur []int) int {
	n := 0
	counting := false
	for _, c := range comps {
		if !counting && len(c) > 0 && len(cur) > 0 && c[0] == cur[0] {
			counting = true
		}
		if counting && len(c) >= 2 {
			n++
		}
	}
	return n
}
