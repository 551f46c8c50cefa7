package httpapi

import (
	"net/http"
	"time"

	"coachsync/internal/domain"
	"coachsync/internal/service"

	"go.uber.org/zap"
)

// IngestHandler provider 事件的入口（calendar / zoom / calendly / fireflies
// 的 raw payload 已由上游 provider-sync 拉平成统一 JSON）
type IngestHandler struct {
	meetings *service.MeetingService
	logger   *zap.Logger
}

func NewIngestHandler(meetings *service.MeetingService, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{meetings: meetings, logger: logger}
}

type ingestAttendee struct {
	Source             string     `json:"source"`
	ExternalAttendeeID string     `json:"external_attendee_id"`
	Email              string     `json:"email"`
	Phone              string     `json:"phone"`
	Name               string     `json:"name"`
	Role               string     `json:"role"`
	JoinTime           *time.Time `json:"join_time"`
	LeaveTime          *time.Time `json:"leave_time"`
	DurationSeconds    int        `json:"duration_seconds"`
}

type ingestRequest struct {
	CoachID          string         `json:"coach_id"`
	Platform         string         `json:"platform"`
	StartedAt        *time.Time     `json:"started_at"`
	EndedAt          *time.Time     `json:"ended_at"`
	Topic            string         `json:"topic"`
	JoinURL          string         `json:"join_url"`
	Location         string         `json:"location"`
	ICalUID          string         `json:"ical_uid"`
	ExternalRefs     map[string]any `json:"external_refs"`
	TranscriptStatus string         `json:"transcript_status"`

	Attendees []ingestAttendee `json:"attendees"`
}

// PostMeeting 处理一条 provider 事件
// POST /ingest/api/v1/meetings
func (h *IngestHandler) PostMeeting(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}
	if req.CoachID == "" {
		writeJSON(w, http.StatusOK, Fail("coach_id is required"))
		return
	}

	refs, err := domain.NormalizeRefs(req.ExternalRefs)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	attendees := make([]service.AttendeeInput, 0, len(req.Attendees))
	for _, a := range req.Attendees {
		attendees = append(attendees, service.AttendeeInput{
			Source:             a.Source,
			ExternalAttendeeID: a.ExternalAttendeeID,
			RawEmail:           a.Email,
			RawPhone:           a.Phone,
			RawName:            a.Name,
			Role:               a.Role,
			JoinTime:           a.JoinTime,
			LeaveTime:          a.LeaveTime,
			DurationSeconds:    a.DurationSeconds,
		})
	}

	res, err := h.meetings.IngestMeeting(r.Context(), service.MeetingInput{
		CoachID:          req.CoachID,
		Platform:         req.Platform,
		StartedAt:        req.StartedAt,
		EndedAt:          req.EndedAt,
		Topic:            req.Topic,
		JoinURL:          req.JoinURL,
		Location:         req.Location,
		ICalUID:          req.ICalUID,
		ExternalRefs:     refs,
		TranscriptStatus: req.TranscriptStatus,
	}, attendees)
	if err != nil {
		h.logger.Error("IngestMeeting failed",
			zap.String("coach_id", req.CoachID),
			zap.String("platform", req.Platform),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"meeting_id":         res.Meeting.MeetingID,
		"attendees_upserted": res.AttendeesUpserted,
		"attendees_resolved": res.AttendeesResolved,
		"attendees_skipped":  res.AttendeesSkipped,
	}))
}
