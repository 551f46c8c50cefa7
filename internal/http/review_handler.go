package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"coachsync/internal/domain"
	"coachsync/internal/repository"
	"coachsync/internal/service"

	"go.uber.org/zap"
)

// ReviewHandler review 队列相关操作（operator 界面调用）
type ReviewHandler struct {
	review *service.ReviewService
	merge  *service.MergeService
	logger *zap.Logger
}

func NewReviewHandler(review *service.ReviewService, merge *service.MergeService, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{review: review, merge: merge, logger: logger}
}

// ServeHTTP 路由：
//   - GET  /review/api/v1/candidates?coach_id=           列出 open candidates
//   - GET  /review/api/v1/candidates/export?coach_id=    导出 XLSX
//   - POST /review/api/v1/candidates/{id}/resolve        人工裁决
//   - POST /review/api/v1/merge                          operator 批准的 person 合并
func (h *ReviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/review/api/v1/merge":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.MergePersons(w, r)

	case path == "/review/api/v1/candidates/export":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ExportCandidates(w, r)

	case path == "/review/api/v1/candidates" || path == "/review/api/v1/candidates/":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListCandidates(w, r)

	case strings.HasSuffix(path, "/resolve"):
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id := extractCandidateIDFromPath(path)
		if id == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.ResolveCandidate(w, r, id)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ListCandidates GET /review/api/v1/candidates?coach_id=
func (h *ReviewHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	coachID := r.URL.Query().Get("coach_id")
	candidates, err := h.review.ListOpen(r.Context(), coachID)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	items := make([]map[string]any, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, candidateToMap(&c))
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": items, "count": len(items)}))
}

type resolveRequest struct {
	CoachID   string `json:"coach_id"`
	PersonID  string `json:"person_id"`  // link to this existing person
	CreateNew bool   `json:"create_new"` // or mint a fresh person from the raw fragments
}

// ResolveCandidate POST /review/api/v1/candidates/{id}/resolve
func (h *ReviewHandler) ResolveCandidate(w http.ResponseWriter, r *http.Request, candidateID string) {
	var req resolveRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}
	if req.CoachID == "" {
		writeJSON(w, http.StatusOK, Fail("coach_id is required"))
		return
	}
	if req.PersonID == "" && !req.CreateNew {
		writeJSON(w, http.StatusOK, Fail("person_id or create_new is required"))
		return
	}

	var (
		c   *domain.ReviewCandidate
		err error
	)
	if req.CreateNew {
		c, err = h.review.ResolveCreateNew(r.Context(), req.CoachID, candidateID)
	} else {
		c, err = h.review.ResolveExisting(r.Context(), req.CoachID, candidateID, req.PersonID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("candidate not found"))
			return
		}
		h.logger.Error("ResolveCandidate failed",
			zap.String("candidate_id", candidateID),
			zap.String("coach_id", req.CoachID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(candidateToMap(c)))
}

func candidateToMap(c *domain.ReviewCandidate) map[string]any {
	return map[string]any{
		"candidate_id":       c.CandidateID,
		"coach_id":           c.CoachID,
		"meeting_id":         c.MeetingID,
		"attendee_source":    c.AttendeeSource,
		"raw_email":          c.RawEmail,
		"raw_phone":          c.RawPhone,
		"raw_name":           c.RawName,
		"person_a_id":        c.PersonAID,
		"person_b_id":        c.PersonBID,
		"reason":             c.Reason,
		"status":             c.Status,
		"resolved_person_id": c.ResolvedPersonID,
		"created_at":         c.CreatedAt,
	}
}

type mergeRequest struct {
	SurvivorPersonID string `json:"survivor_person_id"`
	MergeePersonID   string `json:"mergee_person_id"`
}

// MergePersons POST /review/api/v1/merge
func (h *ReviewHandler) MergePersons(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}

	p, err := h.merge.MergePersons(r.Context(), req.SurvivorPersonID, req.MergeePersonID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("person not found"))
			return
		}
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"person_id":   p.PersonID,
		"email_count": len(p.Emails),
		"phone_count": len(p.Phones),
	}))
}

// ExportCandidates GET /review/api/v1/candidates/export?coach_id=
func (h *ReviewHandler) ExportCandidates(w http.ResponseWriter, r *http.Request) {
	coachID := r.URL.Query().Get("coach_id")
	candidates, err := h.review.ListOpen(r.Context(), coachID)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	data, err := GenerateReviewExport(candidates)
	if err != nil {
		h.logger.Error("ExportCandidates failed",
			zap.String("coach_id", coachID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="review_candidates.xlsx"`)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// extractCandidateIDFromPath 路径格式：/review/api/v1/candidates/{id}/resolve
func extractCandidateIDFromPath(path string) string {
	prefix := "/review/api/v1/candidates/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	id := strings.TrimPrefix(path, prefix)
	id = strings.TrimSuffix(id, "/resolve")
	id = strings.TrimSuffix(id, "/")
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
