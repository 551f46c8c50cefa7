package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coachsync/internal/domain"
	"coachsync/internal/identity"
	"coachsync/internal/reconcile"
	"coachsync/internal/repository"
	"coachsync/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupRouter wires the full HTTP surface over the in-memory store, the same
// shape main() builds for Postgres.
func setupRouter(t *testing.T) (*repository.MemoryStore, *Router) {
	t.Helper()
	store := repository.NewMemoryStore()
	hasher, err := identity.NewHasher("test-hash-key")
	require.NoError(t, err)
	logger := zap.NewNop()

	resolver := service.NewResolver(store, store, store, hasher, "US", logger)
	meetings := service.NewMeetingService(store, store, resolver, logger)
	review := service.NewReviewService(store, store, hasher, "US", logger)
	merge := service.NewMergeService(store, logger)
	reconciler := reconcile.NewReconciler(store, store, resolver, nil, logger)

	router := NewRouter(logger)
	router.RegisterIngestRoutes(NewIngestHandler(meetings, logger))
	router.RegisterReviewRoutes(NewReviewHandler(review, merge, logger))
	router.RegisterReconcileRoutes(NewReconcileHandler(reconciler, logger))
	router.RegisterClientRoutes(NewClientHandler(store, logger))
	router.RegisterHealthRoutes()
	return store, router
}

func doJSON(t *testing.T, router *Router, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var envelope map[string]any
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	}
	return w, envelope
}

func TestHealthz(t *testing.T) {
	_, router := setupRouter(t)

	w, envelope := doJSON(t, router, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(ResultSuccess), envelope["code"])
	result := envelope["result"].(map[string]any)
	assert.Equal(t, "ok", result["status"])
}

func TestPostMeeting_IngestsAndResolves(t *testing.T) {
	store, router := setupRouter(t)

	started := time.Now().UTC().Add(-time.Hour)
	w, envelope := doJSON(t, router, http.MethodPost, "/ingest/api/v1/meetings", map[string]any{
		"coach_id":   "coach-1",
		"platform":   "zoom",
		"started_at": started,
		"topic":      "Weekly check-in",
		"ical_uid":   "uid-x",
		"external_refs": map[string]any{
			"zoom_meeting_id": 42,
		},
		"attendees": []map[string]any{
			{"source": "zoom", "email": "Ana@Example.com", "name": "Ana"},
			{"source": "zoom", "name": "Guest"},
		},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(ResultSuccess), envelope["code"], envelope["message"])
	result := envelope["result"].(map[string]any)
	assert.Equal(t, float64(2), result["attendees_upserted"])
	assert.Equal(t, float64(1), result["attendees_resolved"])

	meetings := store.AllMeetings()
	require.Len(t, meetings, 1)
	assert.Equal(t, "42", meetings[0].ExternalRefs[domain.RefZoomMeetingID])
}

func TestPostMeeting_MissingCoach(t *testing.T) {
	_, router := setupRouter(t)

	w, envelope := doJSON(t, router, http.MethodPost, "/ingest/api/v1/meetings", map[string]any{
		"platform": "zoom",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(ResultError), envelope["code"])
	assert.Contains(t, envelope["message"], "coach_id")
}

func TestReviewFlow_ListThenResolve(t *testing.T) {
	store, router := setupRouter(t)
	ctx := context.Background()

	require.NoError(t, store.CreatePerson(ctx, &domain.Person{PersonID: "p-a"}))
	require.NoError(t, store.CreateCandidate(ctx, &domain.ReviewCandidate{
		CandidateID: "c-1", CoachID: "coach-1", MeetingID: "m-1",
		RawEmail: "ana@example.com", PersonAID: "p-a", PersonBID: "p-b",
		Reason: domain.ReasonEmailPhoneConflict, Status: domain.ReviewStatusOpen,
		CreatedAt: time.Now().UTC(),
	}))

	w, envelope := doJSON(t, router, http.MethodGet, "/review/api/v1/candidates?coach_id=coach-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	result := envelope["result"].(map[string]any)
	assert.Equal(t, float64(1), result["count"])

	w, envelope = doJSON(t, router, http.MethodPost, "/review/api/v1/candidates/c-1/resolve", map[string]any{
		"coach_id":  "coach-1",
		"person_id": "p-a",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(ResultSuccess), envelope["code"], envelope["message"])
	resolved := envelope["result"].(map[string]any)
	assert.Equal(t, domain.ReviewStatusResolved, resolved["status"])
	assert.Equal(t, "p-a", resolved["resolved_person_id"])

	// queue drains
	w, envelope = doJSON(t, router, http.MethodGet, "/review/api/v1/candidates?coach_id=coach-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	result = envelope["result"].(map[string]any)
	assert.Equal(t, float64(0), result["count"])
}

func TestResolveCandidate_UnknownIs404(t *testing.T) {
	_, router := setupRouter(t)

	w, _ := doJSON(t, router, http.MethodPost, "/review/api/v1/candidates/c-missing/resolve", map[string]any{
		"coach_id":   "coach-1",
		"create_new": true,
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportCandidates_ReturnsWorkbook(t *testing.T) {
	store, router := setupRouter(t)

	require.NoError(t, store.CreateCandidate(context.Background(), &domain.ReviewCandidate{
		CandidateID: "c-1", CoachID: "coach-1", MeetingID: "m-1",
		RawEmail: "ana@example.com", PersonAID: "p-a", PersonBID: "p-b",
		Reason: domain.ReasonEmailPhoneConflict, Status: domain.ReviewStatusOpen,
		CreatedAt: time.Now().UTC(),
	}))

	req := httptest.NewRequest(http.MethodGet, "/review/api/v1/candidates/export?coach_id=coach-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "review_candidates.xlsx")
	assert.NotZero(t, w.Body.Len())
}

func TestMergePersons_Endpoint(t *testing.T) {
	store, router := setupRouter(t)
	ctx := context.Background()

	require.NoError(t, store.CreatePerson(ctx, &domain.Person{
		PersonID: "p-a", PrimaryEmail: "ana@example.com",
		Emails: []string{"ana@example.com"}, EmailHashes: [][]byte{{0x01}},
	}))
	require.NoError(t, store.CreatePerson(ctx, &domain.Person{
		PersonID: "p-b", PrimaryPhone: "+12125550101",
		Phones: []string{"+12125550101"}, PhoneHashes: [][]byte{{0x02}},
	}))

	w, envelope := doJSON(t, router, http.MethodPost, "/review/api/v1/merge", map[string]any{
		"survivor_person_id": "p-a",
		"mergee_person_id":   "p-b",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(ResultSuccess), envelope["code"], envelope["message"])
	result := envelope["result"].(map[string]any)
	assert.Equal(t, "p-a", result["person_id"])
	assert.Equal(t, float64(1), result["email_count"])
	assert.Equal(t, float64(1), result["phone_count"])
}

func TestReconcileRun_Endpoint(t *testing.T) {
	store, router := setupRouter(t)
	ctx := context.Background()

	t1 := time.Now().UTC().Add(-time.Hour)
	t2 := t1.Add(time.Minute)
	require.NoError(t, store.CreateMeeting(ctx, &domain.Meeting{
		MeetingID: "m-1", CoachID: "coach-1", StartedAt: &t1, ICalUID: "uid-x",
	}))
	require.NoError(t, store.CreateMeeting(ctx, &domain.Meeting{
		MeetingID: "m-2", CoachID: "coach-1", StartedAt: &t2, ICalUID: "uid-x",
	}))

	w, envelope := doJSON(t, router, http.MethodPost, "/reconcile/api/v1/run", map[string]any{
		"coach_id": "coach-1",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(ResultSuccess), envelope["code"], envelope["message"])
	result := envelope["result"].(map[string]any)
	assert.Equal(t, float64(2), result["meetings_scanned"])
	assert.Equal(t, float64(1), result["components_merged"])
	assert.Len(t, store.AllMeetings(), 1)
}

func TestClientRoutes_ListAndStatus(t *testing.T) {
	store, router := setupRouter(t)
	ctx := context.Background()

	require.NoError(t, store.CreatePerson(ctx, &domain.Person{PersonID: "p-a"}))
	c, err := store.EnsureClient(ctx, "coach-1", "p-a", "")
	require.NoError(t, err)

	w, envelope := doJSON(t, router, http.MethodGet, "/clients/api/v1?coach_id=coach-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	result := envelope["result"].(map[string]any)
	assert.Equal(t, float64(1), result["count"])

	w, envelope = doJSON(t, router, http.MethodPost, "/clients/api/v1/"+c.ClientID+"/status", map[string]any{
		"coach_id": "coach-1",
		"status":   domain.ClientStatusActive,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(ResultSuccess), envelope["code"], envelope["message"])
	updated := envelope["result"].(map[string]any)
	assert.Equal(t, domain.ClientStatusActive, updated["status"])
}

func TestClientStatus_RejectsUnknownValue(t *testing.T) {
	store, router := setupRouter(t)
	ctx := context.Background()

	require.NoError(t, store.CreatePerson(ctx, &domain.Person{PersonID: "p-a"}))
	c, err := store.EnsureClient(ctx, "coach-1", "p-a", "")
	require.NoError(t, err)

	w, envelope := doJSON(t, router, http.MethodPost, "/clients/api/v1/"+c.ClientID+"/status", map[string]any{
		"coach_id": "coach-1",
		"status":   "vip",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(ResultError), envelope["code"])
}
