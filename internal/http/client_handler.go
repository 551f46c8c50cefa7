package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"coachsync/internal/domain"
	"coachsync/internal/repository"

	"go.uber.org/zap"
)

// ClientHandler coach↔person 关系的查询与状态维护
type ClientHandler struct {
	clients repository.ClientsRepository
	logger  *zap.Logger
}

func NewClientHandler(clients repository.ClientsRepository, logger *zap.Logger) *ClientHandler {
	return &ClientHandler{clients: clients, logger: logger}
}

// ServeHTTP 路由：
//   - GET  /clients/api/v1?coach_id=            列出 coach 的 client
//   - POST /clients/api/v1/{id}/status          更新状态并写 audit log
func (h *ClientHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/clients/api/v1" || path == "/clients/api/v1/":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListClients(w, r)

	case strings.HasSuffix(path, "/status"):
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id := extractClientIDFromPath(path)
		if id == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.UpdateStatus(w, r, id)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ListClients GET /clients/api/v1?coach_id=
func (h *ClientHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	coachID := r.URL.Query().Get("coach_id")
	if coachID == "" {
		writeJSON(w, http.StatusOK, Fail("coach_id is required"))
		return
	}

	clients, err := h.clients.ListByCoach(r.Context(), coachID)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	items := make([]map[string]any, 0, len(clients))
	for _, c := range clients {
		items = append(items, clientToMap(&c))
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": items, "count": len(items)}))
}

type clientStatusRequest struct {
	CoachID string `json:"coach_id"`
	Status  string `json:"status"`
}

// UpdateStatus POST /clients/api/v1/{id}/status
func (h *ClientHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, clientID string) {
	var req clientStatusRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}
	if req.CoachID == "" {
		writeJSON(w, http.StatusOK, Fail("coach_id is required"))
		return
	}
	if !domain.ValidClientStatus(req.Status) {
		writeJSON(w, http.StatusOK, Fail("invalid status: "+req.Status))
		return
	}

	c, err := h.clients.UpdateStatus(r.Context(), req.CoachID, clientID, req.Status)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("client not found"))
			return
		}
		h.logger.Error("UpdateStatus failed",
			zap.String("client_id", clientID),
			zap.String("coach_id", req.CoachID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(clientToMap(c)))
}

func clientToMap(c *domain.Client) map[string]any {
	return map[string]any{
		"client_id":     c.ClientID,
		"coach_id":      c.CoachID,
		"person_id":     c.PersonID,
		"status":        c.Status,
		"first_seen_at": c.FirstSeenAt,
	}
}

// extractClientIDFromPath 路径格式：/clients/api/v1/{id}/status
func extractClientIDFromPath(path string) string {
	prefix := "/clients/api/v1/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	id := strings.TrimPrefix(path, prefix)
	id = strings.TrimSuffix(id, "/status")
	id = strings.TrimSuffix(id, "/")
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
