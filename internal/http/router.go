package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterIngestRoutes provider 事件入口
func (r *Router) RegisterIngestRoutes(h *IngestHandler) {
	r.Handle("/ingest/api/v1/meetings", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.PostMeeting(w, req)
	})
}

// RegisterReviewRoutes review 队列 + operator merge
func (r *Router) RegisterReviewRoutes(h *ReviewHandler) {
	r.Handle("/review/api/v1/candidates", h.ServeHTTP)
	r.Handle("/review/api/v1/candidates/", h.ServeHTTP)
	r.Handle("/review/api/v1/merge", h.ServeHTTP)
}

// RegisterReconcileRoutes 手动触发 reconciliation run
func (r *Router) RegisterReconcileRoutes(h *ReconcileHandler) {
	r.Handle("/reconcile/api/v1/run", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Run(w, req)
	})
}

// RegisterClientRoutes coach↔person 关系
func (r *Router) RegisterClientRoutes(h *ClientHandler) {
	r.Handle("/clients/api/v1", h.ServeHTTP)
	r.Handle("/clients/api/v1/", h.ServeHTTP)
}

// RegisterHealthRoutes 健康检查
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]any{"status": "ok"}))
	})
}
