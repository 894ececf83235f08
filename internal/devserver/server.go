// Package devserver is a self-contained portal backend for local runs and
// end-to-end tests: token auth, grievances, per-grievance chat rooms and
// per-user notification sockets.
package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Dev backend; any origin.
	},
}

type Config struct {
	// RequestLogging adds chi's request logger.
	RequestLogging bool
}

type Server struct {
	repo Repository
	auth *Auth
	hub  *Hub
	log  *slog.Logger
	cfg  Config
}

func NewServer(repo Repository, auth *Auth, hub *Hub, log *slog.Logger, cfg Config) *Server {
	return &Server{repo: repo, auth: auth, hub: hub, log: log, cfg: cfg}
}

func (s *Server) Router() http.Handler {
	authMiddleware := NewAuthMiddleware(s.auth, s.repo)

	r := chi.NewRouter()
	if s.cfg.RequestLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/api/token/", s.handleToken)
	r.Post("/api/token/refresh/", s.handleRefresh)
	r.Post("/api/register/", s.handleRegister)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/me/", s.handleMe)
		r.Put("/api/change-password/", s.handleChangePassword)
		r.Get("/api/users/grievance-cell-members/", s.handleCellMembers)
		r.With(requireRole(RoleAdmin)).Get("/api/users/", s.handleListUsers)
		r.With(requireRole(RoleAdmin)).Post("/api/users/", s.handleCreateUser)
		r.With(requireRole(RoleAdmin)).Patch("/api/users/{id}/change_role/", s.handleChangeRole)

		r.Get("/api/grievances/", s.handleListGrievances)
		r.Post("/api/grievances/", s.handleCreateGrievance)
		r.With(requireRole(RoleAdmin, RoleGrievanceCell)).Get("/api/grievances/stats/", s.handleStats)
		r.Get("/api/grievances/{id}/", s.handleGetGrievance)
		r.Post("/api/grievances/{id}/accept/", s.handleAcceptChat)
		r.Post("/api/grievances/{id}/add_comment/", s.handleAddComment)
		r.Patch("/api/grievances/{id}/update_status/", s.handleUpdateStatus)

		// WebSocket (Real-time)
		r.Get("/ws/chat/{id}/", s.serveChatWs)
		r.Get("/ws/notifications/", s.serveNotificationsWs(false))
		r.Get("/ws/notifications/admin/", s.serveNotificationsWs(true))
	})
	return r
}

// notice is a notification frame as the client's aggregator reads it.
type notice struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload,omitempty"`
}

// notify fans a notification out to users and, when staff is set, to every staff socket.
func (s *Server) notify(ctx context.Context, users []int, staff bool, n notice) {
	if len(users) == 0 && !staff {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		s.log.Error("encode notification", "type", n.Type, "err", err)
		return
	}
	s.hub.Publish(ctx, Envelope{Users: users, Staff: staff, Payload: data})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDetail mirrors the portal's {"detail": "..."} error body.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeFields mirrors the portal's field -> messages validation body.
func writeFields(w http.ResponseWriter, fields map[string][]string) {
	writeJSON(w, http.StatusBadRequest, fields)
}
