package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const required = "This field is required."

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error - "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	fields := map[string][]string{}
	if strings.TrimSpace(req.Username) == "" {
		fields["username"] = []string{required}
	}
	if req.Password == "" {
		fields["password"] = []string{required}
	}
	if len(fields) > 0 {
		writeFields(w, fields)
		return
	}

	pair, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}
	if err != nil {
		s.log.Error("login failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, "Login failed.")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Refresh == "" {
		writeFields(w, map[string][]string{"refresh": {required}})
		return
	}
	pair, err := s.auth.Refresh(r.Context(), req.Refresh)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		AdmissionNumber string `json:"admission_number"`
		Password        string `json:"password"`
		Password2       string `json:"password2"`
	}
	if !decode(w, r, &req) {
		return
	}
	fields := map[string][]string{}
	if strings.TrimSpace(req.AdmissionNumber) == "" {
		fields["admission_number"] = []string{required}
	}
	if req.Password == "" {
		fields["password"] = []string{required}
	} else if req.Password != req.Password2 {
		fields["password"] = []string{"Passwords must match."}
	}
	if len(fields) > 0 {
		writeFields(w, fields)
		return
	}

	u, err := s.auth.Register(r.Context(), User{
		Username: strings.TrimSpace(req.AdmissionNumber),
		Name:     strings.TrimSpace(req.Name),
		Role:     RoleStudent,
	}, req.Password)
	if errors.Is(err, ErrDuplicate) {
		writeFields(w, map[string][]string{"admission_number": {"user with this admission number already exists."}})
		return
	}
	if err != nil {
		s.log.Error("register failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, "Registration failed.")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleListGrievances(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)
	owner := u.ID
	if u.Privileged() {
		owner = 0
	}
	list, err := s.repo.Grievances(r.Context(), owner)
	if err != nil {
		s.log.Error("list grievances", "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not load grievances.")
		return
	}
	writeJSON(w, http.StatusOK, filterByStatus(list, r.URL.Query().Get("status_filter")))
}

// filterByStatus applies ?status_filter=. Unknown values leave the list alone.
func filterByStatus(list []Grievance, filter string) []Grievance {
	var keep func(string) bool
	switch filter {
	case "in_progress":
		keep = func(s string) bool { return s == StatusInReview || s == StatusActionTaken }
	case "resolved":
		keep = func(s string) bool { return s == StatusResolved }
	default:
		return list
	}
	out := make([]Grievance, 0, len(list))
	for _, g := range list {
		if keep(g.Status) {
			out = append(out, g)
		}
	}
	return out
}

type stats struct {
	Total    int `json:"total_grievances"`
	Pending  int `json:"pending_grievances"`
	Resolved int `json:"resolved_grievances"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	list, err := s.repo.Grievances(r.Context(), 0)
	if err != nil {
		s.log.Error("grievance stats", "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not load statistics.")
		return
	}
	out := stats{Total: len(list)}
	for _, g := range list {
		if g.Status == StatusResolved {
			out.Resolved++
		} else {
			out.Pending++
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateGrievance(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if !decode(w, r, &req) {
		return
	}
	fields := map[string][]string{}
	if strings.TrimSpace(req.Title) == "" {
		fields["title"] = []string{required}
	}
	if strings.TrimSpace(req.Description) == "" {
		fields["description"] = []string{required}
	}
	if len(fields) > 0 {
		writeFields(w, fields)
		return
	}

	g, err := s.repo.CreateGrievance(r.Context(), u.ID, strings.TrimSpace(req.Title), strings.TrimSpace(req.Description))
	if err != nil {
		s.log.Error("create grievance", "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not save grievance.")
		return
	}
	s.notify(r.Context(), nil, true, notice{
		Type:    "new_grievance",
		Message: fmt.Sprintf("New grievance from %s: %s", u.DisplayName(), g.Title),
		Payload: map[string]any{"grievance_id": g.ID},
	})
	writeJSON(w, http.StatusCreated, g)
}

// loadVisible resolves {id} to a grievance the current user may see. It
// writes the error response itself and reports false on failure.
func (s *Server) loadVisible(w http.ResponseWriter, r *http.Request) (Grievance, User, bool) {
	u, _ := currentUser(r)
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return Grievance{}, u, false
	}
	g, err := s.repo.Grievance(r.Context(), id)
	if errors.Is(err, ErrNotFound) || (err == nil && !g.VisibleTo(u)) {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return Grievance{}, u, false
	}
	if err != nil {
		s.log.Error("load grievance", "id", id, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not load grievance.")
		return Grievance{}, u, false
	}
	return g, u, true
}

func (s *Server) handleGetGrievance(w http.ResponseWriter, r *http.Request) {
	g, _, ok := s.loadVisible(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleAcceptChat(w http.ResponseWriter, r *http.Request) {
	g, u, ok := s.loadVisible(w, r)
	if !ok {
		return
	}
	if !u.Privileged() {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	id := g.ID
	g, err := s.repo.AcceptChat(r.Context(), id, u.ID)
	if err != nil {
		s.log.Error("accept chat", "id", id, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not accept chat.")
		return
	}
	s.notify(r.Context(), []int{g.SubmittedBy.ID}, false, notice{
		Type:    "chat_request",
		Message: fmt.Sprintf("Your chat request for %q was accepted", g.Title),
		Payload: map[string]any{"grievance_id": g.ID},
	})
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	g, u, ok := s.loadVisible(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"comment_text"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeFields(w, map[string][]string{"comment_text": {"This field may not be blank."}})
		return
	}
	c, err := s.repo.AddComment(r.Context(), g.ID, u.ID, strings.TrimSpace(req.Text))
	if err != nil {
		s.log.Error("add comment", "id", g.ID, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not save comment.")
		return
	}

	n := notice{
		Type:    "new_comment",
		Message: fmt.Sprintf("%s commented on %q", u.DisplayName(), g.Title),
		Payload: map[string]any{"grievance_id": g.ID},
	}
	if u.Privileged() {
		s.notify(r.Context(), []int{g.SubmittedBy.ID}, false, n)
	} else {
		s.notify(r.Context(), nil, true, n)
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	g, u, ok := s.loadVisible(w, r)
	if !ok {
		return
	}
	if !u.Privileged() {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !validStatus(req.Status) {
		writeFields(w, map[string][]string{"status": {fmt.Sprintf("%q is not a valid choice.", req.Status)}})
		return
	}
	id := g.ID
	g, err := s.repo.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		s.log.Error("update status", "id", id, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not update status.")
		return
	}
	s.notify(r.Context(), []int{g.SubmittedBy.ID}, false, notice{
		Type:    "grievance_status_update",
		Message: fmt.Sprintf("%q is now %s", g.Title, g.Status),
		Payload: map[string]any{"grievance_id": g.ID, "status": g.Status},
	})
	writeJSON(w, http.StatusOK, g)
}
