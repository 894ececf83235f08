package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

func validRole(role string) bool {
	switch role {
	case RoleAdmin, RoleGrievanceCell, RoleStudent:
		return true
	}
	return false
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if !decode(w, r, &req) {
		return
	}
	fields := map[string][]string{}
	if req.OldPassword == "" {
		fields["old_password"] = []string{required}
	}
	if req.NewPassword == "" {
		fields["new_password"] = []string{required}
	}
	if len(fields) > 0 {
		writeFields(w, fields)
		return
	}

	switch err := s.auth.ChangePassword(r.Context(), u.ID, req.OldPassword, req.NewPassword); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
	case errors.Is(err, ErrInvalidCredentials):
		writeFields(w, map[string][]string{"old_password": {"Wrong password."}})
	case errors.Is(err, ErrWeakPassword):
		writeFields(w, map[string][]string{"new_password": {
			fmt.Sprintf("Ensure this field has at least %d characters.", MinPasswordLength),
		}})
	default:
		s.log.Error("change password", "user", u.ID, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not update password.")
	}
}

func (s *Server) handleCellMembers(w http.ResponseWriter, r *http.Request) {
	s.writeUsers(w, r, RoleGrievanceCell)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.writeUsers(w, r, "")
}

func (s *Server) writeUsers(w http.ResponseWriter, r *http.Request, role string) {
	users, err := s.repo.Users(r.Context(), role)
	if err != nil {
		s.log.Error("list users", "role", role, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not load users.")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		AdmissionNumber string `json:"admission_number"`
		CollegeEmail    string `json:"college_email"`
		Role            string `json:"role"`
		Password        string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	fields := map[string][]string{}
	if strings.TrimSpace(req.AdmissionNumber) == "" {
		fields["admission_number"] = []string{required}
	}
	if !validRole(req.Role) {
		fields["role"] = []string{fmt.Sprintf("%q is not a valid choice.", req.Role)}
	}
	if len(req.Password) < MinPasswordLength {
		fields["password"] = []string{fmt.Sprintf("Ensure this field has at least %d characters.", MinPasswordLength)}
	}
	if len(fields) > 0 {
		writeFields(w, fields)
		return
	}

	u, err := s.auth.Register(r.Context(), User{
		Username: strings.TrimSpace(req.AdmissionNumber),
		Name:     strings.TrimSpace(req.Name),
		Role:     req.Role,
	}, req.Password)
	if errors.Is(err, ErrDuplicate) {
		writeFields(w, map[string][]string{"admission_number": {"user with this admission number already exists."}})
		return
	}
	if err != nil {
		s.log.Error("create user", "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not create user.")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	admin, _ := currentUser(r)
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !validRole(req.Role) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid role."})
		return
	}
	if id == admin.ID && req.Role != RoleAdmin {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "You cannot remove your own admin role."})
		return
	}

	u, err := s.repo.SetRole(r.Context(), id, req.Role)
	if errors.Is(err, ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if err != nil {
		s.log.Error("change role", "user", id, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Could not update role.")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
