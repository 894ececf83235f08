package devserver

import (
	"context"
	"errors"
	"fmt"
)

type SeedUser struct {
	Username string
	Password string
	Name     string
	Role     string
}

// DemoUsers are the accounts a fresh dev server starts with.
var DemoUsers = []SeedUser{
	{Username: "admin", Password: "admin123", Name: "Dean Admin", Role: RoleAdmin},
	{Username: "cell", Password: "cell123", Name: "Grievance Cell", Role: RoleGrievanceCell},
	{Username: "21CS042", Password: "student123", Name: "Asha Rao", Role: RoleStudent},
	{Username: "21CS077", Password: "student123", Name: "Ravi Kumar", Role: RoleStudent},
}

// Seed creates users that do not exist yet and returns all of them by username.
func Seed(ctx context.Context, auth *Auth, users []SeedUser) (map[string]User, error) {
	out := make(map[string]User, len(users))
	for _, su := range users {
		u, err := auth.Register(ctx, User{Username: su.Username, Name: su.Name, Role: su.Role}, su.Password)
		if errors.Is(err, ErrDuplicate) {
			u, err = auth.repo.UserByUsername(ctx, su.Username)
		}
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", su.Username, err)
		}
		out[su.Username] = u
	}
	return out, nil
}

// SeedDemo adds the demo users and, on an empty store, one grievance with
// an accepted chat so `grievance-chat chat` has something to join.
func SeedDemo(ctx context.Context, repo Repository, auth *Auth) error {
	users, err := Seed(ctx, auth, DemoUsers)
	if err != nil {
		return err
	}
	existing, err := repo.Grievances(ctx, 0)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	student, cell := users["21CS042"], users["cell"]
	g, err := repo.CreateGrievance(ctx, student.ID, "Hostel water supply", "No water on the second floor since Monday.")
	if err != nil {
		return err
	}
	if _, err := repo.AcceptChat(ctx, g.ID, cell.ID); err != nil {
		return err
	}
	_, err = repo.SaveMessage(ctx, g.ID, cell.ID, "Hi Asha, we have logged this with maintenance.")
	return err
}
