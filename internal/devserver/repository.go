package devserver

import "context"

// Repository is the portal's persistence. MemoryRepository backs tests and
// the zero-config dev server; PostgresRepository is used when DB_DSN is set.
type Repository interface {
	CreateUser(ctx context.Context, u User) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	UserByID(ctx context.Context, id int) (User, error)
	// Users lists accounts by id, only those with role when it is set.
	Users(ctx context.Context, role string) ([]User, error)
	SetPassword(ctx context.Context, id int, hashed string) error
	SetRole(ctx context.Context, id int, role string) (User, error)

	CreateGrievance(ctx context.Context, ownerID int, title, description string) (Grievance, error)
	// Grievances lists the owner's grievances, or every grievance when ownerID is 0. Newest first.
	Grievances(ctx context.Context, ownerID int) ([]Grievance, error)
	Grievance(ctx context.Context, id int) (Grievance, error)
	UpdateStatus(ctx context.Context, id int, status string) (Grievance, error)
	// AcceptChat opens the grievance's chat and assigns staffID if nobody is assigned yet.
	AcceptChat(ctx context.Context, id, staffID int) (Grievance, error)
	AddComment(ctx context.Context, grievanceID, userID int, text string) (Comment, error)

	SaveMessage(ctx context.Context, grievanceID, userID int, body string) (ChatMessage, error)
}
