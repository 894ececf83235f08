package devserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

// OpenPostgres connects through the pgx stdlib driver and pings once.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRepository, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &PostgresRepository{db: conn}, nil
}

func (r *PostgresRepository) Close() error { return r.db.Close() }

func (r *PostgresRepository) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            username VARCHAR(100) UNIQUE NOT NULL,
            password VARCHAR(255) NOT NULL,
            name VARCHAR(150) NOT NULL DEFAULT '',
            role VARCHAR(20) NOT NULL,
            profile_image TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ DEFAULT now()
        )`,

		`CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower ON users (lower(username))`,

		`CREATE TABLE IF NOT EXISTS grievances (
            id SERIAL PRIMARY KEY,
            submitted_by INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            assigned_to INT REFERENCES users(id) ON DELETE SET NULL,
            title VARCHAR(200) NOT NULL,
            description TEXT NOT NULL,
            status VARCHAR(20) NOT NULL DEFAULT 'SUBMITTED',
            chat_status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE TABLE IF NOT EXISTS grievance_comments (
            id SERIAL PRIMARY KEY,
            grievance_id INT NOT NULL REFERENCES grievances(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            comment_text TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE TABLE IF NOT EXISTS chat_messages (
            id SERIAL PRIMARY KEY,
            grievance_id INT NOT NULL REFERENCES grievances(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            message TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
	}

	for _, query := range queries {
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const userColumns = "id, username, password, name, role, profile_image"

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Name, &u.Role, &u.ProfileImage)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (r *PostgresRepository) CreateUser(ctx context.Context, u User) (User, error) {
	query := "INSERT INTO users (username, password, name, role, profile_image) VALUES ($1, $2, $3, $4, $5) RETURNING id"
	err := r.db.QueryRowContext(ctx, query, u.Username, u.Password, u.Name, u.Role, u.ProfileImage).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, ErrDuplicate
		}
		return User{}, err
	}
	return u, nil
}

func (r *PostgresRepository) UserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE lower(username) = lower($1)", username))
}

func (r *PostgresRepository) UserByID(ctx context.Context, id int) (User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (r *PostgresRepository) Users(ctx context.Context, role string) ([]User, error) {
	q := "SELECT " + userColumns + " FROM users WHERE ($1 = '' OR role = $1) ORDER BY id"
	rows, err := r.db.QueryContext(ctx, q, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SetPassword(ctx context.Context, id int, hashed string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET password = $2 WHERE id = $1", id, hashed)
	return affected(res, err)
}

func (r *PostgresRepository) SetRole(ctx context.Context, id int, role string) (User, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET role = $2 WHERE id = $1", id, role)
	if err := affected(res, err); err != nil {
		return User{}, err
	}
	return r.UserByID(ctx, id)
}

func (r *PostgresRepository) CreateGrievance(ctx context.Context, ownerID int, title, description string) (Grievance, error) {
	var id int
	query := "INSERT INTO grievances (submitted_by, title, description) VALUES ($1, $2, $3) RETURNING id"
	if err := r.db.QueryRowContext(ctx, query, ownerID, title, description).Scan(&id); err != nil {
		return Grievance{}, notFoundOnFK(err)
	}
	return r.Grievance(ctx, id)
}

func (r *PostgresRepository) Grievances(ctx context.Context, ownerID int) ([]Grievance, error) {
	q := `SELECT id FROM grievances WHERE ($1 = 0 OR submitted_by = $1) ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Grievance, 0, len(ids))
	for _, id := range ids {
		g, err := r.Grievance(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (r *PostgresRepository) Grievance(ctx context.Context, id int) (Grievance, error) {
	var (
		g        Grievance
		assignee sql.NullInt64
	)
	query := `SELECT g.id, g.title, g.description, g.status, g.chat_status, g.created_at, g.updated_at,
	                 g.assigned_to, u.id, u.username, u.password, u.name, u.role, u.profile_image
	          FROM grievances g JOIN users u ON u.id = g.submitted_by
	          WHERE g.id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.Title, &g.Description, &g.Status, &g.ChatStatus, &g.CreatedAt, &g.UpdatedAt,
		&assignee, &g.SubmittedBy.ID, &g.SubmittedBy.Username, &g.SubmittedBy.Password,
		&g.SubmittedBy.Name, &g.SubmittedBy.Role, &g.SubmittedBy.ProfileImage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Grievance{}, ErrNotFound
	}
	if err != nil {
		return Grievance{}, err
	}
	if assignee.Valid {
		a, err := r.UserByID(ctx, int(assignee.Int64))
		if err != nil {
			return Grievance{}, err
		}
		g.AssignedTo = &a
	}

	if g.Comments, err = r.comments(ctx, id); err != nil {
		return Grievance{}, err
	}
	if g.ChatMessages, err = r.messages(ctx, id); err != nil {
		return Grievance{}, err
	}
	return g, nil
}

func (r *PostgresRepository) comments(ctx context.Context, grievanceID int) ([]Comment, error) {
	q := `SELECT c.id, c.comment_text, c.created_at, ` + prefixed("u", userColumns) + `
	      FROM grievance_comments c JOIN users u ON u.id = c.user_id
	      WHERE c.grievance_id = $1 ORDER BY c.created_at, c.id`
	rows, err := r.db.QueryContext(ctx, q, grievanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.Text, &c.Timestamp,
			&c.User.ID, &c.User.Username, &c.User.Password, &c.User.Name, &c.User.Role, &c.User.ProfileImage); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) messages(ctx context.Context, grievanceID int) ([]ChatMessage, error) {
	q := `SELECT m.id, m.message, m.created_at, ` + prefixed("u", userColumns) + `
	      FROM chat_messages m JOIN users u ON u.id = m.user_id
	      WHERE m.grievance_id = $1 ORDER BY m.created_at, m.id`
	rows, err := r.db.QueryContext(ctx, q, grievanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var (
			m ChatMessage
			u User
		)
		if err := rows.Scan(&m.ID, &m.Message, &m.Timestamp,
			&u.ID, &u.Username, &u.Password, &u.Name, &u.Role, &u.ProfileImage); err != nil {
			return nil, err
		}
		m.User = u.Sender()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int, status string) (Grievance, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE grievances SET status = $2, updated_at = now() WHERE id = $1", id, status)
	if err := affected(res, err); err != nil {
		return Grievance{}, err
	}
	return r.Grievance(ctx, id)
}

func (r *PostgresRepository) AcceptChat(ctx context.Context, id, staffID int) (Grievance, error) {
	query := `UPDATE grievances SET chat_status = $2, assigned_to = COALESCE(assigned_to, $3), updated_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, ChatAccepted, staffID)
	if err := affected(res, err); err != nil {
		return Grievance{}, err
	}
	return r.Grievance(ctx, id)
}

func (r *PostgresRepository) AddComment(ctx context.Context, grievanceID, userID int, text string) (Comment, error) {
	c := Comment{Text: text}
	query := "INSERT INTO grievance_comments (grievance_id, user_id, comment_text) VALUES ($1, $2, $3) RETURNING id, created_at"
	if err := r.db.QueryRowContext(ctx, query, grievanceID, userID, text).Scan(&c.ID, &c.Timestamp); err != nil {
		return Comment{}, notFoundOnFK(err)
	}
	u, err := r.UserByID(ctx, userID)
	if err != nil {
		return Comment{}, err
	}
	c.User = u
	return c, nil
}

func (r *PostgresRepository) SaveMessage(ctx context.Context, grievanceID, userID int, body string) (ChatMessage, error) {
	m := ChatMessage{Message: body}
	query := "INSERT INTO chat_messages (grievance_id, user_id, message) VALUES ($1, $2, $3) RETURNING id, created_at"
	if err := r.db.QueryRowContext(ctx, query, grievanceID, userID, body).Scan(&m.ID, &m.Timestamp); err != nil {
		return ChatMessage{}, notFoundOnFK(err)
	}
	u, err := r.UserByID(ctx, userID)
	if err != nil {
		return ChatMessage{}, err
	}
	m.User = u.Sender()
	return m, nil
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const foreignKeyViolation = "23503"

func notFoundOnFK(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return ErrNotFound
	}
	return err
}

func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}
