package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Repository defines client persistence operations.
type Repository interface {
	List(ctx context.Context) ([]Client, error)
	GetByID(ctx context.Context, id string) (*Client, error)
	Create(ctx context.Context, c *Client) error
}

// SQLiteRepository implements Repository on the clients table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const clientColumns = "id, name, email, plan, status, locations_count, created_at, updated_at"

// List returns all clients, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Client, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+clientColumns+" FROM clients ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("querying clients: %w", err)
	}
	defer rows.Close()

	clients := make([]Client, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clients: %w", err)
	}
	return clients, nil
}

// GetByID returns ErrClientNotFound if no client has the ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Client, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+clientColumns+" FROM clients WHERE id = ?", id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	return c, err
}

// Create normalizes, validates and inserts c, assigning its ID and
// timestamps. A duplicate email returns ErrEmailTaken.
func (r *SQLiteRepository) Create(ctx context.Context, c *Client) error {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return err
	}

	now := r.now().UTC().Truncate(time.Second)
	c.ID = uuid.NewString()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO clients ("+clientColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.Name, c.Email, c.Plan, c.Status, c.LocationsCount,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrEmailTaken
		}
		return fmt.Errorf("inserting client: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*Client, error) {
	var (
		c                    Client
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Plan, &c.Status, &c.LocationsCount, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning client: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // written by Create
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // written by Create
	return &c, nil
}
