package client

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/techscire/scirecount-core/internal/infrastructure/config"
	"github.com/techscire/scirecount-core/internal/infrastructure/database"
	_ "github.com/techscire/scirecount-core/migrations"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "clients.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_CreateDefaults(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	c := &Client{Name: " Loja Lisboa ", Email: "Ops@Example.com"}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if c.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}

	got, err := repo.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Loja Lisboa" || got.Email != "ops@example.com" {
		t.Errorf("Name/Email = %q/%q", got.Name, got.Email)
	}
	if got.Plan != DefaultPlan || got.Status != DefaultStatus || got.LocationsCount != 0 {
		t.Errorf("defaults = %q/%q/%d", got.Plan, got.Status, got.LocationsCount)
	}
}

func TestSQLiteRepository_DuplicateEmail(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, &Client{Name: "A", Email: "a@example.com"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := repo.Create(ctx, &Client{Name: "B", Email: "A@example.com"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate Create() error = %v, want ErrEmailTaken", err)
	}
}

func TestSQLiteRepository_Validation(t *testing.T) {
	repo := setupRepo(t)

	tests := []struct {
		name   string
		client Client
	}{
		{"missing name", Client{Email: "a@example.com"}},
		{"missing email", Client{Name: "A"}},
		{"bad email", Client{Name: "A", Email: "not-an-email"}},
		{"negative locations", Client{Name: "A", Email: "a@example.com", LocationsCount: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.client
			if err := repo.Create(context.Background(), &c); !errors.Is(err, ErrInvalidClient) {
				t.Errorf("Create() error = %v, want ErrInvalidClient", err)
			}
		})
	}
}

func TestSQLiteRepository_List(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	empty, err := repo.List(ctx)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("List() on empty table = %v, %v", empty, err)
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, email := range []string{"old@example.com", "new@example.com"} {
		at := base.Add(time.Duration(i) * time.Hour)
		repo.now = func() time.Time { return at }
		if err := repo.Create(ctx, &Client{Name: "C", Email: email, Plan: "Basic"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	clients, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(clients) != 2 || clients[0].Email != "new@example.com" {
		t.Errorf("List() = %+v, want newest first", clients)
	}
	if clients[0].Plan != "Basic" {
		t.Errorf("Plan = %q, want Basic", clients[0].Plan)
	}
}

func TestSQLiteRepository_GetByID_NotFound(t *testing.T) {
	repo := setupRepo(t)
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("GetByID() error = %v, want ErrClientNotFound", err)
	}
}
