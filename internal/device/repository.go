package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Repository defines device persistence operations.
type Repository interface {
	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List returns all devices in creation order.
	List(ctx context.Context) ([]Device, error)

	// Create returns ErrDeviceExists if the ID is already taken.
	Create(ctx context.Context, device *Device) error

	// Update returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error
}

// SQLiteRepository implements Repository on the devices table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `device_id, name, status, model, last_in, last_out,
	current_occupancy, last_update, created_at, updated_at`

// GetByID retrieves a device by its sensor-reported identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE device_id = ?", id)

	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device %s: %w", id, err)
	}
	return d, nil
}

// List retrieves all devices ordered by creation time.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+deviceColumns+" FROM devices ORDER BY created_at, device_id")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device row.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DeviceID, d.Name, string(d.Status), d.Model, d.LastIn, d.LastOut,
		d.CurrentOccupancy,
		formatTimestamp(d.LastUpdate), formatTimestamp(d.CreatedAt), formatTimestamp(d.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device %s: %w", d.DeviceID, err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET
			name = ?, status = ?, model = ?, last_in = ?, last_out = ?,
			current_occupancy = ?, last_update = ?, updated_at = ?
		WHERE device_id = ?`,
		d.Name, string(d.Status), d.Model, d.LastIn, d.LastOut,
		d.CurrentOccupancy, formatTimestamp(d.LastUpdate), formatTimestamp(d.UpdatedAt),
		d.DeviceID,
	)
	if err != nil {
		return fmt.Errorf("updating device %s: %w", d.DeviceID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d                                Device
		status                           string
		lastUpdate, createdAt, updatedAt string
	)
	if err := row.Scan(&d.DeviceID, &d.Name, &status, &d.Model, &d.LastIn, &d.LastOut,
		&d.CurrentOccupancy, &lastUpdate, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Status = Status(status)

	var err error
	if d.LastUpdate, err = parseTimestamp(lastUpdate); err != nil {
		return nil, fmt.Errorf("parsing last_update: %w", err)
	}
	if d.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

// isConstraintViolation reports whether err is a SQLite PRIMARY KEY or
// UNIQUE constraint failure.
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
