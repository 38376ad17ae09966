package device

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// MaxHistoryResults caps every history query.
const MaxHistoryResults = 100

// HistoryRepository is the append-only reading log.
type HistoryRepository interface {
	// Append stores a reading and sets its ID.
	Append(ctx context.Context, reading *Reading) error

	// Query returns matching readings newest first, at most MaxHistoryResults.
	Query(ctx context.Context, filter HistoryFilter) ([]Reading, error)
}

// SQLiteHistoryRepository implements HistoryRepository on the readings table.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a history repository on an open
// SQLite connection.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Append inserts a reading. Readings are never updated or deleted.
func (r *SQLiteHistoryRepository) Append(ctx context.Context, reading *Reading) error {
	if reading.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidReading)
	}
	if reading.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidReading)
	}

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO readings (device_id, in_count, out_count, occupancy, timestamp) VALUES (?, ?, ?, ?, ?)",
		reading.DeviceID, reading.InCount, reading.OutCount, reading.Occupancy,
		formatTimestamp(reading.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading insert id: %w", err)
	}
	reading.ID = id
	return nil
}

// Query returns readings ordered by timestamp descending, ties broken by
// insertion order descending. An empty result is not an error.
func (r *SQLiteHistoryRepository) Query(ctx context.Context, filter HistoryFilter) ([]Reading, error) {
	var (
		where []string
		args  []any
	)
	if filter.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.HasRange() {
		where = append(where, "timestamp >= ? AND timestamp <= ?")
		args = append(args, formatTimestamp(*filter.Start), formatTimestamp(*filter.End))
	}

	query := "SELECT id, device_id, in_count, out_count, occupancy, timestamp FROM readings"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, clampHistoryLimit(filter.Limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	readings := make([]Reading, 0)
	for rows.Next() {
		var (
			rd Reading
			ts string
		)
		if err := rows.Scan(&rd.ID, &rd.DeviceID, &rd.InCount, &rd.OutCount, &rd.Occupancy, &ts); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		if rd.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, fmt.Errorf("parsing reading timestamp: %w", err)
		}
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}

func clampHistoryLimit(limit int) int {
	if limit <= 0 || limit > MaxHistoryResults {
		return MaxHistoryResults
	}
	return limit
}
