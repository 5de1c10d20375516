package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleettrack/internal/config"
	"fleettrack/internal/domain"
)

// PostgresStore is the durable archive: position samples land in a
// Timescale hypertable via CopyFrom batches, alerts are persisted with
// their lifecycle timestamps. The in-memory log and alert engine stay
// authoritative for live queries; the archive serves restarts and
// long-range history.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var positionColumns = []string{
	"timestamp",
	"received_at",
	"tracker_id",
	"latitude",
	"longitude",
	"speed_kmh",
	"heading_deg",
	"altitude_m",
	"odometer_km",
	"online",
}

// BatchInsert archives a batch of samples with a single CopyFrom.
func (s *PostgresStore) BatchInsert(ctx context.Context, samples []*domain.PositionSample) error {
	if len(samples) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(samples))
	for i, sm := range samples {
		rows[i] = []interface{}{
			sm.Timestamp,
			sm.ReceivedAt,
			sm.TrackerID,
			sm.Lat,
			sm.Lng,
			sm.SpeedKmh,
			sm.HeadingDeg,
			sm.AltitudeM,
			sm.OdometerKm,
			sm.Online,
		}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"tracker_positions"},
		positionColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("CopyFrom failed for batch of %d: %w", len(samples), err)
	}

	return nil
}

// ActiveTrackers lists tracker ids with at least one archived sample
// since the given time.
func (s *PostgresStore) ActiveTrackers(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT tracker_id
		FROM tracker_positions
		WHERE timestamp >= $1
	`, since)
	if err != nil {
		return nil, fmt.Errorf("active trackers query failed: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// FetchRange loads archived samples for one tracker in a time window,
// oldest first. Used to rebuild the in-memory log after a restart.
func (s *PostgresStore) FetchRange(ctx context.Context, trackerID string, start, end time.Time) ([]domain.PositionSample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT timestamp, received_at, tracker_id, latitude, longitude,
		       speed_kmh, heading_deg, altitude_m, odometer_km, online
		FROM tracker_positions
		WHERE tracker_id = $1 AND timestamp BETWEEN $2 AND $3
		ORDER BY timestamp ASC
	`, trackerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch range failed: %w", err)
	}
	defer rows.Close()

	var out []domain.PositionSample
	for rows.Next() {
		var sm domain.PositionSample
		if err := rows.Scan(
			&sm.Timestamp, &sm.ReceivedAt, &sm.TrackerID, &sm.Lat, &sm.Lng,
			&sm.SpeedKmh, &sm.HeadingDeg, &sm.AltitudeM, &sm.OdometerKm, &sm.Online,
		); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// InsertAlert archives a newly created alert.
func (s *PostgresStore) InsertAlert(ctx context.Context, a domain.Alert) error {
	query := `
		INSERT INTO tracker_alerts
			(id, tracker_id, alert_type, severity, status, message,
			 geofence_id, latitude, longitude, speed_kmh, speed_limit_kmh, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query,
		a.ID,
		a.TrackerID,
		string(a.Type),
		string(a.Severity),
		string(a.Status),
		a.Message,
		nullable(a.GeofenceID),
		a.Lat,
		a.Lng,
		a.SpeedKmh,
		a.SpeedLimitKmh,
		a.CreatedAt,
	)
	return err
}

// UpdateAlertStatus mirrors a lifecycle transition into the archive.
func (s *PostgresStore) UpdateAlertStatus(ctx context.Context, a domain.Alert) error {
	query := `
		UPDATE tracker_alerts
		SET status = $2,
		    acked_at = $3, acked_by = $4,
		    resolved_at = $5, resolved_by = $6
		WHERE id = $1
	`
	_, err := s.pool.Exec(ctx, query,
		a.ID,
		string(a.Status),
		a.AckedAt,
		nullable(a.AckedBy),
		a.ResolvedAt,
		nullable(a.ResolvedBy),
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
