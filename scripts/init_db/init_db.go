package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "fleettrack_user"),
		dbGetEnv("DB_PASSWORD", "fleettrack_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "fleettrack"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to TimescaleDB...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure TimescaleDB is running:\n  docker-compose up -d timescaledb", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	step1_extensions(ctx, conn)
	step2_positions_table(ctx, conn)
	step3_alerts_table(ctx, conn)
	step4_indexes(ctx, conn)
	step5_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run ./scripts/seed_redis")
}

func step1_extensions(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: Extensions ──────────────────────────")

	// TimescaleDB — required for the positions hypertable
	execOrFatal(ctx, conn,
		"CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;",
		"timescaledb extension",
	)
}

func step2_positions_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: tracker_positions table ─────────────")

	// Column order must match store.positionColumns — CopyFrom is
	// positional.
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS tracker_positions (

			-- Device GPS fix time — TimescaleDB partitions by this
			timestamp    TIMESTAMPTZ      NOT NULL,

			-- Server receipt time; device clocks drift
			received_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			tracker_id   TEXT             NOT NULL,

			latitude     DOUBLE PRECISION NOT NULL,
			longitude    DOUBLE PRECISION NOT NULL,

			speed_kmh    DOUBLE PRECISION NOT NULL DEFAULT 0,
			heading_deg  DOUBLE PRECISION NOT NULL DEFAULT 0,
			altitude_m   DOUBLE PRECISION NOT NULL DEFAULT 0,
			odometer_km  DOUBLE PRECISION NOT NULL DEFAULT 0,

			online       BOOLEAN          NOT NULL DEFAULT true
		);
	`, "tracker_positions table created")

	// 7-day chunks: history queries mostly touch recent data
	execOrFatal(ctx, conn, `
		SELECT create_hypertable(
			'tracker_positions',
			'timestamp',
			if_not_exists => TRUE
		);
	`, "tracker_positions converted to hypertable")
}

func step3_alerts_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: tracker_alerts table ────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS tracker_alerts (

			-- Alert ids are generated in-process (uuid)
			id               TEXT             PRIMARY KEY,

			tracker_id       TEXT             NOT NULL,

			alert_type       TEXT             NOT NULL,
			severity         TEXT             NOT NULL,
			status           TEXT             NOT NULL DEFAULT 'new',
			message          TEXT             NOT NULL,

			-- Context captured at creation time
			geofence_id      TEXT,
			latitude         DOUBLE PRECISION,
			longitude        DOUBLE PRECISION,
			speed_kmh        DOUBLE PRECISION,
			speed_limit_kmh  DOUBLE PRECISION,

			created_at       TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			-- Lifecycle — NULL until the transition happens
			acked_at         TIMESTAMPTZ,
			acked_by         TEXT,
			resolved_at      TIMESTAMPTZ,
			resolved_by      TEXT,

			CONSTRAINT chk_status CHECK (
				status IN ('new', 'read', 'acknowledged', 'resolved')
			),

			CONSTRAINT chk_severity CHECK (
				severity IN ('low', 'medium', 'high', 'critical')
			)
		);
	`, "tracker_alerts table created")
}

func step4_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_positions_tracker_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_positions_tracker_time
				  ON tracker_positions (tracker_id, timestamp DESC);`,
			why: "query: track history for one tracker",
		},
		{
			name: "idx_alerts_tracker",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_tracker
				  ON tracker_alerts (tracker_id, created_at DESC);`,
			why: "query: alerts for one tracker",
		},
		{
			name: "idx_alerts_status",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_status
				  ON tracker_alerts (status, created_at DESC);`,
			why: "query: open alerts across the fleet",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql, idx.name)
		fmt.Printf("      → %s\n", idx.why)
	}
}

func step5_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: Verification ────────────────────────")

	for _, table := range []string{"tracker_positions", "tracker_alerts"} {
		var count int
		err := conn.QueryRow(ctx,
			"SELECT count(*) FROM information_schema.tables WHERE table_name = $1",
			table,
		).Scan(&count)
		if err != nil || count == 0 {
			log.Fatalf("Verification failed for %s: %v", table, err)
		}
		fmt.Printf("  ✓ %s exists\n", table)
	}

	var isHypertable int
	err := conn.QueryRow(ctx,
		"SELECT count(*) FROM timescaledb_information.hypertables WHERE hypertable_name = 'tracker_positions'",
	).Scan(&isHypertable)
	if err != nil || isHypertable == 0 {
		log.Fatalf("tracker_positions is not a hypertable: %v", err)
	}
	fmt.Println("  ✓ tracker_positions is a hypertable")
}

func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	if _, err := conn.Exec(ctx, sql); err != nil {
		log.Fatalf("Failed (%s): %v", label, err)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
