package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aabboodi/edgehub/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresBackend persists policy sets and the telemetry log. The schema is
// managed by migrations outside this binary; Load verifies it is present.
type PostgresBackend struct {
	db *sql.DB
}

const (
	defaultDBMaxOpenConns    = 25
	defaultDBMaxIdleConns    = 10
	defaultDBConnMaxLifetime = 30 * time.Minute
	defaultDBConnMaxIdleTime = 5 * time.Minute
	defaultDBPingTimeout     = 5 * time.Second
	defaultDBQueryTimeout    = 10 * time.Second
)

func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, domain.InvalidArgument("database URL is required when the store driver is postgres")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, domain.Internal("failed to open postgres connection", err)
	}
	db.SetMaxOpenConns(defaultDBMaxOpenConns)
	db.SetMaxIdleConns(defaultDBMaxIdleConns)
	db.SetConnMaxLifetime(defaultDBConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultDBConnMaxIdleTime)

	return &PostgresBackend{db: db}, nil
}

func (s *PostgresBackend) Load() error {
	pingCtx, cancel := context.WithTimeout(context.Background(), defaultDBPingTimeout)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return domain.Internal("failed to connect to postgres", err)
	}
	return s.verifySchemaReady()
}

func (s *PostgresBackend) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresBackend) verifySchemaReady() error {
	requiredTables := []string{
		"policy_sets",
		"telemetry_records",
	}

	for _, tableName := range requiredTables {
		var exists bool
		if err := s.db.QueryRow(`SELECT to_regclass($1) IS NOT NULL`, "public."+tableName).Scan(&exists); err != nil {
			return domain.Internal("failed to verify database schema", err)
		}
		if !exists {
			return &domain.AppError{
				Code:    domain.CodeFailedPrecondition,
				Message: fmt.Sprintf("required table %q is missing; run database migrations before starting edgehub", tableName),
			}
		}
	}
	return nil
}

func (s *PostgresBackend) SavePolicySet(scope string, policies []domain.Policy) error {
	payload, err := json.Marshal(policies)
	if err != nil {
		return domain.Internal("failed to serialize policy set", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultDBQueryTimeout)
	defer cancel()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policy_sets (scope, policies, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (scope) DO UPDATE
		SET policies = EXCLUDED.policies, updated_at = now()
	`, scope, payload)
	if err != nil {
		return domain.Internal("failed to persist policy set", err)
	}
	return nil
}

func (s *PostgresBackend) DeletePolicySet(scope string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultDBQueryTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM policy_sets WHERE scope = $1`, scope); err != nil {
		return domain.Internal("failed to delete policy set", err)
	}
	return nil
}

func (s *PostgresBackend) LoadPolicySets() (map[string][]domain.Policy, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultDBQueryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT scope, policies FROM policy_sets`)
	if err != nil {
		return nil, domain.Internal("failed to load policy sets", err)
	}
	defer rows.Close()

	out := map[string][]domain.Policy{}
	for rows.Next() {
		var scope string
		var payload []byte
		if err := rows.Scan(&scope, &payload); err != nil {
			return nil, domain.Internal("failed to scan policy set row", err)
		}
		var policies []domain.Policy
		if err := json.Unmarshal(payload, &policies); err != nil {
			return nil, domain.Internal("failed to parse stored policy set", err)
		}
		out[scope] = policies
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal("failed to iterate policy sets", err)
	}
	return out, nil
}

func (s *PostgresBackend) AppendTelemetry(record domain.TelemetryRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return domain.Internal("failed to serialize telemetry record", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultDBQueryTimeout)
	defer cancel()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO telemetry_records (device_id, record, recorded_at)
		VALUES ($1, $2, $3)
	`, record.DeviceID, payload, record.Timestamp.UTC())
	if err != nil {
		return domain.Internal("failed to persist telemetry record", err)
	}
	return nil
}

func (s *PostgresBackend) LoadTelemetrySince(cutoff time.Time) ([]domain.TelemetryRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultDBQueryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT record
		FROM telemetry_records
		WHERE recorded_at >= $1
		ORDER BY recorded_at ASC
	`, cutoff.UTC())
	if err != nil {
		return nil, domain.Internal("failed to load telemetry records", err)
	}
	defer rows.Close()

	var out []domain.TelemetryRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, domain.Internal("failed to scan telemetry row", err)
		}
		var record domain.TelemetryRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, domain.Internal("failed to parse stored telemetry record", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal("failed to iterate telemetry records", err)
	}
	return out, nil
}
