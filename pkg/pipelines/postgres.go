package pipelines

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// pgStore implements Store backed by PostgreSQL.
type pgStore struct {
	db  DB
	log *zap.SugaredLogger
}

// NewPostgresStore constructs a PostgreSQL-backed pipeline store.
func NewPostgresStore(db DB, log *zap.SugaredLogger) Store {
	return &pgStore{db: db, log: log}
}

// EnsureSchema creates the pipelines table if it does not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS pipelines (
  partition_key text NOT NULL,
  row_key text NOT NULL,
  pipeline_name text,
  pipeline_link text,
  pipeline_description text,
  input_field_instructions text,
  updated_at timestamptz NOT NULL DEFAULT NOW(),
  PRIMARY KEY (partition_key, row_key)
);
`)
	return err
}

// SeedFromEnv upserts seed records (see ParseSeed for the format).
func SeedFromEnv(ctx context.Context, db DB, jsonSeed string) error {
	if jsonSeed == "" {
		return nil
	}
	records, err := ParseSeed([]byte(jsonSeed))
	if err != nil {
		return err
	}
	for _, r := range records {
		if _, err := db.Exec(ctx, `INSERT INTO pipelines(partition_key,row_key,pipeline_name,pipeline_link,pipeline_description,input_field_instructions)
		  VALUES ($1,$2,$3,$4,$5,$6)
		  ON CONFLICT (partition_key,row_key) DO UPDATE SET pipeline_name=EXCLUDED.pipeline_name,pipeline_link=EXCLUDED.pipeline_link,
		  pipeline_description=EXCLUDED.pipeline_description,input_field_instructions=EXCLUDED.input_field_instructions,updated_at=NOW()`,
			r.PartitionKey, r.RowKey, r.PipelineName, r.PipelineLink, r.PipelineDescription, r.InputFieldInstructions); err != nil {
			return fmt.Errorf("seed pipeline %s/%s: %w", r.PartitionKey, r.RowKey, err)
		}
	}
	return nil
}

// ListByTenant returns the tenant's rows ordered by row key.
func (p *pgStore) ListByTenant(ctx context.Context, tenantID string) ([]Record, error) {
	rows, err := p.db.Query(ctx, `SELECT partition_key,row_key,pipeline_name,pipeline_link,pipeline_description,input_field_instructions
	  FROM pipelines WHERE partition_key=$1 ORDER BY row_key`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query pipelines: %w", err)
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.PartitionKey, &r.RowKey, &r.PipelineName, &r.PipelineLink, &r.PipelineDescription, &r.InputFieldInstructions); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipelines: %w", err)
	}
	p.log.Debugw("pipelines queried", "tenant", tenantID, "count", len(records))
	return records, nil
}
