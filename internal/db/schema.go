package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // Driver
)

const schemaSequenceSQL = `
CREATE SEQUENCE IF NOT EXISTS event_log_id_seq;
CREATE SEQUENCE IF NOT EXISTS classifier_id_seq;
CREATE SEQUENCE IF NOT EXISTS region_id_seq;
CREATE SEQUENCE IF NOT EXISTS product_id_seq;
CREATE SEQUENCE IF NOT EXISTS purchase_id_seq;
`

const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS classifiers (
    classifier_id   BIGINT PRIMARY KEY DEFAULT nextval('classifier_id_seq'),
    name            VARCHAR NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS classifications (
    code            VARCHAR PRIMARY KEY,
    classifier_id   BIGINT NOT NULL REFERENCES classifiers (classifier_id)
);
CREATE TABLE IF NOT EXISTS regions (
    region_id       BIGINT PRIMARY KEY DEFAULT nextval('region_id_seq'),
    name            VARCHAR NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS products (
    product_id          BIGINT PRIMARY KEY DEFAULT nextval('product_id_seq'),
    name                VARCHAR NOT NULL UNIQUE,
    classification_code VARCHAR NOT NULL,
    is_russian          BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS purchases (
    purchase_id         BIGINT PRIMARY KEY DEFAULT nextval('purchase_id_seq'),
    name                VARCHAR NOT NULL UNIQUE,  -- notification number
    region_id           BIGINT NOT NULL REFERENCES regions (region_id),
    purchase_date       DATE NOT NULL,
    price               DECIMAL(18,2) NOT NULL,
    product_id          BIGINT NOT NULL REFERENCES products (product_id),
    object_description  VARCHAR NOT NULL
);
CREATE TABLE IF NOT EXISTS ingest_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('event_log_id_seq'),
    run_id          VARCHAR NOT NULL,
    region          VARCHAR NOT NULL,
    filename        VARCHAR NOT NULL,      -- archive name, or region name for run level events
    filetype        VARCHAR NOT NULL,      -- 'archive', 'region'
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    message         VARCHAR,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_ingest_event_log_file ON ingest_event_log (region, filename, filetype);
CREATE INDEX IF NOT EXISTS idx_ingest_event_log_event_time ON ingest_event_log (event, event_timestamp);
`

// InitializeSchema creates the sequences and tables in the correct order.
func InitializeSchema(db *sql.DB) error {
	// 1. Sequences first, tables default to them.
	_, err := db.Exec(schemaSequenceSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	// 2. Tables and indices
	_, err = db.Exec(schemaTableSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}
