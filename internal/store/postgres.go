// Package store is the Postgres archive behind the gateway. It is a
// write-behind sink only; nothing on the request path reads from it.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Store struct{ DB *sql.DB }

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{DB: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		`CREATE TABLE IF NOT EXISTS mls_listings (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            listing_key            TEXT NOT NULL,
            address                TEXT,
            city                   TEXT,
            state_or_province      TEXT,
            postal_code            TEXT,
            standard_status        TEXT,
            transaction_type       TEXT,
            property_type          TEXT,
            property_sub_type      TEXT,
            list_price             NUMERIC,
            bedrooms_total         SMALLINT,
            bathrooms_total        SMALLINT,
            list_office_key        TEXT,
            lat                    DOUBLE PRECISION,
            lon                    DOUBLE PRECISION,
            modification_timestamp TEXT,
            media_change_timestamp TEXT,
            created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_mls_listings_key ON mls_listings(listing_key);`,
		`CREATE INDEX IF NOT EXISTS idx_mls_listings_city ON mls_listings(city);`,
		`CREATE INDEX IF NOT EXISTS idx_mls_listings_postal ON mls_listings(postal_code);`,
		`CREATE TABLE IF NOT EXISTS listing_media (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            listing_id  UUID NOT NULL REFERENCES mls_listings(id) ON DELETE CASCADE,
            href        TEXT NOT NULL,
            position    INTEGER,
            created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_listing_media_listing ON listing_media(listing_id);`,
		`CREATE TABLE IF NOT EXISTS mls_raw_snapshots (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            endpoint       TEXT NOT NULL,
            payload        JSONB NOT NULL,
            payload_sha256 TEXT NOT NULL,
            fetched_at     TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_mls_snapshots_endpoint ON mls_raw_snapshots(endpoint, fetched_at DESC);`,
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

type ListingInput struct {
	ListingKey            string
	Address               string
	City                  string
	StateOrProvince       string
	PostalCode            string
	StandardStatus        string
	TransactionType       string
	PropertyType          string
	PropertySubType       string
	ListPrice             sql.NullFloat64
	BedroomsTotal         sql.NullInt64
	BathroomsTotal        sql.NullInt64
	ListOfficeKey         sql.NullString
	Lat                   sql.NullFloat64
	Lon                   sql.NullFloat64
	ModificationTimestamp sql.NullString
	MediaChangeTimestamp  sql.NullString
	MediaURLs             []string
}

// UpsertListing writes one listing keyed by listing_key and replaces
// its media rows. Returns the row id.
func (s *Store) UpsertListing(ctx context.Context, in ListingInput) (string, error) {
	if s.DB == nil {
		return "", errors.New("nil db")
	}
	if in.ListingKey == "" {
		return "", errors.New("empty listing key")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id string
	err = tx.QueryRowContext(ctx, `
        INSERT INTO mls_listings (listing_key, address, city, state_or_province, postal_code,
            standard_status, transaction_type, property_type, property_sub_type,
            list_price, bedrooms_total, bathrooms_total, list_office_key, lat, lon,
            modification_timestamp, media_change_timestamp)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
        ON CONFLICT (listing_key)
        DO UPDATE SET address=EXCLUDED.address, city=EXCLUDED.city,
            state_or_province=EXCLUDED.state_or_province, postal_code=EXCLUDED.postal_code,
            standard_status=EXCLUDED.standard_status, transaction_type=EXCLUDED.transaction_type,
            property_type=EXCLUDED.property_type, property_sub_type=EXCLUDED.property_sub_type,
            list_price=EXCLUDED.list_price, bedrooms_total=EXCLUDED.bedrooms_total,
            bathrooms_total=EXCLUDED.bathrooms_total, list_office_key=EXCLUDED.list_office_key,
            lat=EXCLUDED.lat, lon=EXCLUDED.lon,
            modification_timestamp=EXCLUDED.modification_timestamp,
            media_change_timestamp=EXCLUDED.media_change_timestamp,
            updated_at=now()
        RETURNING id`,
		in.ListingKey, in.Address, in.City, in.StateOrProvince, in.PostalCode,
		in.StandardStatus, in.TransactionType, in.PropertyType, in.PropertySubType,
		in.ListPrice, in.BedroomsTotal, in.BathroomsTotal, in.ListOfficeKey, in.Lat, in.Lon,
		in.ModificationTimestamp, in.MediaChangeTimestamp,
	).Scan(&id)
	if err != nil {
		return "", err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM listing_media WHERE listing_id=$1`, id); err != nil {
		return "", err
	}
	for i, href := range in.MediaURLs {
		if href == "" {
			continue
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO listing_media (listing_id, href, position) VALUES ($1,$2,$3)`,
			id, href, i); err != nil {
			return "", err
		}
	}

	err = tx.Commit()
	if err != nil {
		return "", err
	}
	return id, nil
}

// WriteSnapshot archives one raw page payload.
func (s *Store) WriteSnapshot(ctx context.Context, endpoint string, payload []byte) error {
	if s.DB == nil {
		return errors.New("nil db")
	}
	sum := sha256.Sum256(payload)
	sha := hex.EncodeToString(sum[:])
	_, err := s.DB.ExecContext(ctx, `
        INSERT INTO mls_raw_snapshots (endpoint, payload, payload_sha256)
        VALUES ($1,$2,$3)`, endpoint, string(payload), sha)
	return err
}
