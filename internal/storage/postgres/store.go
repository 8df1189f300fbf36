// Package postgres provides the durable store behind the issuance pipeline.
// Number reservation takes a row-level exclusive lock on the tenant profile
// and commits the counter advance in the same transaction as the draft
// insert, which is what keeps numbers gapless under concurrent callers.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/rezonia/einvoice/internal/lifecycle"
	"github.com/rezonia/einvoice/internal/model"
	"github.com/rezonia/einvoice/internal/numbering"
)

// Schema is the DDL this store expects
const Schema = `
CREATE TABLE IF NOT EXISTS merchant_profiles (
	tenant_id          TEXT PRIMARY KEY,
	last_issued_number BIGINT NOT NULL,
	profile            JSONB NOT NULL,
	cert_container     BYTEA NOT NULL,
	cert_password      TEXT NOT NULL,
	gateway_secret     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS invoices (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL REFERENCES merchant_profiles (tenant_id),
	number      BIGINT NOT NULL,
	serial      TEXT NOT NULL,
	full_number TEXT NOT NULL,
	status      TEXT NOT NULL,
	doc         JSONB NOT NULL,
	raw_xml     BYTEA,
	signed_xml  BYTEA,
	UNIQUE (tenant_id, number, serial)
);
`

// Postgres error codes treated as counter write conflicts
const (
	codeSerializationFailure = "40001"
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
)

// Store persists profiles and invoices in Postgres via lib/pq
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ lifecycle.Store = (*Store)(nil)

// Open connects to Postgres and creates the store
func Open(dsn string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// NewStore wraps an existing connection pool
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log}
}

// Migrate applies the schema
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// Close releases the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// PutProfile installs or replaces a tenant's merchant profile
func (s *Store) PutProfile(ctx context.Context, p *model.MerchantProfile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO merchant_profiles (tenant_id, last_issued_number, profile, cert_container, cert_password, gateway_secret)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO UPDATE SET
			profile = EXCLUDED.profile,
			cert_container = EXCLUDED.cert_container,
			cert_password = EXCLUDED.cert_password,
			gateway_secret = EXCLUDED.gateway_secret`,
		p.TenantID, p.LastIssuedNumber, doc, p.CertContainer, p.CertPassword, p.GatewaySecret)
	return err
}

// Profile returns the tenant's profile
func (s *Store) Profile(ctx context.Context, tenantID string) (*model.MerchantProfile, error) {
	return s.scanProfile(s.db.QueryRowContext(ctx, `
		SELECT last_issued_number, profile, cert_container, cert_password, gateway_secret
		FROM merchant_profiles WHERE tenant_id = $1`, tenantID), tenantID)
}

// Reserve locks the tenant profile row, advances the counter, runs fn, and
// commits everything together. Lock conflicts and serialization failures
// surface as numbering.ErrWriteConflict so the authority retries.
func (s *Store) Reserve(ctx context.Context, tenantID string, fn func(p *model.MerchantProfile, next int64, w numbering.InvoiceWriter) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reservation: %w", err)
	}
	defer tx.Rollback()

	profile, err := s.scanProfile(tx.QueryRowContext(ctx, `
		SELECT last_issued_number, profile, cert_container, cert_password, gateway_secret
		FROM merchant_profiles WHERE tenant_id = $1 FOR UPDATE NOWAIT`, tenantID), tenantID)
	if err != nil {
		return mapConflict(err)
	}

	next := profile.LastIssuedNumber + 1
	profile.LastIssuedNumber = next

	if _, err := tx.ExecContext(ctx, `
		UPDATE merchant_profiles SET last_issued_number = $1 WHERE tenant_id = $2`,
		next, tenantID); err != nil {
		return mapConflict(err)
	}

	if err := fn(profile, next, &txWriter{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapConflict(err)
	}
	return nil
}

// txWriter persists invoices inside the reservation transaction
type txWriter struct {
	tx *sql.Tx
}

func (w *txWriter) CreateInvoice(ctx context.Context, inv *model.Invoice) error {
	return insertInvoice(ctx, w.tx, inv)
}

// Invoice returns one invoice
func (s *Store) Invoice(ctx context.Context, tenantID, invoiceID string) (*model.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc, raw_xml, signed_xml FROM invoices WHERE tenant_id = $1 AND id = $2`,
		tenantID, invoiceID)

	var doc []byte
	var rawXML, signedXML []byte
	if err := row.Scan(&doc, &rawXML, &signedXML); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lifecycle.ErrInvoiceNotFound
		}
		return nil, err
	}

	var inv model.Invoice
	if err := json.Unmarshal(doc, &inv); err != nil {
		return nil, fmt.Errorf("unmarshal invoice: %w", err)
	}
	inv.RawXML = rawXML
	inv.SignedXML = signedXML
	return &inv, nil
}

// UpdateInvoice replaces a stored invoice
func (s *Store) UpdateInvoice(ctx context.Context, inv *model.Invoice) error {
	doc, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal invoice: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = $1, doc = $2, raw_xml = $3, signed_xml = $4
		WHERE tenant_id = $5 AND id = $6`,
		string(inv.Status), doc, inv.RawXML, inv.SignedXML, inv.TenantID, inv.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return lifecycle.ErrInvoiceNotFound
	}
	return nil
}

func insertInvoice(ctx context.Context, tx *sql.Tx, inv *model.Invoice) error {
	doc, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal invoice: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (id, tenant_id, number, serial, full_number, status, doc, raw_xml, signed_xml)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inv.ID, inv.TenantID, inv.Number, inv.Serial, inv.FullNumber, string(inv.Status), doc, inv.RawXML, inv.SignedXML)
	return mapConflict(err)
}

func (s *Store) scanProfile(row *sql.Row, tenantID string) (*model.MerchantProfile, error) {
	var lastIssued int64
	var doc []byte
	var container []byte
	var password, secret string

	if err := row.Scan(&lastIssued, &doc, &container, &password, &secret); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, numbering.ErrProfileNotFound
		}
		return nil, err
	}

	var p model.MerchantProfile
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	p.TenantID = tenantID
	p.LastIssuedNumber = lastIssued
	p.CertContainer = container
	p.CertPassword = password
	p.GatewaySecret = secret
	return &p, nil
}

// mapConflict translates Postgres lock/serialization failures into the
// numbering conflict sentinel
func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeSerializationFailure, codeLockNotAvailable, codeDeadlockDetected:
			return fmt.Errorf("%w: %v", numbering.ErrWriteConflict, err)
		}
	}
	return err
}
