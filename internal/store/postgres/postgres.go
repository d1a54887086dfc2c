// Package postgres implements store.Store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/invoply/invoply-api/internal/apperrors"
	"github.com/invoply/invoply-api/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database named by dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "create pgx pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return &Store{pool: pool}, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id                  UUID PRIMARY KEY,
		email               TEXT NOT NULL UNIQUE,
		password_hash       TEXT NOT NULL DEFAULT '',
		api_key             TEXT NOT NULL DEFAULT '',
		business_name       TEXT NOT NULL DEFAULT '',
		subscription_active BOOLEAN NOT NULL DEFAULT FALSE,
		created_at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_api_key ON accounts(api_key) WHERE api_key != ''`,
	`CREATE TABLE IF NOT EXISTS clients (
		id         UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts(id),
		name       TEXT NOT NULL,
		email      TEXT NOT NULL DEFAULT '',
		phone      TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_account ON clients(account_id)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id             UUID PRIMARY KEY,
		account_id     UUID NOT NULL REFERENCES accounts(id),
		client_id      UUID,
		invoice_number TEXT NOT NULL DEFAULT '',
		items_json     JSONB NOT NULL,
		total_cents    BIGINT NOT NULL,
		due_date       TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL,
		paid           BOOLEAN NOT NULL DEFAULT FALSE,
		paid_at        TIMESTAMPTZ,
		artifact_ref   TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_account ON invoices(account_id, created_at DESC)`,
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply migration")
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Accounts

func (s *Store) CreateAccount(ctx context.Context, a *store.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, password_hash, api_key, business_name, subscription_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, strings.ToLower(a.Email), a.PasswordHash, a.APIKey, a.BusinessName, a.SubscriptionActive, a.CreatedAt)
	return errors.Wrap(err, "insert account")
}

const accountColumns = `id, email, password_hash, api_key, business_name, subscription_active, created_at`

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*store.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*store.Account, error) {
	// Emails are stored lowercased; the LOWER guard also covers rows written
	// before normalization.
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = $1`,
		strings.ToLower(email))
	return scanAccount(row)
}

func (s *Store) GetAccountByAPIKey(ctx context.Context, key string) (*store.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE api_key = $1 AND api_key != ''`, key)
	return scanAccount(row)
}

func (s *Store) UpdateAccountBusinessName(ctx context.Context, id uuid.UUID, businessName string) (*store.Account, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE accounts SET business_name = $1 WHERE id = $2 RETURNING `+accountColumns,
		businessName, id)
	return scanAccount(row)
}

func (s *Store) SetAccountEntitlement(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET subscription_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return errors.Wrap(err, "update entitlement")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Clients

func (s *Store) CreateClient(ctx context.Context, c *store.Client) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO clients (id, account_id, name, email, phone, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.AccountID, c.Name, c.Email, c.Phone, c.CreatedAt)
	return errors.Wrap(err, "insert client")
}

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*store.Client, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, account_id, name, email, phone, created_at FROM clients WHERE id = $1`, id)
	return scanClient(row)
}

func (s *Store) ListClientsByAccount(ctx context.Context, accountID uuid.UUID) ([]store.Client, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, name, email, phone, created_at FROM clients
		 WHERE account_id = $1 ORDER BY created_at ASC`, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "list clients")
	}
	defer rows.Close()

	var out []store.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateClient(ctx context.Context, c *store.Client) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE clients SET name = $1, email = $2, phone = $3 WHERE id = $4`,
		c.Name, c.Email, c.Phone, c.ID)
	if err != nil {
		return errors.Wrap(err, "update client")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteClient(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete client")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Invoices

func (s *Store) CreateInvoice(ctx context.Context, inv *store.Invoice) error {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return errors.Wrap(err, "marshal line items")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO invoices (id, account_id, client_id, invoice_number, items_json, total_cents, due_date, created_at, paid, paid_at, artifact_ref)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inv.ID, inv.AccountID, inv.ClientID, inv.Number, items, inv.TotalCents,
		inv.DueDate, inv.CreatedAt, inv.Paid, inv.PaidAt, inv.ArtifactRef)
	return errors.Wrap(err, "insert invoice")
}

const invoiceColumns = `id, account_id, client_id, invoice_number, items_json, total_cents, due_date, created_at, paid, paid_at, artifact_ref`

func (s *Store) GetInvoice(ctx context.Context, id uuid.UUID) (*store.Invoice, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return scanInvoice(row)
}

func (s *Store) ListInvoicesByAccount(ctx context.Context, accountID uuid.UUID) ([]store.Invoice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "list invoices")
	}
	defer rows.Close()

	var out []store.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (s *Store) MarkInvoicePaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*store.Invoice, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE invoices SET paid = TRUE, paid_at = COALESCE(paid_at, $1)
		 WHERE id = $2 RETURNING `+invoiceColumns, paidAt, id)
	return scanInvoice(row)
}

func (s *Store) CommitInvoiceArtifact(ctx context.Context, id uuid.UUID, ref string) (string, bool, error) {
	// Compare-and-set on the single row; first writer wins.
	tag, err := s.pool.Exec(ctx,
		`UPDATE invoices SET artifact_ref = $1 WHERE id = $2 AND artifact_ref = ''`,
		ref, id)
	if err != nil {
		return "", false, errors.Wrap(err, "commit artifact ref")
	}
	if tag.RowsAffected() == 1 {
		return ref, true, nil
	}
	inv, err := s.GetInvoice(ctx, id)
	if err != nil {
		return "", false, err
	}
	return inv.ArtifactRef, false, nil
}

func (s *Store) ReplaceInvoiceArtifact(ctx context.Context, id uuid.UUID, ref string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE invoices SET artifact_ref = $1 WHERE id = $2`, ref, id)
	if err != nil {
		return errors.Wrap(err, "replace artifact ref")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// scanning helpers

func scanAccount(row pgx.Row) (*store.Account, error) {
	var a store.Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.APIKey, &a.BusinessName,
		&a.SubscriptionActive, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan account")
	}
	return &a, nil
}

func scanClient(row pgx.Row) (*store.Client, error) {
	var c store.Client
	err := row.Scan(&c.ID, &c.AccountID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan client")
	}
	return &c, nil
}

func scanInvoice(row pgx.Row) (*store.Invoice, error) {
	var inv store.Invoice
	var items []byte
	err := row.Scan(&inv.ID, &inv.AccountID, &inv.ClientID, &inv.Number, &items,
		&inv.TotalCents, &inv.DueDate, &inv.CreatedAt, &inv.Paid, &inv.PaidAt, &inv.ArtifactRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan invoice")
	}
	if err := json.Unmarshal(items, &inv.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal line items")
	}
	return &inv, nil
}
