// Package sqlite implements store.Store on a local SQLite database using the
// pure-Go modernc driver. It is the default driver and matches the service's
// original single-file deployment model.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/invoply/invoply-api/internal/apperrors"
	"github.com/invoply/invoply-api/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store wraps a database/sql handle on a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if necessary) the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}
	// SQLite allows one writer at a time; a single pooled connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA foreign_keys=ON`} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "configure sqlite")
		}
	}
	return &Store{db: db}, nil
}

// migrations holds the schema statements. Each string is a single SQL
// statement (SQLite executes one at a time).
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id                  TEXT PRIMARY KEY,
		email               TEXT NOT NULL UNIQUE,
		password_hash       TEXT NOT NULL DEFAULT '',
		api_key             TEXT NOT NULL DEFAULT '',
		business_name       TEXT NOT NULL DEFAULT '',
		subscription_active INTEGER NOT NULL DEFAULT 0,
		created_at          TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_api_key ON accounts(api_key) WHERE api_key != ''`,
	`CREATE TABLE IF NOT EXISTS clients (
		id         TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		name       TEXT NOT NULL,
		email      TEXT NOT NULL DEFAULT '',
		phone      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_account ON clients(account_id)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id             TEXT PRIMARY KEY,
		account_id     TEXT NOT NULL REFERENCES accounts(id),
		client_id      TEXT,
		invoice_number TEXT NOT NULL DEFAULT '',
		items_json     TEXT NOT NULL,
		total_cents    INTEGER NOT NULL,
		due_date       TEXT,
		created_at     TEXT NOT NULL,
		paid           INTEGER NOT NULL DEFAULT 0,
		paid_at        TEXT,
		artifact_ref   TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_account ON invoices(account_id, created_at DESC)`,
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply migration")
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// Accounts

func (s *Store) CreateAccount(ctx context.Context, a *store.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, api_key, business_name, subscription_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), strings.ToLower(a.Email), a.PasswordHash, a.APIKey, a.BusinessName,
		boolToInt(a.SubscriptionActive), formatTime(a.CreatedAt))
	return errors.Wrap(err, "insert account")
}

const accountColumns = `id, email, password_hash, api_key, business_name, subscription_active, created_at`

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*store.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String())
	return scanAccount(row)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*store.Account, error) {
	// Emails are stored lowercased; the LOWER guard also covers rows written
	// before normalization.
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = ?`,
		strings.ToLower(email))
	return scanAccount(row)
}

func (s *Store) GetAccountByAPIKey(ctx context.Context, key string) (*store.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE api_key = ? AND api_key != ''`, key)
	return scanAccount(row)
}

func (s *Store) UpdateAccountBusinessName(ctx context.Context, id uuid.UUID, businessName string) (*store.Account, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET business_name = ? WHERE id = ?`, businessName, id.String())
	if err != nil {
		return nil, errors.Wrap(err, "update account")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperrors.ErrNotFound
	}
	return s.GetAccount(ctx, id)
}

func (s *Store) SetAccountEntitlement(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET subscription_active = ? WHERE id = ?`,
		boolToInt(active), id.String())
	if err != nil {
		return errors.Wrap(err, "update entitlement")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Clients

func (s *Store) CreateClient(ctx context.Context, c *store.Client) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (id, account_id, name, email, phone, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.AccountID.String(), c.Name, c.Email, c.Phone, formatTime(c.CreatedAt))
	return errors.Wrap(err, "insert client")
}

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*store.Client, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, name, email, phone, created_at FROM clients WHERE id = ?`, id.String())
	return scanClient(row)
}

func (s *Store) ListClientsByAccount(ctx context.Context, accountID uuid.UUID) ([]store.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, name, email, phone, created_at FROM clients
		 WHERE account_id = ? ORDER BY created_at ASC`, accountID.String())
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
	res, err := s.db.ExecContext(ctx,
		`UPDATE clients SET name = ?, email = ?, phone = ? WHERE id = ?`,
		c.Name, c.Email, c.Phone, c.ID.String())
	if err != nil {
		return errors.Wrap(err, "update client")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteClient(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id.String())
	if err != nil {
		return errors.Wrap(err, "delete client")
	}
	if n, _ := res.RowsAffected(); n == 0 {
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
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO invoices (id, account_id, client_id, invoice_number, items_json, total_cents, due_date, created_at, paid, paid_at, artifact_ref)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID.String(), inv.AccountID.String(), uuidPtrToNull(inv.ClientID),
		inv.Number, string(items), inv.TotalCents, timePtrToNull(inv.DueDate),
		formatTime(inv.CreatedAt), boolToInt(inv.Paid), timePtrToNull(inv.PaidAt), inv.ArtifactRef)
	return errors.Wrap(err, "insert invoice")
}

const invoiceColumns = `id, account_id, client_id, invoice_number, items_json, total_cents, due_date, created_at, paid, paid_at, artifact_ref`

func (s *Store) GetInvoice(ctx context.Context, id uuid.UUID) (*store.Invoice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id.String())
	return scanInvoice(row)
}

func (s *Store) ListInvoicesByAccount(ctx context.Context, accountID uuid.UUID) ([]store.Invoice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE account_id = ? ORDER BY created_at DESC`, accountID.String())
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
	// Single guarded statement: paid_at is preserved across re-application.
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET paid = 1, paid_at = COALESCE(paid_at, ?) WHERE id = ?`,
		formatTime(paidAt), id.String())
	if err != nil {
		return nil, errors.Wrap(err, "mark invoice paid")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperrors.ErrNotFound
	}
	return s.GetInvoice(ctx, id)
}

func (s *Store) CommitInvoiceArtifact(ctx context.Context, id uuid.UUID, ref string) (string, bool, error) {
	// Compare-and-set on the single row; first writer wins.
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET artifact_ref = ? WHERE id = ? AND artifact_ref = ''`,
		ref, id.String())
	if err != nil {
		return "", false, errors.Wrap(err, "commit artifact ref")
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return ref, true, nil
	}
	inv, err := s.GetInvoice(ctx, id)
	if err != nil {
		return "", false, err
	}
	return inv.ArtifactRef, false, nil
}

func (s *Store) ReplaceInvoiceArtifact(ctx context.Context, id uuid.UUID, ref string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET artifact_ref = ? WHERE id = ?`, ref, id.String())
	if err != nil {
		return errors.Wrap(err, "replace artifact ref")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// scanning helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*store.Account, error) {
	var a store.Account
	var id, createdAt string
	var active int
	err := row.Scan(&id, &a.Email, &a.PasswordHash, &a.APIKey, &a.BusinessName, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan account")
	}
	a.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, errors.Wrap(err, "parse account id")
	}
	a.SubscriptionActive = active != 0
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func scanClient(row rowScanner) (*store.Client, error) {
	var c store.Client
	var id, accountID, createdAt string
	err := row.Scan(&id, &accountID, &c.Name, &c.Email, &c.Phone, &createdAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan client")
	}
	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, errors.Wrap(err, "parse client id")
	}
	if c.AccountID, err = uuid.Parse(accountID); err != nil {
		return nil, errors.Wrap(err, "parse client account id")
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

func scanInvoice(row rowScanner) (*store.Invoice, error) {
	var inv store.Invoice
	var id, accountID, itemsJSON, createdAt string
	var clientID, dueDate, paidAt sql.NullString
	var paid int
	err := row.Scan(&id, &accountID, &clientID, &inv.Number, &itemsJSON,
		&inv.TotalCents, &dueDate, &createdAt, &paid, &paidAt, &inv.ArtifactRef)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan invoice")
	}
	if inv.ID, err = uuid.Parse(id); err != nil {
		return nil, errors.Wrap(err, "parse invoice id")
	}
	if inv.AccountID, err = uuid.Parse(accountID); err != nil {
		return nil, errors.Wrap(err, "parse invoice account id")
	}
	if clientID.Valid {
		cid, err := uuid.Parse(clientID.String)
		if err != nil {
			return nil, errors.Wrap(err, "parse invoice client id")
		}
		inv.ClientID = &cid
	}
	if err := json.Unmarshal([]byte(itemsJSON), &inv.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal line items")
	}
	inv.CreatedAt = parseTime(createdAt)
	if dueDate.Valid {
		t := parseTime(dueDate.String)
		inv.DueDate = &t
	}
	inv.Paid = paid != 0
	if paidAt.Valid {
		t := parseTime(paidAt.String)
		inv.PaidAt = &t
	}
	return &inv, nil
}

// conversion helpers

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func timePtrToNull(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func uuidPtrToNull(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
