package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Account is a billing account. The subscription_active flag is written only
// through SetAccountEntitlement; handlers and services never set it directly.
type Account struct {
	ID                 uuid.UUID `json:"id"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	APIKey             string    `json:"-"`
	BusinessName       string    `json:"business_name"`
	SubscriptionActive bool      `json:"subscription_active"`
	CreatedAt          time.Time `json:"created_at"`
}

// Client is a billable contact owned by exactly one account.
type Client struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LineItem is a single invoice line. TotalCents always equals
// round(Quantity * UnitPriceCents); the invoice service enforces this at
// creation time.
type LineItem struct {
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	TotalCents     int64   `json:"total_cents"`
}

// Invoice is a billing document. Paid transitions only unpaid -> paid and
// ArtifactRef is set at most once outside of an explicit re-render.
type Invoice struct {
	ID          uuid.UUID  `json:"id"`
	AccountID   uuid.UUID  `json:"account_id"`
	ClientID    *uuid.UUID `json:"client_id,omitempty"`
	Number      string     `json:"invoice_number,omitempty"`
	Items       []LineItem `json:"items"`
	TotalCents  int64      `json:"total_cents"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Paid        bool       `json:"paid"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	ArtifactRef string     `json:"artifact_ref,omitempty"`
}

// Store is the persistence interface consumed by the services layer.
// All drivers provide the same compare-and-set semantics for the two
// hazardous invoice fields (paid status, artifact reference): the guard and
// the write happen in one atomic step scoped to the single row, never under
// a global lock.
type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByAPIKey(ctx context.Context, key string) (*Account, error)
	UpdateAccountBusinessName(ctx context.Context, id uuid.UUID, businessName string) (*Account, error)
	// SetAccountEntitlement flips the subscription gate. Idempotent by
	// construction: setting an already-equal value succeeds.
	SetAccountEntitlement(ctx context.Context, id uuid.UUID, active bool) error

	// Clients
	CreateClient(ctx context.Context, c *Client) error
	GetClient(ctx context.Context, id uuid.UUID) (*Client, error)
	ListClientsByAccount(ctx context.Context, accountID uuid.UUID) ([]Client, error)
	UpdateClient(ctx context.Context, c *Client) error
	DeleteClient(ctx context.Context, id uuid.UUID) error

	// Invoices
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
	ListInvoicesByAccount(ctx context.Context, accountID uuid.UUID) ([]Invoice, error)
	// MarkInvoicePaid transitions unpaid -> paid. Re-applying to a paid
	// invoice is a successful no-op that preserves the original PaidAt.
	MarkInvoicePaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*Invoice, error)
	// CommitInvoiceArtifact records ref on the invoice only if no artifact
	// reference exists yet. It returns the reference that ended up on the
	// row and whether this call was the one that committed it.
	CommitInvoiceArtifact(ctx context.Context, id uuid.UUID, ref string) (final string, committed bool, err error)
	// ReplaceInvoiceArtifact unconditionally supersedes the current
	// reference. Used only by the explicit re-render operation.
	ReplaceInvoiceArtifact(ctx context.Context, id uuid.UUID, ref string) error

	// Migrate creates the schema if it does not exist yet.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
