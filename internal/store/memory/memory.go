// Package memory provides an in-process Store used by tests and local
// development. It mirrors the SQL drivers' compare-and-set semantics.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/invoply/invoply-api/internal/apperrors"
	"github.com/invoply/invoply-api/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps all entities in maps guarded by a single mutex. Critical
// sections only cover the map read-check-write itself; rendering and other
// slow work always happens outside the store.
type Store struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]store.Account
	clients  map[uuid.UUID]store.Client
	invoices map[uuid.UUID]store.Invoice
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]store.Account),
		clients:  make(map[uuid.UUID]store.Client),
		invoices: make(map[uuid.UUID]store.Invoice),
	}
}

// Accounts

func (s *Store) CreateAccount(ctx context.Context, a *store.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Emails are stored lowercased so lookups are case-insensitive.
	email := strings.ToLower(a.Email)
	for _, existing := range s.accounts {
		if existing.Email == email {
			return apperrors.ErrAlreadyExists
		}
	}
	cp := *a
	cp.Email = email
	s.accounts[a.ID] = cp
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &a, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	for _, a := range s.accounts {
		if a.Email == email {
			out := a
			return &out, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *Store) GetAccountByAPIKey(ctx context.Context, key string) (*store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.APIKey != "" && a.APIKey == key {
			out := a
			return &out, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *Store) UpdateAccountBusinessName(ctx context.Context, id uuid.UUID, businessName string) (*store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	a.BusinessName = businessName
	s.accounts[id] = a
	return &a, nil
}

func (s *Store) SetAccountEntitlement(ctx context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	a.SubscriptionActive = active
	s.accounts[id] = a
	return nil
}

// Clients

func (s *Store) CreateClient(ctx context.Context, c *store.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = *c
	return nil
}

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*store.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListClientsByAccount(ctx context.Context, accountID uuid.UUID) ([]store.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Client
	for _, c := range s.clients {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateClient(ctx context.Context, c *store.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID]; !ok {
		return apperrors.ErrNotFound
	}
	s.clients[c.ID] = *c
	return nil
}

func (s *Store) DeleteClient(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(s.clients, id)
	return nil
}

// Invoices

func (s *Store) CreateInvoice(ctx context.Context, inv *store.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inv
	cp.Items = append([]store.LineItem(nil), inv.Items...)
	s.invoices[inv.ID] = cp
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id uuid.UUID) (*store.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := inv
	out.Items = append([]store.LineItem(nil), inv.Items...)
	return &out, nil
}

func (s *Store) ListInvoicesByAccount(ctx context.Context, accountID uuid.UUID) ([]store.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Invoice
	for _, inv := range s.invoices {
		if inv.AccountID == accountID {
			cp := inv
			cp.Items = append([]store.LineItem(nil), inv.Items...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MarkInvoicePaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*store.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if !inv.Paid {
		inv.Paid = true
		at := paidAt
		inv.PaidAt = &at
		s.invoices[id] = inv
	}
	out := inv
	out.Items = append([]store.LineItem(nil), inv.Items...)
	return &out, nil
}

func (s *Store) CommitInvoiceArtifact(ctx context.Context, id uuid.UUID, ref string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return "", false, apperrors.ErrNotFound
	}
	if inv.ArtifactRef != "" {
		return inv.ArtifactRef, false, nil
	}
	inv.ArtifactRef = ref
	s.invoices[id] = inv
	return ref, true, nil
}

func (s *Store) ReplaceInvoiceArtifact(ctx context.Context, id uuid.UUID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	inv.ArtifactRef = ref
	s.invoices[id] = inv
	return nil
}

// Lifecycle

func (s *Store) Migrate(ctx context.Context) error { return nil }

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }
