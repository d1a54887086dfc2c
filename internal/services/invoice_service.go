package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoply/invoply-api/internal/apperrors"
	"github.com/invoply/invoply-api/internal/artifact"
	"github.com/invoply/invoply-api/internal/metrics"
	"github.com/invoply/invoply-api/internal/renderer"
	"github.com/invoply/invoply-api/internal/store"
)

// InvoiceService owns the invoice lifecycle: creation, the one-way paid
// transition, and document generation.
type InvoiceService struct {
	store store.Store
	cache *artifact.Cache
	log   *zap.Logger
}

// NewInvoiceService creates a new invoice service.
func NewInvoiceService(st store.Store, cache *artifact.Cache, log *zap.Logger) *InvoiceService {
	return &InvoiceService{store: st, cache: cache, log: log}
}

// LineItemInput is one requested invoice line. TotalCents is optional: when
// zero it is computed from quantity and unit price, when supplied it must
// match the computed value exactly.
type LineItemInput struct {
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	TotalCents     int64   `json:"total_cents,omitempty"`
}

// CreateInvoiceParams is the input to Create.
type CreateInvoiceParams struct {
	ClientID   *uuid.UUID      `json:"client_id,omitempty"`
	Number     string          `json:"invoice_number,omitempty"`
	Items      []LineItemInput `json:"items"`
	TotalCents int64           `json:"total_cents,omitempty"`
	DueDate    string          `json:"due_date,omitempty"` // YYYY-MM-DD
}

// Create validates the request, derives all money amounts and persists a new
// unpaid invoice owned by accountID.
func (s *InvoiceService) Create(ctx context.Context, accountID uuid.UUID, params CreateInvoiceParams) (*store.Invoice, error) {
	if len(params.Items) == 0 {
		return nil, apperrors.NewValidation("items", "at least one line item is required")
	}

	items := make([]store.LineItem, 0, len(params.Items))
	var sum int64
	for i, in := range params.Items {
		if in.Description == "" {
			return nil, apperrors.NewValidation("items", "description is required")
		}
		if in.Quantity <= 0 {
			return nil, apperrors.NewValidation("items", "quantity must be positive")
		}
		if in.UnitPriceCents < 0 {
			return nil, apperrors.NewValidation("items", "unit price must not be negative")
		}
		total := renderer.LineTotalCents(in.Quantity, in.UnitPriceCents)
		if in.TotalCents != 0 && in.TotalCents != total {
			s.log.Debug("rejecting mismatched line total",
				zap.Int("item", i),
				zap.Int64("supplied", in.TotalCents),
				zap.Int64("computed", total))
			return nil, apperrors.NewValidation("items", "supplied line total does not match quantity * unit price")
		}
		items = append(items, store.LineItem{
			Description:    in.Description,
			Quantity:       in.Quantity,
			UnitPriceCents: in.UnitPriceCents,
			TotalCents:     total,
		})
		sum += total
	}
	if params.TotalCents != 0 && params.TotalCents != sum {
		return nil, apperrors.NewValidation("total_cents", "supplied total does not match the sum of line items")
	}

	var dueDate *time.Time
	if params.DueDate != "" {
		t, err := time.Parse("2006-01-02", params.DueDate)
		if err != nil {
			return nil, apperrors.NewValidation("due_date", "must be formatted YYYY-MM-DD")
		}
		dueDate = &t
	}

	if params.ClientID != nil {
		client, err := s.store.GetClient(ctx, *params.ClientID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.NewValidation("client_id", "client does not exist")
			}
			return nil, err
		}
		if client.AccountID != accountID {
			return nil, apperrors.ErrForbidden
		}
	}

	inv := &store.Invoice{
		ID:         uuid.New(),
		AccountID:  accountID,
		ClientID:   params.ClientID,
		Number:     params.Number,
		Items:      items,
		TotalCents: sum,
		DueDate:    dueDate,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	metrics.InvoicesCreated.Inc()
	s.log.Info("invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("account_id", accountID.String()),
		zap.Int64("total_cents", inv.TotalCents))
	return inv, nil
}

// Get returns the invoice only if accountID owns it.
func (s *InvoiceService) Get(ctx context.Context, accountID, invoiceID uuid.UUID) (*store.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.AccountID != accountID {
		return nil, apperrors.ErrForbidden
	}
	return inv, nil
}

// List returns the account's invoices, newest first.
func (s *InvoiceService) List(ctx context.Context, accountID uuid.UUID) ([]store.Invoice, error) {
	return s.store.ListInvoicesByAccount(ctx, accountID)
}

// MarkPaid transitions the invoice to paid. Marking an already-paid invoice
// succeeds without changing the recorded payment time.
func (s *InvoiceService) MarkPaid(ctx context.Context, accountID, invoiceID uuid.UUID) (*store.Invoice, error) {
	if _, err := s.Get(ctx, accountID, invoiceID); err != nil {
		return nil, err
	}
	return s.markPaid(ctx, invoiceID, "manual")
}

// markPaid is the shared transition used by both the owner-facing operation
// and payment reconciliation.
func (s *InvoiceService) markPaid(ctx context.Context, invoiceID uuid.UUID, source string) (*store.Invoice, error) {
	before, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	inv, err := s.store.MarkInvoicePaid(ctx, invoiceID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !before.Paid {
		metrics.InvoicesPaid.Inc()
		s.log.Info("invoice paid",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("source", source))
	}
	return inv, nil
}

// Document returns the invoice's rendered PDF, generating and committing it
// on first access.
func (s *InvoiceService) Document(ctx context.Context, accountID, invoiceID uuid.UUID) (string, []byte, error) {
	inv, err := s.Get(ctx, accountID, invoiceID)
	if err != nil {
		return "", nil, err
	}
	cached := inv.ArtifactRef != ""
	ref, data, err := s.cache.GetOrCreate(ctx, invoiceID, s.renderFunc(ctx, inv))
	switch {
	case err != nil:
		metrics.ArtifactRenders.WithLabelValues("error").Inc()
		return "", nil, err
	case cached:
		metrics.ArtifactRenders.WithLabelValues("hit").Inc()
	default:
		metrics.ArtifactRenders.WithLabelValues("rendered").Inc()
	}
	return ref, data, nil
}

// ReRender regenerates the invoice's document and replaces the committed
// reference. Used after account or client details change.
func (s *InvoiceService) ReRender(ctx context.Context, accountID, invoiceID uuid.UUID) (string, []byte, error) {
	inv, err := s.Get(ctx, accountID, invoiceID)
	if err != nil {
		return "", nil, err
	}
	ref, data, err := s.cache.Replace(ctx, invoiceID, s.renderFunc(ctx, inv))
	if err != nil {
		metrics.ArtifactRenders.WithLabelValues("error").Inc()
		return "", nil, err
	}
	metrics.ArtifactRenders.WithLabelValues("rendered").Inc()
	return ref, data, nil
}

// renderFunc builds the render closure for an invoice. The snapshot is
// assembled fresh inside the closure so the bytes reflect current account and
// client details at render time.
func (s *InvoiceService) renderFunc(ctx context.Context, inv *store.Invoice) artifact.RenderFunc {
	return func(ctx context.Context) ([]byte, error) {
		snap, err := s.snapshot(ctx, inv)
		if err != nil {
			return nil, err
		}
		return renderer.Render(*snap)
	}
}

func (s *InvoiceService) snapshot(ctx context.Context, inv *store.Invoice) (*renderer.Snapshot, error) {
	account, err := s.store.GetAccount(ctx, inv.AccountID)
	if err != nil {
		return nil, err
	}
	snap := &renderer.Snapshot{
		InvoiceID:    inv.ID.String(),
		Number:       inv.Number,
		BusinessName: account.BusinessName,
		Items:        inv.Items,
		TotalCents:   inv.TotalCents,
		DueDate:      inv.DueDate,
		CreatedAt:    inv.CreatedAt,
		Paid:         inv.Paid,
	}
	if inv.ClientID != nil {
		client, err := s.store.GetClient(ctx, *inv.ClientID)
		if err != nil && !apperrors.IsNotFound(err) {
			return nil, err
		}
		if client != nil {
			snap.ClientName = client.Name
			snap.ClientEmail = client.Email
		}
	}
	return snap, nil
}
