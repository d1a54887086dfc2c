package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoply/invoply-api/internal/apperrors"
	"github.com/invoply/invoply-api/internal/metrics"
	"github.com/invoply/invoply-api/internal/store"
)

// Outcome classifies how a webhook delivery was handled. Every outcome is
// acknowledged to the provider; the classification drives logging and
// metrics, never the response code.
type Outcome string

const (
	// OutcomeProcessed means at least one state effect was applied.
	OutcomeProcessed Outcome = "processed"
	// OutcomeSkippedUnresolved means the event was well-formed and relevant
	// but its subject could not be mapped to a known account or invoice.
	OutcomeSkippedUnresolved Outcome = "skipped_unresolved"
	// OutcomeMalformed means the payload could not be parsed.
	OutcomeMalformed Outcome = "malformed"
	// OutcomeIgnored means the event kind carries no meaning for this
	// service.
	OutcomeIgnored Outcome = "ignored"
)

// Provider event types that drive entitlement and payment state.
const (
	EventSaleCompleted         = "PAYMENT.SALE.COMPLETED"
	EventSaleDenied            = "PAYMENT.SALE.DENIED"
	EventSubscriptionActivated = "BILLING.SUBSCRIPTION.ACTIVATED"
	EventSubscriptionCreated   = "BILLING.SUBSCRIPTION.CREATED"
	EventSubscriptionCancelled = "BILLING.SUBSCRIPTION.CANCELLED"
	EventSubscriptionSuspended = "BILLING.SUBSCRIPTION.SUSPENDED"
)

var activatingEvents = map[string]bool{
	EventSaleCompleted:         true,
	EventSubscriptionActivated: true,
	EventSubscriptionCreated:   true,
}

var deactivatingEvents = map[string]bool{
	EventSaleDenied:            true,
	EventSubscriptionCancelled: true,
	EventSubscriptionSuspended: true,
}

// event mirrors the provider's delivery payload. Only the fields this service
// acts on are decoded.
type event struct {
	EventType string `json:"event_type"`
	Resource  struct {
		// CustomID carries the invoice correlation id set at checkout.
		CustomID   string `json:"custom_id"`
		Subscriber struct {
			EmailAddress string `json:"email_address"`
		} `json:"subscriber"`
		// PayerEmail appears on sale events instead of subscriber.
		Payer struct {
			EmailAddress string `json:"email_address"`
		} `json:"payer"`
	} `json:"resource"`
}

func (e *event) subjectEmail() string {
	if e.Resource.Subscriber.EmailAddress != "" {
		return e.Resource.Subscriber.EmailAddress
	}
	return e.Resource.Payer.EmailAddress
}

// Result describes the handling of one delivery.
type Result struct {
	Outcome   Outcome
	EventType string
	AccountID string
	InvoiceID string
	Detail    string
}

// ReconciliationService applies payment provider webhook events to local
// state. Deliveries may arrive duplicated, late or out of order; every effect
// is an idempotent absolute-state write, so replays and reordering converge
// on the provider's latest truth (last delivery wins).
type ReconciliationService struct {
	store    store.Store
	invoices *InvoiceService
	log      *zap.Logger
}

// NewReconciliationService creates a new reconciliation service.
func NewReconciliationService(st store.Store, invoices *InvoiceService, log *zap.Logger) *ReconciliationService {
	return &ReconciliationService{store: st, invoices: invoices, log: log}
}

// Process handles one raw delivery. It never returns an error: whatever
// happens, the caller acknowledges the delivery so the provider stops
// retrying, and the Result records what was done.
func (s *ReconciliationService) Process(ctx context.Context, payload []byte) Result {
	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil || ev.EventType == "" {
		s.log.Warn("malformed webhook payload", zap.Error(err))
		res := Result{Outcome: OutcomeMalformed, Detail: "unparseable payload"}
		s.count(res)
		return res
	}

	res := Result{EventType: ev.EventType}
	switch {
	case activatingEvents[ev.EventType]:
		s.apply(ctx, &ev, true, &res)
	case deactivatingEvents[ev.EventType]:
		s.apply(ctx, &ev, false, &res)
	default:
		res.Outcome = OutcomeIgnored
		s.log.Debug("ignoring webhook event", zap.String("event_type", ev.EventType))
	}
	s.count(res)
	return res
}

// apply performs the entitlement effect and, independently, the invoice
// payment effect. Either can succeed without the other; the delivery counts
// as processed if at least one landed.
func (s *ReconciliationService) apply(ctx context.Context, ev *event, active bool, res *Result) {
	var applied, attempted bool
	var detail []string

	// Providers are not consistent about email casing; resolution is
	// case-insensitive.
	if email := strings.ToLower(ev.subjectEmail()); email != "" {
		attempted = true
		account, err := s.store.GetAccountByEmail(ctx, email)
		switch {
		case err == nil:
			if err := s.store.SetAccountEntitlement(ctx, account.ID, active); err != nil {
				s.log.Error("entitlement update failed",
					zap.String("account_id", account.ID.String()), zap.Error(err))
				detail = append(detail, "entitlement update failed")
			} else {
				applied = true
				res.AccountID = account.ID.String()
				s.log.Info("entitlement updated",
					zap.String("account_id", account.ID.String()),
					zap.String("event_type", ev.EventType),
					zap.Bool("active", active))
			}
		case apperrors.IsNotFound(err):
			detail = append(detail, (&apperrors.UnresolvedSubjectError{
				Subject: email, Reason: "no account with this email",
			}).Error())
		default:
			s.log.Error("account lookup failed", zap.Error(err))
			detail = append(detail, "account lookup failed")
		}
	}

	// Any activating event carrying an invoice correlation id also settles
	// that invoice. Only activation pays; nothing ever un-pays.
	if active && ev.Resource.CustomID != "" {
		attempted = true
		invoiceID, err := uuid.Parse(ev.Resource.CustomID)
		if err != nil {
			detail = append(detail, (&apperrors.UnresolvedSubjectError{
				Subject: ev.Resource.CustomID, Reason: "correlation id is not an invoice id",
			}).Error())
		} else if _, err := s.invoices.markPaid(ctx, invoiceID, "webhook"); err != nil {
			if apperrors.IsNotFound(err) {
				detail = append(detail, (&apperrors.UnresolvedSubjectError{
					Subject: ev.Resource.CustomID, Reason: "no such invoice",
				}).Error())
			} else {
				s.log.Error("invoice settlement failed",
					zap.String("invoice_id", invoiceID.String()), zap.Error(err))
				detail = append(detail, "invoice settlement failed")
			}
		} else {
			applied = true
			res.InvoiceID = invoiceID.String()
		}
	}

	res.Detail = strings.Join(detail, "; ")
	switch {
	case applied:
		res.Outcome = OutcomeProcessed
	case attempted:
		res.Outcome = OutcomeSkippedUnresolved
		s.log.Info("webhook subject unresolved",
			zap.String("event_type", ev.EventType),
			zap.String("detail", res.Detail))
	default:
		// Relevant kind but no subject fields at all.
		res.Outcome = OutcomeSkippedUnresolved
		res.Detail = "event carries no subject"
	}
}

func (s *ReconciliationService) count(res Result) {
	kind := res.EventType
	if kind == "" {
		kind = "unknown"
	}
	metrics.WebhookEvents.WithLabelValues(kind, string(res.Outcome)).Inc()
}
