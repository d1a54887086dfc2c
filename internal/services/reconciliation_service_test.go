package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoply/invoply-api/internal/store"
)

func newReconEnv(t *testing.T) (*testEnv, *ReconciliationService) {
	t.Helper()
	env := newTestEnv(t)
	recon := NewReconciliationService(env.store, env.invoices, env.invoices.log)
	return env, recon
}

func subscriptionEvent(eventType, email string) []byte {
	return []byte(fmt.Sprintf(
		`{"event_type":%q,"resource":{"subscriber":{"email_address":%q}}}`,
		eventType, email))
}

func saleEvent(eventType, email, customID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event_type":%q,"resource":{"custom_id":%q,"payer":{"email_address":%q}}}`,
		eventType, customID, email))
}

func TestProcessActivatesEntitlement(t *testing.T) {
	env, recon := newReconEnv(t)
	ctx := context.Background()

	for _, eventType := range []string{
		EventSubscriptionActivated, EventSubscriptionCreated,
	} {
		t.Run(eventType, func(t *testing.T) {
			res := recon.Process(ctx, subscriptionEvent(eventType, env.account.Email))
			assert.Equal(t, OutcomeProcessed, res.Outcome)
			assert.Equal(t, env.account.ID.String(), res.AccountID)

			account, err := env.store.GetAccount(ctx, env.account.ID)
			require.NoError(t, err)
			assert.True(t, account.SubscriptionActive)

			// Reset for the next case.
			require.NoError(t, env.store.SetAccountEntitlement(ctx, env.account.ID, false))
		})
	}
}

func TestProcessDeactivatesEntitlement(t *testing.T) {
	env, recon := newReconEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.SetAccountEntitlement(ctx, env.account.ID, true))

	res := recon.Process(ctx, subscriptionEvent(EventSubscriptionCancelled, env.account.Email))
	assert.Equal(t, OutcomeProcessed, res.Outcome)

	account, err := env.store.GetAccount(ctx, env.account.ID)
	require.NoError(t, err)
	assert.False(t, account.SubscriptionActive)
}

func TestProcessDuplicateDeliveriesConverge(t *testing.T) {
	env, recon := newReconEnv(t)
	ctx := context.Background()

	payload := subscriptionEvent(EventSubscriptionActivated, env.account.Email)
	for i := 0; i < 3; i++ {
		res := recon.Process(ctx, payload)
		assert.Equal(t, OutcomeProcessed, res.Outcome)
	}

	account, err := env.store.GetAccount(ctx, env.account.ID)
	require.NoError(t, err)
	assert.True(t, account.SubscriptionActive)
}

func TestProcessOutOfOrderLastDeliveryWins(t *testing.T) {
	env, recon := newReconEnv(t)
	ctx := context.Background()

	// The provider emitted cancel after activate, but the deliveries arrive
	// reversed; local state tracks the last delivery.
	recon.Process(ctx, subscriptionEvent(EventSubscriptionCancelled, env.account.Email))
	recon.Process(ctx, subscriptionEvent(EventSubscriptionActivated, env.account.Email))

	account, err := env.store.GetAccount(ctx, env.account.ID)
	require.NoError(t, err)
	assert.True(t, account.SubscriptionActive)
}

func subscriptionEventWithCorrelation(eventType, email, customID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event_type":%q,"resource":{"custom_id":%q,"subscriber":{"email_address":%q}}}`,
		eventType, customID, email))
}

func TestProcessActivatingEventsSettleInvoiceByCorrelation(t *testing.T) {
	for _, eventType := range []string{
		EventSaleCompleted, EventSubscriptionActivated, EventSubscriptionCreated,
	} {
		t.Run(eventType, func(t *testing.T) {
			env, recon := newReconEnv(t)
			ctx := context.Background()

			inv, err := env.invoices.Create(ctx, env.account.ID, CreateInvoiceParams{
				Items: []LineItemInput{{Description: "x", Quantity: 1, UnitPriceCents: 100}},
			})
			require.NoError(t, err)

			res := recon.Process(ctx,
				subscriptionEventWithCorrelation(eventType, env.account.Email, inv.ID.String()))
			assert.Equal(t, OutcomeProcessed, res.Outcome)
			assert.Equal(t, inv.ID.String(), res.InvoiceID)

			got, err := env.store.GetInvoice(ctx, inv.ID)
			require.NoError(t, err)
			assert.True(t, got.Paid, "activation event with correlation id must settle the invoice")
		})
	}
}

func TestProcessResolvesSubjectEmailCaseInsensitively(t *testing.T) {
	env, recon := newReconEnv(t)
	ctx := context.Background()

	res := recon.Process(ctx, subscriptionEvent(EventSubscriptionActivated, "OWNER@Example.TEST"))
	assert.Equal(t, OutcomeProcessed, res.Outcome)

	account, err := env.store.GetAccount(ctx, env.account.ID)
	require.NoError(t, err)
	assert.True(t, account.SubscriptionActive)
}

func TestProcessSaleCompletedPaysInvoice(t *testing.T) {
	env, recon := newReconEnv(t)
	ctx := context.Background()

	inv, err := env.invoices.Create(ctx, env.account.ID, CreateInvoiceParams{
		Items: []LineItemInput{{Description: "x", Quantity: 1, UnitPriceCents: 100}},
	})
	require.NoError(t, err)

	res := recon.Process(ctx, saleEvent(EventSaleCompleted, env.account.Email, inv.ID.String()))
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, inv.ID.String(), res.InvoiceID)
	assert.Equal(t, env.account.ID.String(), res.AccountID)

	got, err := env.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.Paid)
	require.NotNil(t, got.PaidAt)

	// Replay keeps the original payment time.
	firstPaidAt := *got.PaidAt
	recon.Process(ctx, saleEvent(EventSaleCompleted, env.account.Email, inv.ID.String()))
	got, err = env.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, firstPaidAt, *got.PaidAt)
}

func TestProcessSaleDeniedNeverUnpays(t *testing.T) {
	env, recon := newReconEnv(t)
	ctx := context.Background()

	inv, err := env.invoices.Create(ctx, env.account.ID, CreateInvoiceParams{
		Items: []LineItemInput{{Description: "x", Quantity: 1, UnitPriceCents: 100}},
	})
	require.NoError(t, err)
	_, err = env.invoices.MarkPaid(ctx, env.account.ID, inv.ID)
	require.NoError(t, err)

	res := recon.Process(ctx, saleEvent(EventSaleDenied, env.account.Email, inv.ID.String()))
	assert.Equal(t, OutcomeProcessed, res.Outcome, "entitlement effect still applies")

	got, err := env.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.Paid, "paid is a one-way transition")
}

func TestProcessUnknownSubscriberSkipped(t *testing.T) {
	env, recon := newReconEnv(t)

	res := recon.Process(context.Background(),
		subscriptionEvent(EventSubscriptionActivated, "stranger@example.test"))
	assert.Equal(t, OutcomeSkippedUnresolved, res.Outcome)
	assert.Contains(t, res.Detail, "no account with this email")

	// The known account is untouched.
	account, err := env.store.GetAccount(context.Background(), env.account.ID)
	require.NoError(t, err)
	assert.False(t, account.SubscriptionActive)
}

func TestProcessPartialResolutionStillProcessed(t *testing.T) {
	env, recon := newReconEnv(t)
	ctx := context.Background()

	// Sale resolves the account but carries a dangling invoice correlation.
	res := recon.Process(ctx, saleEvent(EventSaleCompleted, env.account.Email, uuid.New().String()))
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Contains(t, res.Detail, "no such invoice")
	assert.Empty(t, res.InvoiceID)

	account, err := env.store.GetAccount(ctx, env.account.ID)
	require.NoError(t, err)
	assert.True(t, account.SubscriptionActive)
}

func TestProcessIgnoredAndMalformed(t *testing.T) {
	_, recon := newReconEnv(t)
	ctx := context.Background()

	res := recon.Process(ctx, subscriptionEvent("CUSTOMER.DISPUTE.CREATED", "a@b.test"))
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	res = recon.Process(ctx, []byte(`{not json`))
	assert.Equal(t, OutcomeMalformed, res.Outcome)

	res = recon.Process(ctx, []byte(`{"resource":{}}`))
	assert.Equal(t, OutcomeMalformed, res.Outcome, "missing event_type")

	res = recon.Process(ctx, []byte(fmt.Sprintf(`{"event_type":%q,"resource":{}}`, EventSubscriptionActivated)))
	assert.Equal(t, OutcomeSkippedUnresolved, res.Outcome, "relevant kind without subject")
}

func TestProcessEntitlementScopedToSubject(t *testing.T) {
	env, recon := newReconEnv(t)
	ctx := context.Background()

	other := &store.Account{
		ID:        uuid.New(),
		Email:     "second@example.test",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, env.store.CreateAccount(ctx, other))
	require.NoError(t, env.store.SetAccountEntitlement(ctx, env.account.ID, true))
	require.NoError(t, env.store.SetAccountEntitlement(ctx, other.ID, true))

	res := recon.Process(ctx, subscriptionEvent(EventSubscriptionCancelled, env.account.Email))
	assert.Equal(t, OutcomeProcessed, res.Outcome)

	cancelled, err := env.store.GetAccount(ctx, env.account.ID)
	require.NoError(t, err)
	assert.False(t, cancelled.SubscriptionActive)

	untouched, err := env.store.GetAccount(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, untouched.SubscriptionActive)
}
