package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/invoply/invoply-api/internal/apperrors"
	"github.com/invoply/invoply-api/internal/artifact"
	"github.com/invoply/invoply-api/internal/store"
	"github.com/invoply/invoply-api/internal/store/memory"
)

type testEnv struct {
	store    *memory.Store
	invoices *InvoiceService
	clients  *ClientService
	accounts *AccountService
	account  *store.Account
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memory.New()
	blobs, err := artifact.NewFSStore(t.TempDir())
	require.NoError(t, err)
	log := zap.NewNop()
	cache := artifact.NewCache(st, blobs, log)

	account := &store.Account{
		ID:           uuid.New(),
		Email:        "owner@example.test",
		BusinessName: "Acme Consulting",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.CreateAccount(context.Background(), account))

	return &testEnv{
		store:    st,
		invoices: NewInvoiceService(st, cache, log),
		clients:  NewClientService(st, log),
		accounts: NewAccountService(st, log),
		account:  account,
	}
}

func TestCreateInvoiceComputesTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.invoices.Create(ctx, env.account.ID, CreateInvoiceParams{
		Items: []LineItemInput{
			{Description: "Consulting", Quantity: 120.0, UnitPriceCents: 100},
			{Description: "Hosting", Quantity: 1.5, UnitPriceCents: 1000},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12000), inv.Items[0].TotalCents)
	assert.Equal(t, int64(1500), inv.Items[1].TotalCents)
	assert.Equal(t, int64(13500), inv.TotalCents)
	assert.False(t, inv.Paid)
	assert.Nil(t, inv.PaidAt)
	assert.Empty(t, inv.ArtifactRef)
}

func TestCreateInvoiceAcceptsMatchingSuppliedTotals(t *testing.T) {
	env := newTestEnv(t)

	inv, err := env.invoices.Create(context.Background(), env.account.ID, CreateInvoiceParams{
		Items: []LineItemInput{
			{Description: "Work", Quantity: 3, UnitPriceCents: 2500, TotalCents: 7500},
		},
		TotalCents: 7500,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7500), inv.TotalCents)
}

func TestCreateInvoiceRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params CreateInvoiceParams
	}{
		{
			name:   "no items",
			params: CreateInvoiceParams{},
		},
		{
			name: "empty description",
			params: CreateInvoiceParams{Items: []LineItemInput{
				{Quantity: 1, UnitPriceCents: 100},
			}},
		},
		{
			name: "non-positive quantity",
			params: CreateInvoiceParams{Items: []LineItemInput{
				{Description: "x", Quantity: 0, UnitPriceCents: 100},
			}},
		},
		{
			name: "negative unit price",
			params: CreateInvoiceParams{Items: []LineItemInput{
				{Description: "x", Quantity: 1, UnitPriceCents: -5},
			}},
		},
		{
			name: "mismatched line total",
			params: CreateInvoiceParams{Items: []LineItemInput{
				{Description: "x", Quantity: 2, UnitPriceCents: 100, TotalCents: 150},
			}},
		},
		{
			name: "mismatched invoice total",
			params: CreateInvoiceParams{
				Items: []LineItemInput{
					{Description: "x", Quantity: 1, UnitPriceCents: 100},
				},
				TotalCents: 999,
			},
		},
		{
			name: "bad due date",
			params: CreateInvoiceParams{
				Items: []LineItemInput{
					{Description: "x", Quantity: 1, UnitPriceCents: 100},
				},
				DueDate: "07/01/2025",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.invoices.Create(ctx, env.account.ID, tt.params)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestCreateInvoiceClientOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	other := &store.Account{ID: uuid.New(), Email: "other@example.test", CreatedAt: time.Now().UTC()}
	require.NoError(t, env.store.CreateAccount(ctx, other))
	foreign, err := env.clients.Create(ctx, other.ID, ClientParams{Name: "Their Client"})
	require.NoError(t, err)

	_, err = env.invoices.Create(ctx, env.account.ID, CreateInvoiceParams{
		ClientID: &foreign.ID,
		Items:    []LineItemInput{{Description: "x", Quantity: 1, UnitPriceCents: 100}},
	})
	assert.True(t, apperrors.IsForbidden(err))

	missing := uuid.New()
	_, err = env.invoices.Create(ctx, env.account.ID, CreateInvoiceParams{
		ClientID: &missing,
		Items:    []LineItemInput{{Description: "x", Quantity: 1, UnitPriceCents: 100}},
	})
	assert.True(t, apperrors.IsValidation(err))
}

func TestMarkPaidIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.invoices.Create(ctx, env.account.ID, CreateInvoiceParams{
		Items: []LineItemInput{{Description: "x", Quantity: 1, UnitPriceCents: 100}},
	})
	require.NoError(t, err)

	paid, err := env.invoices.MarkPaid(ctx, env.account.ID, inv.ID)
	require.NoError(t, err)
	require.True(t, paid.Paid)
	require.NotNil(t, paid.PaidAt)
	firstPaidAt := *paid.PaidAt

	again, err := env.invoices.MarkPaid(ctx, env.account.ID, inv.ID)
	require.NoError(t, err)
	assert.True(t, again.Paid)
	require.NotNil(t, again.PaidAt)
	assert.Equal(t, firstPaidAt, *again.PaidAt, "paid timestamp must survive re-marking")
}

func TestMarkPaidOwnershipAndMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.invoices.Create(ctx, env.account.ID, CreateInvoiceParams{
		Items: []LineItemInput{{Description: "x", Quantity: 1, UnitPriceCents: 100}},
	})
	require.NoError(t, err)

	_, err = env.invoices.MarkPaid(ctx, uuid.New(), inv.ID)
	assert.True(t, apperrors.IsForbidden(err))

	_, err = env.invoices.MarkPaid(ctx, env.account.ID, uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDocumentRendersOnceAndIsStable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.invoices.Create(ctx, env.account.ID, CreateInvoiceParams{
		Items: []LineItemInput{{Description: "Design", Quantity: 2, UnitPriceCents: 5000}},
	})
	require.NoError(t, err)

	ref1, data1, err := env.invoices.Document(ctx, env.account.ID, inv.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, ref1)
	assert.Contains(t, string(data1), "Acme Consulting")

	// Business name changes do not disturb the committed artifact.
	_, err = env.accounts.UpdateBusinessName(ctx, env.account.ID, "Renamed LLC")
	require.NoError(t, err)

	ref2, data2, err := env.invoices.Document(ctx, env.account.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)
	assert.Equal(t, data1, data2)
}

func TestReRenderPicksUpChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.invoices.Create(ctx, env.account.ID, CreateInvoiceParams{
		Items: []LineItemInput{{Description: "Design", Quantity: 2, UnitPriceCents: 5000}},
	})
	require.NoError(t, err)

	ref1, _, err := env.invoices.Document(ctx, env.account.ID, inv.ID)
	require.NoError(t, err)

	_, err = env.accounts.UpdateBusinessName(ctx, env.account.ID, "Renamed LLC")
	require.NoError(t, err)

	ref2, data2, err := env.invoices.ReRender(ctx, env.account.ID, inv.ID)
	require.NoError(t, err)
	assert.NotEqual(t, ref1, ref2)
	assert.Contains(t, string(data2), "Renamed LLC")

	// Subsequent reads serve the replacement.
	ref3, data3, err := env.invoices.Document(ctx, env.account.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ref2, ref3)
	assert.Equal(t, data2, data3)
}

func TestDocumentOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.invoices.Create(ctx, env.account.ID, CreateInvoiceParams{
		Items: []LineItemInput{{Description: "x", Quantity: 1, UnitPriceCents: 100}},
	})
	require.NoError(t, err)

	_, _, err = env.invoices.Document(ctx, uuid.New(), inv.ID)
	assert.True(t, apperrors.IsForbidden(err))
}
