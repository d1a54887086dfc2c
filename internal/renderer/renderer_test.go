package renderer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoply/invoply-api/internal/apperrors"
	"github.com/invoply/invoply-api/internal/store"
)

func validSnapshot() Snapshot {
	due := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	return Snapshot{
		InvoiceID:    "9f1c2a77-0000-4000-8000-000000000001",
		Number:       "INV-042",
		BusinessName: "Acme Consulting",
		ClientName:   "Globex Corp",
		ClientEmail:  "ap@globex.test",
		Items: []store.LineItem{
			{Description: "Design work", Quantity: 3, UnitPriceCents: 2500, TotalCents: 7500},
			{Description: "Hosting", Quantity: 1.5, UnitPriceCents: 1000, TotalCents: 1500},
		},
		TotalCents: 9000,
		DueDate:    &due,
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRenderProducesPDF(t *testing.T) {
	out, err := Render(validSnapshot())
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, "%PDF-1.4", string(out[:8]))
	assert.Contains(t, string(out), "INVOICE INV-042")
	assert.Contains(t, string(out), "Acme Consulting")
	assert.Contains(t, string(out), "$90.00")
}

func TestRenderDeterministic(t *testing.T) {
	snap := validSnapshot()
	first, err := Render(snap)
	require.NoError(t, err)
	second, err := Render(snap)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderMalformedSnapshot(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{
			name:   "no items",
			mutate: func(s *Snapshot) { s.Items = nil },
		},
		{
			name:   "zero quantity",
			mutate: func(s *Snapshot) { s.Items[0].Quantity = 0 },
		},
		{
			name:   "line total mismatch",
			mutate: func(s *Snapshot) { s.Items[0].TotalCents = 9999 },
		},
		{
			name:   "invoice total mismatch",
			mutate: func(s *Snapshot) { s.TotalCents = 1 },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := validSnapshot()
			tt.mutate(&snap)
			out, err := Render(snap)
			require.Error(t, err)
			assert.True(t, apperrors.IsRender(err))
			assert.Nil(t, out)
		})
	}
}

func TestLineTotalCents(t *testing.T) {
	tests := []struct {
		quantity float64
		unit     int64
		want     int64
	}{
		{1, 100, 100},
		{3, 2500, 7500},
		{1.5, 1000, 1500},
		{0.333, 1000, 333},
		{2.5, 101, 253}, // 252.5 rounds half away from zero
		{120.0, 100, 12000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LineTotalCents(tt.quantity, tt.unit),
			"quantity=%v unit=%d", tt.quantity, tt.unit)
	}
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "$0.00", FormatCents(0))
	assert.Equal(t, "$12.34", FormatCents(1234))
	assert.Equal(t, "$1234.56", FormatCents(123456))
	assert.Equal(t, "-$5.00", FormatCents(-500))
	assert.Equal(t, "$0.05", FormatCents(5))
}
