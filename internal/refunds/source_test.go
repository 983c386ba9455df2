package refunds

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

func TestSourceFor(t *testing.T) {
	assert.Equal(t, enums.RefundSourceWholePurchaseOrder, SourceFor(nil).Kind())
	assert.Equal(t, enums.RefundSourceItemSubset, SourceFor([]Selection{{OrderItemID: uuid.New()}}).Kind())
}

func TestItemSubsetLines(t *testing.T) {
	a := models.OrderItem{ID: uuid.New(), Quantity: 4, UnitPriceMinor: 250}
	b := models.OrderItem{ID: uuid.New(), Quantity: 1, UnitPriceMinor: 1000}

	lines, err := ItemSubset{Selections: []Selection{{OrderItemID: a.ID, Quantity: intPtr(2)}, {OrderItemID: b.ID}}}.lines([]models.OrderItem{a, b})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(500), lines[0].AmountMinor)
	assert.Equal(t, 1, lines[1].Quantity)

	_, err = ItemSubset{Selections: []Selection{{OrderItemID: a.ID}, {OrderItemID: a.ID}}}.lines([]models.OrderItem{a})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = ItemSubset{Selections: []Selection{{OrderItemID: a.ID, Quantity: intPtr(0)}}}.lines([]models.OrderItem{a})
	assert.Equal(t, ReasonInvalidQuantity, pkgerrors.ReasonOf(err))
}

func TestComputeBreakdown(t *testing.T) {
	order := models.Order{SubtotalMinor: 3000, TaxMinor: 100, ServiceFeeMinor: 10}
	lines := []Line{{AmountMinor: 1000}}

	plain := ComputeBreakdown(lines, order, false)
	assert.Equal(t, Breakdown{ItemsMinor: 1000}, plain)

	prorated := ComputeBreakdown(lines, order, true)
	assert.Equal(t, int64(33), prorated.TaxMinor)
	assert.Equal(t, int64(3), prorated.FeesMinor)
	assert.Equal(t, int64(1036), prorated.TotalMinor())

	whole := ComputeBreakdown([]Line{{AmountMinor: 3000}}, order, true)
	assert.Equal(t, int64(3110), whole.TotalMinor())
}
