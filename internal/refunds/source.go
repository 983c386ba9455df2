package refunds

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/money"
)

// Selection picks one order item for an item subset refund. A nil Quantity
// refunds the full line.
type Selection struct {
	OrderItemID uuid.UUID `json:"order_item_id" validate:"required"`
	Quantity    *int      `json:"quantity,omitempty" validate:"omitempty,gt=0"`
}

// Source is how a refund chooses the purchase order lines it covers. The set
// of implementations is closed: WholePurchaseOrder and ItemSubset.
type Source interface {
	Kind() enums.RefundSourceKind
	lines(items []models.OrderItem) ([]Line, error)
}

// WholePurchaseOrder refunds every line of the purchase order.
type WholePurchaseOrder struct{}

// ItemSubset refunds only the selected lines.
type ItemSubset struct {
	Selections []Selection
}

// Line is one order item and quantity a refund covers.
type Line struct {
	Item        models.OrderItem
	Quantity    int
	AmountMinor int64
}

// SourceFor picks the refund source implied by the request.
func SourceFor(selections []Selection) Source {
	if len(selections) == 0 {
		return WholePurchaseOrder{}
	}
	return ItemSubset{Selections: selections}
}

func (WholePurchaseOrder) Kind() enums.RefundSourceKind {
	return enums.RefundSourceWholePurchaseOrder
}

func (WholePurchaseOrder) lines(items []models.OrderItem) ([]Line, error) {
	if len(items) == 0 {
		return nil, pkgerrors.Reason(pkgerrors.CodeValidation, ReasonItemsNotInPurchaseOrder, "purchase order has no items")
	}
	out := make([]Line, 0, len(items))
	for _, item := range items {
		out = append(out, newLine(item, item.Quantity))
	}
	return out, nil
}

func (ItemSubset) Kind() enums.RefundSourceKind {
	return enums.RefundSourceItemSubset
}

func (s ItemSubset) lines(items []models.OrderItem) ([]Line, error) {
	byID := make(map[uuid.UUID]models.OrderItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	seen := make(map[uuid.UUID]struct{}, len(s.Selections))
	out := make([]Line, 0, len(s.Selections))
	for _, sel := range s.Selections {
		item, ok := byID[sel.OrderItemID]
		if !ok {
			return nil, pkgerrors.Reason(pkgerrors.CodeValidation, ReasonItemsNotInPurchaseOrder, "item is not part of the purchase order").
				WithDetail("order_item_id", sel.OrderItemID.String())
		}
		if _, dup := seen[sel.OrderItemID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item selected more than once").
				WithDetail("order_item_id", sel.OrderItemID.String())
		}
		seen[sel.OrderItemID] = struct{}{}

		qty := item.Quantity
		if sel.Quantity != nil {
			qty = *sel.Quantity
		}
		if qty <= 0 || qty > item.Quantity {
			return nil, pkgerrors.Reason(pkgerrors.CodeValidation, ReasonInvalidQuantity, "refund quantity out of range").
				WithDetail("order_item_id", sel.OrderItemID.String()).
				WithDetail("max_quantity", item.Quantity)
		}
		out = append(out, newLine(item, qty))
	}
	return out, nil
}

func newLine(item models.OrderItem, qty int) Line {
	return Line{Item: item, Quantity: qty, AmountMinor: item.UnitPriceMinor * int64(qty)}
}

// Breakdown is the itemized refundable amount.
type Breakdown struct {
	ItemsMinor int64
	TaxMinor   int64
	FeesMinor  int64
}

func (b Breakdown) TotalMinor() int64 {
	return b.ItemsMinor + b.TaxMinor + b.FeesMinor
}

// ComputeBreakdown sums the refunded lines. Tax and service fee shares are
// only included when prorate is set, in proportion to the order subtotal.
func ComputeBreakdown(lines []Line, order models.Order, prorate bool) Breakdown {
	var b Breakdown
	for _, line := range lines {
		b.ItemsMinor += line.AmountMinor
	}
	if prorate {
		b.TaxMinor = money.Prorate(order.TaxMinor, b.ItemsMinor, order.SubtotalMinor)
		b.FeesMinor = money.Prorate(order.ServiceFeeMinor, b.ItemsMinor, order.SubtotalMinor)
	}
	return b
}
