package notifications

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/internal/activity"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/money"
)

// Template names the message a downstream sender renders.
type Template string

const (
	TemplatePurchaseOrderCreated Template = "purchase_order.created"
	TemplateDeliveryCodeIssued   Template = "delivery_code.issued"
	TemplateDeliveryConfirmed    Template = "delivery.confirmed"
	TemplatePayoutReleased       Template = "payout.released"
	TemplateRefundRequested      Template = "refund.requested"
	TemplateRefundResponded      Template = "refund.responded"
	TemplateRefundClosed         Template = "refund.closed"
	TemplateOrderCanceled        Template = "order.canceled"
)

// AdminRecipient addresses the operations team inbox.
const AdminRecipient = "role:admin"

// SupplierRecipient routes to the supplier's contact email when known and to
// the supplier inbox otherwise.
func SupplierRecipient(supplierID uuid.UUID, contact *models.SupplierPayoutProfile) (enums.NotificationChannel, string) {
	if contact != nil && strings.TrimSpace(contact.ContactEmail) != "" {
		return enums.NotificationChannelEmail, contact.ContactEmail
	}
	return enums.NotificationChannelInApp, "supplier:" + supplierID.String()
}

// UserRecipient addresses a user's in-app inbox.
func UserRecipient(userID uuid.UUID) (enums.NotificationChannel, string) {
	return enums.NotificationChannelInApp, "user:" + userID.String()
}

// CustomerPhoneRecipient texts the delivery phone on the order, falling back
// to the customer's inbox.
func CustomerPhoneRecipient(order *models.Order) (enums.NotificationChannel, string) {
	if order.ShippingAddress != nil && order.ShippingAddress.Phone != nil && strings.TrimSpace(*order.ShippingAddress.Phone) != "" {
		return enums.NotificationChannelSMS, *order.ShippingAddress.Phone
	}
	return UserRecipient(order.CustomerID)
}

func adminNote(template Template, subjectType string, subjectID uuid.UUID, data map[string]any) Notification {
	return Notification{
		Channel:     enums.NotificationChannelInApp,
		Recipient:   AdminRecipient,
		Template:    template,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Data:        data,
	}
}

// PurchaseOrderCreated tells a supplier about a new purchase order.
func PurchaseOrderCreated(po models.PurchaseOrder, contact *models.SupplierPayoutProfile) Notification {
	channel, recipient := SupplierRecipient(po.SupplierID, contact)
	return Notification{
		Channel:     channel,
		Recipient:   recipient,
		Template:    TemplatePurchaseOrderCreated,
		SubjectType: activity.SubjectPurchaseOrder,
		SubjectID:   po.ID,
		Data: map[string]any{
			"purchase_order_id":  po.ID.String(),
			"supplier_reference": po.SupplierReference,
			"amount_owed":        money.Format(po.AmountOwedMinor),
			"item_count":         len(po.Items),
		},
	}
}

// DeliveryCodeIssued sends the plaintext delivery code to the customer.
func DeliveryCodeIssued(po models.PurchaseOrder, order *models.Order, code string, expiresAt time.Time) Notification {
	channel, recipient := CustomerPhoneRecipient(order)
	return Notification{
		Channel:     channel,
		Recipient:   recipient,
		Template:    TemplateDeliveryCodeIssued,
		SubjectType: activity.SubjectPurchaseOrder,
		SubjectID:   po.ID,
		Data: map[string]any{
			"supplier_reference": po.SupplierReference,
			"code":               code,
			"expires_at":         expiresAt.UTC().Format(time.RFC3339),
		},
	}
}

// DeliveryConfirmed tells the supplier the customer confirmed delivery.
func DeliveryConfirmed(po models.PurchaseOrder, contact *models.SupplierPayoutProfile) Notification {
	channel, recipient := SupplierRecipient(po.SupplierID, contact)
	data := map[string]any{
		"purchase_order_id":  po.ID.String(),
		"supplier_reference": po.SupplierReference,
	}
	if po.DeliveredAt != nil {
		data["delivered_at"] = po.DeliveredAt.UTC().Format(time.RFC3339)
	}
	return Notification{
		Channel:     channel,
		Recipient:   recipient,
		Template:    TemplateDeliveryConfirmed,
		SubjectType: activity.SubjectPurchaseOrder,
		SubjectID:   po.ID,
		Data:        data,
	}
}

// PayoutReleased tells the supplier funds were released.
func PayoutReleased(po models.PurchaseOrder, amountMinor int64, contact *models.SupplierPayoutProfile) Notification {
	channel, recipient := SupplierRecipient(po.SupplierID, contact)
	return Notification{
		Channel:     channel,
		Recipient:   recipient,
		Template:    TemplatePayoutReleased,
		SubjectType: activity.SubjectPurchaseOrder,
		SubjectID:   po.ID,
		Data: map[string]any{
			"purchase_order_id":  po.ID.String(),
			"supplier_reference": po.SupplierReference,
			"amount":             money.Format(amountMinor),
		},
	}
}

func refundData(refund models.Refund) map[string]any {
	return map[string]any{
		"refund_id":         refund.ID.String(),
		"purchase_order_id": refund.PurchaseOrderID.String(),
		"status":            string(refund.Status),
		"total":             money.Format(refund.TotalMinor),
	}
}

// RefundRequested notifies the supplier and admins of a new refund case.
func RefundRequested(refund models.Refund, contact *models.SupplierPayoutProfile) []Notification {
	channel, recipient := SupplierRecipient(refund.SupplierID, contact)
	data := refundData(refund)
	data["reason"] = refund.Reason
	return []Notification{
		{
			Channel:     channel,
			Recipient:   recipient,
			Template:    TemplateRefundRequested,
			SubjectType: activity.SubjectRefund,
			SubjectID:   refund.ID,
			Data:        data,
		},
		adminNote(TemplateRefundRequested, activity.SubjectRefund, refund.ID, data),
	}
}

// RefundResponded notifies the requester and admins of the supplier decision.
func RefundResponded(refund models.Refund) []Notification {
	channel, recipient := UserRecipient(refund.RequestedBy)
	data := refundData(refund)
	if refund.SupplierNote != nil {
		data["supplier_note"] = *refund.SupplierNote
	}
	return []Notification{
		{
			Channel:     channel,
			Recipient:   recipient,
			Template:    TemplateRefundResponded,
			SubjectType: activity.SubjectRefund,
			SubjectID:   refund.ID,
			Data:        data,
		},
		adminNote(TemplateRefundResponded, activity.SubjectRefund, refund.ID, data),
	}
}

// RefundClosed notifies the requester and the supplier of the final outcome.
func RefundClosed(refund models.Refund, approved bool, contact *models.SupplierPayoutProfile) []Notification {
	data := refundData(refund)
	data["approved"] = approved
	userChannel, userRecipient := UserRecipient(refund.RequestedBy)
	supplierChannel, supplierRecipient := SupplierRecipient(refund.SupplierID, contact)
	return []Notification{
		{
			Channel:     userChannel,
			Recipient:   userRecipient,
			Template:    TemplateRefundClosed,
			SubjectType: activity.SubjectRefund,
			SubjectID:   refund.ID,
			Data:        data,
		},
		{
			Channel:     supplierChannel,
			Recipient:   supplierRecipient,
			Template:    TemplateRefundClosed,
			SubjectType: activity.SubjectRefund,
			SubjectID:   refund.ID,
			Data:        data,
		},
	}
}

// OrderCanceled tells the customer their order was canceled.
func OrderCanceled(order models.Order) Notification {
	channel, recipient := UserRecipient(order.CustomerID)
	return Notification{
		Channel:     channel,
		Recipient:   recipient,
		Template:    TemplateOrderCanceled,
		SubjectType: activity.SubjectOrder,
		SubjectID:   order.ID,
		Data: map[string]any{
			"order_id": order.ID.String(),
			"total":    money.Format(order.TotalMinor),
		},
	}
}
