package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes supplier balances and the append-only ledger.
type Service interface {
	Balance(ctx context.Context, supplierID uuid.UUID) (*Balance, error)
	RecordEntry(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.SupplierLedgerEntry, error)
	RecordAdjustment(ctx context.Context, input AdjustmentInput) (*models.SupplierLedgerEntry, error)
	ListEntries(ctx context.Context, params ListParams) (*EntryList, error)
}

// EntryInput describes a ledger row. AmountMinor is the magnitude; the stored
// sign follows the entry type.
type EntryInput struct {
	SupplierID      uuid.UUID
	Type            enums.LedgerEntryType
	AmountMinor     int64
	PurchaseOrderID *uuid.UUID
	OrderID         *uuid.UUID
	RefundID        *uuid.UUID
	Metadata        map[string]any
	Actor           auth.Actor
}

// AdjustmentInput is a manual admin credit or debit.
type AdjustmentInput struct {
	SupplierID      uuid.UUID
	Type            enums.LedgerEntryType
	AmountMinor     int64
	PurchaseOrderID *uuid.UUID
	Note            string
	Actor           auth.Actor
}

// ListParams selects a page of a supplier's ledger.
type ListParams struct {
	SupplierID uuid.UUID
	pagination.Params
}

// EntryList is one page of ledger entries, newest first.
type EntryList struct {
	Entries    []models.SupplierLedgerEntry `json:"entries"`
	NextCursor string                       `json:"next_cursor,omitempty"`
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	metrics *metrics.FulfillmentMetrics
	logg    *logger.Logger
}

// NewService wires a ledger service with the provided dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, m *metrics.FulfillmentMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outbox,
		metrics: m,
		logg:    logg,
	}, nil
}

func (s *service) Balance(ctx context.Context, supplierID uuid.UUID) (*Balance, error) {
	if supplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}

	var balance Balance
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		allocations, err := repo.AllocationTotals(ctx, supplierID)
		if err != nil {
			return pkgerrors.Storage(err, "sum supplier allocations")
		}
		entries, err := repo.EntryTotals(ctx, supplierID)
		if err != nil {
			return pkgerrors.Storage(err, "sum supplier ledger")
		}
		balance = ComputeBalance(supplierID, allocations, entries)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (s *service) RecordEntry(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.SupplierLedgerEntry, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.SupplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", input.Type))
	}
	if input.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Type == enums.LedgerEntryTypeRefundDebit && input.RefundID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund debits must reference a refund")
	}

	entry := &models.SupplierLedgerEntry{
		SupplierID:      input.SupplierID,
		Type:            input.Type,
		AmountMinor:     SignedAmount(input.Type, input.AmountMinor),
		PurchaseOrderID: input.PurchaseOrderID,
		OrderID:         input.OrderID,
		RefundID:        input.RefundID,
		CreatedBy:       input.Actor.UserID,
	}
	if len(input.Metadata) > 0 {
		metadata, err := types.MarshalJSONValue(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal ledger metadata: %w", err)
		}
		entry.Metadata = metadata
	}

	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		if db.IsUniqueViolation(err, "ux_supplier_ledger_entries_refund") {
			return nil, pkgerrors.Reason(pkgerrors.CodeConflict, "ledger_entry_exists", "ledger entry already recorded for refund")
		}
		return nil, pkgerrors.Storage(err, "create ledger entry")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventLedgerEntryRecorded,
		AggregateType: enums.AggregateSupplierLedger,
		AggregateID:   entry.SupplierID,
		Actor:         outbox.ActorOf(input.Actor),
		Data: payloads.LedgerEntryRecordedEvent{
			EntryID:         entry.ID,
			SupplierID:      entry.SupplierID,
			Type:            entry.Type,
			AmountMinor:     entry.AmountMinor,
			PurchaseOrderID: entry.PurchaseOrderID,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit ledger entry event")
	}

	s.metrics.LedgerEntry(entry.Type.String())
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"supplier_id":  entry.SupplierID.String(),
		"entry_id":     entry.ID.String(),
		"entry_type":   entry.Type.String(),
		"amount_minor": entry.AmountMinor,
	})
	s.logg.Info(logCtx, "ledger.entry_recorded")
	return entry, nil
}

func (s *service) RecordAdjustment(ctx context.Context, input AdjustmentInput) (*models.SupplierLedgerEntry, error) {
	if !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if input.Type == enums.LedgerEntryTypeRefundDebit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund debits are recorded when a refund is closed")
	}
	note := strings.TrimSpace(input.Note)
	if note == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "note required")
	}

	var entry *models.SupplierLedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.RecordEntry(ctx, tx, EntryInput{
			SupplierID:      input.SupplierID,
			Type:            input.Type,
			AmountMinor:     input.AmountMinor,
			PurchaseOrderID: input.PurchaseOrderID,
			Metadata:        map[string]any{"note": note, "source": "admin_adjustment"},
			Actor:           input.Actor,
		})
		if err != nil {
			return err
		}
		entry = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ListEntries(ctx context.Context, params ListParams) (*EntryList, error) {
	if params.SupplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}

	query := listQuery{
		supplierID: params.SupplierID,
		limit:      pagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Storage(err, "list ledger entries")
	}
	page, next := pagination.Trim(rows, params.Limit, func(e models.SupplierLedgerEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return &EntryList{Entries: page, NextCursor: next}, nil
}
