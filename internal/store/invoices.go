package store

import (
	"context"
	"errors"
	"fmt"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/ports"
	"budgetbuddy/internal/remote"
)

// SaveInvoice validates and upserts inv, assigning an id when missing.
func (s *PeriodStore) SaveInvoice(ctx context.Context, inv core.Invoice) (core.Invoice, error) {
	uid, ok := s.userID(ctx)
	if !ok {
		return core.Invoice{}, ports.ErrNotAuthenticated
	}
	if err := inv.Validate(); err != nil {
		return core.Invoice{}, err
	}
	if inv.ID == "" {
		inv.ID = core.NewID()
	}
	if err := s.remote.Set(ctx, remote.Join(InvoicesPath, uid, inv.ID), EncodeInvoice(inv)); err != nil {
		return core.Invoice{}, fmt.Errorf("save invoice: %w", err)
	}
	s.logger.InfoContext(ctx, "Invoice saved",
		log.FieldUserID, uid, "invoice_id", inv.ID, log.FieldAmountCents, inv.Amount.Cents)
	return inv, nil
}

// ListInvoices returns the user's invoices ordered by expiry date.
func (s *PeriodStore) ListInvoices(ctx context.Context) ([]core.Invoice, error) {
	uid, ok := s.userID(ctx)
	if !ok {
		return []core.Invoice{}, nil
	}
	children, err := s.remote.Query(ctx, remote.Join(InvoicesPath, uid), ports.Query{OrderBy: fieldExpiryDate})
	if err != nil {
		return []core.Invoice{}, fmt.Errorf("query invoices: %w", err)
	}
	out := make([]core.Invoice, 0, len(children))
	for _, c := range children {
		inv, err := DecodeInvoice(c.Value)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping malformed invoice", "key", c.Key, log.FieldError, err)
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

// MarkInvoiceProcessed flags an invoice as processed. Unknown ids return ports.ErrNotFound.
func (s *PeriodStore) MarkInvoiceProcessed(ctx context.Context, id string) (core.Invoice, error) {
	uid, ok := s.userID(ctx)
	if !ok {
		return core.Invoice{}, ports.ErrNotAuthenticated
	}
	path := remote.Join(InvoicesPath, uid, id)
	rec, err := s.remote.Get(ctx, path)
	if errors.Is(err, ports.ErrNotFound) {
		return core.Invoice{}, ports.ErrNotFound
	}
	if err != nil {
		return core.Invoice{}, fmt.Errorf("get invoice: %w", err)
	}
	inv, err := DecodeInvoice(rec)
	if err != nil {
		return core.Invoice{}, err
	}
	inv.Processed = true
	if err := s.remote.Set(ctx, path, EncodeInvoice(inv)); err != nil {
		return core.Invoice{}, fmt.Errorf("update invoice: %w", err)
	}
	return inv, nil
}
