package alert

import (
	"context"
	"strconv"

	"github.com/emperorhan/invoice-oracle/internal/domain/event"
	"github.com/emperorhan/invoice-oracle/internal/domain/model"
)

// AuditSink is an event.Sink that alerts when an invoice is selected for
// audit.
type AuditSink struct {
	alerter Alerter
}

func NewAuditSink(alerter Alerter) *AuditSink {
	return &AuditSink{alerter: alerter}
}

func (s *AuditSink) Publish(ctx context.Context, transitions []event.Transition) error {
	for _, t := range transitions {
		if t.Kind != event.RecordKindInvoice || t.To != model.InvoiceStatusAuditPending.String() {
			continue
		}
		err := s.alerter.Send(ctx, Alert{
			Type:    AlertTypeAuditSelected,
			Subject: t.Record.String(),
			Title:   "Invoice selected for audit",
			Message: "Payment is blocked until the invoice is reviewed.",
			Fields: map[string]string{
				"claimant": t.Claimant.String(),
				"amount":   strconv.FormatUint(t.Amount, 10),
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
