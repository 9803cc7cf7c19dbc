package billing

import (
	"time"

	"pharmapos/internal/core/id"
	"pharmapos/internal/core/types"
)

// Outbox event names published by this package.
const (
	AggregateInvoice = "Invoice"

	EventSaleCompleted = "sale.completed"
	EventSaleRefunded  = "sale.refunded"
)

// SaleCompletedPayload is published after an invoice commits. The
// worker uses it to create-or-update the customer record and its
// purchase stats.
type SaleCompletedPayload struct {
	InvoiceID      id.ID       `json:"invoiceId"`
	InvoiceNumber  string      `json:"invoiceNumber"`
	CustomerName   string      `json:"customerName,omitempty"`
	CustomerMobile string      `json:"customerMobile"`
	Total          types.Money `json:"total"`
	SoldAt         time.Time   `json:"soldAt"`
}

// SaleRefundedPayload is published after a refund commits.
type SaleRefundedPayload struct {
	InvoiceID      id.ID       `json:"invoiceId"`
	InvoiceNumber  string      `json:"invoiceNumber"`
	CustomerMobile string      `json:"customerMobile"`
	Amount         types.Money `json:"amount"`
	RefundedAt     time.Time   `json:"refundedAt"`
}
