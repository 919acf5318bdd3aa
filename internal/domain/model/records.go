package model

import (
	"github.com/gagliardetto/solana-go"
)

const (
	// MaxDocumentRefLen bounds ExtractionRequest.IPFSHash and Invoice.IPFSHash.
	MaxDocumentRefLen = 64
	// MaxVendorNameLen bounds vendor names on invoices and vendor records.
	MaxVendorNameLen = 50

	// SecondsPerDay is the granularity of the daily-cap window.
	SecondsPerDay = 86400
	// MaxAuditRateBps is 100% expressed in basis points.
	MaxAuditRateBps = 10_000

	// OrgConfigVersion is written by OrgInit.
	OrgConfigVersion = 1
)

// Record is the closed set of persisted record kinds. Only types in this
// package implement it.
type Record interface {
	// AccountName is the type name the record discriminator is derived from.
	AccountName() string
	isRecord()
}

// OrgConfig is the per-authority organization configuration.
type OrgConfig struct {
	Authority      solana.PublicKey `json:"authority"`
	OracleSigner   solana.PublicKey `json:"oracle_signer"`
	TreasuryVault  solana.PublicKey `json:"treasury_vault"`
	Mint           solana.PublicKey `json:"mint"`
	PerInvoiceCap  uint64           `json:"per_invoice_cap"`
	DailyCap       uint64           `json:"daily_cap"`
	DailySpent     uint64           `json:"daily_spent"`
	LastResetDay   int64            `json:"last_reset_day"`
	AuditRateBps   uint16           `json:"audit_rate_bps"`
	Paused         bool             `json:"paused"`
	InvoiceCounter uint64           `json:"invoice_counter"`
	Version        uint8            `json:"version"`
	Bump           uint8            `json:"bump"`
}

// ExtractionRequest is a claimant's pending or completed OCR request.
type ExtractionRequest struct {
	Authority solana.PublicKey `json:"authority"`
	IPFSHash  string           `json:"ipfs_hash"`
	Status    RequestStatus    `json:"status"`
	Timestamp int64            `json:"timestamp"`
	Amount    uint64           `json:"amount"`
}

// Invoice is the validated invoice owned by a claimant.
type Invoice struct {
	Authority  solana.PublicKey `json:"authority"`
	Vendor     solana.PublicKey `json:"vendor"`
	VendorName string           `json:"vendor_name"`
	Amount     uint64           `json:"amount"`
	DueDate    int64            `json:"due_date"`
	IPFSHash   string           `json:"ipfs_hash"`
	Status     InvoiceStatus    `json:"status"`
	Timestamp  int64            `json:"timestamp"`
}

// Vendor is a registered payee of an organization.
type Vendor struct {
	Org                solana.PublicKey `json:"org"`
	VendorName         string           `json:"vendor_name"`
	Wallet             solana.PublicKey `json:"wallet"`
	TotalPaid          uint64           `json:"total_paid"`
	LastPayment        int64            `json:"last_payment"`
	IsActive           bool             `json:"is_active"`
	CurrencyPreference solana.PublicKey `json:"currency_preference"`
}

// TokenHolding is a balance of one mint held by one owner. Escrow and
// vendor payouts move value between holdings.
type TokenHolding struct {
	Mint   solana.PublicKey `json:"mint"`
	Owner  solana.PublicKey `json:"owner"`
	Amount uint64           `json:"amount"`
}

func (*OrgConfig) AccountName() string         { return "OrgConfig" }
func (*ExtractionRequest) AccountName() string { return "InvoiceRequest" }
func (*Invoice) AccountName() string           { return "InvoiceAccount" }
func (*Vendor) AccountName() string            { return "VendorAccount" }
func (*TokenHolding) AccountName() string      { return "TokenHolding" }

func (*OrgConfig) isRecord()         {}
func (*ExtractionRequest) isRecord() {}
func (*Invoice) isRecord()           {}
func (*Vendor) isRecord()            {}
func (*TokenHolding) isRecord()      {}

// DayIndex returns the daily-cap window index for a unix timestamp.
func DayIndex(unix int64) int64 {
	return unix / SecondsPerDay
}
