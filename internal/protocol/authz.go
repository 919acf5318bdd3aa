package protocol

import (
	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/domain/model"
)

// Role is a capacity in which an identity may invoke an operation.
type Role uint8

const (
	RoleOrgAuthority Role = iota + 1
	RoleOracleSigner
	RoleInvoiceOwner
	RoleRandomnessService
)

func (r Role) String() string {
	switch r {
	case RoleOrgAuthority:
		return "org_authority"
	case RoleOracleSigner:
		return "oracle_signer"
	case RoleInvoiceOwner:
		return "invoice_owner"
	case RoleRandomnessService:
		return "randomness_service"
	default:
		return "unknown"
	}
}

// Subject is the record state a role is checked against. Only the fields the
// role needs must be set.
type Subject struct {
	Config             *model.OrgConfig
	Invoice            *model.Invoice
	RandomnessIdentity solana.PublicKey
}

// Authorize reports whether actor holds role for subject.
func Authorize(actor solana.PublicKey, role Role, subject Subject) error {
	var want solana.PublicKey
	switch role {
	case RoleOrgAuthority:
		if subject.Config == nil {
			return newError("", CodeUnauthorized, "no organization")
		}
		want = subject.Config.Authority
	case RoleOracleSigner:
		if subject.Config == nil {
			return newError("", CodeUnauthorized, "no organization")
		}
		want = subject.Config.OracleSigner
	case RoleInvoiceOwner:
		if subject.Invoice == nil {
			return newError("", CodeUnauthorized, "no invoice")
		}
		want = subject.Invoice.Authority
	case RoleRandomnessService:
		want = subject.RandomnessIdentity
	default:
		return newError("", CodeUnauthorized, "unknown role %d", role)
	}
	if want.IsZero() || !actor.Equals(want) {
		return newError("", CodeUnauthorized, "%s is not the %s", actor, role)
	}
	return nil
}

// AuthorizeAny succeeds when actor holds at least one of roles.
func AuthorizeAny(actor solana.PublicKey, subject Subject, roles ...Role) error {
	for _, r := range roles {
		if Authorize(actor, r, subject) == nil {
			return nil
		}
	}
	return newError("", CodeUnauthorized, "%s holds none of the required roles", actor)
}

// ValidateAmount enforces the per-invoice bounds: non-zero and at most the
// cap, inclusive.
func ValidateAmount(amount uint64, cfg *model.OrgConfig) error {
	if amount == 0 {
		return newError("", CodeInvalidAmount, "amount must be positive")
	}
	if amount > cfg.PerInvoiceCap {
		return newError("", CodeCapExceeded, "amount %d exceeds per-invoice cap %d", amount, cfg.PerInvoiceCap)
	}
	return nil
}

// CheckNotPaused rejects operations on a paused organization.
func CheckNotPaused(cfg *model.OrgConfig) error {
	if cfg.Paused {
		return newError("", CodeOrgPaused, "organization %s is paused", cfg.Authority)
	}
	return nil
}

// ValidateVendorName checks the non-empty and byte-length bounds.
func ValidateVendorName(name string) error {
	if name == "" {
		return newError("", CodeInvalidVendor, "vendor name is empty")
	}
	if len(name) > model.MaxVendorNameLen {
		return newError("", CodeInvalidVendor, "vendor name is %d bytes, max %d", len(name), model.MaxVendorNameLen)
	}
	return nil
}

// ValidateCaps checks the cap pair invariants.
func ValidateCaps(perInvoiceCap, dailyCap uint64) error {
	if perInvoiceCap == 0 || dailyCap == 0 {
		return newError("", CodeInvalidAmount, "caps must be positive")
	}
	if dailyCap < perInvoiceCap {
		return newError("", CodeCapExceeded, "daily cap %d below per-invoice cap %d", dailyCap, perInvoiceCap)
	}
	return nil
}

// ValidateAuditRate checks the basis-point range.
func ValidateAuditRate(bps uint16) error {
	if bps > model.MaxAuditRateBps {
		return newError("", CodeInvalidAuditRate, "audit rate %d bps above %d", bps, model.MaxAuditRateBps)
	}
	return nil
}

// ChargeDailyCap adds amount to the organization's spend for the day
// containing now, resetting the counter when a new day has begun. cfg is
// only modified when the charge fits.
func ChargeDailyCap(cfg *model.OrgConfig, amount uint64, now int64) error {
	day := model.DayIndex(now)
	spent := cfg.DailySpent
	if day > cfg.LastResetDay {
		spent = 0
	}
	next := spent + amount
	if next < spent {
		return newError("", CodeOverflow, "daily spend overflow")
	}
	if next > cfg.DailyCap {
		return newError("", CodeDailyCapExceeded, "spend %d would exceed daily cap %d", next, cfg.DailyCap)
	}
	if day > cfg.LastResetDay {
		cfg.LastResetDay = day
	}
	cfg.DailySpent = next
	return nil
}
