package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/invoice-oracle/internal/domain/model"
)

func TestAuthorize(t *testing.T) {
	authority, oracle, owner, rng := newKey(), newKey(), newKey(), newKey()
	subject := Subject{
		Config:             &model.OrgConfig{Authority: authority, OracleSigner: oracle},
		Invoice:            &model.Invoice{Authority: owner},
		RandomnessIdentity: rng,
	}

	tests := []struct {
		role  Role
		actor solana.PublicKey
		ok    bool
	}{
		{RoleOrgAuthority, authority, true},
		{RoleOrgAuthority, oracle, false},
		{RoleOracleSigner, oracle, true},
		{RoleOracleSigner, authority, false},
		{RoleInvoiceOwner, owner, true},
		{RoleInvoiceOwner, authority, false},
		{RoleRandomnessService, rng, true},
		{RoleRandomnessService, owner, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.role, tt.ok), func(t *testing.T) {
			err := Authorize(tt.actor, tt.role, subject)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, IsCode(err, CodeUnauthorized))
			assert.Equal(t, KindAuthorization, KindOf(err))
		})
	}
}

func TestAuthorize_UnsetIdentityMatchesNobody(t *testing.T) {
	err := Authorize(solana.PublicKey{}, RoleRandomnessService, Subject{})
	assert.True(t, IsCode(err, CodeUnauthorized))

	err = Authorize(newKey(), RoleOrgAuthority, Subject{})
	assert.True(t, IsCode(err, CodeUnauthorized))
}

func TestAuthorizeAny(t *testing.T) {
	authority, owner := newKey(), newKey()
	subject := Subject{
		Config:  &model.OrgConfig{Authority: authority, OracleSigner: authority},
		Invoice: &model.Invoice{Authority: owner},
	}
	assert.NoError(t, AuthorizeAny(owner, subject, RoleOrgAuthority, RoleInvoiceOwner))
	assert.True(t, IsCode(AuthorizeAny(newKey(), subject, RoleOrgAuthority, RoleInvoiceOwner), CodeUnauthorized))
}

func TestValidateAmount(t *testing.T) {
	cfg := &model.OrgConfig{PerInvoiceCap: 100}
	assert.True(t, IsCode(ValidateAmount(0, cfg), CodeInvalidAmount))
	assert.NoError(t, ValidateAmount(1, cfg))
	assert.NoError(t, ValidateAmount(100, cfg))
	assert.True(t, IsCode(ValidateAmount(101, cfg), CodeCapExceeded))
}

func TestValidateCaps(t *testing.T) {
	assert.NoError(t, ValidateCaps(10, 10))
	assert.NoError(t, ValidateCaps(10, 100))
	assert.True(t, IsCode(ValidateCaps(0, 100), CodeInvalidAmount))
	assert.True(t, IsCode(ValidateCaps(10, 0), CodeInvalidAmount))
	assert.True(t, IsCode(ValidateCaps(100, 10), CodeCapExceeded))
}

func TestValidateVendorName(t *testing.T) {
	assert.True(t, IsCode(ValidateVendorName(""), CodeInvalidVendor))
	assert.NoError(t, ValidateVendorName(string(make([]byte, model.MaxVendorNameLen))))
	assert.True(t, IsCode(ValidateVendorName(string(make([]byte, model.MaxVendorNameLen+1))), CodeInvalidVendor))
}

func TestValidateAuditRate(t *testing.T) {
	assert.NoError(t, ValidateAuditRate(0))
	assert.NoError(t, ValidateAuditRate(model.MaxAuditRateBps))
	assert.True(t, IsCode(ValidateAuditRate(model.MaxAuditRateBps+1), CodeInvalidAuditRate))
}

func TestChargeDailyCap(t *testing.T) {
	const day = 20_000
	now := int64(day*model.SecondsPerDay + 3600)

	t.Run("accumulates within the day", func(t *testing.T) {
		cfg := &model.OrgConfig{DailyCap: 100, LastResetDay: day}
		require.NoError(t, ChargeDailyCap(cfg, 60, now))
		require.NoError(t, ChargeDailyCap(cfg, 40, now))
		assert.Equal(t, uint64(100), cfg.DailySpent)
	})

	t.Run("rejection leaves config untouched", func(t *testing.T) {
		cfg := &model.OrgConfig{DailyCap: 100, DailySpent: 90, LastResetDay: day}
		err := ChargeDailyCap(cfg, 11, now)
		assert.True(t, IsCode(err, CodeDailyCapExceeded))
		assert.Equal(t, uint64(90), cfg.DailySpent)
	})

	t.Run("new day resets", func(t *testing.T) {
		cfg := &model.OrgConfig{DailyCap: 100, DailySpent: 100, LastResetDay: day - 1}
		require.NoError(t, ChargeDailyCap(cfg, 70, now))
		assert.Equal(t, uint64(70), cfg.DailySpent)
		assert.Equal(t, int64(day), cfg.LastResetDay)
	})

	t.Run("rejected charge on a new day keeps the old window", func(t *testing.T) {
		cfg := &model.OrgConfig{DailyCap: 100, DailySpent: 50, LastResetDay: day - 1}
		assert.True(t, IsCode(ChargeDailyCap(cfg, 101, now), CodeDailyCapExceeded))
		assert.Equal(t, int64(day-1), cfg.LastResetDay)
		assert.Equal(t, uint64(50), cfg.DailySpent)
	})

	t.Run("overflow", func(t *testing.T) {
		cfg := &model.OrgConfig{DailyCap: ^uint64(0), DailySpent: ^uint64(0) - 1, LastResetDay: day}
		assert.True(t, IsCode(ChargeDailyCap(cfg, 2, now), CodeOverflow))
	})
}

func TestError_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError("fund_escrow", CodeWrongMint, "mint %s", "x"))

	assert.ErrorIs(t, err, &Error{Code: CodeWrongMint})
	assert.False(t, errors.Is(err, &Error{Code: CodeWrongOrg}))
	assert.Equal(t, CodeWrongMint, CodeOf(err))
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "fund_escrow")
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestCodeKinds(t *testing.T) {
	tests := map[Code]Kind{
		CodeUnauthorized:        KindAuthorization,
		CodeInvalidDueDate:      KindValidation,
		CodeConstraintSeeds:     KindValidation,
		CodeCapExceeded:         KindCapacity,
		CodeDailyCapExceeded:    KindCapacity,
		CodeOrgPaused:           KindCapacity,
		CodeInvalidStatus:       KindStateConflict,
		CodeAlreadyExists:       KindStateConflict,
		CodeVendorAlreadyActive: KindStateConflict,
	}
	for code, kind := range tests {
		assert.Equal(t, kind, code.Kind(), code)
	}
}
