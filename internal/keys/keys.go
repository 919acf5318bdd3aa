// Package keys derives the deterministic record addresses of the invoice
// protocol. Every address is a program-derived address: it is computed from a
// fixed tag plus the owning identity and is guaranteed to have no private key.
package keys

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Seed tags. They are part of the record address and must never change.
const (
	SeedOrgConfig  = "org_config"
	SeedRequest    = "request"
	SeedInvoice    = "invoice"
	SeedVendor     = "vendor"
	SeedEscrowAuth = "escrow_auth"
	SeedIdentity   = "identity"
)

// DefaultProgramID is the deployed invoice-claim program.
var DefaultProgramID = solana.MustPublicKeyFromBase58("5zUiSUHNQCtxcSYtrbx7QqxCHLFBZy6Pgxt6w1bLKa9u")

// Address is a derived record address together with the bump that moved it
// off the ed25519 curve.
type Address struct {
	Key  solana.PublicKey
	Bump uint8
}

// Deriver computes record addresses for one program.
type Deriver struct {
	programID solana.PublicKey
}

func NewDeriver(programID solana.PublicKey) *Deriver {
	if programID.IsZero() {
		programID = DefaultProgramID
	}
	return &Deriver{programID: programID}
}

func (d *Deriver) ProgramID() solana.PublicKey {
	return d.programID
}

func (d *Deriver) OrgConfig(authority solana.PublicKey) (Address, error) {
	return d.find(SeedOrgConfig, []byte(SeedOrgConfig), authority.Bytes())
}

func (d *Deriver) Request(claimant solana.PublicKey) (Address, error) {
	return d.find(SeedRequest, []byte(SeedRequest), claimant.Bytes())
}

func (d *Deriver) Invoice(claimant solana.PublicKey) (Address, error) {
	return d.find(SeedInvoice, []byte(SeedInvoice), claimant.Bytes())
}

// Vendor derives the vendor record of an organization. The vendor name is a
// raw seed, so names longer than solana.MaxSeedLength bytes cannot be derived.
func (d *Deriver) Vendor(orgConfig solana.PublicKey, vendorName string) (Address, error) {
	return d.find(SeedVendor, []byte(SeedVendor), orgConfig.Bytes(), []byte(vendorName))
}

// EscrowAuthority derives the signing address scoped to one invoice record.
func (d *Deriver) EscrowAuthority(invoice solana.PublicKey) (Address, error) {
	return d.find(SeedEscrowAuth, []byte(SeedEscrowAuth), invoice.Bytes())
}

// ProgramIdentity is the program's own signing identity used when it
// requests randomness.
func (d *Deriver) ProgramIdentity() (Address, error) {
	return d.find(SeedIdentity, []byte(SeedIdentity))
}

// Verify re-derives an address from its seeds and bump and reports whether it
// matches want.
func (d *Deriver) Verify(want solana.PublicKey, bump uint8, seeds ...[]byte) bool {
	withBump := append(append([][]byte{}, seeds...), []byte{bump})
	got, err := solana.CreateProgramAddress(withBump, d.programID)
	if err != nil {
		return false
	}
	return got.Equals(want)
}

func (d *Deriver) find(tag string, seeds ...[]byte) (Address, error) {
	key, bump, err := solana.FindProgramAddress(seeds, d.programID)
	if err != nil {
		return Address{}, fmt.Errorf("derive %s address: %w", tag, err)
	}
	return Address{Key: key, Bump: bump}, nil
}
