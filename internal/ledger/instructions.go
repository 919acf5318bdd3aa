package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/keys"
	"github.com/emperorhan/invoice-oracle/internal/protocol/escrow"
)

// Builder assembles wire-format instructions with their accounts in the
// order the protocol expects.
type Builder struct {
	keys       *keys.Deriver
	vrfProgram solana.PublicKey
	vrfQueue   solana.PublicKey
}

func NewBuilder(d *keys.Deriver, vrfProgram, vrfQueue solana.PublicKey) *Builder {
	return &Builder{keys: d, vrfProgram: vrfProgram, vrfQueue: vrfQueue}
}

func (b *Builder) Keys() *keys.Deriver { return b.keys }

func (b *Builder) build(args codec.Args, metas ...*solana.AccountMeta) (*solana.GenericInstruction, error) {
	data, err := codec.EncodeInstruction(args)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", args.Op(), err)
	}
	return solana.NewInstruction(b.keys.ProgramID(), metas, data), nil
}

func signer(key solana.PublicKey) *solana.AccountMeta   { return solana.Meta(key).WRITE().SIGNER() }
func writable(key solana.PublicKey) *solana.AccountMeta { return solana.Meta(key).WRITE() }
func readonly(key solana.PublicKey) *solana.AccountMeta { return solana.Meta(key) }

func (b *Builder) RequestExtraction(claimant solana.PublicKey, ipfsHash string, amount uint64) (*solana.GenericInstruction, error) {
	req, err := b.keys.Request(claimant)
	if err != nil {
		return nil, err
	}
	return b.build(&codec.RequestExtractionArgs{IPFSHash: ipfsHash, Amount: amount},
		writable(req.Key),
		signer(claimant),
		readonly(solana.SystemProgramID),
	)
}

// ProcessExtraction is signed by the organization's oracle signer.
func (b *Builder) ProcessExtraction(oracle, orgKey, claimant solana.PublicKey, vendorName string, amount uint64, dueDate int64) (*solana.GenericInstruction, error) {
	vendor, err := b.keys.Vendor(orgKey, vendorName)
	if err != nil {
		return nil, err
	}
	req, err := b.keys.Request(claimant)
	if err != nil {
		return nil, err
	}
	inv, err := b.keys.Invoice(claimant)
	if err != nil {
		return nil, err
	}
	return b.build(&codec.ProcessExtractionArgs{VendorName: vendorName, Amount: amount, DueDate: dueDate},
		signer(oracle),
		writable(orgKey),
		readonly(vendor.Key),
		writable(req.Key),
		writable(inv.Key),
		readonly(solana.SystemProgramID),
	)
}

func (b *Builder) RequestAudit(payer, orgKey, claimant solana.PublicKey, clientSeed uint8) (*solana.GenericInstruction, error) {
	inv, err := b.keys.Invoice(claimant)
	if err != nil {
		return nil, err
	}
	identity, err := b.keys.ProgramIdentity()
	if err != nil {
		return nil, err
	}
	return b.build(&codec.RequestAuditArgs{ClientSeed: clientSeed},
		signer(payer),
		readonly(orgKey),
		readonly(inv.Key),
		writable(b.vrfQueue),
		readonly(identity.Key),
		readonly(b.vrfProgram),
		readonly(solana.SysVarSlotHashesPubkey),
		readonly(solana.SystemProgramID),
	)
}

// AuditCallback is signed by the randomness service identity.
func (b *Builder) AuditCallback(identity, invoiceKey, orgKey solana.PublicKey, randomness [32]byte) (*solana.GenericInstruction, error) {
	return b.build(&codec.AuditCallbackArgs{Randomness: randomness},
		solana.Meta(identity).SIGNER(),
		writable(invoiceKey),
		readonly(orgKey),
	)
}

func (b *Builder) OrgInit(authority solana.PublicKey, args codec.OrgInitArgs) (*solana.GenericInstruction, error) {
	org, err := b.keys.OrgConfig(authority)
	if err != nil {
		return nil, err
	}
	return b.build(&args,
		writable(org.Key),
		signer(authority),
		readonly(solana.SystemProgramID),
	)
}

func (b *Builder) UpdateOrgConfig(authority, orgKey solana.PublicKey, args codec.UpdateOrgConfigArgs) (*solana.GenericInstruction, error) {
	return b.build(&args,
		solana.Meta(authority).SIGNER(),
		writable(orgKey),
	)
}

func (b *Builder) RegisterVendor(authority, orgKey solana.PublicKey, name string, wallet solana.PublicKey) (*solana.GenericInstruction, error) {
	vendor, err := b.keys.Vendor(orgKey, name)
	if err != nil {
		return nil, err
	}
	return b.build(&codec.RegisterVendorArgs{VendorName: name, Wallet: wallet},
		writable(vendor.Key),
		readonly(orgKey),
		signer(authority),
		readonly(solana.SystemProgramID),
	)
}

func (b *Builder) DeactivateVendor(authority, orgKey, vendorKey solana.PublicKey) (*solana.GenericInstruction, error) {
	return b.manageVendor(codec.Empty(codec.OpDeactivateVendor), authority, orgKey, vendorKey)
}

func (b *Builder) ActivateVendor(authority, orgKey, vendorKey solana.PublicKey) (*solana.GenericInstruction, error) {
	return b.manageVendor(codec.Empty(codec.OpActivateVendor), authority, orgKey, vendorKey)
}

func (b *Builder) UpdateVendorWallet(authority, orgKey, vendorKey, wallet solana.PublicKey) (*solana.GenericInstruction, error) {
	return b.manageVendor(&codec.UpdateVendorWalletArgs{NewWallet: wallet}, authority, orgKey, vendorKey)
}

func (b *Builder) manageVendor(args codec.Args, authority, orgKey, vendorKey solana.PublicKey) (*solana.GenericInstruction, error) {
	return b.build(args,
		writable(vendorKey),
		readonly(orgKey),
		solana.Meta(authority).SIGNER(),
	)
}

func (b *Builder) ProcessPayment(owner solana.PublicKey) (*solana.GenericInstruction, error) {
	return b.ownerInvoice(codec.OpProcessPayment, owner)
}

func (b *Builder) CompletePayment(owner solana.PublicKey) (*solana.GenericInstruction, error) {
	return b.ownerInvoice(codec.OpCompletePayment, owner)
}

func (b *Builder) CloseInvoice(owner solana.PublicKey) (*solana.GenericInstruction, error) {
	return b.ownerInvoice(codec.OpCloseInvoice, owner)
}

func (b *Builder) ownerInvoice(op codec.Op, owner solana.PublicKey) (*solana.GenericInstruction, error) {
	inv, err := b.keys.Invoice(owner)
	if err != nil {
		return nil, err
	}
	return b.build(codec.Empty(op), writable(inv.Key), signer(owner))
}

func (b *Builder) CloseRequest(owner solana.PublicKey) (*solana.GenericInstruction, error) {
	req, err := b.keys.Request(owner)
	if err != nil {
		return nil, err
	}
	return b.build(codec.Empty(codec.OpCloseRequest), writable(req.Key), signer(owner))
}

// FundEscrow moves the claimant's invoice amount from payer into escrow.
func (b *Builder) FundEscrow(payer, orgKey, claimant, mint solana.PublicKey) (*solana.GenericInstruction, error) {
	inv, err := b.keys.Invoice(claimant)
	if err != nil {
		return nil, err
	}
	capability, err := escrow.Derive(b.keys, inv.Key)
	if err != nil {
		return nil, err
	}
	payerHolding, err := escrow.HoldingAddress(payer, mint)
	if err != nil {
		return nil, err
	}
	escrowHolding, err := escrow.HoldingAddress(capability.Key(), mint)
	if err != nil {
		return nil, err
	}
	return b.build(codec.Empty(codec.OpFundEscrow),
		writable(orgKey),
		writable(inv.Key),
		readonly(capability.Key()),
		signer(payer),
		readonly(claimant),
		writable(payerHolding),
		writable(escrowHolding),
		readonly(mint),
		readonly(solana.TokenProgramID),
	)
}

// SettleToVendor pays the owner's escrowed invoice out to vendorWallet.
func (b *Builder) SettleToVendor(owner, orgKey, vendorWallet, mint solana.PublicKey) (*solana.GenericInstruction, error) {
	inv, err := b.keys.Invoice(owner)
	if err != nil {
		return nil, err
	}
	capability, err := escrow.Derive(b.keys, inv.Key)
	if err != nil {
		return nil, err
	}
	vendorHolding, err := escrow.HoldingAddress(vendorWallet, mint)
	if err != nil {
		return nil, err
	}
	escrowHolding, err := escrow.HoldingAddress(capability.Key(), mint)
	if err != nil {
		return nil, err
	}
	return b.build(codec.Empty(codec.OpSettleToVendor),
		readonly(orgKey),
		writable(inv.Key),
		readonly(capability.Key()),
		writable(vendorHolding),
		writable(escrowHolding),
		readonly(mint),
		readonly(solana.TokenProgramID),
		signer(owner),
	)
}
