package protocol

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/invoice-oracle/internal/codec"
	"github.com/emperorhan/invoice-oracle/internal/keys"
	"github.com/emperorhan/invoice-oracle/internal/protocol/escrow"
)

// Call is one wire-format operation: the identity that signed it, the
// ordered record addresses it names, and its encoded payload.
type Call struct {
	Signer   solana.PublicKey
	Accounts []solana.PublicKey
	Data     []byte
}

// NewCall flattens an instruction into a Call. signer is the identity the
// instruction is submitted under.
func NewCall(signer solana.PublicKey, ix solana.Instruction) (Call, error) {
	data, err := ix.Data()
	if err != nil {
		return Call{}, fmt.Errorf("instruction data: %w", err)
	}
	metas := ix.Accounts()
	accounts := make([]solana.PublicKey, len(metas))
	for i, m := range metas {
		accounts[i] = m.PublicKey
	}
	return Call{Signer: signer, Accounts: accounts, Data: data}, nil
}

// Dispatch decodes a wire-format operation, checks that every address it
// names is the one the protocol derives for it, and runs the operation.
func (e *Engine) Dispatch(ctx context.Context, call Call) (codec.Op, error) {
	args, err := codec.DecodeInstruction(call.Data)
	if err != nil {
		return "", err
	}
	op := args.Op()
	a := accountList{op: op, keys: call.Accounts}

	switch p := args.(type) {
	case *codec.RequestExtractionArgs:
		// [request, authority, system_program]
		if err := a.need(3); err != nil {
			return op, err
		}
		if err := e.checkSigner(a, 1, call.Signer); err != nil {
			return op, err
		}
		if err := e.checkDerived(a, 0, "request", func() (solana.PublicKey, error) { return addrKey(e.keys.Request(call.Signer)) }); err != nil {
			return op, err
		}
		if err := a.expect(2, solana.SystemProgramID, "system program"); err != nil {
			return op, err
		}
		_, err := e.RequestExtraction(ctx, call.Signer, p.IPFSHash, p.Amount)
		return op, err

	case *codec.ProcessExtractionArgs:
		// [payer, org_config, vendor, request, invoice, system_program]
		if err := a.need(6); err != nil {
			return op, err
		}
		if err := e.checkSigner(a, 0, call.Signer); err != nil {
			return op, err
		}
		orgKey := a.keys[1]
		if err := e.checkOrgAddress(ctx, a, 1); err != nil {
			return op, err
		}
		req, err := e.Request(ctx, a.keys[3])
		if err != nil {
			return op, annotate(op, err)
		}
		claimant := req.Authority
		if err := e.checkDerived(a, 2, "vendor", func() (solana.PublicKey, error) { return e.vendorKey(orgKey, p.VendorName) }); err != nil {
			return op, err
		}
		if err := e.checkDerived(a, 3, "request", func() (solana.PublicKey, error) { return addrKey(e.keys.Request(claimant)) }); err != nil {
			return op, err
		}
		if err := e.checkDerived(a, 4, "invoice", func() (solana.PublicKey, error) { return addrKey(e.keys.Invoice(claimant)) }); err != nil {
			return op, err
		}
		if err := a.expect(5, solana.SystemProgramID, "system program"); err != nil {
			return op, err
		}
		_, err = e.ProcessExtraction(ctx, call.Signer, ExtractionResult{
			OrgConfig:  orgKey,
			Claimant:   claimant,
			VendorName: p.VendorName,
			Amount:     p.Amount,
			DueDate:    p.DueDate,
		})
		return op, err

	case *codec.RequestAuditArgs:
		// [payer, org_config, invoice, oracle_queue, program_identity,
		//  vrf_program, slot_hashes, system_program]
		if err := a.need(8); err != nil {
			return op, err
		}
		if err := e.checkSigner(a, 0, call.Signer); err != nil {
			return op, err
		}
		claimant, err := e.checkInvoiceAndOrg(ctx, a, 2, 1)
		if err != nil {
			return op, err
		}
		if !e.randomnessQueue.IsZero() {
			if err := a.expect(3, e.randomnessQueue, "oracle queue"); err != nil {
				return op, err
			}
		}
		if err := e.checkDerived(a, 4, "program identity", func() (solana.PublicKey, error) { return addrKey(e.keys.ProgramIdentity()) }); err != nil {
			return op, err
		}
		if err := a.expect(6, solana.SysVarSlotHashesPubkey, "slot hashes"); err != nil {
			return op, err
		}
		if err := a.expect(7, solana.SystemProgramID, "system program"); err != nil {
			return op, err
		}
		return op, e.RequestAudit(ctx, call.Signer, claimant, p.ClientSeed)

	case *codec.AuditCallbackArgs:
		// [vrf_program_identity, invoice, org_config]
		if err := a.need(3); err != nil {
			return op, err
		}
		if err := e.checkSigner(a, 0, call.Signer); err != nil {
			return op, err
		}
		_, err := e.AuditCallback(ctx, call.Signer, a.keys[1], a.keys[2], p.Randomness)
		return op, err

	case *codec.OrgInitArgs:
		// [org_config, authority, system_program]
		if err := a.need(3); err != nil {
			return op, err
		}
		if err := e.checkSigner(a, 1, call.Signer); err != nil {
			return op, err
		}
		if err := e.checkDerived(a, 0, "org config", func() (solana.PublicKey, error) { return addrKey(e.keys.OrgConfig(call.Signer)) }); err != nil {
			return op, err
		}
		if err := a.expect(2, solana.SystemProgramID, "system program"); err != nil {
			return op, err
		}
		_, err := e.OrgInit(ctx, call.Signer, *p)
		return op, err

	case *codec.UpdateOrgConfigArgs:
		// [authority, org_config]
		if err := a.need(2); err != nil {
			return op, err
		}
		if err := e.checkSigner(a, 0, call.Signer); err != nil {
			return op, err
		}
		return op, e.UpdateOrgConfig(ctx, call.Signer, a.keys[1], *p)

	case *codec.RegisterVendorArgs:
		// [vendor, org_config, authority, system_program]
		if err := a.need(4); err != nil {
			return op, err
		}
		if err := e.checkSigner(a, 2, call.Signer); err != nil {
			return op, err
		}
		orgKey := a.keys[1]
		if err := e.checkDerived(a, 0, "vendor", func() (solana.PublicKey, error) { return e.vendorKey(orgKey, p.VendorName) }); err != nil {
			return op, err
		}
		if err := a.expect(3, solana.SystemProgramID, "system program"); err != nil {
			return op, err
		}
		_, err := e.RegisterVendor(ctx, call.Signer, orgKey, p.VendorName, p.Wallet)
		return op, err

	case *codec.UpdateVendorWalletArgs:
		// [vendor, org_config, authority]
		if err := e.vendorAccounts(a, call.Signer); err != nil {
			return op, err
		}
		return op, e.UpdateVendorWallet(ctx, call.Signer, a.keys[1], a.keys[0], p.NewWallet)

	case *codec.NoArgs:
		return op, e.dispatchNoArgs(ctx, a, call.Signer)
	}
	return op, fmt.Errorf("dispatch %s: %w", op, codec.ErrUnknownOp)
}

func (e *Engine) dispatchNoArgs(ctx context.Context, a accountList, signer solana.PublicKey) error {
	switch a.op {
	case codec.OpProcessPayment, codec.OpCompletePayment, codec.OpCloseInvoice:
		// [invoice, authority]
		if err := a.need(2); err != nil {
			return err
		}
		if err := e.checkSigner(a, 1, signer); err != nil {
			return err
		}
		if err := e.checkDerived(a, 0, "invoice", func() (solana.PublicKey, error) { return addrKey(e.keys.Invoice(signer)) }); err != nil {
			return err
		}
		switch a.op {
		case codec.OpProcessPayment:
			return e.ProcessPayment(ctx, signer)
		case codec.OpCompletePayment:
			return e.CompletePayment(ctx, signer)
		default:
			_, err := e.CloseInvoice(ctx, signer)
			return err
		}

	case codec.OpCloseRequest:
		// [request, authority]
		if err := a.need(2); err != nil {
			return err
		}
		if err := e.checkSigner(a, 1, signer); err != nil {
			return err
		}
		if err := e.checkDerived(a, 0, "request", func() (solana.PublicKey, error) { return addrKey(e.keys.Request(signer)) }); err != nil {
			return err
		}
		_, err := e.CloseRequest(ctx, signer)
		return err

	case codec.OpDeactivateVendor, codec.OpActivateVendor:
		if err := e.vendorAccounts(a, signer); err != nil {
			return err
		}
		if a.op == codec.OpDeactivateVendor {
			return e.DeactivateVendor(ctx, signer, a.keys[1], a.keys[0])
		}
		return e.ActivateVendor(ctx, signer, a.keys[1], a.keys[0])

	case codec.OpFundEscrow:
		// [org_config, invoice, escrow_authority, payer, authority,
		//  payer_ata, escrow_ata, mint, token_program]
		if err := a.need(9); err != nil {
			return err
		}
		if err := e.checkSigner(a, 3, signer); err != nil {
			return err
		}
		claimant := a.keys[4]
		mint := a.keys[7]
		if err := e.checkDerived(a, 1, "invoice", func() (solana.PublicKey, error) { return addrKey(e.keys.Invoice(claimant)) }); err != nil {
			return err
		}
		if _, err := e.checkInvoiceAndOrg(ctx, a, 1, 0); err != nil {
			return err
		}
		if err := e.checkEscrowAccounts(a, 2, 6, mint); err != nil {
			return err
		}
		if err := e.checkDerived(a, 5, "payer holding", func() (solana.PublicKey, error) { return escrow.HoldingAddress(signer, mint) }); err != nil {
			return err
		}
		if err := a.expect(8, solana.TokenProgramID, "token program"); err != nil {
			return err
		}
		return e.FundEscrow(ctx, signer, claimant, mint)

	case codec.OpSettleToVendor:
		// [org_config, invoice, escrow_authority, vendor_ata, escrow_ata,
		//  mint, token_program, authority]
		if err := a.need(8); err != nil {
			return err
		}
		if err := e.checkSigner(a, 7, signer); err != nil {
			return err
		}
		mint := a.keys[5]
		if err := e.checkDerived(a, 1, "invoice", func() (solana.PublicKey, error) { return addrKey(e.keys.Invoice(signer)) }); err != nil {
			return err
		}
		if _, err := e.checkInvoiceAndOrg(ctx, a, 1, 0); err != nil {
			return err
		}
		if err := e.checkEscrowAccounts(a, 2, 4, mint); err != nil {
			return err
		}
		inv, err := e.Invoice(ctx, a.keys[1])
		if err != nil {
			return annotate(a.op, err)
		}
		v, err := e.Vendor(ctx, inv.Vendor)
		if err != nil {
			return annotate(a.op, err)
		}
		if err := e.checkDerived(a, 3, "vendor holding", func() (solana.PublicKey, error) { return escrow.HoldingAddress(v.Wallet, mint) }); err != nil {
			return err
		}
		if err := a.expect(6, solana.TokenProgramID, "token program"); err != nil {
			return err
		}
		return e.SettleToVendor(ctx, signer, mint)
	}
	return fmt.Errorf("dispatch %s: %w", a.op, codec.ErrUnknownOp)
}

// vendorAccounts checks the [vendor, org_config, authority] layout shared by
// the vendor management operations.
func (e *Engine) vendorAccounts(a accountList, signer solana.PublicKey) error {
	if err := a.need(3); err != nil {
		return err
	}
	return e.checkSigner(a, 2, signer)
}

func (e *Engine) checkSigner(a accountList, i int, signer solana.PublicKey) error {
	if !a.keys[i].Equals(signer) {
		return &Error{Kind: KindAuthorization, Code: CodeUnauthorized, Op: a.op.String(),
			Detail: fmt.Sprintf("account %d (%s) did not sign", i, a.keys[i])}
	}
	return nil
}

func (e *Engine) checkDerived(a accountList, i int, name string, derive func() (solana.PublicKey, error)) error {
	want, err := derive()
	if err != nil {
		return annotate(a.op, err)
	}
	return a.expect(i, want, name)
}

// checkOrgAddress verifies the org config at index i sits at the address
// derived from its own authority.
func (e *Engine) checkOrgAddress(ctx context.Context, a accountList, i int) error {
	cfg, err := e.Org(ctx, a.keys[i])
	if err != nil {
		return annotate(a.op, err)
	}
	return e.checkDerived(a, i, "org config", func() (solana.PublicKey, error) { return addrKey(e.keys.OrgConfig(cfg.Authority)) })
}

// checkInvoiceAndOrg verifies the invoice at invIdx is at its derived
// address and that the org config at orgIdx is the one it belongs to. It
// returns the invoice owner.
func (e *Engine) checkInvoiceAndOrg(ctx context.Context, a accountList, invIdx, orgIdx int) (solana.PublicKey, error) {
	inv, err := e.Invoice(ctx, a.keys[invIdx])
	if err != nil {
		return solana.PublicKey{}, annotate(a.op, err)
	}
	if err := e.checkDerived(a, invIdx, "invoice", func() (solana.PublicKey, error) { return addrKey(e.keys.Invoice(inv.Authority)) }); err != nil {
		return solana.PublicKey{}, err
	}
	v, err := e.Vendor(ctx, inv.Vendor)
	if err != nil {
		return solana.PublicKey{}, annotate(a.op, err)
	}
	if err := a.expect(orgIdx, v.Org, "org config"); err != nil {
		return solana.PublicKey{}, err
	}
	return inv.Authority, e.checkOrgAddress(ctx, a, orgIdx)
}

// checkEscrowAccounts verifies the escrow authority at authIdx is derived
// from the invoice at index 1 and that the holding at holdingIdx is its
// holding of mint.
func (e *Engine) checkEscrowAccounts(a accountList, authIdx, holdingIdx int, mint solana.PublicKey) error {
	capability, err := escrow.Derive(e.keys, a.keys[1])
	if err != nil {
		return annotate(a.op, err)
	}
	if err := a.expect(authIdx, capability.Key(), "escrow authority"); err != nil {
		return err
	}
	return e.checkDerived(a, holdingIdx, "escrow holding", func() (solana.PublicKey, error) { return escrow.HoldingAddress(capability.Key(), mint) })
}

type accountList struct {
	op   codec.Op
	keys []solana.PublicKey
}

func (a accountList) need(n int) error {
	if len(a.keys) < n {
		return &Error{Kind: KindValidation, Code: CodeConstraintSeeds, Op: a.op.String(),
			Detail: fmt.Sprintf("%d accounts, want %d", len(a.keys), n)}
	}
	return nil
}

func (a accountList) expect(i int, want solana.PublicKey, name string) error {
	if !a.keys[i].Equals(want) {
		return &Error{Kind: KindValidation, Code: CodeConstraintSeeds, Op: a.op.String(),
			Detail: fmt.Sprintf("account %d (%s) is %s, want %s", i, name, a.keys[i], want)}
	}
	return nil
}

func addrKey(addr keys.Address, err error) (solana.PublicKey, error) {
	return addr.Key, err
}
