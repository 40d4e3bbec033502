package mailer

import (
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
)

// Account is one entry of a transaction's positional account list as the
// host runtime presents it. Signer reports whether the key signed the
// enclosing transaction.
type Account struct {
	Key      solana.PublicKey
	Signer   bool
	Writable bool
}

// Transaction is one decoded invocation of the program: the positional
// account list and the raw instruction data. Account order per variant is
// ABI; re-ordering is undefined behavior.
type Transaction struct {
	Accounts []Account
	Data     []byte
}

// Account counts per instruction variant. Positions are listed in the apply
// methods below.
const (
	accountsInitialize          = 2
	accountsSendPriority        = 5
	accountsSend                = 4
	accountsClaimRecipientShare = 5
	accountsClaimOwnerShare     = 4
	accountsSetFee              = 2
	accountsDelegateTo          = 5
	accountsRejectDelegation    = 2
)

// Processor parses tagged instructions, enforces the account-shape and signer
// rules, and sequences engine calls. All record reads and writes of one Apply
// call happen inside a single host transition.
type Processor struct {
	engine *Engine
	logger *slog.Logger
}

// NewProcessor creates a processor driving the supplied engine. A nil logger
// disables diagnostics.
func NewProcessor(engine *Engine, logger *slog.Logger) *Processor {
	return &Processor{engine: engine, logger: logger}
}

// Apply validates and executes one transaction against the protocol state.
// On error the host reverts every record mutation and currency transfer the
// transition attempted; nothing is retried here.
func (p *Processor) Apply(tx *Transaction) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrBadAccountList)
	}
	in, err := DecodeInstruction(tx.Data)
	if err != nil {
		p.diag("decode", err)
		return err
	}
	if err := p.dispatch(in, tx.Accounts); err != nil {
		p.diag(in.Tag.String(), err)
		return err
	}
	return nil
}

func (p *Processor) dispatch(in *Instruction, accounts []Account) error {
	switch in.Tag {
	case TagInitialize:
		return p.applyInitialize(in, accounts)
	case TagSendPriority:
		return p.applySend(in, accounts, true)
	case TagSend:
		return p.applySend(in, accounts, false)
	case TagClaimRecipientShare:
		return p.applyClaimRecipientShare(accounts)
	case TagClaimOwnerShare:
		return p.applyClaimOwnerShare(accounts)
	case TagSetFee:
		return p.applySetFee(in, accounts, false)
	case TagSetDelegationFee:
		return p.applySetFee(in, accounts, true)
	case TagDelegateTo:
		return p.applyDelegateTo(in, accounts)
	case TagRejectDelegation:
		return p.applyRejectDelegation(accounts)
	default:
		return fmt.Errorf("%w: tag %d", ErrUnknownInstruction, in.Tag)
	}
}

func (p *Processor) diag(op string, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("transition failed", "op", op, "err", err)
}

// unpack checks the account-list shape and the signer rule: the first account
// must have signed the enclosing transaction.
func unpack(accounts []Account, want int) ([]Account, error) {
	if len(accounts) != want {
		return nil, fmt.Errorf("%w: have %d accounts, want %d", ErrBadAccountList, len(accounts), want)
	}
	if !accounts[0].Signer {
		return nil, ErrMissingRequiredSignature
	}
	return accounts, nil
}

// Accounts: [0] owner (signer, payer), [1] config record (writable).
func (p *Processor) applyInitialize(in *Instruction, accounts []Account) error {
	accs, err := unpack(accounts, accountsInitialize)
	if err != nil {
		return err
	}
	return p.engine.Initialize(accs[0].Key, accs[1].Key, in.FeeCurrency)
}

// Priority accounts: [0] sender (signer, payer), [1] config (writable),
// [2] recipient claim record (writable), [3] sender currency (writable),
// [4] program currency (writable). Standard sends omit the claim record.
func (p *Processor) applySend(in *Instruction, accounts []Account, priority bool) error {
	want := accountsSend
	if priority {
		want = accountsSendPriority
	}
	accs, err := unpack(accounts, want)
	if err != nil {
		return err
	}
	params := SendParams{
		Sender:     accs[0].Key,
		ConfigAddr: accs[1].Key,
		To:         in.To,
		Subject:    in.Subject,
		Body:       in.Body,
		Priority:   priority,
	}
	if priority {
		params.ClaimAddr = accs[2].Key
		params.SenderToken = accs[3].Key
		params.ProgramToken = accs[4].Key
	} else {
		params.SenderToken = accs[2].Key
		params.ProgramToken = accs[3].Key
	}
	return p.engine.Send(params)
}

// Accounts: [0] recipient (signer), [1] config, [2] claim record (writable),
// [3] program currency (writable), [4] recipient currency (writable).
func (p *Processor) applyClaimRecipientShare(accounts []Account) error {
	accs, err := unpack(accounts, accountsClaimRecipientShare)
	if err != nil {
		return err
	}
	return p.engine.ClaimRecipientShare(accs[0].Key, accs[1].Key, accs[2].Key, accs[3].Key, accs[4].Key)
}

// Accounts: [0] owner (signer), [1] config (writable), [2] program currency
// (writable), [3] owner currency (writable).
func (p *Processor) applyClaimOwnerShare(accounts []Account) error {
	accs, err := unpack(accounts, accountsClaimOwnerShare)
	if err != nil {
		return err
	}
	return p.engine.ClaimOwnerShare(accs[0].Key, accs[1].Key, accs[2].Key, accs[3].Key)
}

// Accounts: [0] owner (signer), [1] config (writable).
func (p *Processor) applySetFee(in *Instruction, accounts []Account, delegation bool) error {
	accs, err := unpack(accounts, accountsSetFee)
	if err != nil {
		return err
	}
	if delegation {
		return p.engine.SetDelegationFee(accs[0].Key, accs[1].Key, in.NewFee)
	}
	return p.engine.SetSendFee(accs[0].Key, accs[1].Key, in.NewFee)
}

// Accounts: [0] delegator (signer, payer), [1] config (writable),
// [2] delegation record (writable), [3] delegator currency (writable),
// [4] program currency (writable).
func (p *Processor) applyDelegateTo(in *Instruction, accounts []Account) error {
	accs, err := unpack(accounts, accountsDelegateTo)
	if err != nil {
		return err
	}
	return p.engine.DelegateTo(accs[0].Key, accs[1].Key, accs[2].Key, accs[3].Key, accs[4].Key, in.Delegate)
}

// Accounts: [0] rejecting delegate (signer), [1] delegation record (writable).
func (p *Processor) applyRejectDelegation(accounts []Account) error {
	accs, err := unpack(accounts, accountsRejectDelegation)
	if err != nil {
		return err
	}
	return p.engine.RejectDelegation(accs[0].Key, accs[1].Key)
}
