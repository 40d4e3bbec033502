package mailer

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"solmail/core/events"
)

// SplitFee computes the owner and recipient cuts of a priority send fee. The
// owner cut is rounded down so the recipient is never shorted; for odd fees
// the recipient absorbs the remainder.
func SplitFee(fee uint64) (ownerCut, recipientCut uint64) {
	ownerCut = fee / 10
	return ownerCut, fee - ownerCut
}

// Engine wires the protocol business logic with the host state, the token
// subsystem, and an event emitter. All mutations performed by one engine call
// belong to a single host transition; the host reverts them atomically on
// error.
type Engine struct {
	programID solana.PublicKey
	state     State
	token     TokenLedger
	emitter   events.Emitter
	nowFn     func() int64
}

// NewEngine creates an engine for the given program identity with a no-op
// emitter. Callers configure state and token backends before use.
func NewEngine(programID solana.PublicKey) *Engine {
	return &Engine{
		programID: programID,
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the record backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetTokenLedger configures the token subsystem used for currency movement.
func (e *Engine) SetTokenLedger(token TokenLedger) { e.token = token }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for claim-window checks.
// Primarily intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.token == nil {
		return ErrNilTokenLedger
	}
	return nil
}

func (e *Engine) verifyConfigAddr(addr solana.PublicKey) (uint8, error) {
	derived, bump, err := DeriveConfigAddress(e.programID)
	if err != nil {
		return 0, err
	}
	if derived != addr {
		return 0, ErrInvalidPDA
	}
	return bump, nil
}

func (e *Engine) verifyClaimAddr(addr, recipient solana.PublicKey) (uint8, error) {
	derived, bump, err := DeriveClaimAddress(e.programID, recipient)
	if err != nil {
		return 0, err
	}
	if derived != addr {
		return 0, ErrInvalidPDA
	}
	return bump, nil
}

func (e *Engine) verifyDelegationAddr(addr, delegator solana.PublicKey) (uint8, error) {
	derived, bump, err := DeriveDelegationAddress(e.programID, delegator)
	if err != nil {
		return 0, err
	}
	if derived != addr {
		return 0, ErrInvalidPDA
	}
	return bump, nil
}

// Initialize creates the GlobalConfig record with default fees and the signer
// as owner. A second initialization fails.
func (e *Engine) Initialize(signer, cfgAddr, feeCurrency solana.PublicKey) error {
	if err := e.ready(); err != nil {
		return err
	}
	bump, err := e.verifyConfigAddr(cfgAddr)
	if err != nil {
		return err
	}
	if _, ok, err := e.state.RecordGet(cfgAddr); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	if err := e.state.RecordCreate(cfgAddr, ConfigRecordSize, signer); err != nil {
		return err
	}
	cfg := &GlobalConfig{
		Owner:         signer,
		FeeCurrency:   feeCurrency,
		SendFee:       SendFeeDefault,
		DelegationFee: DelegationFeeDefault,
		Bump:          bump,
	}
	if err := e.storeConfig(cfgAddr, cfg); err != nil {
		return err
	}
	e.emit(events.MailerInitialized{Owner: signer, FeeCurrency: feeCurrency})
	return nil
}

// SendParams carries the account set and payload of one send transition.
// SenderToken and ProgramToken are currency accounts of the token subsystem.
// ClaimAddr is consumed only on priority sends.
type SendParams struct {
	Sender       solana.PublicKey
	ConfigAddr   solana.PublicKey
	ClaimAddr    solana.PublicKey
	SenderToken  solana.PublicKey
	ProgramToken solana.PublicKey
	To           solana.PublicKey
	Subject      string
	Body         string
	Priority     bool
}

// Send applies one send transition. Priority sends charge the full send fee
// and credit the 90% recipient cut to the recipient's claim; standard sends
// charge the 10% owner cut only and touch no claim record. Subject and body
// are consumed for event emission only.
func (e *Engine) Send(p SendParams) error {
	if err := e.ready(); err != nil {
		return err
	}
	if p.To.IsZero() {
		return ErrInvalidRecipient
	}
	if _, err := e.verifyConfigAddr(p.ConfigAddr); err != nil {
		return err
	}
	cfg, err := e.loadConfig(p.ConfigAddr)
	if err != nil {
		return err
	}
	ownerCut, recipientCut := SplitFee(cfg.SendFee)
	charged := ownerCut
	if p.Priority {
		charged = cfg.SendFee
	}
	if err := e.token.Transfer(p.SenderToken, p.ProgramToken, charged); err != nil {
		return err
	}
	cfg.OwnerClaimable += ownerCut
	if err := e.storeConfig(p.ConfigAddr, cfg); err != nil {
		return err
	}
	if p.Priority {
		claimBump, err := e.verifyClaimAddr(p.ClaimAddr, p.To)
		if err != nil {
			return err
		}
		claim, err := e.loadOrCreateClaim(p.ClaimAddr, p.To, claimBump, p.Sender)
		if err != nil {
			return err
		}
		// The first accrual after idle starts the window; later accruals
		// within the window leave the clock untouched. A zero accrual
		// leaves an idle claim idle.
		if claim.Amount == 0 && recipientCut > 0 {
			claim.OpenedAt = e.now()
		}
		claim.Amount += recipientCut
		if err := e.storeClaim(p.ClaimAddr, claim); err != nil {
			return err
		}
	}
	evt := events.MailerSent{
		From:     p.Sender,
		To:       p.To,
		Priority: p.Priority,
		Fee:      charged,
		OwnerCut: ownerCut,
		Subject:  p.Subject,
		Body:     p.Body,
	}
	if p.Priority {
		evt.RecipientCut = recipientCut
	}
	e.emit(evt)
	return nil
}

// ClaimRecipientShare pays the accrued claim balance out to the recipient and
// returns the record to its idle state. The signer must be the bound
// recipient and the claim window must not have elapsed.
func (e *Engine) ClaimRecipientShare(signer, cfgAddr, claimAddr, programToken, recipientToken solana.PublicKey) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.verifyConfigAddr(cfgAddr); err != nil {
		return err
	}
	cfg, err := e.loadConfig(cfgAddr)
	if err != nil {
		return err
	}
	if _, err := e.verifyClaimAddr(claimAddr, signer); err != nil {
		return err
	}
	claim, ok, err := e.loadClaim(claimAddr)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoClaimableAmount
	}
	if claim.Recipient != signer {
		return ErrInvalidRecipient
	}
	if claim.Amount == 0 {
		return ErrNoClaimableAmount
	}
	if claim.Expired(e.now()) {
		return ErrClaimPeriodExpired
	}
	amount := claim.Amount
	if err := e.token.TransferProgram(programToken, recipientToken, cfg.Bump, amount); err != nil {
		return err
	}
	claim.Amount = 0
	claim.OpenedAt = 0
	if err := e.storeClaim(claimAddr, claim); err != nil {
		return err
	}
	e.emit(events.MailerClaimPaid{Recipient: signer, Amount: amount})
	return nil
}

// ClaimOwnerShare drains the accumulated owner share into the owner's
// currency account and resets the counter.
func (e *Engine) ClaimOwnerShare(signer, cfgAddr, programToken, ownerToken solana.PublicKey) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.verifyConfigAddr(cfgAddr); err != nil {
		return err
	}
	cfg, err := e.loadConfig(cfgAddr)
	if err != nil {
		return err
	}
	if cfg.Owner != signer {
		return ErrOnlyOwner
	}
	if cfg.OwnerClaimable == 0 {
		return ErrNoClaimableAmount
	}
	amount := cfg.OwnerClaimable
	if err := e.token.TransferProgram(programToken, ownerToken, cfg.Bump, amount); err != nil {
		return err
	}
	cfg.OwnerClaimable = 0
	if err := e.storeConfig(cfgAddr, cfg); err != nil {
		return err
	}
	e.emit(events.MailerOwnerPaid{Owner: signer, Amount: amount})
	return nil
}

// SetSendFee updates the send fee. Owner only; no bounds are enforced.
func (e *Engine) SetSendFee(signer, cfgAddr solana.PublicKey, newFee uint64) error {
	return e.setFee(signer, cfgAddr, newFee, false)
}

// SetDelegationFee updates the delegation fee. Owner only; no bounds are
// enforced.
func (e *Engine) SetDelegationFee(signer, cfgAddr solana.PublicKey, newFee uint64) error {
	return e.setFee(signer, cfgAddr, newFee, true)
}

func (e *Engine) setFee(signer, cfgAddr solana.PublicKey, newFee uint64, delegation bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if _, err := e.verifyConfigAddr(cfgAddr); err != nil {
		return err
	}
	cfg, err := e.loadConfig(cfgAddr)
	if err != nil {
		return err
	}
	if cfg.Owner != signer {
		return ErrOnlyOwner
	}
	kind := "send"
	if delegation {
		cfg.DelegationFee = newFee
		kind = "delegation"
	} else {
		cfg.SendFee = newFee
	}
	if err := e.storeConfig(cfgAddr, cfg); err != nil {
		return err
	}
	e.emit(events.MailerFeeUpdated{Kind: kind, NewFee: newFee})
	return nil
}

// DelegateTo publishes, replaces, or clears the signer's delegation. Setting
// a non-null delegate charges the delegation fee even when the value does not
// change; clearing is free. The fee accrues to the owner share so it stays
// recoverable through ClaimOwnerShare.
func (e *Engine) DelegateTo(signer, cfgAddr, delegationAddr, delegatorToken, programToken solana.PublicKey, delegate *solana.PublicKey) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.verifyConfigAddr(cfgAddr); err != nil {
		return err
	}
	cfg, err := e.loadConfig(cfgAddr)
	if err != nil {
		return err
	}
	bump, err := e.verifyDelegationAddr(delegationAddr, signer)
	if err != nil {
		return err
	}
	delegation, err := e.loadOrCreateDelegation(delegationAddr, signer, bump, signer)
	if err != nil {
		return err
	}
	// A Some(zero key) payload clears, same as None.
	if delegate != nil && delegate.IsZero() {
		delegate = nil
	}
	if delegate != nil {
		if err := e.token.Transfer(delegatorToken, programToken, cfg.DelegationFee); err != nil {
			return err
		}
		cfg.OwnerClaimable += cfg.DelegationFee
		if err := e.storeConfig(cfgAddr, cfg); err != nil {
			return err
		}
		target := *delegate
		delegation.Delegate = &target
		if err := e.storeDelegation(delegationAddr, delegation); err != nil {
			return err
		}
		e.emit(events.MailerDelegationSet{Delegator: signer, Delegate: target, Fee: cfg.DelegationFee})
		return nil
	}
	delegation.Delegate = nil
	if err := e.storeDelegation(delegationAddr, delegation); err != nil {
		return err
	}
	e.emit(events.MailerDelegationCleared{Delegator: signer})
	return nil
}

// RejectDelegation lets the currently published delegate clear the record
// unilaterally. No fee is moved.
func (e *Engine) RejectDelegation(signer, delegationAddr solana.PublicKey) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	delegation, ok, err := e.loadDelegation(delegationAddr)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoDelegationToReject
	}
	if _, err := e.verifyDelegationAddr(delegationAddr, delegation.Delegator); err != nil {
		return err
	}
	if delegation.Delegate == nil || *delegation.Delegate != signer {
		return ErrNoDelegationToReject
	}
	delegation.Delegate = nil
	if err := e.storeDelegation(delegationAddr, delegation); err != nil {
		return err
	}
	e.emit(events.MailerDelegationRejected{Delegator: delegation.Delegator, Delegate: signer})
	return nil
}
