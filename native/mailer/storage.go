package mailer

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// State abstracts the subset of host ledger functionality required by the
// protocol: raw record bytes keyed by derived address. The host commits or
// rolls back all writes of one transition atomically; the protocol holds no
// locks and performs no compensation of its own.
type State interface {
	// RecordGet returns the serialized record stored at addr. The boolean
	// reports whether the record exists.
	RecordGet(addr solana.PublicKey) ([]byte, bool, error)
	// RecordPut replaces the serialized record stored at addr.
	RecordPut(addr solana.PublicKey, data []byte) error
	// RecordCreate allocates a fixed-size record at addr, rent funded by
	// payer. The record starts zeroed; the caller writes the initial
	// serialization immediately after.
	RecordCreate(addr solana.PublicKey, size int, payer solana.PublicKey) error
}

// TokenLedger abstracts the external token subsystem. Transfers of zero must
// succeed. Implementations never refund; the protocol derives every amount
// from stored fees so overcharging cannot occur.
type TokenLedger interface {
	// Transfer debits a currency account whose authority signed the
	// enclosing transaction.
	Transfer(from, to solana.PublicKey, amount uint64) error
	// TransferProgram debits the program's currency account, presenting the
	// stored bump so the host validates the program as authority.
	TransferProgram(from, to solana.PublicKey, bump uint8, amount uint64) error
}

func (e *Engine) loadConfig(addr solana.PublicKey) (*GlobalConfig, error) {
	data, ok, err := e.state.RecordGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	cfg := new(GlobalConfig)
	if err := cfg.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (e *Engine) storeConfig(addr solana.PublicKey, cfg *GlobalConfig) error {
	data, err := cfg.MarshalBinary()
	if err != nil {
		return err
	}
	return e.state.RecordPut(addr, data)
}

func (e *Engine) loadClaim(addr solana.PublicKey) (*Claim, bool, error) {
	data, ok, err := e.state.RecordGet(addr)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	claim := new(Claim)
	if err := claim.UnmarshalBinary(data); err != nil {
		return nil, false, err
	}
	return claim, true, nil
}

// loadOrCreateClaim materializes the recipient's claim record on first touch.
// The bump stored in the record is the one bound to the recipient key.
func (e *Engine) loadOrCreateClaim(addr solana.PublicKey, recipient solana.PublicKey, bump uint8, payer solana.PublicKey) (*Claim, error) {
	claim, ok, err := e.loadClaim(addr)
	if err != nil {
		return nil, err
	}
	if ok {
		if claim.Recipient != recipient {
			return nil, fmt.Errorf("%w: claim bound to %s", ErrInvalidRecipient, claim.Recipient)
		}
		return claim, nil
	}
	if err := e.state.RecordCreate(addr, ClaimRecordSize, payer); err != nil {
		return nil, err
	}
	return &Claim{Recipient: recipient, Bump: bump}, nil
}

func (e *Engine) storeClaim(addr solana.PublicKey, claim *Claim) error {
	data, err := claim.MarshalBinary()
	if err != nil {
		return err
	}
	return e.state.RecordPut(addr, data)
}

func (e *Engine) loadDelegation(addr solana.PublicKey) (*Delegation, bool, error) {
	data, ok, err := e.state.RecordGet(addr)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	delegation := new(Delegation)
	if err := delegation.UnmarshalBinary(data); err != nil {
		return nil, false, err
	}
	return delegation, true, nil
}

// loadOrCreateDelegation materializes the delegator's record on first touch
// with no delegate published.
func (e *Engine) loadOrCreateDelegation(addr solana.PublicKey, delegator solana.PublicKey, bump uint8, payer solana.PublicKey) (*Delegation, error) {
	delegation, ok, err := e.loadDelegation(addr)
	if err != nil {
		return nil, err
	}
	if ok {
		if delegation.Delegator != delegator {
			return nil, fmt.Errorf("%w: delegation bound to %s", ErrInvalidDelegator, delegation.Delegator)
		}
		return delegation, nil
	}
	if err := e.state.RecordCreate(addr, DelegationRecordSize, payer); err != nil {
		return nil, err
	}
	return &Delegation{Delegator: delegator, Bump: bump}, nil
}

func (e *Engine) storeDelegation(addr solana.PublicKey, delegation *Delegation) error {
	data, err := delegation.MarshalBinary()
	if err != nil {
		return err
	}
	return e.state.RecordPut(addr, data)
}
