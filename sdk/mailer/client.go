// Package mailer exposes the stable invocation surface of the messaging
// protocol: instruction builders for every variant and the pure address
// derivation helpers. The byte layout of the instruction data and the
// positional account order are ABI and must not change across revisions.
package mailer

import (
	"github.com/gagliardetto/solana-go"

	native "solmail/native/mailer"
)

// Instruction is a ready-to-submit invocation of the program. It implements
// the solana.Instruction interface.
type Instruction struct {
	programID solana.PublicKey
	accounts  []*solana.AccountMeta
	data      []byte
}

// ProgramID returns the program the instruction addresses.
func (in *Instruction) ProgramID() solana.PublicKey { return in.programID }

// Accounts returns the positional account metas.
func (in *Instruction) Accounts() []*solana.AccountMeta { return in.accounts }

// Data returns the serialized instruction payload.
func (in *Instruction) Data() ([]byte, error) { return in.data, nil }

// DeriveConfigAddress returns the GlobalConfig record address for programID.
func DeriveConfigAddress(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return native.DeriveConfigAddress(programID)
}

// DeriveClaimAddress returns the Claim record address bound to recipient.
func DeriveClaimAddress(programID, recipient solana.PublicKey) (solana.PublicKey, uint8, error) {
	return native.DeriveClaimAddress(programID, recipient)
}

// DeriveDelegationAddress returns the Delegation record address bound to
// delegator.
func DeriveDelegationAddress(programID, delegator solana.PublicKey) (solana.PublicKey, uint8, error) {
	return native.DeriveDelegationAddress(programID, delegator)
}

// NewInitializeInstruction initializes the protocol with owner as the admin
// principal and feeCurrency as the advisory fee currency identifier.
func NewInitializeInstruction(programID, owner, feeCurrency solana.PublicKey) (*Instruction, error) {
	cfgAddr, _, err := native.DeriveConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	in := native.Instruction{Tag: native.TagInitialize, FeeCurrency: feeCurrency}
	return &Instruction{
		programID: programID,
		accounts: []*solana.AccountMeta{
			solana.NewAccountMeta(owner, true, true),
			solana.NewAccountMeta(cfgAddr, true, false),
		},
		data: in.Encode(),
	}, nil
}

// NewSendPriorityInstruction builds a revenue-sharing send: the sender pays
// the full send fee and 90% accrues to the recipient's claim.
func NewSendPriorityInstruction(programID, sender, senderToken, programToken, to solana.PublicKey, subject, body string) (*Instruction, error) {
	return newSendInstruction(programID, sender, senderToken, programToken, to, subject, body, true)
}

// NewSendInstruction builds a standard send: the sender pays the 10% owner
// cut only and no claim is touched.
func NewSendInstruction(programID, sender, senderToken, programToken, to solana.PublicKey, subject, body string) (*Instruction, error) {
	return newSendInstruction(programID, sender, senderToken, programToken, to, subject, body, false)
}

func newSendInstruction(programID, sender, senderToken, programToken, to solana.PublicKey, subject, body string, priority bool) (*Instruction, error) {
	cfgAddr, _, err := native.DeriveConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	tag := native.TagSend
	accounts := []*solana.AccountMeta{
		solana.NewAccountMeta(sender, true, true),
		solana.NewAccountMeta(cfgAddr, true, false),
	}
	if priority {
		tag = native.TagSendPriority
		claimAddr, _, err := native.DeriveClaimAddress(programID, to)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, solana.NewAccountMeta(claimAddr, true, false))
	}
	accounts = append(accounts,
		solana.NewAccountMeta(senderToken, true, false),
		solana.NewAccountMeta(programToken, true, false),
	)
	in := native.Instruction{Tag: tag, To: to, Subject: subject, Body: body}
	return &Instruction{programID: programID, accounts: accounts, data: in.Encode()}, nil
}

// NewClaimRecipientShareInstruction pays the recipient's accrued claim out to
// recipientToken.
func NewClaimRecipientShareInstruction(programID, recipient, programToken, recipientToken solana.PublicKey) (*Instruction, error) {
	cfgAddr, _, err := native.DeriveConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	claimAddr, _, err := native.DeriveClaimAddress(programID, recipient)
	if err != nil {
		return nil, err
	}
	in := native.Instruction{Tag: native.TagClaimRecipientShare}
	return &Instruction{
		programID: programID,
		accounts: []*solana.AccountMeta{
			solana.NewAccountMeta(recipient, false, true),
			solana.NewAccountMeta(cfgAddr, false, false),
			solana.NewAccountMeta(claimAddr, true, false),
			solana.NewAccountMeta(programToken, true, false),
			solana.NewAccountMeta(recipientToken, true, false),
		},
		data: in.Encode(),
	}, nil
}

// NewClaimOwnerShareInstruction drains the owner share into ownerToken.
func NewClaimOwnerShareInstruction(programID, owner, programToken, ownerToken solana.PublicKey) (*Instruction, error) {
	cfgAddr, _, err := native.DeriveConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	in := native.Instruction{Tag: native.TagClaimOwnerShare}
	return &Instruction{
		programID: programID,
		accounts: []*solana.AccountMeta{
			solana.NewAccountMeta(owner, false, true),
			solana.NewAccountMeta(cfgAddr, true, false),
			solana.NewAccountMeta(programToken, true, false),
			solana.NewAccountMeta(ownerToken, true, false),
		},
		data: in.Encode(),
	}, nil
}

// NewSetFeeInstruction updates the send fee. Owner only.
func NewSetFeeInstruction(programID, owner solana.PublicKey, newFee uint64) (*Instruction, error) {
	return newFeeInstruction(programID, owner, newFee, native.TagSetFee)
}

// NewSetDelegationFeeInstruction updates the delegation fee. Owner only.
func NewSetDelegationFeeInstruction(programID, owner solana.PublicKey, newFee uint64) (*Instruction, error) {
	return newFeeInstruction(programID, owner, newFee, native.TagSetDelegationFee)
}

func newFeeInstruction(programID, owner solana.PublicKey, newFee uint64, tag native.InstructionTag) (*Instruction, error) {
	cfgAddr, _, err := native.DeriveConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	in := native.Instruction{Tag: tag, NewFee: newFee}
	return &Instruction{
		programID: programID,
		accounts: []*solana.AccountMeta{
			solana.NewAccountMeta(owner, false, true),
			solana.NewAccountMeta(cfgAddr, true, false),
		},
		data: in.Encode(),
	}, nil
}

// NewDelegateToInstruction publishes, replaces, or clears the delegator's
// delegation. A nil delegate clears without charging the delegation fee.
func NewDelegateToInstruction(programID, delegator, delegatorToken, programToken solana.PublicKey, delegate *solana.PublicKey) (*Instruction, error) {
	cfgAddr, _, err := native.DeriveConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	delegationAddr, _, err := native.DeriveDelegationAddress(programID, delegator)
	if err != nil {
		return nil, err
	}
	in := native.Instruction{Tag: native.TagDelegateTo, Delegate: delegate}
	return &Instruction{
		programID: programID,
		accounts: []*solana.AccountMeta{
			solana.NewAccountMeta(delegator, true, true),
			solana.NewAccountMeta(cfgAddr, true, false),
			solana.NewAccountMeta(delegationAddr, true, false),
			solana.NewAccountMeta(delegatorToken, true, false),
			solana.NewAccountMeta(programToken, true, false),
		},
		data: in.Encode(),
	}, nil
}

// NewRejectDelegationInstruction clears a delegation naming the signer as
// delegate. The delegation record address must be derived from the delegator.
func NewRejectDelegationInstruction(programID, delegate, delegator solana.PublicKey) (*Instruction, error) {
	delegationAddr, _, err := native.DeriveDelegationAddress(programID, delegator)
	if err != nil {
		return nil, err
	}
	in := native.Instruction{Tag: native.TagRejectDelegation}
	return &Instruction{
		programID: programID,
		accounts: []*solana.AccountMeta{
			solana.NewAccountMeta(delegate, false, true),
			solana.NewAccountMeta(delegationAddr, true, false),
		},
		data: in.Encode(),
	}, nil
}
