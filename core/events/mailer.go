package events

import (
	"strconv"

	"github.com/gagliardetto/solana-go"

	"solmail/core/types"
)

const (
	TypeMailerInitialized        = "mailer.initialized"
	TypeMailerSent               = "mailer.sent"
	TypeMailerClaimPaid          = "mailer.claim_paid"
	TypeMailerOwnerPaid          = "mailer.owner_paid"
	TypeMailerFeeUpdated         = "mailer.fee_updated"
	TypeMailerDelegationSet      = "mailer.delegation_set"
	TypeMailerDelegationCleared  = "mailer.delegation_cleared"
	TypeMailerDelegationRejected = "mailer.delegation_rejected"
)

type MailerInitialized struct {
	Owner       solana.PublicKey
	FeeCurrency solana.PublicKey
}

func (MailerInitialized) EventType() string { return TypeMailerInitialized }

func (e MailerInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeMailerInitialized,
		Attributes: map[string]string{
			"owner":       e.Owner.String(),
			"feeCurrency": e.FeeCurrency.String(),
		},
	}
}

type MailerSent struct {
	From         solana.PublicKey
	To           solana.PublicKey
	Priority     bool
	Fee          uint64
	OwnerCut     uint64
	RecipientCut uint64
	Subject      string
	Body         string
}

func (MailerSent) EventType() string { return TypeMailerSent }

func (e MailerSent) Event() *types.Event {
	return &types.Event{
		Type: TypeMailerSent,
		Attributes: map[string]string{
			"from":         e.From.String(),
			"to":           e.To.String(),
			"priority":     strconv.FormatBool(e.Priority),
			"fee":          formatUint(e.Fee),
			"ownerCut":     formatUint(e.OwnerCut),
			"recipientCut": formatUint(e.RecipientCut),
			"subject":      e.Subject,
			"body":         e.Body,
		},
	}
}

type MailerClaimPaid struct {
	Recipient solana.PublicKey
	Amount    uint64
}

func (MailerClaimPaid) EventType() string { return TypeMailerClaimPaid }

func (e MailerClaimPaid) Event() *types.Event {
	return &types.Event{
		Type: TypeMailerClaimPaid,
		Attributes: map[string]string{
			"recipient": e.Recipient.String(),
			"amount":    formatUint(e.Amount),
		},
	}
}

type MailerOwnerPaid struct {
	Owner  solana.PublicKey
	Amount uint64
}

func (MailerOwnerPaid) EventType() string { return TypeMailerOwnerPaid }

func (e MailerOwnerPaid) Event() *types.Event {
	return &types.Event{
		Type: TypeMailerOwnerPaid,
		Attributes: map[string]string{
			"owner":  e.Owner.String(),
			"amount": formatUint(e.Amount),
		},
	}
}

type MailerFeeUpdated struct {
	Kind   string
	NewFee uint64
}

func (MailerFeeUpdated) EventType() string { return TypeMailerFeeUpdated }

func (e MailerFeeUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeMailerFeeUpdated,
		Attributes: map[string]string{
			"kind":   e.Kind,
			"newFee": formatUint(e.NewFee),
		},
	}
}

type MailerDelegationSet struct {
	Delegator solana.PublicKey
	Delegate  solana.PublicKey
	Fee       uint64
}

func (MailerDelegationSet) EventType() string { return TypeMailerDelegationSet }

func (e MailerDelegationSet) Event() *types.Event {
	return &types.Event{
		Type: TypeMailerDelegationSet,
		Attributes: map[string]string{
			"delegator": e.Delegator.String(),
			"delegate":  e.Delegate.String(),
			"fee":       formatUint(e.Fee),
		},
	}
}

type MailerDelegationCleared struct {
	Delegator solana.PublicKey
}

func (MailerDelegationCleared) EventType() string { return TypeMailerDelegationCleared }

func (e MailerDelegationCleared) Event() *types.Event {
	return &types.Event{
		Type: TypeMailerDelegationCleared,
		Attributes: map[string]string{
			"delegator": e.Delegator.String(),
		},
	}
}

type MailerDelegationRejected struct {
	Delegator solana.PublicKey
	Delegate  solana.PublicKey
}

func (MailerDelegationRejected) EventType() string { return TypeMailerDelegationRejected }

func (e MailerDelegationRejected) Event() *types.Event {
	return &types.Event{
		Type: TypeMailerDelegationRejected,
		Attributes: map[string]string{
			"delegator": e.Delegator.String(),
			"delegate":  e.Delegate.String(),
		},
	}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
