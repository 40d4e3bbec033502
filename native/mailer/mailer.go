// Package mailer implements the on-chain messaging and revenue-sharing
// protocol: fee-charged sends with an optional time-bounded revenue share for
// the recipient, an owner payout surface, and per-principal delegation
// records. The package is a deterministic state machine; signature
// validation, transaction scheduling, and atomic commit/rollback belong to
// the host ledger, and currency movement belongs to the token subsystem.
// Both are consumed through the State and TokenLedger interfaces.
package mailer

const (
	// SendFeeDefault is the send fee applied at initialization, in minor
	// units of the fee currency (6 implied decimals).
	SendFeeDefault uint64 = 100_000

	// DelegationFeeDefault is the fee charged when a delegation is set to a
	// non-null delegate, in minor units.
	DelegationFeeDefault uint64 = 10_000_000

	// ClaimWindow is the interval in seconds following the first accrual
	// during which the recipient may redeem their claim. 60 days.
	ClaimWindow int64 = 5_184_000
)
