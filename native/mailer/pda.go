package mailer

import (
	"github.com/gagliardetto/solana-go"
)

var (
	seedConfig     = []byte("mailer")
	seedClaim      = []byte("claim")
	seedDelegation = []byte("delegation")
)

// claimSeedVersion discriminates the claim derivation so future record
// formats can live at distinct addresses.
const claimSeedVersion byte = 1

// DeriveConfigAddress derives the singleton GlobalConfig record address for
// the given program, returning the address and its bump nonce.
func DeriveConfigAddress(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedConfig}, programID)
}

// DeriveClaimAddress derives the Claim record address bound to the recipient
// key. The version byte sits between the tag and the key.
func DeriveClaimAddress(programID, recipient solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedClaim, {claimSeedVersion}, recipient.Bytes()}, programID)
}

// DeriveDelegationAddress derives the Delegation record address bound to the
// delegator key.
func DeriveDelegationAddress(programID, delegator solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedDelegation, delegator.Bytes()}, programID)
}
