package mailer

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Every persisted record starts with an 8-byte discriminator derived from the
// record kind's name. Loads verify it to detect type confusion between
// records living under the same program.
var (
	configDiscriminator     = accountDiscriminator("GlobalConfig")
	claimDiscriminator      = accountDiscriminator("Claim")
	delegationDiscriminator = accountDiscriminator("Delegation")
)

func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// Serialized record sizes, discriminator included. Sizes are fixed at
// creation and never grow.
const (
	ConfigRecordSize     = 8 + 32 + 32 + 8 + 8 + 8 + 1
	ClaimRecordSize      = 8 + 32 + 8 + 8 + 1
	DelegationRecordSize = 8 + 32 + 1 + 32 + 1
)

// GlobalConfig is the singleton protocol configuration record.
type GlobalConfig struct {
	Owner          solana.PublicKey
	FeeCurrency    solana.PublicKey
	SendFee        uint64
	DelegationFee  uint64
	OwnerClaimable uint64
	Bump           uint8
}

// Clone returns a copy of the record.
func (c *GlobalConfig) Clone() *GlobalConfig {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// MarshalBinary serializes the record as discriminator || body, little-endian.
func (c *GlobalConfig) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, ConfigRecordSize)
	buf = append(buf, configDiscriminator[:]...)
	buf = append(buf, c.Owner.Bytes()...)
	buf = append(buf, c.FeeCurrency.Bytes()...)
	buf = binary.LittleEndian.AppendUint64(buf, c.SendFee)
	buf = binary.LittleEndian.AppendUint64(buf, c.DelegationFee)
	buf = binary.LittleEndian.AppendUint64(buf, c.OwnerClaimable)
	buf = append(buf, c.Bump)
	return buf, nil
}

// UnmarshalBinary decodes the record, verifying the discriminator and the
// exact length.
func (c *GlobalConfig) UnmarshalBinary(data []byte) error {
	if err := checkRecordHeader(data, configDiscriminator, ConfigRecordSize, "GlobalConfig"); err != nil {
		return err
	}
	body := data[8:]
	copy(c.Owner[:], body[:32])
	copy(c.FeeCurrency[:], body[32:64])
	c.SendFee = binary.LittleEndian.Uint64(body[64:72])
	c.DelegationFee = binary.LittleEndian.Uint64(body[72:80])
	c.OwnerClaimable = binary.LittleEndian.Uint64(body[80:88])
	c.Bump = body[88]
	return nil
}

// Claim is the per-recipient revenue-share record. Amount and OpenedAt are
// both zero when the claim is idle; a non-zero amount always carries the
// timestamp of the first accrual of the current window.
type Claim struct {
	Recipient solana.PublicKey
	Amount    uint64
	OpenedAt  int64
	Bump      uint8
}

// Clone returns a copy of the record.
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// Expired reports whether the claim holds a balance whose window has elapsed.
func (c *Claim) Expired(now int64) bool {
	return c.Amount > 0 && now-c.OpenedAt > ClaimWindow
}

// MarshalBinary serializes the record as discriminator || body, little-endian.
func (c *Claim) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, ClaimRecordSize)
	buf = append(buf, claimDiscriminator[:]...)
	buf = append(buf, c.Recipient.Bytes()...)
	buf = binary.LittleEndian.AppendUint64(buf, c.Amount)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.OpenedAt))
	buf = append(buf, c.Bump)
	return buf, nil
}

// UnmarshalBinary decodes the record, verifying the discriminator and the
// exact length.
func (c *Claim) UnmarshalBinary(data []byte) error {
	if err := checkRecordHeader(data, claimDiscriminator, ClaimRecordSize, "Claim"); err != nil {
		return err
	}
	body := data[8:]
	copy(c.Recipient[:], body[:32])
	c.Amount = binary.LittleEndian.Uint64(body[32:40])
	c.OpenedAt = int64(binary.LittleEndian.Uint64(body[40:48]))
	c.Bump = body[48]
	return nil
}

// Delegation is the per-delegator delegation record. A nil Delegate means no
// delegate is published. The body reserves space for the Some case
// unconditionally so the record never grows.
type Delegation struct {
	Delegator solana.PublicKey
	Delegate  *solana.PublicKey
	Bump      uint8
}

// Clone returns a copy of the record.
func (d *Delegation) Clone() *Delegation {
	if d == nil {
		return nil
	}
	out := *d
	if d.Delegate != nil {
		delegate := *d.Delegate
		out.Delegate = &delegate
	}
	return &out
}

// MarshalBinary serializes the record as discriminator || body, little-endian.
// The delegate is a 1-byte tag followed by a 32-byte payload; the payload is
// zeroed when the tag is 0.
func (d *Delegation) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, DelegationRecordSize)
	buf = append(buf, delegationDiscriminator[:]...)
	buf = append(buf, d.Delegator.Bytes()...)
	if d.Delegate != nil {
		buf = append(buf, 1)
		buf = append(buf, d.Delegate.Bytes()...)
	} else {
		buf = append(buf, 0)
		buf = append(buf, make([]byte, 32)...)
	}
	buf = append(buf, d.Bump)
	return buf, nil
}

// UnmarshalBinary decodes the record, verifying the discriminator and the
// exact length.
func (d *Delegation) UnmarshalBinary(data []byte) error {
	if err := checkRecordHeader(data, delegationDiscriminator, DelegationRecordSize, "Delegation"); err != nil {
		return err
	}
	body := data[8:]
	copy(d.Delegator[:], body[:32])
	switch body[32] {
	case 0:
		d.Delegate = nil
	case 1:
		var delegate solana.PublicKey
		copy(delegate[:], body[33:65])
		d.Delegate = &delegate
	default:
		return fmt.Errorf("%w: Delegation delegate tag %d", ErrInvalidAccountOwner, body[32])
	}
	d.Bump = body[65]
	return nil
}

func checkRecordHeader(data []byte, want [8]byte, size int, kind string) error {
	if len(data) != size {
		return fmt.Errorf("%w: %s record is %d bytes, want %d", ErrInvalidAccountOwner, kind, len(data), size)
	}
	if !bytes.Equal(data[:8], want[:]) {
		return fmt.Errorf("%w: %s discriminator mismatch", ErrInvalidAccountOwner, kind)
	}
	return nil
}
