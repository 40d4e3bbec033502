package mailer

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// InstructionTag discriminates the instruction union. The tag values, the
// payload layouts, and the positional account order per variant are ABI and
// must be preserved across revisions.
type InstructionTag uint8

const (
	TagInitialize InstructionTag = iota
	TagSendPriority
	TagSend
	TagClaimRecipientShare
	TagClaimOwnerShare
	TagSetFee
	TagDelegateTo
	TagRejectDelegation
	TagSetDelegationFee
)

func (t InstructionTag) String() string {
	switch t {
	case TagInitialize:
		return "initialize"
	case TagSendPriority:
		return "sendPriority"
	case TagSend:
		return "send"
	case TagClaimRecipientShare:
		return "claimRecipientShare"
	case TagClaimOwnerShare:
		return "claimOwnerShare"
	case TagSetFee:
		return "setFee"
	case TagDelegateTo:
		return "delegateTo"
	case TagRejectDelegation:
		return "rejectDelegation"
	case TagSetDelegationFee:
		return "setDelegationFee"
	default:
		return "unknown"
	}
}

// Instruction is the decoded form of the tagged wire union. Only the fields
// of the selected variant are meaningful.
type Instruction struct {
	Tag InstructionTag

	FeeCurrency solana.PublicKey // Initialize

	To      solana.PublicKey // SendPriority, Send
	Subject string
	Body    string

	NewFee uint64 // SetFee, SetDelegationFee

	Delegate *solana.PublicKey // DelegateTo
}

// Encode serializes the instruction little-endian: one tag byte followed by
// the variant payload. Strings carry a u32 length prefix; the optional
// delegate is a 1-byte tag plus the key when present.
func (in *Instruction) Encode() []byte {
	buf := []byte{byte(in.Tag)}
	switch in.Tag {
	case TagInitialize:
		buf = append(buf, in.FeeCurrency.Bytes()...)
	case TagSendPriority, TagSend:
		buf = append(buf, in.To.Bytes()...)
		buf = appendString(buf, in.Subject)
		buf = appendString(buf, in.Body)
	case TagSetFee, TagSetDelegationFee:
		buf = binary.LittleEndian.AppendUint64(buf, in.NewFee)
	case TagDelegateTo:
		if in.Delegate != nil {
			buf = append(buf, 1)
			buf = append(buf, in.Delegate.Bytes()...)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

// DecodeInstruction parses the tagged wire union, rejecting short buffers and
// trailing bytes. String payloads are not validated as UTF-8.
func DecodeInstruction(data []byte) (*Instruction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidInstructionData)
	}
	in := &Instruction{Tag: InstructionTag(data[0])}
	r := &byteReader{buf: data[1:]}
	switch in.Tag {
	case TagInitialize:
		key, err := r.pubkey()
		if err != nil {
			return nil, err
		}
		in.FeeCurrency = key
	case TagSendPriority, TagSend:
		to, err := r.pubkey()
		if err != nil {
			return nil, err
		}
		in.To = to
		if in.Subject, err = r.lenString(); err != nil {
			return nil, err
		}
		if in.Body, err = r.lenString(); err != nil {
			return nil, err
		}
	case TagClaimRecipientShare, TagClaimOwnerShare, TagRejectDelegation:
		// no payload
	case TagSetFee, TagSetDelegationFee:
		fee, err := r.u64()
		if err != nil {
			return nil, err
		}
		in.NewFee = fee
	case TagDelegateTo:
		tag, err := r.u8()
		if err != nil {
			return nil, err
		}
		switch tag {
		case 0:
		case 1:
			key, err := r.pubkey()
			if err != nil {
				return nil, err
			}
			in.Delegate = &key
		default:
			return nil, fmt.Errorf("%w: delegate option tag %d", ErrInvalidInstructionData, tag)
		}
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownInstruction, data[0])
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidInstructionData, r.remaining())
	}
	return in, nil
}

type byteReader struct {
	buf []byte
	off int
}

func (r *byteReader) remaining() int { return len(r.buf) - r.off }

func (r *byteReader) take(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrInvalidInstructionData, n, r.remaining())
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *byteReader) u8() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *byteReader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *byteReader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *byteReader) pubkey() (solana.PublicKey, error) {
	var key solana.PublicKey
	b, err := r.take(32)
	if err != nil {
		return key, err
	}
	copy(key[:], b)
	return key, nil
}

func (r *byteReader) lenString() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
