// Command mailctl builds protocol instructions offline and decodes record
// dumps. It never talks to a ledger: the output is the exact account list and
// instruction data to embed in a transaction.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"solmail/native/mailer"
	"solmail/observability/logging"
	sdk "solmail/sdk/mailer"
)

// Config is the optional TOML file holding the addresses that rarely change
// between invocations. Flags override file values.
type Config struct {
	ProgramID    string `toml:"program_id"`
	ProgramToken string `toml:"program_token"`
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func main() {
	logger := logging.Setup("mailctl", os.Getenv("MAILCTL_ENV"))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "send":
		err = runSend(args)
	case "init":
		err = runInit(args)
	case "claim":
		err = runClaim(args)
	case "claim-owner":
		err = runClaimOwner(args)
	case "set-fee":
		err = runSetFee(args)
	case "delegate":
		err = runDelegate(args)
	case "reject":
		err = runReject(args)
	case "derive":
		err = runDerive(args)
	case "decode-record":
		err = runDecodeRecord(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "cmd", cmd, "err", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: mailctl <command> [flags]

commands:
  send           build a Send or SendPriority instruction
  init           build the Initialize instruction
  claim          build the ClaimRecipientShare instruction
  claim-owner    build the ClaimOwnerShare instruction
  set-fee        build SetFee or SetDelegationFee
  delegate       build the DelegateTo instruction
  reject         build the RejectDelegation instruction
  derive         print derived record addresses
  decode-record  decode a record dump (hex or base58)`)
}

type commonFlags struct {
	fs           *flag.FlagSet
	configPath   *string
	programID    *string
	programToken *string
}

func newCommonFlags(name string) *commonFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &commonFlags{
		fs:           fs,
		configPath:   fs.String("config", "", "path to a TOML config file"),
		programID:    fs.String("program", "", "program id (base58)"),
		programToken: fs.String("program-token", "", "program currency account (base58)"),
	}
}

func (c *commonFlags) resolve() (solana.PublicKey, solana.PublicKey, error) {
	cfg, err := loadConfig(*c.configPath)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	programStr := firstNonEmpty(*c.programID, cfg.ProgramID)
	if programStr == "" {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("program id required (flag or config)")
	}
	program, err := solana.PublicKeyFromBase58(programStr)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("program id: %w", err)
	}
	var programToken solana.PublicKey
	if tokenStr := firstNonEmpty(*c.programToken, cfg.ProgramToken); tokenStr != "" {
		programToken, err = solana.PublicKeyFromBase58(tokenStr)
		if err != nil {
			return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("program token: %w", err)
		}
	}
	return program, programToken, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func parseKey(name, value string) (solana.PublicKey, error) {
	if strings.TrimSpace(value) == "" {
		return solana.PublicKey{}, fmt.Errorf("-%s is required", name)
	}
	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(value))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("-%s: %w", name, err)
	}
	return key, nil
}

func runSend(args []string) error {
	common := newCommonFlags("send")
	fs := common.fs
	sender := fs.String("sender", "", "sender principal (base58)")
	senderToken := fs.String("sender-token", "", "sender currency account (base58)")
	to := fs.String("to", "", "recipient principal (base58)")
	subject := fs.String("subject", "", "message subject")
	body := fs.String("body", "", "message body")
	priority := fs.Bool("priority", false, "revenue-sharing send (full fee, 90% to recipient)")
	fs.Parse(args)

	program, programToken, err := common.resolve()
	if err != nil {
		return err
	}
	senderKey, err := parseKey("sender", *sender)
	if err != nil {
		return err
	}
	senderTokenKey, err := parseKey("sender-token", *senderToken)
	if err != nil {
		return err
	}
	toKey, err := parseKey("to", *to)
	if err != nil {
		return err
	}
	build := sdk.NewSendInstruction
	if *priority {
		build = sdk.NewSendPriorityInstruction
	}
	in, err := build(program, senderKey, senderTokenKey, programToken, toKey, *subject, *body)
	if err != nil {
		return err
	}
	return printInstruction(in)
}

func runInit(args []string) error {
	common := newCommonFlags("init")
	fs := common.fs
	owner := fs.String("owner", "", "owner principal (base58)")
	feeCurrency := fs.String("fee-currency", "", "fee currency identifier (base58)")
	fs.Parse(args)

	program, _, err := common.resolve()
	if err != nil {
		return err
	}
	ownerKey, err := parseKey("owner", *owner)
	if err != nil {
		return err
	}
	currencyKey, err := parseKey("fee-currency", *feeCurrency)
	if err != nil {
		return err
	}
	in, err := sdk.NewInitializeInstruction(program, ownerKey, currencyKey)
	if err != nil {
		return err
	}
	return printInstruction(in)
}

func runClaim(args []string) error {
	common := newCommonFlags("claim")
	fs := common.fs
	recipient := fs.String("recipient", "", "recipient principal (base58)")
	recipientToken := fs.String("recipient-token", "", "recipient currency account (base58)")
	fs.Parse(args)

	program, programToken, err := common.resolve()
	if err != nil {
		return err
	}
	recipientKey, err := parseKey("recipient", *recipient)
	if err != nil {
		return err
	}
	recipientTokenKey, err := parseKey("recipient-token", *recipientToken)
	if err != nil {
		return err
	}
	in, err := sdk.NewClaimRecipientShareInstruction(program, recipientKey, programToken, recipientTokenKey)
	if err != nil {
		return err
	}
	return printInstruction(in)
}

func runClaimOwner(args []string) error {
	common := newCommonFlags("claim-owner")
	fs := common.fs
	owner := fs.String("owner", "", "owner principal (base58)")
	ownerToken := fs.String("owner-token", "", "owner currency account (base58)")
	fs.Parse(args)

	program, programToken, err := common.resolve()
	if err != nil {
		return err
	}
	ownerKey, err := parseKey("owner", *owner)
	if err != nil {
		return err
	}
	ownerTokenKey, err := parseKey("owner-token", *ownerToken)
	if err != nil {
		return err
	}
	in, err := sdk.NewClaimOwnerShareInstruction(program, ownerKey, programToken, ownerTokenKey)
	if err != nil {
		return err
	}
	return printInstruction(in)
}

func runSetFee(args []string) error {
	common := newCommonFlags("set-fee")
	fs := common.fs
	owner := fs.String("owner", "", "owner principal (base58)")
	newFee := fs.Uint64("new-fee", 0, "new fee in minor units")
	delegation := fs.Bool("delegation", false, "update the delegation fee instead of the send fee")
	fs.Parse(args)

	program, _, err := common.resolve()
	if err != nil {
		return err
	}
	ownerKey, err := parseKey("owner", *owner)
	if err != nil {
		return err
	}
	build := sdk.NewSetFeeInstruction
	if *delegation {
		build = sdk.NewSetDelegationFeeInstruction
	}
	in, err := build(program, ownerKey, *newFee)
	if err != nil {
		return err
	}
	return printInstruction(in)
}

func runDelegate(args []string) error {
	common := newCommonFlags("delegate")
	fs := common.fs
	delegator := fs.String("delegator", "", "delegator principal (base58)")
	delegatorToken := fs.String("delegator-token", "", "delegator currency account (base58)")
	delegate := fs.String("delegate", "", "delegate principal (base58); omit to clear")
	fs.Parse(args)

	program, programToken, err := common.resolve()
	if err != nil {
		return err
	}
	delegatorKey, err := parseKey("delegator", *delegator)
	if err != nil {
		return err
	}
	delegatorTokenKey, err := parseKey("delegator-token", *delegatorToken)
	if err != nil {
		return err
	}
	var delegateKey *solana.PublicKey
	if strings.TrimSpace(*delegate) != "" {
		key, err := parseKey("delegate", *delegate)
		if err != nil {
			return err
		}
		delegateKey = &key
	}
	in, err := sdk.NewDelegateToInstruction(program, delegatorKey, delegatorTokenKey, programToken, delegateKey)
	if err != nil {
		return err
	}
	return printInstruction(in)
}

func runReject(args []string) error {
	common := newCommonFlags("reject")
	fs := common.fs
	delegate := fs.String("delegate", "", "rejecting delegate principal (base58)")
	delegator := fs.String("delegator", "", "delegator whose record is rejected (base58)")
	fs.Parse(args)

	program, _, err := common.resolve()
	if err != nil {
		return err
	}
	delegateKey, err := parseKey("delegate", *delegate)
	if err != nil {
		return err
	}
	delegatorKey, err := parseKey("delegator", *delegator)
	if err != nil {
		return err
	}
	in, err := sdk.NewRejectDelegationInstruction(program, delegateKey, delegatorKey)
	if err != nil {
		return err
	}
	return printInstruction(in)
}

func runDerive(args []string) error {
	common := newCommonFlags("derive")
	fs := common.fs
	recipient := fs.String("recipient", "", "derive the claim record for this recipient (base58)")
	delegator := fs.String("delegator", "", "derive the delegation record for this delegator (base58)")
	fs.Parse(args)

	program, _, err := common.resolve()
	if err != nil {
		return err
	}
	out := map[string]string{}
	cfgAddr, cfgBump, err := sdk.DeriveConfigAddress(program)
	if err != nil {
		return err
	}
	out["config"] = cfgAddr.String()
	out["configBump"] = fmt.Sprintf("%d", cfgBump)
	if strings.TrimSpace(*recipient) != "" {
		key, err := parseKey("recipient", *recipient)
		if err != nil {
			return err
		}
		addr, bump, err := sdk.DeriveClaimAddress(program, key)
		if err != nil {
			return err
		}
		out["claim"] = addr.String()
		out["claimBump"] = fmt.Sprintf("%d", bump)
	}
	if strings.TrimSpace(*delegator) != "" {
		key, err := parseKey("delegator", *delegator)
		if err != nil {
			return err
		}
		addr, bump, err := sdk.DeriveDelegationAddress(program, key)
		if err != nil {
			return err
		}
		out["delegation"] = addr.String()
		out["delegationBump"] = fmt.Sprintf("%d", bump)
	}
	return printJSON(out)
}

func runDecodeRecord(args []string) error {
	fs := flag.NewFlagSet("decode-record", flag.ExitOnError)
	data := fs.String("data", "", "record bytes, hex or base58")
	fs.Parse(args)

	raw, err := parseRecordBytes(*data)
	if err != nil {
		return err
	}
	record, err := decodeRecord(raw)
	if err != nil {
		return err
	}
	return printJSON(record)
}

// parseRecordBytes accepts hex (with optional 0x prefix) or base58, the two
// encodings explorers commonly export account data in.
func parseRecordBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("-data is required")
	}
	hexStr := strings.TrimPrefix(s, "0x")
	if raw, err := hex.DecodeString(hexStr); err == nil {
		return raw, nil
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("record data is neither hex nor base58: %w", err)
	}
	return raw, nil
}

func decodeRecord(raw []byte) (any, error) {
	switch len(raw) {
	case mailer.ConfigRecordSize:
		cfg := new(mailer.GlobalConfig)
		if err := cfg.UnmarshalBinary(raw); err != nil {
			return nil, err
		}
		return map[string]any{
			"kind":           "GlobalConfig",
			"owner":          cfg.Owner.String(),
			"feeCurrency":    cfg.FeeCurrency.String(),
			"sendFee":        cfg.SendFee,
			"delegationFee":  cfg.DelegationFee,
			"ownerClaimable": cfg.OwnerClaimable,
			"bump":           cfg.Bump,
		}, nil
	case mailer.ClaimRecordSize:
		claim := new(mailer.Claim)
		if err := claim.UnmarshalBinary(raw); err != nil {
			return nil, err
		}
		return map[string]any{
			"kind":      "Claim",
			"recipient": claim.Recipient.String(),
			"amount":    claim.Amount,
			"openedAt":  claim.OpenedAt,
			"bump":      claim.Bump,
		}, nil
	case mailer.DelegationRecordSize:
		delegation := new(mailer.Delegation)
		if err := delegation.UnmarshalBinary(raw); err != nil {
			return nil, err
		}
		out := map[string]any{
			"kind":      "Delegation",
			"delegator": delegation.Delegator.String(),
			"delegate":  nil,
			"bump":      delegation.Bump,
		}
		if delegation.Delegate != nil {
			out["delegate"] = delegation.Delegate.String()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("no record kind is %d bytes", len(raw))
	}
}

func printInstruction(in *sdk.Instruction) error {
	data, err := in.Data()
	if err != nil {
		return err
	}
	type accountOut struct {
		Address  string `json:"address"`
		Signer   bool   `json:"signer"`
		Writable bool   `json:"writable"`
	}
	out := struct {
		ProgramID string       `json:"programId"`
		Accounts  []accountOut `json:"accounts"`
		Data      string       `json:"data"`
	}{
		ProgramID: in.ProgramID().String(),
		Data:      hex.EncodeToString(data),
	}
	for _, meta := range in.Accounts() {
		out.Accounts = append(out.Accounts, accountOut{
			Address:  meta.PublicKey.String(),
			Signer:   meta.IsSigner,
			Writable: meta.IsWritable,
		})
	}
	return printJSON(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
