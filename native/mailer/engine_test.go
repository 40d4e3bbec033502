package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"

	"solmail/core/events"
)

type mockState struct {
	records map[solana.PublicKey][]byte
	created map[solana.PublicKey]solana.PublicKey // record -> payer
}

func newMockState() *mockState {
	return &mockState{
		records: make(map[solana.PublicKey][]byte),
		created: make(map[solana.PublicKey]solana.PublicKey),
	}
}

func (m *mockState) RecordGet(addr solana.PublicKey) ([]byte, bool, error) {
	data, ok := m.records[addr]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *mockState) RecordPut(addr solana.PublicKey, data []byte) error {
	m.records[addr] = append([]byte(nil), data...)
	return nil
}

func (m *mockState) RecordCreate(addr solana.PublicKey, size int, payer solana.PublicKey) error {
	if _, ok := m.records[addr]; ok {
		return fmt.Errorf("record %s already exists", addr)
	}
	m.records[addr] = make([]byte, size)
	m.created[addr] = payer
	return nil
}

type programTransfer struct {
	from, to solana.PublicKey
	bump     uint8
	amount   uint64
}

type mockLedger struct {
	balances  map[solana.PublicKey]uint64
	transfers []programTransfer
}

func newMockLedger() *mockLedger {
	return &mockLedger{balances: make(map[solana.PublicKey]uint64)}
}

func (m *mockLedger) Transfer(from, to solana.PublicKey, amount uint64) error {
	if m.balances[from] < amount {
		return fmt.Errorf("insufficient balance in %s", from)
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}

func (m *mockLedger) TransferProgram(from, to solana.PublicKey, bump uint8, amount uint64) error {
	if err := m.Transfer(from, to, amount); err != nil {
		return err
	}
	m.transfers = append(m.transfers, programTransfer{from: from, to: to, bump: bump, amount: amount})
	return nil
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func testKey(fill byte) solana.PublicKey {
	return solana.PublicKeyFromBytes(bytes.Repeat([]byte{fill}, 32))
}

type testEnv struct {
	engine  *Engine
	state   *mockState
	ledger  *mockLedger
	emitter *captureEmitter

	program solana.PublicKey
	cfgAddr solana.PublicKey

	owner, ownerToken     solana.PublicKey
	sender, senderToken   solana.PublicKey
	programToken          solana.PublicKey
	recipient, recipToken solana.PublicKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:        newMockState(),
		ledger:       newMockLedger(),
		emitter:      &captureEmitter{},
		program:      testKey(0x01),
		owner:        testKey(0x02),
		ownerToken:   testKey(0x03),
		sender:       testKey(0x04),
		senderToken:  testKey(0x05),
		programToken: testKey(0x06),
		recipient:    testKey(0x07),
		recipToken:   testKey(0x08),
	}
	cfgAddr, _, err := DeriveConfigAddress(env.program)
	if err != nil {
		t.Fatalf("derive config: %v", err)
	}
	env.cfgAddr = cfgAddr
	env.engine = NewEngine(env.program)
	env.engine.SetState(env.state)
	env.engine.SetTokenLedger(env.ledger)
	env.engine.SetEmitter(env.emitter)
	env.ledger.balances[env.senderToken] = 1_000_000_000
	return env
}

func (env *testEnv) initialize(t *testing.T) {
	t.Helper()
	if err := env.engine.Initialize(env.owner, env.cfgAddr, testKey(0xFC)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
}

func (env *testEnv) config(t *testing.T) *GlobalConfig {
	t.Helper()
	cfg, err := env.engine.loadConfig(env.cfgAddr)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func (env *testEnv) claimAddr(t *testing.T, recipient solana.PublicKey) solana.PublicKey {
	t.Helper()
	addr, _, err := DeriveClaimAddress(env.program, recipient)
	if err != nil {
		t.Fatalf("derive claim: %v", err)
	}
	return addr
}

func (env *testEnv) claim(t *testing.T, recipient solana.PublicKey) *Claim {
	t.Helper()
	claim, ok, err := env.engine.loadClaim(env.claimAddr(t, recipient))
	if err != nil {
		t.Fatalf("load claim: %v", err)
	}
	if !ok {
		t.Fatalf("claim record for %s does not exist", recipient)
	}
	return claim
}

func (env *testEnv) prioritySend(t *testing.T, to solana.PublicKey) {
	t.Helper()
	err := env.engine.Send(SendParams{
		Sender:       env.sender,
		ConfigAddr:   env.cfgAddr,
		ClaimAddr:    env.claimAddr(t, to),
		SenderToken:  env.senderToken,
		ProgramToken: env.programToken,
		To:           to,
		Subject:      "subject",
		Body:         "body",
		Priority:     true,
	})
	if err != nil {
		t.Fatalf("priority send: %v", err)
	}
}

func TestSplitFee(t *testing.T) {
	cases := []struct {
		fee, owner, recipient uint64
	}{
		{100_000, 10_000, 90_000},
		{1, 0, 1},
		{0, 0, 0},
		{19, 1, 18},
	}
	for _, tc := range cases {
		ownerCut, recipientCut := SplitFee(tc.fee)
		if ownerCut != tc.owner || recipientCut != tc.recipient {
			t.Fatalf("SplitFee(%d) = (%d, %d), want (%d, %d)", tc.fee, ownerCut, recipientCut, tc.owner, tc.recipient)
		}
		if ownerCut+recipientCut != tc.fee {
			t.Fatalf("SplitFee(%d) does not conserve the fee", tc.fee)
		}
	}
}

func TestInitialize(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)

	cfg := env.config(t)
	if cfg.Owner != env.owner {
		t.Fatalf("owner = %s, want %s", cfg.Owner, env.owner)
	}
	if cfg.SendFee != SendFeeDefault || cfg.DelegationFee != DelegationFeeDefault {
		t.Fatalf("default fees = (%d, %d)", cfg.SendFee, cfg.DelegationFee)
	}
	if cfg.OwnerClaimable != 0 {
		t.Fatalf("fresh config has ownerClaimable %d", cfg.OwnerClaimable)
	}
	if payer := env.state.created[env.cfgAddr]; payer != env.owner {
		t.Fatalf("config rent funded by %s, want signer", payer)
	}

	if err := env.engine.Initialize(env.owner, env.cfgAddr, testKey(0xFC)); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second initialize: %v", err)
	}
}

func TestInitializeRejectsWrongAddress(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.Initialize(env.owner, testKey(0xEE), testKey(0xFC)); !errors.Is(err, ErrInvalidPDA) {
		t.Fatalf("initialize with foreign address: %v", err)
	}
}

func TestSendRequiresInitialization(t *testing.T) {
	env := newTestEnv(t)
	err := env.engine.Send(SendParams{
		Sender:       env.sender,
		ConfigAddr:   env.cfgAddr,
		SenderToken:  env.senderToken,
		ProgramToken: env.programToken,
		To:           env.recipient,
	})
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("send before initialize: %v", err)
	}
}

func TestPrioritySendSplitsFee(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)
	env.engine.SetNowFunc(func() int64 { return 1_000 })

	env.prioritySend(t, env.recipient)

	if got := env.config(t).OwnerClaimable; got != 10_000 {
		t.Fatalf("ownerClaimable = %d, want 10000", got)
	}
	claim := env.claim(t, env.recipient)
	if claim.Amount != 90_000 {
		t.Fatalf("claim amount = %d, want 90000", claim.Amount)
	}
	if claim.OpenedAt != 1_000 {
		t.Fatalf("openedAt = %d, want 1000", claim.OpenedAt)
	}
	if got := env.ledger.balances[env.programToken]; got != 100_000 {
		t.Fatalf("program currency balance = %d, want 100000", got)
	}
	if payer := env.state.created[env.claimAddr(t, env.recipient)]; payer != env.sender {
		t.Fatalf("claim rent funded by %s, want sender", payer)
	}
	_, claimBump, _ := DeriveClaimAddress(env.program, env.recipient)
	if claim.Bump != claimBump {
		t.Fatalf("claim stores bump %d, want recipient-bound bump %d", claim.Bump, claimBump)
	}
}

func TestRepeatSendKeepsWindowOpen(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)

	now := int64(1_000)
	env.engine.SetNowFunc(func() int64 { return now })
	env.prioritySend(t, env.recipient)
	now = 1_100
	env.prioritySend(t, env.recipient)

	claim := env.claim(t, env.recipient)
	if claim.Amount != 180_000 {
		t.Fatalf("claim amount = %d, want 180000", claim.Amount)
	}
	if claim.OpenedAt != 1_000 {
		t.Fatalf("second send moved openedAt to %d", claim.OpenedAt)
	}
	if got := env.config(t).OwnerClaimable; got != 20_000 {
		t.Fatalf("ownerClaimable = %d, want 20000", got)
	}
}

func TestStandardSendAccruesOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)

	err := env.engine.Send(SendParams{
		Sender:       env.sender,
		ConfigAddr:   env.cfgAddr,
		SenderToken:  env.senderToken,
		ProgramToken: env.programToken,
		To:           env.recipient,
		Subject:      "hello",
	})
	if err != nil {
		t.Fatalf("standard send: %v", err)
	}
	if got := env.config(t).OwnerClaimable; got != 10_000 {
		t.Fatalf("ownerClaimable = %d, want 10000", got)
	}
	if got := env.ledger.balances[env.programToken]; got != 10_000 {
		t.Fatalf("sender debited %d, want 10000 only", got)
	}
	if _, ok, _ := env.engine.loadClaim(env.claimAddr(t, env.recipient)); ok {
		t.Fatal("standard send must not create a claim record")
	}
}

func TestSendRejectsZeroRecipient(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)
	err := env.engine.Send(SendParams{
		Sender:       env.sender,
		ConfigAddr:   env.cfgAddr,
		SenderToken:  env.senderToken,
		ProgramToken: env.programToken,
	})
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("zero recipient: %v", err)
	}
}

func TestRecipientClaimPaysOut(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)

	now := int64(1_000)
	env.engine.SetNowFunc(func() int64 { return now })
	env.prioritySend(t, env.recipient)

	now = 1_010
	err := env.engine.ClaimRecipientShare(env.recipient, env.cfgAddr, env.claimAddr(t, env.recipient), env.programToken, env.recipToken)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	claim := env.claim(t, env.recipient)
	if claim.Amount != 0 || claim.OpenedAt != 0 {
		t.Fatalf("claim not reset: amount=%d openedAt=%d", claim.Amount, claim.OpenedAt)
	}
	if got := env.ledger.balances[env.recipToken]; got != 90_000 {
		t.Fatalf("recipient currency = %d, want 90000", got)
	}
	if got := env.ledger.balances[env.programToken]; got != 10_000 {
		t.Fatalf("program currency = %d, want 10000", got)
	}
	// The program signed the payout with the stored config bump.
	if len(env.ledger.transfers) != 1 {
		t.Fatalf("program transfers = %d, want 1", len(env.ledger.transfers))
	}
	if env.ledger.transfers[0].bump != env.config(t).Bump {
		t.Fatal("payout did not present the stored bump")
	}

	err = env.engine.ClaimRecipientShare(env.recipient, env.cfgAddr, env.claimAddr(t, env.recipient), env.programToken, env.recipToken)
	if !errors.Is(err, ErrNoClaimableAmount) {
		t.Fatalf("claim on empty record: %v", err)
	}
}

func TestClaimWindowBoundary(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)

	now := int64(1_000)
	env.engine.SetNowFunc(func() int64 { return now })
	env.prioritySend(t, env.recipient)

	// Exactly at the boundary the claim is still payable.
	now = 1_000 + ClaimWindow
	err := env.engine.ClaimRecipientShare(env.recipient, env.cfgAddr, env.claimAddr(t, env.recipient), env.programToken, env.recipToken)
	if err != nil {
		t.Fatalf("claim at window boundary: %v", err)
	}

	now = 2_000_000
	env.prioritySend(t, env.recipient)
	now = 2_000_000 + ClaimWindow + 1
	err = env.engine.ClaimRecipientShare(env.recipient, env.cfgAddr, env.claimAddr(t, env.recipient), env.programToken, env.recipToken)
	if !errors.Is(err, ErrClaimPeriodExpired) {
		t.Fatalf("claim past window: %v", err)
	}
	// The record keeps the forfeited balance.
	claim := env.claim(t, env.recipient)
	if claim.Amount != 90_000 || claim.OpenedAt != 2_000_000 {
		t.Fatalf("expired claim mutated: amount=%d openedAt=%d", claim.Amount, claim.OpenedAt)
	}
}

func TestClaimRequiresRecipientSigner(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)
	env.prioritySend(t, env.recipient)

	// A foreign signer cannot present the recipient's claim record: the
	// derivation from the signer key no longer matches.
	err := env.engine.ClaimRecipientShare(env.sender, env.cfgAddr, env.claimAddr(t, env.recipient), env.programToken, env.recipToken)
	if !errors.Is(err, ErrInvalidPDA) {
		t.Fatalf("foreign claim: %v", err)
	}
}

func TestFeeBoundaries(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)

	if err := env.engine.SetSendFee(env.owner, env.cfgAddr, 1); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	env.prioritySend(t, env.recipient)
	if got := env.config(t).OwnerClaimable; got != 0 {
		t.Fatalf("ownerClaimable = %d, want 0 for fee 1", got)
	}
	if got := env.claim(t, env.recipient).Amount; got != 1 {
		t.Fatalf("claim amount = %d, want 1 for fee 1", got)
	}

	if err := env.engine.SetSendFee(env.owner, env.cfgAddr, 0); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	before := env.ledger.balances[env.senderToken]
	env.prioritySend(t, env.recipient)
	if got := env.ledger.balances[env.senderToken]; got != before {
		t.Fatal("zero fee still moved currency")
	}
}

func TestSetFeeRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)

	if err := env.engine.SetSendFee(env.sender, env.cfgAddr, 5); !errors.Is(err, ErrOnlyOwner) {
		t.Fatalf("non-owner SetFee: %v", err)
	}
	if err := env.engine.SetDelegationFee(env.sender, env.cfgAddr, 5); !errors.Is(err, ErrOnlyOwner) {
		t.Fatalf("non-owner SetDelegationFee: %v", err)
	}
	if err := env.engine.ClaimOwnerShare(env.sender, env.cfgAddr, env.programToken, env.ownerToken); !errors.Is(err, ErrOnlyOwner) {
		t.Fatalf("non-owner ClaimOwnerShare: %v", err)
	}
}

func TestSetFeesApply(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)

	if err := env.engine.SetSendFee(env.owner, env.cfgAddr, 42); err != nil {
		t.Fatalf("SetSendFee: %v", err)
	}
	if err := env.engine.SetDelegationFee(env.owner, env.cfgAddr, 43); err != nil {
		t.Fatalf("SetDelegationFee: %v", err)
	}
	cfg := env.config(t)
	if cfg.SendFee != 42 || cfg.DelegationFee != 43 {
		t.Fatalf("fees = (%d, %d), want (42, 43)", cfg.SendFee, cfg.DelegationFee)
	}
}

func TestOwnerPayout(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)

	env.prioritySend(t, env.recipient)
	err := env.engine.Send(SendParams{
		Sender:       env.sender,
		ConfigAddr:   env.cfgAddr,
		SenderToken:  env.senderToken,
		ProgramToken: env.programToken,
		To:           env.recipient,
	})
	if err != nil {
		t.Fatalf("standard send: %v", err)
	}
	if got := env.config(t).OwnerClaimable; got != 20_000 {
		t.Fatalf("ownerClaimable = %d, want 20000", got)
	}

	if err := env.engine.ClaimOwnerShare(env.owner, env.cfgAddr, env.programToken, env.ownerToken); err != nil {
		t.Fatalf("owner payout: %v", err)
	}
	if got := env.ledger.balances[env.ownerToken]; got != 20_000 {
		t.Fatalf("owner currency = %d, want 20000", got)
	}
	if got := env.config(t).OwnerClaimable; got != 0 {
		t.Fatalf("ownerClaimable = %d after payout", got)
	}
	err = env.engine.ClaimOwnerShare(env.owner, env.cfgAddr, env.programToken, env.ownerToken)
	if !errors.Is(err, ErrNoClaimableAmount) {
		t.Fatalf("repeat owner payout: %v", err)
	}
}

func TestDelegateSetChargesFee(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)
	env.ledger.balances[env.senderToken] = 10_000_000

	delegate := testKey(0x0D)
	delegationAddr, bump, err := DeriveDelegationAddress(env.program, env.sender)
	if err != nil {
		t.Fatalf("derive delegation: %v", err)
	}
	if err := env.engine.DelegateTo(env.sender, env.cfgAddr, delegationAddr, env.senderToken, env.programToken, &delegate); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	record, ok, err := env.engine.loadDelegation(delegationAddr)
	if err != nil || !ok {
		t.Fatalf("load delegation: ok=%v err=%v", ok, err)
	}
	if record.Delegator != env.sender || record.Delegate == nil || *record.Delegate != delegate {
		t.Fatalf("delegation record = %+v", record)
	}
	if record.Bump != bump {
		t.Fatalf("delegation bump = %d, want %d", record.Bump, bump)
	}
	if got := env.ledger.balances[env.senderToken]; got != 0 {
		t.Fatalf("delegator balance = %d, want fee fully charged", got)
	}
	// The delegation fee accrues to the owner share so it stays recoverable.
	if got := env.config(t).OwnerClaimable; got != 10_000_000 {
		t.Fatalf("ownerClaimable = %d, want delegation fee", got)
	}

	// Re-setting the same delegate charges again.
	env.ledger.balances[env.senderToken] = 10_000_000
	if err := env.engine.DelegateTo(env.sender, env.cfgAddr, delegationAddr, env.senderToken, env.programToken, &delegate); err != nil {
		t.Fatalf("re-delegate: %v", err)
	}
	if got := env.ledger.balances[env.senderToken]; got != 0 {
		t.Fatal("same-value set did not re-charge the fee")
	}
}

func TestDelegateClearIsFree(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)

	delegationAddr, _, err := DeriveDelegationAddress(env.program, env.sender)
	if err != nil {
		t.Fatalf("derive delegation: %v", err)
	}
	before := env.ledger.balances[env.senderToken]
	if err := env.engine.DelegateTo(env.sender, env.cfgAddr, delegationAddr, env.senderToken, env.programToken, nil); err != nil {
		t.Fatalf("clear without record: %v", err)
	}
	record, ok, _ := env.engine.loadDelegation(delegationAddr)
	if !ok || record.Delegate != nil {
		t.Fatalf("clear did not materialize an empty record: %+v", record)
	}
	// Clearing twice is a no-op in state and in currency.
	if err := env.engine.DelegateTo(env.sender, env.cfgAddr, delegationAddr, env.senderToken, env.programToken, nil); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if got := env.ledger.balances[env.senderToken]; got != before {
		t.Fatal("clear moved currency")
	}

	// A zero delegate key clears rather than publishing the zero key.
	zero := solana.PublicKey{}
	if err := env.engine.DelegateTo(env.sender, env.cfgAddr, delegationAddr, env.senderToken, env.programToken, &zero); err != nil {
		t.Fatalf("zero-key set: %v", err)
	}
	if got := env.ledger.balances[env.senderToken]; got != before {
		t.Fatal("zero-key set charged the fee")
	}
}

func TestRejectDelegation(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)
	env.ledger.balances[env.senderToken] = 10_000_000

	delegate := testKey(0x0D)
	delegationAddr, _, err := DeriveDelegationAddress(env.program, env.sender)
	if err != nil {
		t.Fatalf("derive delegation: %v", err)
	}
	if err := env.engine.DelegateTo(env.sender, env.cfgAddr, delegationAddr, env.senderToken, env.programToken, &delegate); err != nil {
		t.Fatalf("delegate: %v", err)
	}

	if err := env.engine.RejectDelegation(delegate, delegationAddr); err != nil {
		t.Fatalf("reject: %v", err)
	}
	record, _, _ := env.engine.loadDelegation(delegationAddr)
	if record.Delegate != nil {
		t.Fatal("reject did not clear the delegate")
	}
	if record.Delegator != env.sender {
		t.Fatal("reject mutated the delegator")
	}

	if err := env.engine.RejectDelegation(delegate, delegationAddr); !errors.Is(err, ErrNoDelegationToReject) {
		t.Fatalf("second reject: %v", err)
	}
}

func TestRejectRequiresCurrentDelegate(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)
	env.ledger.balances[env.senderToken] = 10_000_000

	delegate := testKey(0x0D)
	delegationAddr, _, _ := DeriveDelegationAddress(env.program, env.sender)
	if err := env.engine.DelegateTo(env.sender, env.cfgAddr, delegationAddr, env.senderToken, env.programToken, &delegate); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if err := env.engine.RejectDelegation(testKey(0x0E), delegationAddr); !errors.Is(err, ErrNoDelegationToReject) {
		t.Fatalf("reject by stranger: %v", err)
	}
	if err := env.engine.RejectDelegation(delegate, testKey(0x0F)); !errors.Is(err, ErrNoDelegationToReject) {
		t.Fatalf("reject against missing record: %v", err)
	}
}

func TestEmittedEvents(t *testing.T) {
	env := newTestEnv(t)
	env.initialize(t)
	env.prioritySend(t, env.recipient)

	var sawInit, sawSent bool
	for _, evt := range env.emitter.events {
		switch e := evt.(type) {
		case events.MailerInitialized:
			sawInit = true
		case events.MailerSent:
			sawSent = true
			if e.Subject != "subject" || e.Body != "body" {
				t.Fatalf("send event payload = %+v", e)
			}
			if !e.Priority || e.OwnerCut != 10_000 || e.RecipientCut != 90_000 {
				t.Fatalf("send event split = %+v", e)
			}
		}
	}
	if !sawInit || !sawSent {
		t.Fatalf("events = %v", env.emitter.events)
	}
}
