package ledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/radieske/p2p-bet-ledger/internal/ledger"
	"github.com/radieske/p2p-bet-ledger/internal/store"
	"github.com/radieske/p2p-bet-ledger/internal/store/memory"
)

func acc(s string) *ledger.AccountID { return ledger.AccountID(s).Ptr() }

func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(1500 * time.Nanosecond) // força truncamento em microssegundos
		return t
	}
}

// appendAll grava cada entrada numa Tx própria, como o engine faz
func appendAll(t *testing.T, st *memory.Store, l *ledger.Ledger, entries ...ledger.Entry) []*ledger.Transaction {
	t.Helper()
	ctx := context.Background()
	var out []*ledger.Transaction
	for _, e := range entries {
		tx, err := st.BeginWrite(ctx)
		if err != nil {
			t.Fatal(err)
		}
		got, err := l.Append(ctx, tx, e)
		if err != nil {
			_ = tx.Rollback()
			t.Fatalf("append %s: %v", e.Kind, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatal(err)
		}
		out = append(out, got)
	}
	return out
}

func tryAppend(st *memory.Store, l *ledger.Ledger, e ledger.Entry) error {
	ctx := context.Background()
	tx, err := st.BeginWrite(ctx)
	if err != nil {
		return err
	}
	if _, err := l.Append(ctx, tx, e); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func sampleEntries() []ledger.Entry {
	return []ledger.Entry{
		{To: acc("alice"), AmountCents: 100_00, Kind: ledger.KindDeposit, Payload: map[string]any{"rail": "pix"}},
		{To: acc("bob"), AmountCents: 40_00, Kind: ledger.KindDeposit},
		{From: acc("alice"), To: acc("bob"), AmountCents: 25_00, Kind: ledger.KindTransfer},
		{From: acc("alice"), To: acc("escrow:e1"), AmountCents: 10_00, Kind: ledger.KindBetPlace},
		{From: acc("bob"), To: acc("escrow:e1"), AmountCents: 10_00, Kind: ledger.KindBetPlace},
		{From: acc("escrow:e1"), To: acc("alice"), AmountCents: 19_00, Kind: ledger.KindSettleWin},
		{From: acc("escrow:e1"), To: acc("platform:fees"), AmountCents: 1_00, Kind: ledger.KindTransfer},
		{From: acc("bob"), AmountCents: 5_00, Kind: ledger.KindWithdrawal},
		{From: acc("alice"), Kind: ledger.KindActivityLog, Payload: map[string]any{"activity": "login"}},
	}
}

func TestNextHashDeterministic(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 123456000, time.UTC)
	base := ledger.Fields{From: acc("a"), To: acc("b"), AmountCents: 10, Kind: ledger.KindTransfer, CreatedAt: at, Payload: []byte(`{"x":1}`)}

	h := ledger.NextHash(ledger.GenesisHash, base)
	if h != ledger.NextHash(ledger.GenesisHash, base) {
		t.Fatalf("same input produced different hashes")
	}
	if len(h) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(h))
	}

	// mesmo instante em outro fuso
	local := base
	local.CreatedAt = at.In(time.FixedZone("BRT", -3*3600))
	if ledger.NextHash(ledger.GenesisHash, local) != h {
		t.Fatalf("timezone must not affect the hash")
	}

	variants := map[string]func(f *ledger.Fields){
		"from":       func(f *ledger.Fields) { f.From = acc("z") },
		"nil from":   func(f *ledger.Fields) { f.From = nil },
		"to":         func(f *ledger.Fields) { f.To = acc("z") },
		"amount":     func(f *ledger.Fields) { f.AmountCents = 11 },
		"kind":       func(f *ledger.Fields) { f.Kind = ledger.KindBetPlace },
		"created_at": func(f *ledger.Fields) { f.CreatedAt = at.Add(time.Microsecond) },
		"payload":    func(f *ledger.Fields) { f.Payload = []byte(`{"x":2}`) },
	}
	for name, mutate := range variants {
		t.Run(name, func(t *testing.T) {
			f := base
			mutate(&f)
			if ledger.NextHash(ledger.GenesisHash, f) == h {
				t.Fatalf("changing %s did not change the hash", name)
			}
		})
	}
	if ledger.NextHash(h, base) == h {
		t.Fatalf("prev hash must be part of the hash")
	}

	// fronteira entre campos: ("ab","c") != ("a","bc")
	x := ledger.Fields{From: acc("ab"), To: acc("c"), Kind: ledger.KindTransfer, CreatedAt: at}
	y := ledger.Fields{From: acc("a"), To: acc("bc"), Kind: ledger.KindTransfer, CreatedAt: at}
	if ledger.NextHash(ledger.GenesisHash, x) == ledger.NextHash(ledger.GenesisHash, y) {
		t.Fatalf("field boundaries are ambiguous")
	}
}

func TestAppendChainsAndAppliesBalances(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	l := ledger.New().WithClock(fixedClock())

	txs := appendAll(t, st, l, sampleEntries()...)

	prev := ledger.GenesisHash
	for i, tx := range txs {
		if tx.Sequence != int64(i+1) {
			t.Fatalf("tx %d sequence = %d", i, tx.Sequence)
		}
		if tx.PreviousHash != prev {
			t.Fatalf("tx %d previous_hash = %s, want %s", tx.Sequence, tx.PreviousHash, prev)
		}
		if tx.CreatedAt.Nanosecond()%1000 != 0 {
			t.Fatalf("created_at not truncated to microseconds: %v", tx.CreatedAt)
		}
		prev = tx.Hash
	}
	if !json.Valid(txs[1].Payload) || string(txs[1].Payload) != `{}` {
		t.Fatalf("nil payload should be stored as {}, got %s", txs[1].Payload)
	}

	want := map[ledger.AccountID]int64{
		"alice":         100_00 - 25_00 - 10_00 + 19_00,
		"bob":           40_00 + 25_00 - 10_00 - 5_00,
		"platform:fees": 1_00,
	}
	got, _ := st.Balances(ctx)
	for a, w := range want {
		if got[a] != w {
			t.Errorf("balance %s = %d, want %d", a, got[a], w)
		}
	}
	if got["escrow:e1"] != 0 {
		t.Errorf("escrow should be drained, got %d", got["escrow:e1"])
	}

	// replay e saldos materializados concordam
	all, _ := st.Transactions(ctx, 0, 0)
	replayed := ledger.Replay(all)
	for a, b := range got {
		if replayed[a] != b {
			t.Errorf("replay %s = %d, stored %d", a, replayed[a], b)
		}
	}
}

func TestAppendValidation(t *testing.T) {
	st := memory.New()
	l := ledger.New()
	appendAll(t, st, l, ledger.Entry{To: acc("alice"), AmountCents: 10_00, Kind: ledger.KindDeposit})

	cases := []struct {
		name  string
		entry ledger.Entry
		want  error
	}{
		{"unknown kind", ledger.Entry{To: acc("alice"), AmountCents: 1, Kind: "mint"}, ledger.ErrInvalidEntry},
		{"negative amount", ledger.Entry{To: acc("alice"), AmountCents: -1, Kind: ledger.KindDeposit}, ledger.ErrInvalidAmount},
		{"zero deposit", ledger.Entry{To: acc("alice"), Kind: ledger.KindDeposit}, ledger.ErrInvalidAmount},
		{"deposit with from", ledger.Entry{From: acc("bob"), To: acc("alice"), AmountCents: 1, Kind: ledger.KindDeposit}, ledger.ErrInvalidEntry},
		{"deposit without to", ledger.Entry{AmountCents: 1, Kind: ledger.KindDeposit}, ledger.ErrInvalidEntry},
		{"withdrawal with to", ledger.Entry{From: acc("alice"), To: acc("bob"), AmountCents: 1, Kind: ledger.KindWithdrawal}, ledger.ErrInvalidEntry},
		{"withdrawal overdraw", ledger.Entry{From: acc("alice"), AmountCents: 10_01, Kind: ledger.KindWithdrawal}, ledger.ErrInsufficientFunds},
		{"transfer overdraw", ledger.Entry{From: acc("alice"), To: acc("bob"), AmountCents: 11_00, Kind: ledger.KindTransfer}, ledger.ErrInsufficientFunds},
		{"bet_place without from", ledger.Entry{To: acc("escrow:e"), AmountCents: 1, Kind: ledger.KindBetPlace}, ledger.ErrInvalidEntry},
		{"activity with amount", ledger.Entry{From: acc("alice"), AmountCents: 1, Kind: ledger.KindActivityLog}, ledger.ErrInvalidAmount},
		{"same account", ledger.Entry{From: acc("alice"), To: acc("alice"), AmountCents: 1, Kind: ledger.KindTransfer}, ledger.ErrInvalidEntry},
		{"bad payload", ledger.Entry{To: acc("alice"), AmountCents: 1, Kind: ledger.KindDeposit, Payload: json.RawMessage(`{`)}, ledger.ErrInvalidEntry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tryAppend(st, l, tc.entry); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	ctx := context.Background()
	all, _ := st.Transactions(ctx, 0, 0)
	if len(all) != 1 {
		t.Fatalf("rejected appends persisted: %d transactions", len(all))
	}
	if b, _ := st.Balance(ctx, "alice"); b != 10_00 {
		t.Fatalf("balance changed to %d", b)
	}
}

func TestAppendRefusedWhenHalted(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	l := ledger.New()

	tx, _ := st.BeginWrite(ctx)
	if err := tx.Halt(ctx, "broken"); err != nil {
		t.Fatal(err)
	}
	_ = tx.Commit()

	err := tryAppend(st, l, ledger.Entry{To: acc("alice"), AmountCents: 1, Kind: ledger.KindDeposit})
	if !errors.Is(err, ledger.ErrLedgerHalted) {
		t.Fatalf("err = %v, want ErrLedgerHalted", err)
	}
}

func TestVerifyValidChain(t *testing.T) {
	st := memory.New()
	appendAll(t, st, ledger.New().WithClock(fixedClock()), sampleEntries()...)

	rep, err := ledger.Verify(context.Background(), st)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Valid || rep.Checked != int64(len(sampleEntries())) {
		t.Fatalf("report: %+v", rep)
	}

	empty, err := ledger.Verify(context.Background(), memory.New())
	if err != nil || !empty.Valid || empty.Checked != 0 {
		t.Fatalf("empty ledger: %+v %v", empty, err)
	}
}

func TestVerifyDetectsEveryField(t *testing.T) {
	corruptions := map[string]func(tx *ledger.Transaction){
		"from":          func(tx *ledger.Transaction) { tx.From = acc("mallory") },
		"to":            func(tx *ledger.Transaction) { tx.To = acc("mallory") },
		"amount":        func(tx *ledger.Transaction) { tx.AmountCents++ },
		"kind":          func(tx *ledger.Transaction) { tx.Kind = ledger.KindBetRefund },
		"created_at":    func(tx *ledger.Transaction) { tx.CreatedAt = tx.CreatedAt.Add(time.Second) },
		"payload":       func(tx *ledger.Transaction) { tx.Payload = json.RawMessage(`{"forged":true}`) },
		"hash":          func(tx *ledger.Transaction) { tx.Hash = ledger.GenesisHash },
		"previous_hash": func(tx *ledger.Transaction) { tx.PreviousHash = strings.Repeat("f", 64) },
		"sequence_no":   func(tx *ledger.Transaction) { tx.Sequence = 99 },
	}

	for _, target := range []int64{1, 3, 9} {
		for name, corrupt := range corruptions {
			t.Run(name, func(t *testing.T) {
				st := memory.New()
				appendAll(t, st, ledger.New().WithClock(fixedClock()), sampleEntries()...)
				st.Corrupt(target, corrupt)

				rep, err := ledger.Verify(context.Background(), st)
				if err != nil {
					t.Fatal(err)
				}
				if rep.Valid {
					t.Fatalf("corrupted %s at %d went undetected", name, target)
				}
				if rep.BrokenAtSequence == nil || *rep.BrokenAtSequence != target {
					t.Fatalf("broken at %v, want %d (%s)", rep.BrokenAtSequence, target, rep.Reason)
				}
			})
		}
	}
}

func TestVerifyDetectsBalanceDrift(t *testing.T) {
	st := memory.New()
	appendAll(t, st, ledger.New(), sampleEntries()...)
	st.CorruptBalance("bob", 1)
	st.CorruptBalance("ghost", 5)

	rep, err := ledger.Verify(context.Background(), st)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Valid || rep.BrokenAtSequence != nil {
		t.Fatalf("report: %+v", rep)
	}
	if len(rep.BalanceMismatches) != 2 || rep.BalanceMismatches[0] != "bob" || rep.BalanceMismatches[1] != "ghost" {
		t.Fatalf("mismatches = %v", rep.BalanceMismatches)
	}
}

func TestDeltas(t *testing.T) {
	cases := []struct {
		kind     ledger.Kind
		from, to *ledger.AccountID
		want     map[ledger.AccountID]int64
	}{
		{ledger.KindDeposit, nil, acc("a"), map[ledger.AccountID]int64{"a": 5}},
		{ledger.KindWithdrawal, acc("a"), nil, map[ledger.AccountID]int64{"a": -5}},
		{ledger.KindTransfer, acc("a"), acc("b"), map[ledger.AccountID]int64{"a": -5, "b": 5}},
		{ledger.KindBetPlace, acc("a"), acc("escrow:e"), map[ledger.AccountID]int64{"a": -5, "escrow:e": 5}},
		{ledger.KindSettleWin, acc("escrow:e"), acc("a"), map[ledger.AccountID]int64{"escrow:e": -5, "a": 5}},
		{ledger.KindBetRefund, acc("escrow:e"), acc("a"), map[ledger.AccountID]int64{"escrow:e": -5, "a": 5}},
		{ledger.KindActivityLog, acc("a"), nil, map[ledger.AccountID]int64{}},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			got := ledger.Deltas(tc.kind, tc.from, tc.to, 5)
			if len(got) != len(tc.want) {
				t.Fatalf("deltas = %v, want %v", got, tc.want)
			}
			for a, d := range tc.want {
				if got[a] != d {
					t.Fatalf("delta %s = %d, want %d", a, got[a], d)
				}
			}
		})
	}
	if len(ledger.Kinds()) != 7 {
		t.Fatalf("kinds = %v", ledger.Kinds())
	}
}

var _ ledger.Source = (store.Store)(nil)
