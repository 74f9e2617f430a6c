package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/radieske/p2p-bet-ledger/internal/betting"
	"github.com/radieske/p2p-bet-ledger/internal/ledger"
	"github.com/radieske/p2p-bet-ledger/internal/store"
	"github.com/radieske/p2p-bet-ledger/internal/store/memory"
)

var testLimits = betting.Limits{MinCents: 100, MaxCents: 10_000_00}

// relógio que avança 1ms a cada leitura
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func newEngine(t *testing.T, opts ...func(*Options)) (*Engine, *memory.Store) {
	t.Helper()
	st := memory.New()
	clock := &stepClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	o := Options{
		Limits:  testLimits,
		Metrics: NewMetrics(prometheus.NewRegistry()),
		Clock:   clock.Now,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return New(st, o), st
}

func openEvent(t *testing.T, e *Engine, fee string) *betting.Event {
	t.Helper()
	ctx := context.Background()
	ev, err := e.CreateEvent(ctx, "Team A", "Team B", decimal.RequireFromString(fee))
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if _, err := e.AdvanceEvent(ctx, ev.ID, betting.EventAcceptingBets); err != nil {
		t.Fatalf("open event: %v", err)
	}
	return ev
}

func toVoting(t *testing.T, e *Engine, eventID string) {
	t.Helper()
	for _, st := range []betting.EventStatus{betting.EventClosed, betting.EventLive, betting.EventStreamerVoting} {
		if _, err := e.AdvanceEvent(context.Background(), eventID, st); err != nil {
			t.Fatalf("advance to %s: %v", st, err)
		}
	}
}

func mustDeposit(t *testing.T, e *Engine, user string, cents int64) {
	t.Helper()
	if _, err := e.Deposit(context.Background(), user, cents, nil); err != nil {
		t.Fatalf("deposit %s: %v", user, err)
	}
}

func mustPlace(t *testing.T, e *Engine, eventID, user string, side betting.Side, cents int64) *betting.Bet {
	t.Helper()
	b, err := e.PlaceBet(context.Background(), eventID, user, side, cents)
	if err != nil {
		t.Fatalf("place %s %s %d: %v", user, side, cents, err)
	}
	return b
}

func balance(t *testing.T, e *Engine, acc string) int64 {
	t.Helper()
	b, err := e.GetBalance(context.Background(), acc)
	if err != nil {
		t.Fatalf("balance %s: %v", acc, err)
	}
	return b
}

func betStatus(t *testing.T, e *Engine, id string) betting.BetStatus {
	t.Helper()
	b, err := e.GetBet(context.Background(), id)
	if err != nil {
		t.Fatalf("get bet %s: %v", id, err)
	}
	return b.Status
}

func mustVerify(t *testing.T, e *Engine) {
	t.Helper()
	rep, err := e.VerifyLedger(context.Background())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !rep.Valid {
		t.Fatalf("ledger invalid: %+v", rep)
	}
}

// checkConservation confere os invariantes de valor a partir do ledger e das apostas
func checkConservation(t *testing.T, st *memory.Store, eventIDs ...string) {
	t.Helper()
	ctx := context.Background()

	txs, _ := st.Transactions(ctx, 0, 0)
	var deposits, withdrawals int64
	for _, tx := range txs {
		switch tx.Kind {
		case ledger.KindDeposit:
			deposits += tx.AmountCents
		case ledger.KindWithdrawal:
			withdrawals += tx.AmountCents
		}
	}

	balances, _ := st.Balances(ctx)
	var total, users int64
	for acc, b := range balances {
		if b < 0 {
			t.Errorf("negative balance %s=%d", acc, b)
		}
		total += b
		if !acc.IsSystem() {
			users += b
		}
	}
	if total != deposits-withdrawals {
		t.Errorf("sum of balances = %d, want deposits-withdrawals = %d", total, deposits-withdrawals)
	}

	var held int64
	for _, id := range eventIDs {
		bets, _ := st.EventBets(ctx, id)
		var eventHeld int64
		for _, b := range bets {
			if !b.Status.Terminal() {
				eventHeld += b.AmountCents
			}
		}
		if got := balances[ledger.EscrowAccount(id)]; got != eventHeld {
			t.Errorf("escrow %s = %d, want held stakes %d", id, got, eventHeld)
		}
		held += eventHeld
	}
	fees := balances[ledger.FeeAccount]
	if users+held != deposits-withdrawals-fees {
		t.Errorf("users %d + held %d != deposits %d - withdrawals %d - fees %d", users, held, deposits, withdrawals, fees)
	}
}

func TestScenarios(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)
	ev := openEvent(t, e, "10")

	// A
	mustDeposit(t, e, "u1", 100_00)
	if got := balance(t, e, "u1"); got != 100_00 {
		t.Fatalf("A: balance u1 = %d, want 10000", got)
	}

	// B
	b1 := mustPlace(t, e, ev.ID, "u1", betting.SideA, 50_00)
	if b1.Status != betting.BetPending {
		t.Fatalf("B: status = %s, want pending", b1.Status)
	}
	if got := balance(t, e, "u1"); got != 50_00 {
		t.Fatalf("B: balance u1 = %d, want 5000", got)
	}

	// C
	mustDeposit(t, e, "u2", 100_00)
	b2 := mustPlace(t, e, ev.ID, "u2", betting.SideB, 50_00)
	if b2.Status != betting.BetMatched || betStatus(t, e, b1.ID) != betting.BetMatched {
		t.Fatalf("C: bets not matched: b1=%s b2=%s", betStatus(t, e, b1.ID), b2.Status)
	}
	if *b2.CounterpartyBetID != b1.ID {
		t.Fatalf("C: counterparty = %s, want %s", *b2.CounterpartyBetID, b1.ID)
	}
	if got := balance(t, e, "u1"); got != 50_00 {
		t.Fatalf("C: balance u1 = %d", got)
	}
	if got := balance(t, e, "u2"); got != 50_00 {
		t.Fatalf("C: balance u2 = %d", got)
	}

	// E (antes do settle, num segundo evento)
	ev2 := openEvent(t, e, "10")
	mustDeposit(t, e, "u3", 30_00)
	b3 := mustPlace(t, e, ev2.ID, "u3", betting.SideA, 20_00)
	if _, err := e.CancelEvent(ctx, ev2.ID); err != nil {
		t.Fatalf("E: cancel: %v", err)
	}
	if got := betStatus(t, e, b3.ID); got != betting.BetRefunded {
		t.Fatalf("E: status = %s, want refunded", got)
	}
	if got := balance(t, e, "u3"); got != 30_00 {
		t.Fatalf("E: balance u3 = %d, want 3000", got)
	}

	// D
	toVoting(t, e, ev.ID)
	rep, err := e.SettleEvent(ctx, ev.ID, betting.WinnerA)
	if err != nil {
		t.Fatalf("D: settle: %v", err)
	}
	if len(rep.PaidBets) != 1 || rep.PaidBets[0] != b1.ID {
		t.Fatalf("D: paid = %v", rep.PaidBets)
	}
	if betStatus(t, e, b1.ID) != betting.BetWon || betStatus(t, e, b2.ID) != betting.BetLost {
		t.Fatalf("D: statuses b1=%s b2=%s", betStatus(t, e, b1.ID), betStatus(t, e, b2.ID))
	}
	if got := balance(t, e, "u1"); got != 140_00 {
		t.Fatalf("D: balance u1 = %d, want 14000", got)
	}
	if got := balance(t, e, "u2"); got != 50_00 {
		t.Fatalf("D: balance u2 = %d, want 5000", got)
	}
	if got := balance(t, e, string(ledger.FeeAccount)); got != 10_00 {
		t.Fatalf("D: fees = %d, want 1000", got)
	}

	checkConservation(t, st, ev.ID, ev2.ID)
	mustVerify(t, e)
}

func TestPlaceBetRejections(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)
	ev := openEvent(t, e, "5")
	mustDeposit(t, e, "u1", 10_00)

	closed, err := e.CreateEvent(ctx, "x", "y", decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		eventID string
		user    string
		side    betting.Side
		amount  int64
		want    error
	}{
		{"insufficient funds", ev.ID, "u1", betting.SideA, 20_00, ledger.ErrInsufficientFunds},
		{"below min", ev.ID, "u1", betting.SideA, 99, betting.ErrAmountOutOfRange},
		{"above max", ev.ID, "u1", betting.SideA, testLimits.MaxCents + 1, betting.ErrAmountOutOfRange},
		{"event not open", closed.ID, "u1", betting.SideA, 5_00, betting.ErrEventNotAcceptingBets},
		{"unknown event", "nope", "u1", betting.SideA, 5_00, betting.ErrEventNotFound},
		{"bad side", ev.ID, "u1", betting.Side("C"), 5_00, betting.ErrInvalidSide},
		{"reserved account", ev.ID, string(ledger.FeeAccount), betting.SideA, 5_00, ErrInvalidAccount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before, _ := st.Transactions(ctx, 0, 0)
			_, err := e.PlaceBet(ctx, tc.eventID, tc.user, tc.side, tc.amount)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			after, _ := st.Transactions(ctx, 0, 0)
			if len(after) != len(before) {
				t.Fatalf("rejected placement appended %d transactions", len(after)-len(before))
			}
			if got := balance(t, e, "u1"); got != 10_00 {
				t.Fatalf("balance changed to %d", got)
			}
		})
	}

	bets, _ := e.ListEventBets(ctx, ev.ID)
	if len(bets) != 0 {
		t.Fatalf("rejected placements created %d bets", len(bets))
	}
}

func TestMatchingFIFO(t *testing.T) {
	e, st := newEngine(t)
	ev := openEvent(t, e, "0")
	for _, u := range []string{"p1", "p2", "p3", "p4", "p5"} {
		mustDeposit(t, e, u, 100_00)
	}

	p1 := mustPlace(t, e, ev.ID, "p1", betting.SideA, 10_00)
	p2 := mustPlace(t, e, ev.ID, "p2", betting.SideA, 10_00)
	other := mustPlace(t, e, ev.ID, "p5", betting.SideA, 20_00)

	p3 := mustPlace(t, e, ev.ID, "p3", betting.SideB, 10_00)
	if p3.Status != betting.BetMatched || *p3.CounterpartyBetID != p1.ID {
		t.Fatalf("p3 should match oldest p1, got %s/%v", p3.Status, p3.CounterpartyBetID)
	}
	p4 := mustPlace(t, e, ev.ID, "p4", betting.SideB, 10_00)
	if p4.Status != betting.BetMatched || *p4.CounterpartyBetID != p2.ID {
		t.Fatalf("p4 should match p2, got %s/%v", p4.Status, p4.CounterpartyBetID)
	}
	if got := betStatus(t, e, other.ID); got != betting.BetPending {
		t.Fatalf("different amount must stay pending, got %s", got)
	}
	checkConservation(t, st, ev.ID)
}

func TestMatchingSkipsOwnBets(t *testing.T) {
	e, _ := newEngine(t)
	ev := openEvent(t, e, "0")
	mustDeposit(t, e, "u1", 100_00)
	mustDeposit(t, e, "u2", 100_00)

	a := mustPlace(t, e, ev.ID, "u1", betting.SideA, 10_00)
	b := mustPlace(t, e, ev.ID, "u1", betting.SideB, 10_00)
	if b.Status != betting.BetPending {
		t.Fatalf("user matched against own bet")
	}
	c := mustPlace(t, e, ev.ID, "u2", betting.SideB, 10_00)
	if *c.CounterpartyBetID != a.ID {
		t.Fatalf("u2 should match u1's side A bet")
	}
}

func TestSettleIdempotent(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)
	ev := openEvent(t, e, "10")
	mustDeposit(t, e, "u1", 50_00)
	mustDeposit(t, e, "u2", 50_00)
	mustPlace(t, e, ev.ID, "u1", betting.SideA, 50_00)
	mustPlace(t, e, ev.ID, "u2", betting.SideB, 50_00)
	toVoting(t, e, ev.ID)

	first, err := e.SettleEvent(ctx, ev.ID, betting.WinnerB)
	if err != nil {
		t.Fatal(err)
	}
	if first.Replayed {
		t.Fatalf("first settle marked as replay")
	}
	before, _ := st.Transactions(ctx, 0, 0)

	rep, err := e.SettleEvent(ctx, ev.ID, betting.WinnerB)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if len(rep.PaidBets) != 0 || rep.PaidCents != 0 || !rep.Replayed {
		t.Fatalf("second settle paid again: %+v", rep)
	}
	if got := testutil.ToFloat64(e.metrics.settlements.WithLabelValues("B")); got != 1 {
		t.Fatalf("event_settlements_total{outcome=B} = %v, want 1", got)
	}
	after, _ := st.Transactions(ctx, 0, 0)
	if len(after) != len(before) {
		t.Fatalf("second settle appended %d transactions", len(after)-len(before))
	}
	if got := balance(t, e, "u2"); got != 90_00 {
		t.Fatalf("winner balance = %d, want 9000", got)
	}

	if _, err := e.SettleEvent(ctx, ev.ID, betting.WinnerA); !errors.Is(err, betting.ErrWinnerConflict) {
		t.Fatalf("different winner: err = %v", err)
	}
	checkConservation(t, st, ev.ID)
}

func TestSettleDraw(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)
	ev := openEvent(t, e, "10")
	mustDeposit(t, e, "u1", 50_00)
	mustDeposit(t, e, "u2", 50_00)
	mustDeposit(t, e, "u3", 50_00)
	a := mustPlace(t, e, ev.ID, "u1", betting.SideA, 30_00)
	b := mustPlace(t, e, ev.ID, "u2", betting.SideB, 30_00)
	c := mustPlace(t, e, ev.ID, "u3", betting.SideB, 10_00)
	toVoting(t, e, ev.ID)

	rep, err := e.SettleEvent(ctx, ev.ID, betting.WinnerDraw)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.RefundedBets) != 3 || rep.FeeCents != 0 {
		t.Fatalf("draw report: %+v", rep)
	}
	for _, id := range []string{a.ID, b.ID, c.ID} {
		if got := betStatus(t, e, id); got != betting.BetRefunded {
			t.Fatalf("bet %s = %s, want refunded", id, got)
		}
	}
	for _, u := range []string{"u1", "u2", "u3"} {
		if got := balance(t, e, u); got != 50_00 {
			t.Fatalf("%s balance = %d, want 5000", u, got)
		}
	}
	checkConservation(t, st, ev.ID)
}

func TestSettleRequiresVoting(t *testing.T) {
	e, _ := newEngine(t)
	ev := openEvent(t, e, "0")
	if _, err := e.SettleEvent(context.Background(), ev.ID, betting.WinnerA); !errors.Is(err, betting.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if _, err := e.SettleEvent(context.Background(), ev.ID, betting.Winner("X")); !errors.Is(err, betting.ErrInvalidWinner) {
		t.Fatalf("err = %v, want ErrInvalidWinner", err)
	}
}

func TestCancelEvent(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)
	ev := openEvent(t, e, "10")
	mustDeposit(t, e, "u1", 50_00)
	mustDeposit(t, e, "u2", 50_00)
	mustPlace(t, e, ev.ID, "u1", betting.SideA, 20_00)
	mustPlace(t, e, ev.ID, "u2", betting.SideB, 20_00)
	mustPlace(t, e, ev.ID, "u2", betting.SideB, 5_00)
	toVoting(t, e, ev.ID)

	rep, err := e.CancelEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status != betting.EventCancelled || len(rep.RefundedBets) != 3 || rep.RefundedCents != 45_00 {
		t.Fatalf("cancel report: %+v", rep)
	}
	if balance(t, e, "u1") != 50_00 || balance(t, e, "u2") != 50_00 {
		t.Fatalf("stakes not fully refunded")
	}
	if _, err := e.CancelEvent(ctx, ev.ID); !errors.Is(err, betting.ErrInvalidTransition) {
		t.Fatalf("cancel twice: err = %v", err)
	}
	if _, err := e.SettleEvent(ctx, ev.ID, betting.WinnerA); !errors.Is(err, betting.ErrInvalidTransition) {
		t.Fatalf("settle after cancel: err = %v", err)
	}
	checkConservation(t, st, ev.ID)
}

func TestCancelBet(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)
	ev := openEvent(t, e, "0")
	mustDeposit(t, e, "u1", 50_00)
	mustDeposit(t, e, "u2", 50_00)

	pending := mustPlace(t, e, ev.ID, "u1", betting.SideA, 7_00)
	if _, err := e.CancelBet(ctx, pending.ID, "u2"); !errors.Is(err, betting.ErrNotBetOwner) {
		t.Fatalf("cancel by other user: err = %v", err)
	}
	got, err := e.CancelBet(ctx, pending.ID, "u1")
	if err != nil || len(got) != 1 || got[0].Status != betting.BetCancelled {
		t.Fatalf("cancel pending: %v %+v", err, got)
	}
	if balance(t, e, "u1") != 50_00 {
		t.Fatalf("pending stake not refunded")
	}
	if _, err := e.CancelBet(ctx, pending.ID, "u1"); !errors.Is(err, betting.ErrBetTerminal) {
		t.Fatalf("cancel twice: err = %v", err)
	}

	a := mustPlace(t, e, ev.ID, "u1", betting.SideA, 10_00)
	b := mustPlace(t, e, ev.ID, "u2", betting.SideB, 10_00)
	voided, err := e.CancelBet(ctx, b.ID, "u2")
	if err != nil || len(voided) != 2 {
		t.Fatalf("cancel matched: %v %+v", err, voided)
	}
	if betStatus(t, e, a.ID) != betting.BetCancelled {
		t.Fatalf("counterparty not voided")
	}
	if balance(t, e, "u1") != 50_00 || balance(t, e, "u2") != 50_00 {
		t.Fatalf("matched stakes not refunded")
	}

	c := mustPlace(t, e, ev.ID, "u1", betting.SideA, 10_00)
	if _, err := e.AdvanceEvent(ctx, ev.ID, betting.EventClosed); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AdvanceEvent(ctx, ev.ID, betting.EventLive); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CancelBet(ctx, c.ID, "u1"); !errors.Is(err, betting.ErrInvalidTransition) {
		t.Fatalf("cancel while live: err = %v", err)
	}
	checkConservation(t, st, ev.ID)
}

func TestWalletOperations(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)
	mustDeposit(t, e, "u1", 20_00)

	if _, err := e.Withdraw(ctx, "u1", 25_00, nil); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("overdraw: err = %v", err)
	}
	if _, err := e.Withdraw(ctx, "u1", 5_00, map[string]any{"rail": "pix"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Transfer(ctx, "u1", "u2", 10_00, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Transfer(ctx, "u1", "u2", 10_00, nil); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("transfer overdraw: err = %v", err)
	}
	if _, err := e.Transfer(ctx, "u1", "u1", 1_00, nil); !errors.Is(err, ledger.ErrInvalidEntry) {
		t.Fatalf("self transfer: err = %v", err)
	}
	if _, err := e.Deposit(ctx, "u1", 0, nil); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("zero deposit: err = %v", err)
	}
	if _, err := e.Deposit(ctx, "u1", -5, nil); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("negative deposit: err = %v", err)
	}
	if _, err := e.Deposit(ctx, "escrow:x", 5, nil); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("system deposit: err = %v", err)
	}

	act, err := e.LogActivity(ctx, "u1", "login", map[string]any{"ip": "10.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}
	if act.AmountCents != 0 || act.Kind != ledger.KindActivityLog {
		t.Fatalf("activity entry: %+v", act)
	}
	if _, err := e.LogActivity(ctx, "u1", "", nil); !errors.Is(err, ledger.ErrInvalidEntry) {
		t.Fatalf("empty activity: err = %v", err)
	}

	if balance(t, e, "u1") != 5_00 || balance(t, e, "u2") != 10_00 {
		t.Fatalf("balances u1=%d u2=%d", balance(t, e, "u1"), balance(t, e, "u2"))
	}

	hist, err := e.GetTransactionHistory(ctx, "u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	wantKinds := []ledger.Kind{ledger.KindActivityLog, ledger.KindTransfer, ledger.KindWithdrawal, ledger.KindDeposit}
	if len(hist) != len(wantKinds) {
		t.Fatalf("history len = %d, want %d", len(hist), len(wantKinds))
	}
	for i, k := range wantKinds {
		if hist[i].Kind != k {
			t.Fatalf("history[%d] = %s, want %s", i, hist[i].Kind, k)
		}
	}
	limited, _ := e.GetTransactionHistory(ctx, "u1", 2)
	if len(limited) != 2 || limited[0].Sequence != hist[0].Sequence {
		t.Fatalf("limited history: %+v", limited)
	}
	empty, _ := e.GetTransactionHistory(ctx, "ghost", 10)
	if empty == nil || len(empty) != 0 {
		t.Fatalf("history of unknown account should be empty, got %v", empty)
	}

	checkConservation(t, st)
	mustVerify(t, e)
}

func TestVerifyHaltsAndResumes(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)
	mustDeposit(t, e, "u1", 10_00)
	mustDeposit(t, e, "u2", 10_00)

	orig, _ := st.Transactions(ctx, 1, 1)
	st.Corrupt(2, func(tx *ledger.Transaction) { tx.AmountCents = 99_00 })

	rep, err := e.VerifyLedger(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Valid || rep.BrokenAtSequence == nil || *rep.BrokenAtSequence != 2 {
		t.Fatalf("report: %+v", rep)
	}
	if halted, _, _ := e.Halted(ctx); !halted {
		t.Fatalf("ledger should be halted")
	}
	if _, err := e.Deposit(ctx, "u1", 1_00, nil); !errors.Is(err, ledger.ErrLedgerHalted) {
		t.Fatalf("deposit while halted: err = %v", err)
	}
	if _, err := e.ResumeLedger(ctx, "ops"); !errors.Is(err, ErrLedgerStillBroken) {
		t.Fatalf("resume while broken: err = %v", err)
	}

	// remediação manual
	st.Corrupt(2, func(tx *ledger.Transaction) { tx.AmountCents = orig[0].AmountCents })
	act, err := e.ResumeLedger(ctx, "ops")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if act.Kind != ledger.KindActivityLog {
		t.Fatalf("resume entry kind = %s", act.Kind)
	}
	if _, err := e.Deposit(ctx, "u1", 1_00, nil); err != nil {
		t.Fatalf("deposit after resume: %v", err)
	}
	mustVerify(t, e)
}

func TestVerifyDetectsBalanceDrift(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)
	mustDeposit(t, e, "u1", 10_00)
	st.CorruptBalance("u1", 11_00)

	rep, err := e.VerifyLedger(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Valid || len(rep.BalanceMismatches) != 1 || rep.BalanceMismatches[0] != "u1" {
		t.Fatalf("report: %+v", rep)
	}
	if _, err := e.Deposit(ctx, "u2", 1_00, nil); !errors.Is(err, ledger.ErrLedgerHalted) {
		t.Fatalf("expected halt, err = %v", err)
	}
}

func TestConcurrentPlacements(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)
	ev := openEvent(t, e, "2.5")

	const users = 40
	for i := 0; i < users; i++ {
		mustDeposit(t, e, fmt.Sprintf("u%d", i), 100_00)
	}

	var wg sync.WaitGroup
	errs := make(chan error, users*3)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			side := betting.SideA
			if i%2 == 1 {
				side = betting.SideB
			}
			for j := 0; j < 3; j++ {
				if _, err := e.PlaceBet(ctx, ev.ID, fmt.Sprintf("u%d", i), side, int64(10_00*(j+1))); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("placement: %v", err)
	}

	bets, _ := e.ListEventBets(ctx, ev.ID)
	if len(bets) != users*3 {
		t.Fatalf("bets = %d, want %d", len(bets), users*3)
	}
	pairs := make(map[string]string)
	for _, b := range bets {
		if b.Status != betting.BetMatched {
			continue
		}
		pairs[b.ID] = *b.CounterpartyBetID
	}
	byID := make(map[string]betting.Bet, len(bets))
	for _, b := range bets {
		byID[b.ID] = b
	}
	for id, cp := range pairs {
		if pairs[cp] != id {
			t.Fatalf("bet %s matched to %s which points to %s", id, cp, pairs[cp])
		}
		if byID[id].Side == byID[cp].Side || byID[id].AmountCents != byID[cp].AmountCents {
			t.Fatalf("invalid pair %s/%s", id, cp)
		}
	}
	// lados balanceados com os mesmos valores: todos casam
	if len(pairs) != users*3 {
		t.Fatalf("matched = %d, want %d", len(pairs), users*3)
	}

	toVoting(t, e, ev.ID)
	if _, err := e.SettleEvent(ctx, ev.ID, betting.WinnerA); err != nil {
		t.Fatal(err)
	}
	checkConservation(t, st, ev.ID)
	mustVerify(t, e)
}

func TestEventStateMachine(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	ev, err := e.CreateEvent(ctx, "A", "B", decimal.RequireFromString("3"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.AdvanceEvent(ctx, ev.ID, betting.EventLive); !errors.Is(err, betting.ErrInvalidTransition) {
		t.Fatalf("skip ahead: err = %v", err)
	}
	if _, err := e.AdvanceEvent(ctx, ev.ID, betting.EventCompleted); !errors.Is(err, betting.ErrInvalidTransition) {
		t.Fatalf("advance to completed: err = %v", err)
	}
	if _, err := e.CreateEvent(ctx, "A", "B", decimal.NewFromInt(100)); !errors.Is(err, betting.ErrInvalidEvent) {
		t.Fatalf("fee 100: err = %v", err)
	}
	if _, err := e.CreateEvent(ctx, "", "B", decimal.Zero); !errors.Is(err, betting.ErrInvalidEvent) {
		t.Fatalf("empty label: err = %v", err)
	}
	got, err := e.GetEvent(ctx, ev.ID)
	if err != nil || got.Status != betting.EventCreated {
		t.Fatalf("get event: %v %+v", err, got)
	}
}

type fakePublisher struct {
	mu   sync.Mutex
	txns []ledger.Transaction
	bets []betting.Bet
}

func (p *fakePublisher) PublishTransactions(_ context.Context, txns []ledger.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txns = append(p.txns, txns...)
	return nil
}

func (p *fakePublisher) PublishBetUpdates(_ context.Context, bets []betting.Bet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bets = append(p.bets, bets...)
	return nil
}

type fakeCache struct {
	mu     sync.Mutex
	vals   map[ledger.AccountID]int64
	seq    int64
	gets   int
	putErr error
}

func (c *fakeCache) Get(_ context.Context, acc ledger.AccountID) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.vals[acc]
	return v, ok, nil
}

func (c *fakeCache) Fill(_ context.Context, acc ledger.AccountID, cents int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.vals[acc]; !ok {
		c.vals[acc] = cents
	}
	return nil
}

func (c *fakeCache) Put(_ context.Context, seq int64, balances map[ledger.AccountID]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return c.putErr
	}
	c.seq = seq
	for acc, b := range balances {
		c.vals[acc] = b
	}
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, accs ...ledger.AccountID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, acc := range accs {
		delete(c.vals, acc)
	}
	return nil
}

func TestPostCommitHooks(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	cache := &fakeCache{vals: make(map[ledger.AccountID]int64)}
	e, _ := newEngine(t, func(o *Options) {
		o.Publisher = pub
		o.Cache = cache
	})
	ev := openEvent(t, e, "0")
	mustDeposit(t, e, "u1", 10_00)
	mustDeposit(t, e, "u2", 10_00)
	mustPlace(t, e, ev.ID, "u1", betting.SideA, 5_00)
	mustPlace(t, e, ev.ID, "u2", betting.SideB, 5_00)

	// rejeitada: nada publicado
	_, _ = e.Withdraw(ctx, "u1", 99_00, nil)

	if len(pub.txns) != 4 {
		t.Fatalf("published txns = %d, want 4", len(pub.txns))
	}
	for i, tx := range pub.txns {
		if tx.Sequence != int64(i+1) {
			t.Fatalf("published out of order: %d at %d", tx.Sequence, i)
		}
	}
	// b1 pending, b2 pending->matched + b1 matched
	if len(pub.bets) != 3 || pub.bets[2].Status != betting.BetMatched {
		t.Fatalf("bet updates: %+v", pub.bets)
	}
	if cache.vals["u1"] != 5_00 || cache.vals[ledger.EscrowAccount(ev.ID)] != 10_00 || cache.seq != 4 {
		t.Fatalf("cache: %+v seq=%d", cache.vals, cache.seq)
	}
	if got := balance(t, e, "u2"); got != 5_00 {
		t.Fatalf("cached balance = %d", got)
	}
}

func TestCachePutFailureInvalidates(t *testing.T) {
	cache := &fakeCache{vals: make(map[ledger.AccountID]int64)}
	e, _ := newEngine(t, func(o *Options) { o.Cache = cache })

	mustDeposit(t, e, "u1", 10_00)
	if got := balance(t, e, "u1"); got != 10_00 {
		t.Fatalf("balance = %d", got)
	}

	cache.mu.Lock()
	cache.putErr = errors.New("redis down")
	cache.mu.Unlock()
	mustDeposit(t, e, "u1", 5_00)

	cache.mu.Lock()
	_, stale := cache.vals["u1"]
	cache.mu.Unlock()
	if stale {
		t.Fatalf("key kept the pre-commit balance after a failed put")
	}
	if got := balance(t, e, "u1"); got != 15_00 {
		t.Fatalf("balance after failed put = %d, want 1500", got)
	}
}

// blockingPublisher trava a primeira publicação até release ser fechado
type blockingPublisher struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *blockingPublisher) PublishTransactions(context.Context, []ledger.Transaction) error {
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.entered)
		<-p.release
	}
	return nil
}

func (p *blockingPublisher) PublishBetUpdates(context.Context, []betting.Bet) error { return nil }

func TestSlowPublisherDoesNotBlockCommits(t *testing.T) {
	ctx := context.Background()
	pub := &blockingPublisher{entered: make(chan struct{}), release: make(chan struct{})}
	e, st := newEngine(t, func(o *Options) { o.Publisher = pub })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = e.Deposit(ctx, "u1", 1_00, nil)
	}()
	<-pub.entered

	// com o primeiro publish travado, os próximos escritores continuam gravando
	users := []string{"u2", "u3", "u4"}
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, _ = e.Deposit(ctx, u, 2_00, nil)
		}(u)
	}
	deadline := time.Now().Add(2 * time.Second)
	for _, u := range users {
		for {
			if got, _ := st.Balance(ctx, ledger.AccountID(u)); got == 2_00 {
				break
			}
			if time.Now().After(deadline) {
				close(pub.release)
				t.Fatalf("deposit for %s did not commit while the first publish was blocked", u)
			}
			time.Sleep(time.Millisecond)
		}
	}
	close(pub.release)
	wg.Wait()
}

var _ store.Store = (*memory.Store)(nil)
