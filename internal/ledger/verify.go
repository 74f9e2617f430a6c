package ledger

import (
	"context"
	"fmt"
	"sort"
)

const verifyBatch = 500

// Source é a visão somente-leitura que o verificador precisa
type Source interface {
	Transactions(ctx context.Context, afterSeq int64, limit int) ([]Transaction, error)
	Balances(ctx context.Context) (map[AccountID]int64, error)
}

// Report é o resultado de uma verificação completa
type Report struct {
	Valid             bool        `json:"valid"`
	BrokenAtSequence  *int64      `json:"brokenAtSequence,omitempty"`
	Reason            string      `json:"reason,omitempty"`
	Checked           int64       `json:"checked"`
	BalanceMismatches []AccountID `json:"balanceMismatches,omitempty"`
}

// Verify reexecuta o ledger em ordem de sequence_no, recalculando cada hash
// e o encadeamento, e compara os saldos materializados com o replay.
// Não altera estado.
func Verify(ctx context.Context, src Source) (Report, error) {
	var (
		rep     Report
		lastSeq int64
		prev    = GenesisHash
		replay  = NewReplayer()
	)

	for {
		batch, err := src.Transactions(ctx, lastSeq, verifyBatch)
		if err != nil {
			return Report{}, fmt.Errorf("load transactions after %d: %w", lastSeq, err)
		}
		for i := range batch {
			t := &batch[i]
			expected := lastSeq + 1
			if reason := checkEntry(t, expected, prev); reason != "" {
				rep.BrokenAtSequence = &expected
				rep.Reason = reason
				return rep, nil
			}
			replay.Apply(t)
			rep.Checked++
			lastSeq = t.Sequence
			prev = t.Hash
		}
		if len(batch) < verifyBatch {
			break
		}
	}

	stored, err := src.Balances(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load balances: %w", err)
	}
	rep.BalanceMismatches = diffBalances(stored, replay.Balances())
	if len(rep.BalanceMismatches) > 0 {
		rep.Reason = "materialized balances diverge from ledger replay"
		return rep, nil
	}

	rep.Valid = true
	return rep, nil
}

func checkEntry(t *Transaction, expected int64, prev string) string {
	if t.Sequence != expected {
		return fmt.Sprintf("sequence gap: expected %d, got %d", expected, t.Sequence)
	}
	if t.PreviousHash != prev {
		return fmt.Sprintf("previous_hash mismatch: expected %s, got %s", prev, t.PreviousHash)
	}
	if want := NextHash(t.PreviousHash, t.Fields()); t.Hash != want {
		return fmt.Sprintf("hash mismatch: expected %s, got %s", want, t.Hash)
	}
	return ""
}

func diffBalances(stored, replayed map[AccountID]int64) []AccountID {
	var out []AccountID
	for acc, b := range stored {
		if b != replayed[acc] {
			out = append(out, acc)
		}
	}
	for acc := range replayed {
		if _, ok := stored[acc]; !ok {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
