package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-ledger/internal/ledger"
	"github.com/radieske/p2p-bet-ledger/internal/store"
)

// GetBalance retorna o saldo confirmado da conta (cache primeiro, depois storage)
func (e *Engine) GetBalance(ctx context.Context, accountID string) (int64, error) {
	if strings.TrimSpace(accountID) == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAccount)
	}
	acc := ledger.AccountID(accountID)

	if e.cache != nil {
		cents, ok, err := e.cache.Get(ctx, acc)
		if err == nil && ok {
			return cents, nil
		}
		if err != nil {
			e.log.Warn("balance cache get failed", zap.String("account", accountID), zap.Error(err))
		}
	}

	cents, err := e.store.Balance(ctx, acc)
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	if e.cache != nil {
		if err := e.cache.Fill(ctx, acc, cents); err != nil {
			e.log.Warn("balance cache fill failed", zap.String("account", accountID), zap.Error(err))
		}
	}
	return cents, nil
}

func (e *Engine) Deposit(ctx context.Context, userID string, amountCents int64, metadata map[string]any) (*ledger.Transaction, error) {
	acc, err := userAccount(userID)
	if err != nil {
		return nil, err
	}
	return e.appendOne(ctx, "deposit", ledger.Entry{
		To:          acc.Ptr(),
		AmountCents: amountCents,
		Kind:        ledger.KindDeposit,
		Payload:     metadataPayload(metadata),
	})
}

func (e *Engine) Withdraw(ctx context.Context, userID string, amountCents int64, metadata map[string]any) (*ledger.Transaction, error) {
	acc, err := userAccount(userID)
	if err != nil {
		return nil, err
	}
	return e.appendOne(ctx, "withdraw", ledger.Entry{
		From:        acc.Ptr(),
		AmountCents: amountCents,
		Kind:        ledger.KindWithdrawal,
		Payload:     metadataPayload(metadata),
	})
}

// Transfer move saldo entre dois usuários
func (e *Engine) Transfer(ctx context.Context, fromUserID, toUserID string, amountCents int64, metadata map[string]any) (*ledger.Transaction, error) {
	from, err := userAccount(fromUserID)
	if err != nil {
		return nil, err
	}
	to, err := userAccount(toUserID)
	if err != nil {
		return nil, err
	}
	if amountCents == 0 {
		return nil, fmt.Errorf("%w: transfer of zero", ledger.ErrInvalidAmount)
	}
	return e.appendOne(ctx, "transfer", ledger.Entry{
		From:        from.Ptr(),
		To:          to.Ptr(),
		AmountCents: amountCents,
		Kind:        ledger.KindTransfer,
		Payload:     metadataPayload(metadata),
	})
}

// LogActivity grava um evento de auditoria sem efeito de saldo (login, cadastro, ação de admin)
func (e *Engine) LogActivity(ctx context.Context, userID, kind string, metadata map[string]any) (*ledger.Transaction, error) {
	acc, err := userAccount(userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(kind) == "" {
		return nil, fmt.Errorf("%w: activity kind is required", ledger.ErrInvalidEntry)
	}
	return e.appendOne(ctx, "log_activity", ledger.Entry{
		From:    acc.Ptr(),
		Kind:    ledger.KindActivityLog,
		Payload: activityPayload(kind, metadata),
	})
}

// GetTransactionHistory lista as transações da conta, da mais recente para a mais antiga
func (e *Engine) GetTransactionHistory(ctx context.Context, accountID string, limit int) ([]ledger.Transaction, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAccount)
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	txs, err := e.store.History(ctx, ledger.AccountID(accountID), limit)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	return txs, nil
}

func (e *Engine) appendOne(ctx context.Context, op string, entry ledger.Entry) (*ledger.Transaction, error) {
	var out *ledger.Transaction
	err := e.write(ctx, op, func(tx store.Tx) error {
		t, err := e.ledger.Append(ctx, tx, entry)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func metadataPayload(metadata map[string]any) any {
	if len(metadata) == 0 {
		return nil
	}
	return map[string]any{"metadata": metadata}
}

func activityPayload(kind string, metadata map[string]any) map[string]any {
	p := map[string]any{"activity": kind}
	if len(metadata) > 0 {
		p["metadata"] = metadata
	}
	return p
}
