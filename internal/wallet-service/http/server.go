package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-ledger/internal/ledger"
	"github.com/radieske/p2p-bet-ledger/internal/shared/httpx"
	"github.com/radieske/p2p-bet-ledger/internal/wallet-service/dto"
)

// Wallet define as operações do engine usadas pelo handler HTTP
type Wallet interface {
	GetBalance(ctx context.Context, accountID string) (int64, error)
	Deposit(ctx context.Context, userID string, amountCents int64, metadata map[string]any) (*ledger.Transaction, error)
	Withdraw(ctx context.Context, userID string, amountCents int64, metadata map[string]any) (*ledger.Transaction, error)
	Transfer(ctx context.Context, fromUserID, toUserID string, amountCents int64, metadata map[string]any) (*ledger.Transaction, error)
	LogActivity(ctx context.Context, userID, kind string, metadata map[string]any) (*ledger.Transaction, error)
	GetTransactionHistory(ctx context.Context, accountID string, limit int) ([]ledger.Transaction, error)

	VerifyLedger(ctx context.Context) (ledger.Report, error)
	ResumeLedger(ctx context.Context, operator string) (*ledger.Transaction, error)
	Halted(ctx context.Context) (bool, string, error)
}

// Server expõe endpoints HTTP para operações de carteira (wallet) e auditoria do ledger
type Server struct {
	log    *zap.Logger
	wallet Wallet
}

// NewServer instancia o servidor HTTP de wallet
func NewServer(log *zap.Logger, wallet Wallet) *Server { return &Server{log: log, wallet: wallet} }

// Router retorna o roteador HTTP com as rotas da API de wallet
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Route("/v1/wallets", func(r chi.Router) {
		r.Post("/deposit", s.deposit)
		r.Post("/withdraw", s.withdraw)
		r.Post("/transfer", s.transfer)
		r.Get("/{accountId}/balance", s.balance)           // aceita contas do sistema (escrow:..., platform:fees)
		r.Get("/{accountId}/transactions", s.transactions) // ?limit=
	})
	r.Post("/v1/activity", s.activity)
	r.Route("/v1/admin/ledger", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Post("/verify", s.verify)
		r.Post("/resume", s.resume)
	})
	return r
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	acc := chi.URLParam(r, "accountId")
	cents, err := s.wallet.GetBalance(r.Context(), acc)
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.BalanceResponse{AccountID: acc, BalanceCents: cents})
}

func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	acc := chi.URLParam(r, "accountId")
	limit := 0 // engine aplica o default
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpx.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	txns, err := s.wallet.GetTransactionHistory(r.Context(), acc, limit)
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.HistoryResponse{AccountID: acc, Transactions: txns})
}

// deposit credita saldo ao usuário
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	txn, err := s.wallet.Deposit(r.Context(), req.UserID, req.AmountCents, req.Metadata)
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	s.writeTransaction(w, r, http.StatusCreated, txn, req.UserID)
}

// withdraw debita saldo; saldo insuficiente vira 409
func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req dto.WithdrawRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	txn, err := s.wallet.Withdraw(r.Context(), req.UserID, req.AmountCents, req.Metadata)
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	s.writeTransaction(w, r, http.StatusCreated, txn, req.UserID)
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	var req dto.TransferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	txn, err := s.wallet.Transfer(r.Context(), req.FromUserID, req.ToUserID, req.AmountCents, req.Metadata)
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	s.writeTransaction(w, r, http.StatusCreated, txn, req.FromUserID)
}

// activity registra uma entrada de auditoria sem movimentar saldo
func (s *Server) activity(w http.ResponseWriter, r *http.Request) {
	var req dto.ActivityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	txn, err := s.wallet.LogActivity(r.Context(), req.UserID, req.Kind, req.Metadata)
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, dto.TransactionResponse{Transaction: txn})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	halted, reason, err := s.wallet.Halted(r.Context())
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.LedgerStatusResponse{Halted: halted, HaltReason: reason})
}

// verify roda a verificação completa; cadeia quebrada responde 200 com valid=false
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	rep, err := s.wallet.VerifyLedger(r.Context())
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rep)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	var req dto.ResumeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if req.Operator == "" {
		httpx.BadRequest(w, "operator required")
		return
	}
	txn, err := s.wallet.ResumeLedger(r.Context(), req.Operator)
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.TransactionResponse{Transaction: txn})
}

// writeTransaction anexa o saldo atual do usuário; falha na leitura só omite o campo
func (s *Server) writeTransaction(w http.ResponseWriter, r *http.Request, status int, txn *ledger.Transaction, userID string) {
	resp := dto.TransactionResponse{Transaction: txn}
	if bal, err := s.wallet.GetBalance(r.Context(), userID); err == nil {
		resp.BalanceCents = &bal
	} else {
		s.log.Warn("balance after write", zap.String("userId", userID), zap.Error(err))
	}
	httpx.WriteJSON(w, status, resp)
}
