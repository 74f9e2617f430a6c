package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-ledger/internal/bet-service/dto"
	"github.com/radieske/p2p-bet-ledger/internal/betting"
	"github.com/radieske/p2p-bet-ledger/internal/shared/httpx"
)

// Book define as operações de eventos e apostas do engine usadas pela API
type Book interface {
	CreateEvent(ctx context.Context, sideALabel, sideBLabel string, feePercent decimal.Decimal) (*betting.Event, error)
	AdvanceEvent(ctx context.Context, eventID string, to betting.EventStatus) (*betting.Event, error)
	GetEvent(ctx context.Context, eventID string) (*betting.Event, error)
	ListEventBets(ctx context.Context, eventID string) ([]betting.Bet, error)
	SettleEvent(ctx context.Context, eventID string, winner betting.Winner) (*betting.Report, error)
	CancelEvent(ctx context.Context, eventID string) (*betting.Report, error)

	PlaceBet(ctx context.Context, eventID, userID string, side betting.Side, amountCents int64) (*betting.Bet, error)
	GetBet(ctx context.Context, betID string) (*betting.Bet, error)
	CancelBet(ctx context.Context, betID, userID string) ([]*betting.Bet, error)
}

type Server struct {
	log  *zap.Logger
	book Book
}

func NewServer(log *zap.Logger, book Book) *Server {
	return &Server{log: log, book: book}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Route("/v1/events", func(r chi.Router) {
		r.Post("/", s.createEvent)
		r.Get("/{id}", s.getEvent)
		r.Get("/{id}/bets", s.listBets)
		r.Post("/{id}/advance", s.advanceEvent)
		r.Post("/{id}/settle", s.settleEvent)
		r.Post("/{id}/cancel", s.cancelEvent)
	})
	r.Route("/v1/bets", func(r chi.Router) {
		r.Post("/", s.placeBet)
		r.Get("/{id}", s.getBet)
		r.Post("/{id}/cancel", s.cancelBet)
	})
	return r
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateEventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	ev, err := s.book.CreateEvent(r.Context(), req.SideALabel, req.SideBLabel, req.FeePercent)
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, ev)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.book.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ev)
}

func (s *Server) listBets(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bets, err := s.book.ListEventBets(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.EventBetsResponse{EventID: id, Bets: bets})
}

func (s *Server) advanceEvent(w http.ResponseWriter, r *http.Request) {
	var req dto.AdvanceEventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	ev, err := s.book.AdvanceEvent(r.Context(), chi.URLParam(r, "id"), betting.EventStatus(req.Status))
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ev)
}

// settleEvent é idempotente: repetir o mesmo vencedor devolve o relatório sem novos pagamentos
func (s *Server) settleEvent(w http.ResponseWriter, r *http.Request) {
	var req dto.SettleEventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	rep, err := s.book.SettleEvent(r.Context(), chi.URLParam(r, "id"), betting.Winner(req.Winner))
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rep)
}

func (s *Server) cancelEvent(w http.ResponseWriter, r *http.Request) {
	rep, err := s.book.CancelEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rep)
}

// placeBet debita o stake e tenta casar; a resposta já traz pending ou matched
func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	bet, err := s.book.PlaceBet(r.Context(), req.EventID, req.UserID, betting.Side(req.Side), req.AmountCents)
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, bet)
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	bet, err := s.book.GetBet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bet)
}

func (s *Server) cancelBet(w http.ResponseWriter, r *http.Request) {
	var req dto.CancelBetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	bets, err := s.book.CancelBet(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		httpx.WriteError(w, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.CancelBetResponse{Cancelled: bets})
}
