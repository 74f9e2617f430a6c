package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-ledger/internal/shared/httpx"
	"github.com/radieske/p2p-bet-ledger/pkg/contracts/events"
)

// BetReader é a leitura do estado em cache das apostas
type BetReader interface {
	EventBets(ctx context.Context, eventID string) ([]events.BetUpdate, error)
	Bet(ctx context.Context, eventID, betID string) (events.BetUpdate, bool, error)
}

// API expõe a leitura REST do feed e o endpoint WebSocket
type API struct {
	Log   *zap.Logger
	Cache BetReader
	WS    http.HandlerFunc // hub.HandleWS
}

// Router retorna o roteador HTTP com os endpoints REST e o /ws
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/feed/events/{id}/bets", a.listBets)       // estado em cache das apostas do evento
	r.Get("/v1/feed/events/{id}/bets/{betId}", a.getBet)   // estado em cache de uma aposta
	if a.WS != nil {
		r.Get("/ws", a.WS)
	}
	return r
}

func (a *API) listBets(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bets, err := a.Cache.EventBets(r.Context(), id)
	if err != nil {
		a.Log.Warn("feed cache read failed", zap.String("eventId", id), zap.Error(err))
		httpx.WriteJSON(w, http.StatusInternalServerError, httpx.ErrorResponse{Error: "cache unavailable"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bets)
}

func (a *API) getBet(w http.ResponseWriter, r *http.Request) {
	bet, ok, err := a.Cache.Bet(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "betId"))
	if err != nil {
		a.Log.Warn("feed cache read failed", zap.Error(err))
		httpx.WriteJSON(w, http.StatusInternalServerError, httpx.ErrorResponse{Error: "cache unavailable"})
		return
	}
	if !ok {
		httpx.WriteJSON(w, http.StatusNotFound, httpx.ErrorResponse{Error: "not found", Reason: "not_found"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bet)
}
