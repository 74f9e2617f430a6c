package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-ledger/internal/engine"
)

const maxBody = 1 << 20

// ErrorResponse é o corpo padrão de erro das APIs
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// WriteJSON serializa a resposta em JSON e define o status HTTP
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// BadRequest responde 400 com a mensagem informada
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Reason: "validation"})
}

// WriteError traduz o erro do engine para status HTTP.
// Erros internos não vazam a mensagem para o cliente.
func WriteError(w http.ResponseWriter, log *zap.Logger, err error) {
	reason := engine.RejectReason(err)
	status := StatusFor(reason)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		WriteJSON(w, status, ErrorResponse{Error: "internal error", Reason: reason})
		return
	}
	WriteJSON(w, status, ErrorResponse{Error: err.Error(), Reason: reason})
}

func StatusFor(reason string) int {
	switch reason {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "insufficient_funds", "state", "integrity":
		return http.StatusConflict
	case "halted", "canceled":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// DecodeJSON lê o corpo (limitado a 1MiB) e rejeita campos desconhecidos
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty body")
		}
		return fmt.Errorf("bad json: %w", err)
	}
	return nil
}
