package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/radieske/p2p-bet-ledger/internal/betting"
)

// StatusError é uma resposta não-2xx do bet-service
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bet-service %s http %d: %s", e.Op, e.Status, e.Body)
}

// Retriable informa se vale tentar de novo: falha de rede, 5xx (inclui ledger halted) ou 429.
// 4xx é definitivo (evento inexistente, vencedor conflitante, estado inválido).
func Retriable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == http.StatusTooManyRequests
	}
	return err != nil
}

// Client chama a API de eventos do bet-service
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) Settle(ctx context.Context, eventID string, winner betting.Winner) (*betting.Report, error) {
	return c.post(ctx, "settle", eventID, map[string]string{"winner": string(winner)})
}

func (c *Client) Cancel(ctx context.Context, eventID string) (*betting.Report, error) {
	return c.post(ctx, "cancel", eventID, nil)
}

func (c *Client) post(ctx context.Context, op, eventID string, payload any) (*betting.Report, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	u := c.BaseURL + "/v1/events/" + url.PathEscape(eventID) + "/" + op
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, &StatusError{Op: op, Status: res.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	var out betting.Report
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s report: %w", op, err)
	}
	return &out, nil
}
