package betting

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EventStatus é o estado do evento na máquina de liquidação
type EventStatus string

const (
	EventCreated        EventStatus = "created"
	EventAcceptingBets  EventStatus = "accepting_bets"
	EventClosed         EventStatus = "closed"
	EventLive           EventStatus = "live"
	EventStreamerVoting EventStatus = "streamer_voting"
	EventCompleted      EventStatus = "completed"
	EventCancelled      EventStatus = "cancelled"
)

// próximo passo da linha principal; completed só via Settle, cancelled só via Cancel
var nextStatus = map[EventStatus]EventStatus{
	EventCreated:       EventAcceptingBets,
	EventAcceptingBets: EventClosed,
	EventClosed:        EventLive,
	EventLive:          EventStreamerVoting,
}

func (s EventStatus) Valid() bool {
	switch s {
	case EventCreated, EventAcceptingBets, EventClosed, EventLive, EventStreamerVoting, EventCompleted, EventCancelled:
		return true
	}
	return false
}

// Terminal informa se o evento já foi concluído ou cancelado
func (s EventStatus) Terminal() bool { return s == EventCompleted || s == EventCancelled }

// Advance move o evento um passo adiante na linha principal
func (e *Event) Advance(to EventStatus) error {
	next, ok := nextStatus[e.Status]
	if !ok || next != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, to)
	}
	e.Status = to
	return nil
}

// AcceptsBets informa se BetBook.Place pode aceitar apostas agora
func (e *Event) AcceptsBets() bool { return e.Status == EventAcceptingBets }

// FeeScale é o número de casas decimais aceitas em fee_percent (NUMERIC(7,4))
const FeeScale = 4

// ValidateFee garante 0 <= fee < 100 com no máximo FeeScale casas decimais
func ValidateFee(fee decimal.Decimal) error {
	if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: fee_percent must be in [0, 100), got %s", ErrInvalidEvent, fee)
	}
	if !fee.Equal(fee.Round(FeeScale)) {
		return fmt.Errorf("%w: fee_percent accepts at most %d decimal places, got %s", ErrInvalidEvent, FeeScale, fee)
	}
	return nil
}

// Payout calcula o pagamento do vencedor de um par casado:
// floor(amount * 2 * (100 - fee) / 100). A sobra de arredondamento vira taxa.
func Payout(amountCents int64, feePercent decimal.Decimal) (payout, fee int64) {
	gross := decimal.NewFromInt(amountCents * 2)
	share := decimal.NewFromInt(100).Sub(feePercent)
	payout = gross.Mul(share).Div(decimal.NewFromInt(100)).Floor().IntPart()
	return payout, amountCents*2 - payout
}
