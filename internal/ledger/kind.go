package ledger

// Kind é o tipo fechado de transação do ledger
type Kind string

const (
	KindDeposit     Kind = "deposit"
	KindWithdrawal  Kind = "withdrawal"
	KindTransfer    Kind = "transfer"
	KindBetPlace    Kind = "bet_place"
	KindSettleWin   Kind = "bet_match_settle_win"
	KindBetRefund   Kind = "bet_refund"
	KindActivityLog Kind = "activity_log"
)

// effect descreve o efeito de um Kind sobre os saldos.
// needFrom/needTo indicam se a conta correspondente é obrigatória.
type effect struct {
	debitFrom bool
	creditTo  bool
	needFrom  bool
	needTo    bool
}

// tabela única de débito/crédito; nenhum outro lugar decide efeito de saldo
var effects = map[Kind]effect{
	KindDeposit:     {creditTo: true, needTo: true},
	KindWithdrawal:  {debitFrom: true, needFrom: true},
	KindTransfer:    {debitFrom: true, creditTo: true, needFrom: true, needTo: true},
	KindBetPlace:    {debitFrom: true, creditTo: true, needFrom: true},
	KindSettleWin:   {debitFrom: true, creditTo: true, needTo: true},
	KindBetRefund:   {debitFrom: true, creditTo: true, needTo: true},
	KindActivityLog: {},
}

// Valid informa se o Kind pertence ao conjunto conhecido
func (k Kind) Valid() bool {
	_, ok := effects[k]
	return ok
}

// Debits informa se o Kind debita a conta de origem
func (k Kind) Debits() bool { return effects[k].debitFrom }

// Credits informa se o Kind credita a conta de destino
func (k Kind) Credits() bool { return effects[k].creditTo }

// Kinds retorna todos os tipos conhecidos, em ordem estável
func Kinds() []Kind {
	return []Kind{KindDeposit, KindWithdrawal, KindTransfer, KindBetPlace, KindSettleWin, KindBetRefund, KindActivityLog}
}

// Deltas aplica a tabela de efeitos e devolve a variação por conta.
// Contas ausentes (nil) não recebem variação.
func Deltas(k Kind, from, to *AccountID, amount int64) map[AccountID]int64 {
	eff := effects[k]
	out := make(map[AccountID]int64, 2)
	if eff.debitFrom && from != nil {
		out[*from] -= amount
	}
	if eff.creditTo && to != nil {
		out[*to] += amount
	}
	return out
}
