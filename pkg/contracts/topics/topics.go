package topics

const (
	// Ledger
	LedgerTransactions = "ledger_transactions"
	IntegrityAlerts    = "ledger_integrity_alerts"

	// Bets
	BetUpdates = "bet_updates"

	// Resultados de eventos (entrada do settlement-worker)
	EventResults = "event_results"

	// DLQs
	EventResultsDLQ = "event_results_dlq"
)
