package events

// Resultado de um evento, consumido pelo settlement-worker no tópico "event_results"
type EventResult struct {
	EventID string `json:"event_id"`
	Outcome string `json:"outcome"` // "A" | "B" | "DRAW" | "CANCEL"
	Source  string `json:"source,omitempty"`
}

const OutcomeCancel = "CANCEL"
