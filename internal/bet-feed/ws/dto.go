package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// EventID: obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type    string `json:"type"`    // subscribe | unsubscribe | ping
	EventID string `json:"eventId"` // requerido em subscribe/unsubscribe
}

// BetUpdate é o envelope enviado aos clientes inscritos no evento
type BetUpdate struct {
	EventID string `json:"eventId"`
	Payload any    `json:"payload"`
}
