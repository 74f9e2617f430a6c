package events

import "time"

// Alerta publicado pelo ledger-auditor quando a verificação falha
type IntegrityAlert struct {
	BrokenAtSequence  *int64    `json:"broken_at_sequence,omitempty"`
	Reason            string    `json:"reason"`
	Checked           int64     `json:"checked"`
	BalanceMismatches []string  `json:"balance_mismatches,omitempty"`
	DetectedAt        time.Time `json:"detected_at"`
}
