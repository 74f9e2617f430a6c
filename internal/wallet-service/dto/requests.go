package dto

type DepositRequest struct {
	UserID      string         `json:"userId"`
	AmountCents int64          `json:"amount_cents"`
	Metadata    map[string]any `json:"metadata,omitempty"` // ex: referência do PSP
}

type WithdrawRequest struct {
	UserID      string         `json:"userId"`
	AmountCents int64          `json:"amount_cents"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type TransferRequest struct {
	FromUserID  string         `json:"fromUserId"`
	ToUserID    string         `json:"toUserId"`
	AmountCents int64          `json:"amount_cents"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type ActivityRequest struct {
	UserID   string         `json:"userId"`
	Kind     string         `json:"kind"` // ex: "login", "profile_update"
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ResumeRequest struct {
	Operator string `json:"operator"`
}
