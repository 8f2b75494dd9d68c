package api

import "time"

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type EnrollPinRequest struct {
	PIN string `json:"pin"`
}

type EnrollPinResponse struct {
	Status string `json:"status"`
}

type PinVerifyRequest struct {
	PIN string `json:"pin"`
}

type PinVerifyResponse struct {
	Verified  bool      `json:"verified"`
	PinToken  string    `json:"pinToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type SessionResponse struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	Wallet            string    `json:"wallet"`
	PerTxLimitINR     float64   `json:"perTxLimitInr"`
	DailyLimitINR     float64   `json:"dailyLimitInr"`
	RemainingTodayINR float64   `json:"remainingTodayInr"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

type CreateSessionRequest struct {
	Wallet        string  `json:"wallet"`
	DeviceID      string  `json:"deviceId"`
	SessionKey    string  `json:"sessionKey,omitempty"`
	PerTxLimitINR float64 `json:"perTxLimitInr"`
	DailyLimitINR float64 `json:"dailyLimitInr"`
	TTLMinutes    int64   `json:"ttlMinutes"`
}

type QuoteResponse struct {
	INR       string    `json:"inr"`
	Token     string    `json:"usdc"`
	Rate      string    `json:"rate"`
	Source    string    `json:"source"`
	AsOf      time.Time `json:"asOf"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type PaymentIntentCreateRequest struct {
	RecipientHandle string  `json:"recipientHandle"`
	INRAmount       float64 `json:"inrAmount"`
	Token           string  `json:"token"`
	Memo            string  `json:"memo,omitempty"`
}

type PaymentIntentCreateResponse struct {
	ID              string    `json:"id"`
	Wallet          string    `json:"wallet"`
	RecipientWallet string    `json:"recipientWallet"`
	INRAmount       string    `json:"inrAmount"`
	TokenAmount     string    `json:"tokenAmount"`
	Token           string    `json:"token"`
	QuoteExpiresAt  time.Time `json:"quoteExpiresAt"`
	Reference       string    `json:"reference"`
}

type ExecuteIntentRequest struct {
	PinToken         string `json:"pinToken"`
	SessionID        string `json:"sessionId"`
	SessionSignature string `json:"sessionSignature,omitempty"`
}

type ExecuteIntentResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Mode        string `json:"mode"`
	Signature   string `json:"signature"`
	ExplorerURL string `json:"explorerUrl"`
}

type PaymentIntentStatusResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Mode        string `json:"mode"`
	Signature   string `json:"signature,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// Terminal reports whether the intent will not change status again.
func (r *PaymentIntentStatusResponse) Terminal() bool {
	switch r.Status {
	case "submitted", "confirmed", "failed":
		return true
	}
	return false
}

type UpsertHandleRequest struct {
	Handle string `json:"handle"`
	Wallet string `json:"wallet"`
}

type HandleResponse struct {
	Handle string `json:"handle"`
	Wallet string `json:"wallet"`
}
