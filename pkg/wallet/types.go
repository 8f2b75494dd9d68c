package wallet

import "time"

// Wallet is the public face of an imported keypair. The secret stays in KeyVault.
type Wallet struct {
	Address   string    `json:"address"`
	Label     string    `json:"label"`
	Handle    string    `json:"handle,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the explicitly owned context for one active wallet. It is built on
// import or switch and torn down on disconnect.
type Session struct {
	Wallet Wallet
	UserID string
}
