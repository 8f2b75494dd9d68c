package resolver

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
)

const paymentURIScheme = "solana"

// Scanned is the decoded content of a QR code or pasted recipient string.
type Scanned struct {
	Recipient string
	Amount    float64
	HasAmount bool
	Label     string
	IsAddress bool
}

// ParseScanned accepts "solana:<address>?amount=&label=" URIs, bare addresses
// and handles in any of the "@name", "name" or "name@monopay.app" forms.
func ParseScanned(raw string) (Scanned, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Scanned{}, fmt.Errorf("empty recipient")
	}

	if strings.HasPrefix(strings.ToLower(s), paymentURIScheme+":") {
		return parsePaymentURI(s)
	}

	if IsAddress(s) {
		return Scanned{Recipient: s, IsAddress: true}, nil
	}

	handle, ok := NormalizeHandle(s)
	if !ok {
		return Scanned{}, fmt.Errorf("unrecognised recipient %q", s)
	}
	return Scanned{Recipient: handle}, nil
}

func parsePaymentURI(s string) (Scanned, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Scanned{}, fmt.Errorf("invalid payment URI: %w", err)
	}
	address := u.Opaque
	if address == "" {
		address = strings.TrimPrefix(u.Path, "/")
	}
	if !IsAddress(address) {
		return Scanned{}, fmt.Errorf("invalid address in payment URI: %q", address)
	}

	out := Scanned{Recipient: address, IsAddress: true}
	q := u.Query()
	if a := q.Get("amount"); a != "" {
		amount, err := strconv.ParseFloat(a, 64)
		if err != nil || amount <= 0 {
			return Scanned{}, fmt.Errorf("invalid amount %q in payment URI", a)
		}
		out.Amount = amount
		out.HasAmount = true
	}
	out.Label = q.Get("label")
	return out, nil
}

// IsAddress reports whether s decodes to a 32-byte ledger public key.
func IsAddress(s string) bool {
	_, err := solana.PublicKeyFromBase58(s)
	return err == nil
}
