package blockchain

import (
	"net/url"
	"strconv"
)

// PaymentURI builds "solana:<address>?amount=<inr>&label=<label>". Zero amount
// and empty label are omitted.
func PaymentURI(address string, inrAmount float64, label string) string {
	q := url.Values{}
	if inrAmount > 0 {
		q.Set("amount", strconv.FormatFloat(inrAmount, 'f', -1, 64))
	}
	if label != "" {
		q.Set("label", label)
	}
	uri := "solana:" + address
	if enc := q.Encode(); enc != "" {
		uri += "?" + enc
	}
	return uri
}
