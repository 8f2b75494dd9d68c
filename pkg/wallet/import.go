package wallet

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ParseSecretKey accepts a bracketed numeric array ("[1,2,...]"), a comma
// separated list ("1,2,...") or a base58 string. 64-byte secrets must carry a
// matching public half; 32-byte inputs are treated as a seed.
func ParseSecretKey(raw string) (solana.PrivateKey, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidKeyFormat)
	}

	var (
		b   []byte
		err error
	)
	switch {
	case strings.HasPrefix(s, "["):
		if !strings.HasSuffix(s, "]") {
			return nil, fmt.Errorf("%w: unterminated array", ErrInvalidKeyFormat)
		}
		b, err = parseByteList(s[1 : len(s)-1])
	case strings.Contains(s, ","):
		b, err = parseByteList(s)
	default:
		b, err = base58.Decode(s)
		if err != nil {
			err = fmt.Errorf("%w: not base58: %v", ErrInvalidKeyFormat, err)
		}
	}
	if err != nil {
		return nil, err
	}
	return keyFromBytes(b)
}

func parseByteList(s string) ([]byte, error) {
	parts := strings.Split(s, ",")
	out := make([]byte, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" && i == len(parts)-1 && i > 0 {
			break
		}
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d %q is not a byte", ErrInvalidKeyFormat, i, p)
		}
		out = append(out, byte(n))
	}
	return out, nil
}

func keyFromBytes(b []byte) (solana.PrivateKey, error) {
	switch len(b) {
	case ed25519.SeedSize:
		return solana.PrivateKey(ed25519.NewKeyFromSeed(b)), nil
	case ed25519.PrivateKeySize:
		derived := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
		if !bytes.Equal(derived[ed25519.SeedSize:], b[ed25519.SeedSize:]) {
			return nil, fmt.Errorf("%w: public key does not match secret", ErrInvalidKeyFormat)
		}
		return solana.PrivateKey(append([]byte(nil), b...)), nil
	default:
		return nil, fmt.Errorf("%w: expected 32 or 64 bytes, got %d", ErrInvalidKeyFormat, len(b))
	}
}
