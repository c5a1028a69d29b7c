package secure

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// tokenBytes gives 256 bits of entropy per token.
const tokenBytes = 32

// Token returns a base64-url encoded (unpadded) random string.
// Used for API tokens, OAuth state nonces and mock authorization codes.
func Token() (string, error) {
	data := make([]byte, tokenBytes)
	if _, err := rand.Read(data); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

const alnum = "abcdefghijklmnopqrstuvwxyz0123456789"

// LowerAlnum returns n random characters from [a-z0-9].
func LowerAlnum(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alnum)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random index: %w", err)
		}
		out[i] = alnum[idx.Int64()]
	}
	return string(out), nil
}
