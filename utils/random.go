package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// GenerateCode returns n random bytes as a lowercase hex string (2n chars).
// Used for pool seeds and per-draw secret keys, so it must come from the
// OS CSPRNG.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return hex.EncodeToString(byt), nil
}

// SecureIntn returns a uniform random int in [0, n) from crypto/rand.
// The prize-order shuffle must not be reproducible by an outside observer,
// so math/rand is off limits there.
func SecureIntn(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("invalid bound %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// SecureShuffle permutes items in place with a Fisher-Yates walk driven by
// crypto/rand.
func SecureShuffle(items []string) error {
	for i := len(items) - 1; i > 0; i-- {
		j, err := SecureIntn(i + 1)
		if err != nil {
			return err
		}
		items[i], items[j] = items[j], items[i]
	}
	return nil
}
