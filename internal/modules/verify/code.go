package verify

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GenerateCode returns a 6-digit numeric one-time code. Codes are scoped to
// the single request they are attached to and relayed verbally between
// customer and mechanic, so uniqueness beyond that request is not required.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// CodeMatches compares a submitted code against the stored one. The caller
// is responsible for clearing the stored code on a match.
func CodeMatches(stored, submitted string) bool {
	return stored != "" && stored == submitted
}
