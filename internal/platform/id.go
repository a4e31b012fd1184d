package platform

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
const suffixLength = 10

// NewID returns a new resource UUID.
func NewID() string {
	return uuid.New().String()
}

// GenerateResourceName builds a derived resource name with a random suffix,
// e.g. "webserver-inline-x4k2p9qa1z" for an inline template.
func GenerateResourceName(base, kind string) string {
	b := make([]byte, suffixLength)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	for i := range b {
		b[i] = suffixAlphabet[b[i]%byte(len(suffixAlphabet))]
	}
	return fmt.Sprintf("%s-%s-%s", base, kind, string(b))
}
