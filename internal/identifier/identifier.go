// Package identifier produces the human-facing order codes and invoice
// numbers. Both formats are an external contract and must stay stable:
//
//	order code:     ORD-XXXX-XXXX (restricted uppercase alphanumerics)
//	invoice number: 10 digits, timestamp-derived prefix + random suffix
package identifier

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// orderCodeAlphabet omits easily confused characters (0/O, 1/I/L).
const orderCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const orderCodeGroupLen = 4

// Generator creates order codes and invoice numbers. Uniqueness is enforced
// at the data layer; a collision here is retried by the caller, never
// silently accepted.
type Generator struct {
	now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// NewGeneratorWithClock is used by tests that pin the timestamp prefix.
func NewGeneratorWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// OrderCode returns a code like ORD-AC23-233E. The token carries no
// sequential or guessable structure.
func (g *Generator) OrderCode() (string, error) {
	first, err := randomToken(orderCodeGroupLen)
	if err != nil {
		return "", err
	}
	second, err := randomToken(orderCodeGroupLen)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%s", first, second), nil
}

// InvoiceNumber returns a 10-digit numeric string: the last six digits of the
// unix timestamp followed by four random digits, so two invoices generated in
// the same tick still differ with overwhelming probability.
func (g *Generator) InvoiceNumber() (string, error) {
	prefix := g.now().Unix() % 1000000

	suffix, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("failed to draw invoice suffix: %w", err)
	}

	return fmt.Sprintf("%06d%04d", prefix, suffix.Int64()), nil
}

// PaymentReference returns the opaque reference a payment session is keyed
// by. 16 characters from the same restricted alphabet keeps it URL-safe.
func (g *Generator) PaymentReference() (string, error) {
	token, err := randomToken(16)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("pay-%s", token), nil
}

func randomToken(length int) (string, error) {
	max := big.NewInt(int64(len(orderCodeAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to draw random character: %w", err)
		}
		out[i] = orderCodeAlphabet[n.Int64()]
	}
	return string(out), nil
}
