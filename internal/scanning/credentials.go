package scanning

import (
	"errors"
	"math/rand/v2"
	"strings"
)

// ErrNoCredentials is returned when a credential pool would be empty
var ErrNoCredentials = errors.New("no backend credentials configured")

// CredentialSelector picks an index in [0, n) for each backend call
type CredentialSelector interface {
	Select(n int) int
}

// RandomSelector picks uniformly at random. It is safe for concurrent use.
type RandomSelector struct{}

func (RandomSelector) Select(n int) int {
	return rand.IntN(n)
}

// FixedSelector always picks the same index, wrapped to the pool size
type FixedSelector int

func (f FixedSelector) Select(n int) int {
	i := int(f) % n
	if i < 0 {
		i += n
	}
	return i
}

// CredentialPool is a read-only set of interchangeable backend keys
type CredentialPool struct {
	keys []string
}

// NewCredentialPool builds a pool, dropping blank entries. Key format is not validated.
func NewCredentialPool(keys []string) (*CredentialPool, error) {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrNoCredentials
	}
	return &CredentialPool{keys: cleaned}, nil
}

// ParseCredentialPool builds a pool from a comma-separated list
func ParseCredentialPool(list string) (*CredentialPool, error) {
	return NewCredentialPool(strings.Split(list, ","))
}

// Len returns the number of keys
func (p *CredentialPool) Len() int {
	return len(p.keys)
}

// Keys returns a copy of the keys
func (p *CredentialPool) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Pick returns the key chosen by sel
func (p *CredentialPool) Pick(sel CredentialSelector) string {
	return p.keys[sel.Select(len(p.keys))]
}
