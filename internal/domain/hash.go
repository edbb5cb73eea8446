package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHashPolicy computes a stable hash over raw file bytes. The hash is
// always recomputed at index time; a stored mtime alone is never trusted to
// produce one.
type ContentHashPolicy interface {
	Compute(data []byte) string
}

type sha256HashPolicy struct{}

// NewContentHashPolicy creates the default SHA-256 policy.
func NewContentHashPolicy() ContentHashPolicy {
	return &sha256HashPolicy{}
}

func (p *sha256HashPolicy) Compute(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
