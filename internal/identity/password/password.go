// Package password implements bcrypt-based credential hashing.
package password

import (
	"fmt"

	"github.com/bissquit/user-service/internal/identity"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
)

// MaxBytes is the longest password bcrypt accepts, measured after normalization.
const MaxBytes = 72

// DefaultCost is used when no cost is configured.
const DefaultCost = bcrypt.DefaultCost

// Hasher hashes and verifies passwords with bcrypt.
type Hasher struct {
	cost  int
	dummy []byte
}

// NewHasher creates a hasher with the given bcrypt cost.
func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: bcrypt cost %d outside [%d, %d]",
			identity.ErrHashing, cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	// Compared against on logins for unknown emails.
	dummy, err := bcrypt.GenerateFromPassword([]byte("user-service-timing-equalizer"), cost)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", identity.ErrHashing, err)
	}

	return &Hasher{cost: cost, dummy: dummy}, nil
}

// Cost returns the configured bcrypt cost.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns a salted bcrypt hash of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	normalized := normalize(plain)
	if len(normalized) > MaxBytes {
		return "", fmt.Errorf("%w: %d bytes, max %d", identity.ErrPasswordTooLong, len(normalized), MaxBytes)
	}

	hash, err := bcrypt.GenerateFromPassword(normalized, h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %w", identity.ErrHashing, err)
	}
	return string(hash), nil
}

// Verify reports whether plain matches hash. A malformed hash yields false,
// and so does any plain longer than MaxBytes, since Hash never accepts one.
func (h *Hasher) Verify(plain, hash string) bool {
	normalized := normalize(plain)
	if len(normalized) > MaxBytes {
		_ = bcrypt.CompareHashAndPassword(h.dummy, normalized[:MaxBytes])
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), normalized) == nil
}

// VerifyDummy performs a comparison at the configured cost against a hash no
// password matches. The result is always discarded. Hashes stored at another
// cost take a different time to compare until NeedsRehash upgrades them.
func (h *Hasher) VerifyDummy(plain string) {
	normalized := normalize(plain)
	if len(normalized) > MaxBytes {
		normalized = normalized[:MaxBytes]
	}
	_ = bcrypt.CompareHashAndPassword(h.dummy, normalized)
}

// NeedsRehash reports whether hash was produced with a cost other than the
// configured one. A malformed hash yields false.
func (h *Hasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return cost != h.cost
}

func normalize(plain string) []byte {
	return norm.NFC.Bytes([]byte(plain))
}
