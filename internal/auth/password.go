package auth

import "golang.org/x/crypto/bcrypt"

// Hasher hashes passwords with bcrypt. The zero value uses DefaultCost.
type Hasher struct {
	Cost int
}

// Hash hashes a plaintext password.
func (h Hasher) Hash(pw string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	return string(b), err
}

// Compare checks a candidate plaintext password against a bcrypt hash.
func (h Hasher) Compare(hash, pw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
}
