package auth

import (
	"crypto/subtle"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// Verifier проверяет секрет против сохранённого значения
type Verifier interface {
	Verify(secret, stored string) bool
}

// Hasher превращает секрет в значение для хранения и проверяет его
type Hasher interface {
	Verifier
	Hash(secret string) (string, error)
}

const (
	SchemePlain  = "plain"
	SchemeBcrypt = "bcrypt"
)

// NewHasher returns the hasher for a configured scheme name.
func NewHasher(scheme string) (Hasher, error) {
	switch scheme {
	case SchemePlain, "":
		return PlainHasher{}, nil
	case SchemeBcrypt:
		return BcryptHasher{Cost: bcrypt.DefaultCost}, nil
	default:
		return nil, errors.Errorf("unknown password scheme %q", scheme)
	}
}

// PlainHasher хранит секрет как есть; сравнение за постоянное время
type PlainHasher struct{}

func (PlainHasher) Hash(secret string) (string, error) { return secret, nil }

func (PlainHasher) Verify(secret, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), []byte(stored)) == 1
}

// BcryptHasher хранит bcrypt-хэш
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(secret string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", errors.Wrap(err, "bcrypt hash")
	}
	return string(b), nil
}

func (BcryptHasher) Verify(secret, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(secret)) == nil
}
