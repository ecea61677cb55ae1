// Package auth реализует двухуровневую проверку доступа: администратор
// с общим секретом и именованные пользователи со своими паролями.
package auth

import (
	"strings"

	"github.com/pkg/errors"

	"stockledger/internal/domain"
)

// AdminName отображаемое имя администратора
const AdminName = "Administrator"

// UserFinder ищет активного пользователя по ID
type UserFinder func(id string) (domain.User, bool)

// Policy проверяет учётные данные и секреты каждой мутации
type Policy struct {
	hasher    Hasher
	adminHash string
}

// NewPolicy hashes the admin secret once with hasher.
func NewPolicy(adminSecret string, hasher Hasher) (*Policy, error) {
	if adminSecret == "" {
		return nil, errors.New("admin secret must not be empty")
	}
	h, err := hasher.Hash(adminSecret)
	if err != nil {
		return nil, err
	}
	return &Policy{hasher: hasher, adminHash: h}, nil
}

// Hasher returns the hasher used for stored user passwords.
func (p *Policy) Hasher() Hasher { return p.hasher }

// Login resolves credentials into an actor. Exactly one branch must be supplied.
func (p *Policy) Login(creds domain.Credentials, find UserFinder) (domain.Actor, error) {
	admin := creds.AdminPassword != ""
	user := creds.UserID != "" || creds.Password != ""
	switch {
	case admin && user, !admin && !user:
		return domain.Actor{}, domain.Errorf(domain.KindInvalidCredentials, "provide either the admin password or a user id with password")
	case admin:
		if !p.hasher.Verify(creds.AdminPassword, p.adminHash) {
			return domain.Actor{}, domain.Errorf(domain.KindAuthentication, "admin password is incorrect")
		}
		return domain.Actor{ID: domain.AdminID, Name: AdminName, Role: domain.RoleAdmin}, nil
	}

	if strings.TrimSpace(creds.UserID) == "" || creds.Password == "" {
		return domain.Actor{}, domain.Errorf(domain.KindInvalidCredentials, "user id and password are both required")
	}
	u, ok := find(creds.UserID)
	if !ok || !p.hasher.Verify(creds.Password, u.Password) {
		return domain.Actor{}, domain.Errorf(domain.KindAuthentication, "user name or password is incorrect")
	}
	return domain.Actor{ID: u.ID, Name: u.Name, Role: domain.RoleUser}, nil
}

// AuthorizeAdmin requires the admin role and a matching admin secret.
func (p *Policy) AuthorizeAdmin(actor domain.Actor, secret string) error {
	if actor.ID == "" {
		return errLoginRequired
	}
	if !actor.IsAdmin() {
		return domain.Errorf(domain.KindAuthorization, "only the administrator may perform this operation")
	}
	if !p.hasher.Verify(secret, p.adminHash) {
		return domain.Errorf(domain.KindAuthentication, "admin password is incorrect")
	}
	return nil
}

// AuthorizeTransaction checks that actor may post a transaction declared by userID.
// A non-admin may only post as itself, and must re-enter its own password.
func (p *Policy) AuthorizeTransaction(actor domain.Actor, userID, secret string, find UserFinder) error {
	if actor.ID == "" {
		return errLoginRequired
	}
	if actor.IsAdmin() {
		if !p.hasher.Verify(secret, p.adminHash) {
			return domain.Errorf(domain.KindAuthentication, "admin password for this transaction is incorrect")
		}
		return nil
	}
	if actor.ID != userID {
		return domain.Errorf(domain.KindAuthorization, "you may not record transactions for another user")
	}
	u, ok := find(userID)
	if !ok || !p.hasher.Verify(secret, u.Password) {
		return domain.Errorf(domain.KindAuthentication, "your password is incorrect")
	}
	return nil
}

var errLoginRequired = domain.Errorf(domain.KindAuthentication, "login required")
