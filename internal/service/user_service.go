package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stockledger/internal/domain"
)

// UserPatch изменения пользователя; nil — поле не меняется
type UserPatch struct {
	Name     *string
	Password *string
}

// AddUser creates an operator account. Admin only.
func (s *InventoryService) AddUser(ctx context.Context, actor domain.Actor, name, password, adminSecret string) (out *domain.User, err error) {
	defer s.observe("add_user", actor, &err)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "user name must not be empty")
	}
	if strings.TrimSpace(password) == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "password must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.policy.AuthorizeAdmin(actor, adminSecret); err != nil {
		return nil, err
	}
	if err := s.uniqueUserName(name, ""); err != nil {
		return nil, err
	}
	hashed, err := s.policy.Hasher().Hash(password)
	if err != nil {
		return nil, domain.Errorf(domain.KindInvalidInput, "password cannot be stored: %v", err)
	}

	u := domain.User{ID: uuid.NewString(), Name: name, Password: hashed}
	if err := s.repos.Users.Create(ctx, &u); err != nil {
		return nil, storeErr("add user", err)
	}
	s.users = append(s.users, u)
	s.version++

	s.log.WithFields(logrus.Fields{"actor": actor.ID, "user_id": u.ID}).Info("user added")
	return &u, nil
}

// UpdateUser renames a user and/or resets its password. Admin only.
func (s *InventoryService) UpdateUser(ctx context.Context, actor domain.Actor, id string, patch UserPatch, adminSecret string) (out *domain.User, err error) {
	defer s.observe("update_user", actor, &err)

	if err := requireField("user id", id); err != nil {
		return nil, err
	}
	var newName string
	if patch.Name != nil {
		if newName = strings.TrimSpace(*patch.Name); newName == "" {
			return nil, domain.Errorf(domain.KindInvalidInput, "user name must not be empty")
		}
	}
	if patch.Password != nil && strings.TrimSpace(*patch.Password) == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "password must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.policy.AuthorizeAdmin(actor, adminSecret); err != nil {
		return nil, err
	}
	i := s.activeUserIndex(id)
	if i < 0 {
		return nil, domain.Errorf(domain.KindNotFound, "user %q not found", id)
	}

	u := s.users[i]
	changed := false
	if patch.Name != nil && newName != u.Name {
		if err := s.uniqueUserName(newName, id); err != nil {
			return nil, err
		}
		u.Name = newName
		changed = true
	}
	if patch.Password != nil && !s.policy.Hasher().Verify(*patch.Password, u.Password) {
		hashed, err := s.policy.Hasher().Hash(*patch.Password)
		if err != nil {
			return nil, domain.Errorf(domain.KindInvalidInput, "password cannot be stored: %v", err)
		}
		u.Password = hashed
		changed = true
	}
	if !changed {
		return nil, domain.Errorf(domain.KindNoChanges, "user already has these values")
	}

	if err := s.repos.Users.Update(ctx, &u); err != nil {
		return nil, storeErr("update user", err)
	}
	s.users[i] = u
	s.version++

	s.log.WithFields(logrus.Fields{"actor": actor.ID, "user_id": u.ID}).Info("user updated")
	return &u, nil
}

// DeleteUser soft-deletes a user, keeping at least one active user. Admin only.
func (s *InventoryService) DeleteUser(ctx context.Context, actor domain.Actor, id, adminSecret string) (err error) {
	defer s.observe("delete_user", actor, &err)

	if err := requireField("user id", id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.policy.AuthorizeAdmin(actor, adminSecret); err != nil {
		return err
	}
	i := s.activeUserIndex(id)
	if i < 0 {
		return domain.Errorf(domain.KindNotFound, "user %q not found", id)
	}
	active := 0
	for _, u := range s.users {
		if !u.IsDeleted {
			active++
		}
	}
	if active <= 1 {
		return domain.Errorf(domain.KindLastUser, "at least one active user must remain")
	}

	u := s.users[i]
	u.IsDeleted = true
	if err := s.repos.Users.Update(ctx, &u); err != nil {
		return storeErr("delete user", err)
	}
	s.users[i] = u
	s.version++
	s.dropSessions(u.ID)

	s.log.WithFields(logrus.Fields{"actor": actor.ID, "user_id": u.ID}).Info("user deleted")
	return nil
}

func (s *InventoryService) uniqueUserName(name, selfID string) error {
	for _, u := range s.users {
		if u.IsDeleted || u.ID == selfID {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(u.Name), name) {
			return domain.Errorf(domain.KindDuplicateName, "a user named %q already exists", u.Name)
		}
	}
	return nil
}
