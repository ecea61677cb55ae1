package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stockledger/internal/domain"
)

// Login checks credentials and opens a session.
func (s *InventoryService) Login(ctx context.Context, creds domain.Credentials) (sess *domain.Session, err error) {
	defer s.observe("login", domain.Actor{ID: creds.UserID}, &err)

	s.mu.RLock()
	actor, err := s.policy.Login(creds, s.findActiveUser)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	out := domain.Session{Token: uuid.NewString(), Actor: actor, CreatedAt: time.Now().UTC()}
	s.sessMu.Lock()
	s.sessions[out.Token] = out
	s.sessMu.Unlock()

	s.log.WithFields(logrus.Fields{"actor": actor.ID, "role": actor.Role}).Info("session opened")
	return &out, nil
}

// Logout ends the session identified by token.
func (s *InventoryService) Logout(ctx context.Context, token string) error {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return domain.Errorf(domain.KindAuthentication, "session not found")
	}
	delete(s.sessions, token)
	s.log.WithField("actor", sess.Actor.ID).Info("session closed")
	return nil
}

// Session resolves a token issued by Login.
func (s *InventoryService) Session(token string) (domain.Session, error) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return domain.Session{}, domain.Errorf(domain.KindAuthentication, "login required")
	}
	return sess, nil
}

// dropSessions ends every session of the given actor.
func (s *InventoryService) dropSessions(actorID string) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	for token, sess := range s.sessions {
		if sess.Actor.ID == actorID {
			delete(s.sessions, token)
		}
	}
}
