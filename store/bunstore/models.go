package bunstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/MrEthical07/stateauth"
	"github.com/MrEthical07/stateauth/session"
)

type userModel struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID                  string    `bun:"id,pk"`
	Username            string    `bun:"username,notnull,unique"`
	PasswordHash        string    `bun:"password_hash,notnull"`
	SecondFactorEnabled bool      `bun:"two_factor_enabled,notnull"`
	SecondFactorSecret  string    `bun:"two_factor_secret,notnull"`
	CreatedAt           time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt           time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func (m *userModel) toUser() *stateauth.User {
	return &stateauth.User{
		ID:                  m.ID,
		Username:            m.Username,
		PasswordHash:        m.PasswordHash,
		SecondFactorEnabled: m.SecondFactorEnabled,
		SecondFactorSecret:  m.SecondFactorSecret,
	}
}

type sessionModel struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`

	ID                 string     `bun:"id,pk"`
	UserID             string     `bun:"user_id,notnull"`
	State              string     `bun:"state,notnull,unique"`
	ExpiresAt          *time.Time `bun:"expires_at"`
	LastSecondFactorAt *time.Time `bun:"last_second_factor_at"`
	ClientIP           string     `bun:"client_ip,notnull"`
	UserAgent          string     `bun:"user_agent,notnull"`
	Device             string     `bun:"device,notnull"`
	CreatedAt          time.Time  `bun:"created_at,notnull"`
}

func fromSession(s *session.Session) *sessionModel {
	m := &sessionModel{
		ID:        s.ID,
		UserID:    s.UserID,
		State:     s.State,
		ClientIP:  s.Metadata.ClientIP,
		UserAgent: s.Metadata.UserAgent,
		Device:    s.Metadata.Device,
		CreatedAt: s.CreatedAt.UTC(),
	}
	if s.ExpiresAt != nil {
		t := s.ExpiresAt.UTC()
		m.ExpiresAt = &t
	}
	if s.LastSecondFactorAt != nil {
		t := s.LastSecondFactorAt.UTC()
		m.LastSecondFactorAt = &t
	}
	return m
}

func (m *sessionModel) toSession() *session.Session {
	s := &session.Session{
		ID:     m.ID,
		UserID: m.UserID,
		State:  m.State,
		Metadata: session.Metadata{
			ClientIP:  m.ClientIP,
			UserAgent: m.UserAgent,
			Device:    m.Device,
		},
		CreatedAt: m.CreatedAt,
	}
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		s.ExpiresAt = &t
	}
	if m.LastSecondFactorAt != nil {
		t := *m.LastSecondFactorAt
		s.LastSecondFactorAt = &t
	}
	return s
}
