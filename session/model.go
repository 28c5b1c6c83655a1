package session

import "time"

// Device classes reported when the client sends no explicit device name.
const (
	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
)

// Metadata is the connection information captured when a session is created.
type Metadata struct {
	ClientIP  string
	UserAgent string
	Device    string
}

// DeviceFromHints derives the device label from client hints. An explicit
// device name wins; otherwise the mobile hint selects Mobile or Desktop.
func DeviceFromHints(mobileHint, deviceName string) string {
	if deviceName != "" {
		return deviceName
	}
	if mobileHint == "?1" {
		return DeviceMobile
	}
	return DeviceDesktop
}

// Session is a persisted login session.
//
// State is the opaque rotating value embedded in every issued token. A nil
// ExpiresAt marks a durable session; a non-nil one marks a session that is
// still pending second-factor verification.
type Session struct {
	ID                 string
	UserID             string
	State              string
	ExpiresAt          *time.Time
	LastSecondFactorAt *time.Time
	Metadata           Metadata
	CreatedAt          time.Time
}

// Pending reports whether the session is still in its time-bounded phase.
func (s *Session) Pending() bool {
	return s != nil && s.ExpiresAt != nil
}

// ExpiredAt reports whether a pending session has passed its deadline at now.
// Durable sessions never expire here.
func (s *Session) ExpiredAt(now time.Time) bool {
	if s == nil || s.ExpiresAt == nil {
		return false
	}
	return !now.Before(*s.ExpiresAt)
}

// Clone returns a deep copy so callers can hold results without sharing
// timestamp pointers with the repository.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		out.ExpiresAt = &t
	}
	if s.LastSecondFactorAt != nil {
		t := *s.LastSecondFactorAt
		out.LastSecondFactorAt = &t
	}
	return &out
}

// Criteria selects a session. Empty fields are ignored; at least one field
// must be set.
type Criteria struct {
	ID     string
	State  string
	UserID string
}

// Empty reports whether no field is set.
func (c Criteria) Empty() bool {
	return c.ID == "" && c.State == "" && c.UserID == ""
}

// Matches reports whether sess satisfies every non-empty field.
func (c Criteria) Matches(sess *Session) bool {
	if sess == nil {
		return false
	}
	if c.ID != "" && sess.ID != c.ID {
		return false
	}
	if c.State != "" && sess.State != c.State {
		return false
	}
	if c.UserID != "" && sess.UserID != c.UserID {
		return false
	}
	return true
}

// Mutation is a conditional update applied only while the stored state still
// equals ExpectedState. State is always replaced.
type Mutation struct {
	ExpectedState      string
	State              string
	ClearExpiresAt     bool
	LastSecondFactorAt *time.Time
}

// Apply returns a copy of sess with the mutation applied. Repositories that
// cannot express the update natively use it after their own state check.
func (m Mutation) Apply(sess *Session) *Session {
	out := sess.Clone()
	out.State = m.State
	if m.ClearExpiresAt {
		out.ExpiresAt = nil
	}
	if m.LastSecondFactorAt != nil {
		t := *m.LastSecondFactorAt
		out.LastSecondFactorAt = &t
	}
	return out
}
