package session

import (
	"errors"
	"strconv"
	"time"
)

// Redis hash field names.
const (
	fieldUserID             = "uid"
	fieldState              = "state"
	fieldExpiresAt          = "exp"
	fieldLastSecondFactorAt = "l2f"
	fieldClientIP           = "ip"
	fieldUserAgent          = "ua"
	fieldDevice             = "dev"
	fieldCreatedAt          = "cat"
)

var errMissingField = errors.New("session hash missing required field")

// Encode flattens a session into Redis hash field/value pairs. Timestamps are
// unix milliseconds; absent optional timestamps are omitted.
func Encode(s *Session) (map[string]any, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	if s.UserID == "" || s.State == "" {
		return nil, errMissingField
	}

	fields := map[string]any{
		fieldUserID:    s.UserID,
		fieldState:     s.State,
		fieldClientIP:  s.Metadata.ClientIP,
		fieldUserAgent: s.Metadata.UserAgent,
		fieldDevice:    s.Metadata.Device,
		fieldCreatedAt: strconv.FormatInt(s.CreatedAt.UnixMilli(), 10),
	}
	if s.ExpiresAt != nil {
		fields[fieldExpiresAt] = strconv.FormatInt(s.ExpiresAt.UnixMilli(), 10)
	}
	if s.LastSecondFactorAt != nil {
		fields[fieldLastSecondFactorAt] = strconv.FormatInt(s.LastSecondFactorAt.UnixMilli(), 10)
	}
	return fields, nil
}

// Decode rebuilds a session from the result of HGETALL.
func Decode(id string, fields map[string]string) (*Session, error) {
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	uid := fields[fieldUserID]
	state := fields[fieldState]
	if uid == "" || state == "" {
		return nil, errMissingField
	}

	createdAt, err := parseMillis(fields[fieldCreatedAt])
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:     id,
		UserID: uid,
		State:  state,
		Metadata: Metadata{
			ClientIP:  fields[fieldClientIP],
			UserAgent: fields[fieldUserAgent],
			Device:    fields[fieldDevice],
		},
	}
	if createdAt != nil {
		s.CreatedAt = *createdAt
	}

	if s.ExpiresAt, err = parseMillis(fields[fieldExpiresAt]); err != nil {
		return nil, err
	}
	if s.LastSecondFactorAt, err = parseMillis(fields[fieldLastSecondFactorAt]); err != nil {
		return nil, err
	}
	return s, nil
}

func parseMillis(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.New("invalid session timestamp")
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}
