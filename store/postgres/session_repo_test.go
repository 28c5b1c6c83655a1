package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/stateauth/session"
)

var sessionCols = []string{
	"id", "user_id", "state", "expires_at", "last_second_factor_at",
	"client_ip", "user_agent", "device", "created_at",
}

func sessionRow(id, state string, expiresAt *time.Time) *pgxmock.Rows {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return pgxmock.NewRows(sessionCols).
		AddRow(id, "u-1", state, expiresAt, (*time.Time)(nil), "10.0.0.1", "curl/8", session.DeviceDesktop, created)
}

func TestSessionRepository_Create(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		errMsg    string
	}{
		{
			name: "inserts session",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO sessions`).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate state maps to conflict",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO sessions`).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr: session.ErrStateConflict,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO sessions`).
					WillReturnError(errors.New("connection refused"))
			},
			errMsg: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewSessionRepository(mock)
			err = repo.Create(context.Background(), &session.Session{
				ID:        "s-1",
				UserID:    "u-1",
				State:     "state-1",
				CreatedAt: time.Now(),
			})

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.errMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			default:
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestSessionRepository_Find(t *testing.T) {
	deadline := time.Date(2026, 1, 2, 3, 9, 5, 0, time.UTC)

	t.Run("by state", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`WHERE state = \$1`).
			WithArgs("state-1").
			WillReturnRows(sessionRow("s-1", "state-1", &deadline))

		sess, err := NewSessionRepository(mock).FindByState(context.Background(), "state-1")
		require.NoError(t, err)
		assert.Equal(t, "s-1", sess.ID)
		assert.True(t, sess.Pending())
		assert.Equal(t, deadline, *sess.ExpiresAt)
		assert.Nil(t, sess.LastSecondFactorAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("combined criteria", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`WHERE id = \$1 AND state = \$2 AND user_id = \$3`).
			WithArgs("s-1", "state-1", "u-1").
			WillReturnRows(sessionRow("s-1", "state-1", nil))

		sess, err := NewSessionRepository(mock).Find(context.Background(),
			session.Criteria{ID: "s-1", State: "state-1", UserID: "u-1"})
		require.NoError(t, err)
		assert.False(t, sess.Pending())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM sessions`).WillReturnError(pgx.ErrNoRows)

		_, err = NewSessionRepository(mock).FindByID(context.Background(), "nope")
		require.ErrorIs(t, err, session.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty criteria never queries", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		_, err = NewSessionRepository(mock).Find(context.Background(), session.Criteria{})
		require.ErrorIs(t, err, session.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionRepository_CompareAndSwap(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC)
	promote := session.Mutation{
		ExpectedState:      "old",
		State:              "new",
		ClearExpiresAt:     true,
		LastSecondFactorAt: &now,
	}

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		wantState string
	}{
		{
			name: "expected state matches",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE sessions SET`).
					WithArgs("s-1", "old", "new", true, &now).
					WillReturnRows(sessionRow("s-1", "new", nil))
			},
			wantState: "new",
		},
		{
			name: "state moved on",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE sessions SET`).WillReturnError(pgx.ErrNoRows)
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs("s-1").
					WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
			},
			wantErr: session.ErrStateConflict,
		},
		{
			name: "session deleted",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE sessions SET`).WillReturnError(pgx.ErrNoRows)
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs("s-1").
					WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
			},
			wantErr: session.ErrNotFound,
		},
		{
			name: "new state collides",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE sessions SET`).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr: session.ErrStateConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setupMock(mock)

			sess, err := NewSessionRepository(mock).CompareAndSwap(context.Background(), "s-1", promote)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, sess)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantState, sess.State)
				assert.Nil(t, sess.ExpiresAt)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectExec(`DELETE FROM sessions WHERE expires_at IS NOT NULL`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := NewSessionRepository(mock).DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
