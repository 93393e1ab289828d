package users

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/plans"
)

var userRowColumns = []string{"id", "clerk_id", "email", "first_name", "last_name", "university", "plan_type", "created_at", "updated_at"}

func TestGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u1", "user_2abc", "ana@example.ro", "Ana", nil, "UBB", "Bronze", now, now))

	u, err := NewPostgresStore(db).Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "user_2abc", u.ClerkID)
	assert.Equal(t, plans.TierBronze, u.PlanType)
	assert.Equal(t, "", u.LastName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByClerkIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE clerk_id = \\$1").
		WithArgs("user_missing").
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err = NewPostgresStore(db).GetByClerkID(context.Background(), "user_missing")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, CodeUserNotFound, apperrors.CodeOf(err))
}

func TestEnsureUserCreatesBasic(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO users .+ ON CONFLICT \\(clerk_id\\)").
		WithArgs(sqlmock.AnyArg(), "user_new", "new@example.ro", plans.TierBasic).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u9", "user_new", "new@example.ro", nil, nil, nil, "Basic", now, now))

	u, err := NewPostgresStore(db).EnsureUser(context.Background(), "user_new", "new@example.ro")
	require.NoError(t, err)
	assert.Equal(t, "u9", u.ID)
	assert.Equal(t, plans.TierBasic, u.PlanType)
}

func TestSetPlanType(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectExec("UPDATE users SET plan_type").
		WithArgs("u1", plans.TierGold).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.SetPlanType(context.Background(), "u1", plans.TierGold))

	mock.ExpectExec("UPDATE users SET plan_type").
		WithArgs("ghost", plans.TierGold).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = store.SetPlanType(context.Background(), "ghost", plans.TierGold)
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
