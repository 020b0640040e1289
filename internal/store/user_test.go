package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jjudge-oj/accountserver/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

const testUserID = "1b4e28ba-2fa1-41d2-883f-0016d3cca427"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewUserRepository(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "phone_number", "address", "created_at", "updated_at"})
}

func TestUserRepositoryGetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WithArgs(testUserID).
		WillReturnRows(userRows().AddRow(testUserID, "alice", "a@x.com", "$2a$10$hash", "555", "Main St", fixedNow, fixedNow))

	user, err := repo.GetByID(context.Background(), testUserID)
	require.NoError(t, err)
	require.Equal(t, "alice", user.Name)
	require.Equal(t, "$2a$10$hash", user.PasswordHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WithArgs(testUserID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), testUserID)
	require.ErrorIs(t, err, ErrNotFound)

	// Ids that are not uuids never reach the database.
	_, err = repo.GetByID(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByField(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE email = $1")).
		WithArgs("a@x.com").
		WillReturnRows(userRows().AddRow(testUserID, "alice", "a@x.com", "h", "", "", fixedNow, fixedNow))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE name = $1")).
		WithArgs("bob").
		WillReturnError(sql.ErrNoRows)

	user, err := repo.FindByField(context.Background(), FieldEmail, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, testUserID, user.ID)

	_, err = repo.FindByField(context.Background(), FieldName, "bob")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.FindByField(context.Background(), Field("password_hash"), "x")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(sqlmock.AnyArg(), "alice", "a@x.com", "h", "555", "Main St", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, err := repo.Create(context.Background(), types.User{
		Name:         "alice",
		Email:        "a@x.com",
		PasswordHash: "h",
		PhoneNumber:  "555",
		Address:      "Main St",
	})
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, fixedNow, user.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateUniqueViolation(t *testing.T) {
	cases := []struct {
		constraint string
		want       error
	}{
		{constraint: "users_email_key", want: ErrDuplicateEmail},
		{constraint: "users_name_key", want: ErrDuplicateName},
	}
	for _, tc := range cases {
		t.Run(tc.constraint, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
				WillReturnError(&pq.Error{Code: "23505", Constraint: tc.constraint})

			_, err := repo.Create(context.Background(), types.User{Name: "alice", Email: "a@x.com"})
			require.ErrorIs(t, err, tc.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepositoryCreatePropagatesOtherErrors(t *testing.T) {
	repo, mock := newMockRepo(t)
	boom := errors.New("connection reset")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).WillReturnError(boom)

	_, err := repo.Create(context.Background(), types.User{Name: "alice", Email: "a@x.com"})
	require.ErrorIs(t, err, boom)
}

func TestUserRepositoryUpdatePartial(t *testing.T) {
	repo, mock := newMockRepo(t)
	name := "alice2"
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users")).
		WithArgs("alice2", nil, nil, nil, nil, fixedNow, testUserID).
		WillReturnRows(userRows().AddRow(testUserID, "alice2", "a@x.com", "h", "555", "Main St", fixedNow, fixedNow))

	user, err := repo.Update(context.Background(), testUserID, types.UserPatch{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "alice2", user.Name)
	require.Equal(t, "a@x.com", user.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryUpdateErrors(t *testing.T) {
	repo, mock := newMockRepo(t)
	email := "b@x.com"
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := repo.Update(context.Background(), testUserID, types.UserPatch{Email: &email})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Update(context.Background(), testUserID, types.UserPatch{Email: &email})
	require.ErrorIs(t, err, ErrDuplicateEmail)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryDelete(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users")).
		WithArgs(testUserID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users")).
		WithArgs(testUserID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), testUserID))
	require.ErrorIs(t, repo.Delete(context.Background(), testUserID), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryList(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at")).
		WillReturnRows(userRows().
			AddRow(testUserID, "alice", "a@x.com", "h1", "", "", fixedNow, fixedNow).
			AddRow("2c1e28ba-2fa1-41d2-883f-0016d3cca427", "bob", "b@x.com", "h2", "", "", fixedNow, fixedNow))

	users, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "bob", users[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}
