package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bugspotter/internal/types"
)

var testNow = time.Date(2026, 4, 12, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func requireCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := types.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

// identRow returns column values in identificationColumns order.
func identRow(id int64, userID *int64, name string) []any {
	return []any{
		id, userID, "data:image/jpeg;base64,AAA", []string{"data:image/jpeg;base64,BBB"}, name, "Coccinella septempunctata",
		87, "Beetle", "Gardens", "Harmless", "Red with seven spots", "5-8mm", "Aphids", "1 year",
		"Low", "None needed", "Beneficial predator", "Least Concern",
		[]types.SimilarSpecies{{Name: "Asian lady beetle", ScientificName: "Harmonia axyridis"}},
		[]types.AlternativeMatch(nil), testNow,
	}
}

// --- Users ---

func TestUserRepository_Create(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"ada", "$2a$12$hash"}).
		Return(&mockRow{values: []any{int64(7), testNow}})

	u := &types.User{Username: "ada", PasswordHash: "$2a$12$hash"}
	require.NoError(t, repo.Create(ctx, u))
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, testNow, u.CreatedAt)
	db.AssertExpectations(t)
}

func TestUserRepository_Create_DuplicateUsername(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: &pgconn.PgError{Code: "23505"}})

	err := repo.Create(context.Background(), &types.User{Username: "ada"})
	requireCode(t, err, types.ErrCodeConflictUsername)
}

func TestUserRepository_GetByUsername(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"ada"}).
		Return(&mockRow{values: []any{int64(7), "ada", "$2a$12$hash", testNow}})
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"ghost"}).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	u, err := repo.GetByUsername(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, "$2a$12$hash", u.PasswordHash)

	_, err = repo.GetByUsername(ctx, "ghost")
	requireCode(t, err, types.ErrCodeNotFoundUser)
}

// --- Sessions ---

func TestSessionRepository_GetByID(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"sess_ok"}).
		Return(&mockRow{values: []any{"sess_ok", int64(7), "csrf", "10.0.0.1", "curl", testNow.Add(time.Hour), testNow, testNow}})
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"sess_gone"}).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	s, err := repo.GetByID(context.Background(), "sess_ok")
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.UserID)
	assert.Equal(t, "csrf", s.CSRFToken)

	_, err = repo.GetByID(context.Background(), "sess_gone")
	requireCode(t, err, types.ErrCodeNotFoundSession)
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{testNow}).
		Return(pgconn.NewCommandTag("DELETE 4"), nil)

	n, err := repo.DeleteExpired(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestSessionRepository_Create_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Create(context.Background(), &types.Session{ID: "sess_1", UserID: 7})
	requireCode(t, err, types.ErrCodeInternalDB)
}

// --- Identifications ---

func TestIdentificationRepository_Create(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIdentificationRepository(db)
	ctx := context.Background()

	var gotArgs []any
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { gotArgs = args.Get(2).([]any) }).
		Return(&mockRow{values: []any{int64(42), testNow}})

	b := &types.BugIdentification{UserID: ptr(int64(7)), ImageURL: "img", Name: "Ladybug", Confidence: 86.6}
	require.NoError(t, repo.Create(ctx, b))

	assert.Equal(t, int64(42), b.ID)
	assert.Equal(t, testNow, b.IdentifiedAt)
	require.Len(t, gotArgs, 19)
	assert.Equal(t, 87, gotArgs[5], "confidence is rounded to a whole percentage")
	assert.Equal(t, []string{}, gotArgs[2])
	assert.Equal(t, []types.SimilarSpecies{}, gotArgs[17])
	assert.NotNil(t, b.AlternativeMatches)
}

func TestIdentificationRepository_GetByID(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIdentificationRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{int64(1)}).
		Return(&mockRow{values: identRow(1, ptr(int64(7)), "Ladybug")})
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{int64(2)}).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	b, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Ladybug", b.Name)
	assert.Equal(t, 87.0, b.Confidence)
	assert.Equal(t, int64(7), *b.UserID)
	assert.Len(t, b.SimilarSpecies, 1)
	assert.Equal(t, []types.AlternativeMatch{}, b.AlternativeMatches)

	_, err = repo.GetByID(context.Background(), 2)
	requireCode(t, err, types.ErrCodeNotFoundIdentification)
}

func TestIdentificationRepository_ListByUser(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIdentificationRepository(db)

	rows := newMockRows(identRow(2, ptr(int64(7)), "Wasp"), identRow(1, ptr(int64(7)), "Ladybug"))
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{int64(7)}).Return(rows, nil)

	list, err := repo.ListByUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Wasp", list[0].Name)
	assert.True(t, rows.closed)
}

func TestIdentificationRepository_ListByUser_Empty(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIdentificationRepository(db)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(newMockRows(), nil)

	list, err := repo.ListByUser(context.Background(), 7)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestIdentificationRepository_DeleteByUser(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIdentificationRepository(db)

	var sql string
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{int64(7)}).
		Run(func(args mock.Arguments) { sql = args.String(1) }).
		Return(pgconn.NewCommandTag("DELETE 3"), nil)

	n, err := repo.DeleteByUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Contains(t, sql, "NOT EXISTS", "logbook-referenced rows are kept")
}

// --- Logbook ---

func TestLogbookRepository_GetByID_JoinsIdentification(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLogbookRepository(db)

	values := append([]any{int64(10), int64(1), ptr("in the garden"), nil, true, testNow}, identRow(1, ptr(int64(7)), "Ladybug")...)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{int64(10)}).Return(&mockRow{values: values})
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{int64(11)}).Return(&mockRow{scanErr: pgx.ErrNoRows})

	e, err := repo.GetByID(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "in the garden", *e.Notes)
	assert.Nil(t, e.Location)
	assert.True(t, e.IsFavorite)
	require.NotNil(t, e.Identification)
	assert.True(t, e.OwnedBy(7))

	_, err = repo.GetByID(context.Background(), 11)
	requireCode(t, err, types.ErrCodeNotFoundLogbookEntry)
}

func TestLogbookRepository_Delete(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want bool
	}{
		{"deleted", "DELETE 1", true},
		{"already gone", "DELETE 0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{int64(10)}).
				Return(pgconn.NewCommandTag(tt.tag), nil)

			ok, err := NewLogbookRepository(db).Delete(context.Background(), 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestLogbookRepository_ToggleFavorite(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLogbookRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{int64(10)}).
		Return(&mockRow{values: []any{int64(10), int64(1), nil, nil, true, testNow}})
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{int64(11)}).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	e, err := repo.ToggleFavorite(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, e.IsFavorite)

	e, err = repo.ToggleFavorite(context.Background(), 11)
	require.NoError(t, err)
	assert.Nil(t, e)
}

// --- Subscriptions ---

func subRow(id int64) []any {
	return []any{id, int64(7), types.PlanMonthly, types.SubscriptionActive, testNow, testNow.AddDate(0, 1, 0), "pay_1", testNow, testNow}
}

func TestSubscriptionRepository_GetCurrentForUser(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{int64(7), testNow}).
		Return(&mockRow{values: subRow(3)})
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{int64(8), testNow}).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	s, err := repo.GetCurrentForUser(context.Background(), 7, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.ID)
	assert.Equal(t, types.PlanMonthly, s.PlanType)

	s, err = repo.GetCurrentForUser(context.Background(), 8, testNow)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSubscriptionRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := NewSubscriptionRepository(db).GetByID(context.Background(), 99)
	requireCode(t, err, types.ErrCodeNotFoundSubscription)
}

func TestSubscriptionRepository_Cancel(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{int64(3), testNow}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	ok, err := NewSubscriptionRepository(db).Cancel(context.Background(), 3, testNow)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSubscriptionRepository_ExistsByPaymentID(t *testing.T) {
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"cs_1"}).Return(&mockRow{values: []any{true}})

	exists, err := NewSubscriptionRepository(db).ExistsByPaymentID(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSubscriptionRepository_ExpireLapsed(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{testNow}).
		Return(pgconn.NewCommandTag("UPDATE 2"), nil)

	n, err := NewSubscriptionRepository(db).ExpireLapsed(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	failing := new(mockDBTX)
	failing.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("timeout"))
	_, err = NewSubscriptionRepository(failing).ExpireLapsed(context.Background(), testNow)
	requireCode(t, err, types.ErrCodeInternalDB)
}

// --- Transactions ---

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	tx  *fakeTx
	err error
}

func (f *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

func TestTxManager_RunInTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		b := &fakeBeginner{tx: &fakeTx{}}
		err := NewTxManager(b).RunInTx(context.Background(), func(context.Context, DBTX) error { return nil })
		require.NoError(t, err)
		assert.True(t, b.tx.committed)
		assert.False(t, b.tx.rolledBack)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		b := &fakeBeginner{tx: &fakeTx{}}
		boom := errors.New("boom")
		err := NewTxManager(b).RunInTx(context.Background(), func(context.Context, DBTX) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.False(t, b.tx.committed)
		assert.True(t, b.tx.rolledBack)
	})

	t.Run("begin failure", func(t *testing.T) {
		b := &fakeBeginner{err: errors.New("pool closed")}
		err := NewTxManager(b).RunInTx(context.Background(), func(context.Context, DBTX) error { return nil })
		requireCode(t, err, types.ErrCodeInternalDB)
	})
}
