package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/ports"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

func TestWrap(t *testing.T) {
	assert.NoError(t, wrap("op", nil))
	assert.ErrorIs(t, wrap("op", pgx.ErrNoRows), ports.ErrNotFound)
	assert.ErrorIs(t, wrap("op", &pgconn.PgError{Code: pgForeignKeyViolation}), ports.ErrNotFound)
	assert.ErrorIs(t, wrap("op", &pgconn.PgError{Code: pgUniqueViolation}), ports.ErrDuplicate)

	dup := wrap("insert station", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "stations_code_key"})
	assert.Equal(t, "station", ports.Resource(dup))
	assert.Equal(t, "insert station (stations_code_key): station: already exists", dup.Error())
	fk := wrap("insert service", &pgconn.PgError{Code: pgForeignKeyViolation, ConstraintName: "services_route_id_fkey"})
	assert.Equal(t, "route", ports.Resource(fk))

	lock := wrap("lock service", &pgconn.PgError{Code: pgLockNotAvailable, Message: "canceling statement due to lock timeout"})
	assert.ErrorIs(t, lock, ports.ErrLockTimeout)

	other := errors.New("connection reset")
	err := wrap("op", other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, ports.ErrNotFound)
	assert.Equal(t, "op: connection reset", err.Error())
}

func TestInTx_Commits(t *testing.T) {
	store, mock := newMockStore(t)
	tk := &model.Ticket{ID: uuid.New(), BookingID: uuid.New(), Number: "TKT-0F8FAD5B", IssuedAt: time.Now()}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("INSERT INTO tickets").
		WithArgs(tk.ID, tk.BookingID, tk.Number, tk.IssuedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx ports.Tx) error {
		return tx.InsertTicket(context.Background(), tk)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackOnDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	tk := &model.Ticket{ID: uuid.New(), BookingID: uuid.New(), Number: "TKT-0F8FAD5B", IssuedAt: time.Now()}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("INSERT INTO tickets").
		WithArgs(tk.ID, tk.BookingID, tk.Number, tk.IssuedAt).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "tickets_booking_id_key"})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx ports.Tx) error {
		return tx.InsertTicket(context.Background(), tk)
	})
	assert.ErrorIs(t, err, ports.ErrDuplicate)
	assert.Contains(t, err.Error(), "tickets_booking_id_key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustSegments_RequiresEveryRow(t *testing.T) {
	store, mock := newMockStore(t)
	svc := uuid.New()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("UPDATE segments").
		WithArgs(svc, string(model.ClassSleeper), 0, 3, -1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx ports.Tx) error {
		return tx.AdjustSegments(context.Background(), svc, model.ClassSleeper, 0, 3, -1)
	})
	assert.ErrorIs(t, err, ports.ErrRowCount)
	assert.NotErrorIs(t, err, ports.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustSegments_CheckViolation(t *testing.T) {
	store, mock := newMockStore(t)
	svc := uuid.New()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("UPDATE segments").
		WithArgs(svc, string(model.ClassSleeper), 1, 2, -1).
		WillReturnError(&pgconn.PgError{Code: "23514", ConstraintName: "segments_available_count_check"})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx ports.Tx) error {
		return tx.AdjustSegments(context.Background(), svc, model.ClassSleeper, 1, 2, -1)
	})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "23514", pgErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSuccessfulTransaction_None(t *testing.T) {
	store, mock := newMockStore(t)
	booking := uuid.New()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery("FROM payment_transactions").
		WithArgs(booking, string(model.TransactionSuccess)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	var got *model.PaymentTransaction
	err := store.InTx(context.Background(), func(tx ports.Tx) error {
		var err error
		got, err = tx.FindSuccessfulTransaction(context.Background(), booking)
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTicket(t *testing.T) {
	store, mock := newMockStore(t)
	booking := uuid.New()
	id := uuid.New()
	issued := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM tickets").
		WithArgs(booking).
		WillReturnRows(pgxmock.NewRows([]string{"id", "booking_id", "ticket_no", "issued_at"}).
			AddRow(id, booking, "TKT-0F8FAD5B", issued))

	tk, err := store.GetTicket(context.Background(), booking)
	require.NoError(t, err)
	assert.Equal(t, &model.Ticket{ID: id, BookingID: booking, Number: "TKT-0F8FAD5B", IssuedAt: issued}, tk)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTicket_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	booking := uuid.New()

	mock.ExpectQuery("FROM tickets").WithArgs(booking).WillReturnError(pgx.ErrNoRows)

	_, err := store.GetTicket(context.Background(), booking)
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.Equal(t, "ticket", ports.Resource(err))
	assert.Contains(t, err.Error(), booking.String())
}

func TestListServiceIDs(t *testing.T) {
	store, mock := newMockStore(t)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT id FROM services").
		WithArgs(string(model.KindTrain)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(a).AddRow(b))

	ids, err := store.ListServiceIDs(context.Background(), model.KindTrain)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
