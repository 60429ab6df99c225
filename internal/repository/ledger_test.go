package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

var (
	lockSeatSQL   = regexp.QuoteMeta("FROM seats WHERE flight_id = ? AND seat_number = ? FOR UPDATE")
	saveSeatSQL   = regexp.QuoteMeta("UPDATE seats SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?")
	lockWaitSQL   = regexp.QuoteMeta("SET SESSION innodb_lock_wait_timeout = 5")
	passengerSQL  = regexp.QuoteMeta("FROM passengers WHERE email = ?")
	sharePaxSQL   = regexp.QuoteMeta("FROM passengers WHERE email = ? LIMIT 1 FOR SHARE")
	insertPaxSQL  = regexp.QuoteMeta("INSERT INTO passengers")
	insertBookSQL = regexp.QuoteMeta("INSERT INTO bookings")
)

var fixedNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newMockLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	l := NewLedger(db, 5*time.Second)
	l.now = func() time.Time { return fixedNow }
	return l, mock
}

func seatRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "flight_id", "seat_number", "seat_class", "status", "version", "updated_at"})
}

func holdSeat(ctx context.Context, tx ledger.Tx) error {
	s, err := tx.LockSeat(ctx, 1, "1A")
	if err != nil {
		return err
	}
	s.Status = model.SeatHeld
	return tx.SaveSeat(ctx, &s)
}

func TestLedger_InTxCommitsThenRunsHooks(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectBegin()
	mock.ExpectExec(lockWaitSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lockSeatSQL).WithArgs(1, "1A").
		WillReturnRows(seatRows().AddRow(10, 1, "1A", "ECONOMY", "AVAILABLE", 3, fixedNow.Add(-time.Hour)))
	mock.ExpectExec(saveSeatSQL).WithArgs("HELD", fixedNow, 10, 3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var saved model.Seat
	hookRan := false
	err := l.InTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		s, err := tx.LockSeat(ctx, 1, "1A")
		require.NoError(t, err)
		assert.Equal(t, model.SeatClassEconomy, s.Class)
		s.Status = model.SeatHeld
		require.NoError(t, tx.SaveSeat(ctx, &s))
		saved = s
		tx.AfterCommit(func() { hookRan = true })
		return nil
	})
	require.NoError(t, err)
	assert.True(t, hookRan)
	assert.Equal(t, uint64(4), saved.Version)
	assert.Equal(t, fixedNow, saved.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_LockSeatErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(q *sqlmock.ExpectedQuery)
		want  error
	}{
		{
			name:  "missing seat",
			setup: func(q *sqlmock.ExpectedQuery) { q.WillReturnRows(seatRows()) },
			want:  ledger.ErrSeatNotFound,
		},
		{
			name: "lock wait timeout",
			setup: func(q *sqlmock.ExpectedQuery) {
				q.WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
			},
			want: ledger.ErrLockTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, mock := newMockLedger(t)
			mock.ExpectBegin()
			mock.ExpectExec(lockWaitSQL).WillReturnResult(sqlmock.NewResult(0, 0))
			tt.setup(mock.ExpectQuery(lockSeatSQL).WithArgs(1, "1A"))
			mock.ExpectRollback()

			err := l.InTx(context.Background(), holdSeat)
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLedger_SaveSeatVersionConflict(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectBegin()
	mock.ExpectExec(lockWaitSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lockSeatSQL).WithArgs(1, "1A").
		WillReturnRows(seatRows().AddRow(10, 1, "1A", "ECONOMY", "AVAILABLE", 0, fixedNow))
	mock.ExpectExec(saveSeatSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := l.InTx(context.Background(), holdSeat)
	assert.ErrorIs(t, err, ledger.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_CommitFailureSkipsHooks(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectBegin()
	mock.ExpectExec(lockWaitSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lockSeatSQL).WithArgs(1, "1A").
		WillReturnRows(seatRows().AddRow(10, 1, "1A", "ECONOMY", "AVAILABLE", 0, fixedNow))
	mock.ExpectExec(saveSeatSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	hookRan := false
	err := l.InTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		tx.AfterCommit(func() { hookRan = true })
		return holdSeat(ctx, tx)
	})
	require.Error(t, err)
	assert.False(t, hookRan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_FindOrCreatePassengerRace(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectBegin()
	mock.ExpectExec(lockWaitSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(passengerSQL).WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "created_at"}))
	mock.ExpectExec(insertPaxSQL).WithArgs("a@x.com", "Guest", "Passenger", fixedNow).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@x.com' for key 'passengers.uq_passengers_email'"})
	// The winner committed after this transaction's snapshot, so only a
	// locking read can see its row.
	mock.ExpectQuery(sharePaxSQL).WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "created_at"}).
			AddRow(77, "a@x.com", "Guest", "Passenger", fixedNow))
	mock.ExpectCommit()

	var got model.Passenger
	err := l.InTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		var err error
		got, err = tx.FindOrCreatePassenger(ctx, " A@X.com")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(77), got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_CreateBookingDuplicate(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectBegin()
	mock.ExpectExec(lockWaitSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertBookSQL).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key 'uq_bookings_confirmed_seat'"})
	mock.ExpectRollback()

	err := l.InTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.CreateBooking(ctx, &model.Booking{
			Reference: "PNR-0000ABCD", FlightID: 1, SeatID: 10, PassengerID: 77,
			Status: model.BookingConfirmed, CreatedAt: fixedNow,
		})
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateBooking)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_CreateBookingReferenceTaken(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectBegin()
	mock.ExpectExec(lockWaitSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertBookSQL).WithArgs("PNR-0000ABCD", 1, 10, 77, "CONFIRMED", fixedNow).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'PNR-0000ABCD' for key 'bookings.uq_bookings_reference'"})
	mock.ExpectExec(insertBookSQL).WithArgs("PNR-1111EF01", 1, 10, 77, "CONFIRMED", fixedNow).
		WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectCommit()

	var b model.Booking
	err := l.InTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		b = model.Booking{
			Reference: "PNR-0000ABCD", FlightID: 1, SeatID: 10, PassengerID: 77,
			Status: model.BookingConfirmed, CreatedAt: fixedNow,
		}
		err := tx.CreateBooking(ctx, &b)
		assert.ErrorIs(t, err, ledger.ErrReferenceTaken)
		assert.NotErrorIs(t, err, ledger.ErrDuplicateBooking)

		b.Reference = "PNR-1111EF01"
		return tx.CreateBooking(ctx, &b)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(41), b.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_LockWaitSetAtStartOfEveryTx(t *testing.T) {
	l, mock := newMockLedger(t)
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(lockWaitSQL).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(lockSeatSQL).WithArgs(1, "1A").
			WillReturnRows(seatRows().AddRow(10, 1, "1A", "ECONOMY", "AVAILABLE", i, fixedNow))
		mock.ExpectExec(saveSeatSQL).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, l.InTx(context.Background(), holdSeat))
	require.NoError(t, l.InTx(context.Background(), holdSeat))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_ZeroLockWaitLeavesSessionAlone(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	l := NewLedger(db, 0)
	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, l.InTx(context.Background(), func(context.Context, ledger.Tx) error { return nil }))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_FindStaleHeld(t *testing.T) {
	l, mock := newMockLedger(t)
	cutoff := fixedNow.Add(-125 * time.Second)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = ? AND updated_at < ?")).WithArgs("HELD", cutoff).
		WillReturnRows(seatRows().
			AddRow(10, 1, "1A", "BUSINESS", "HELD", 1, cutoff.Add(-time.Minute)).
			AddRow(11, 1, "1B", "BUSINESS", "HELD", 1, cutoff.Add(-time.Second)))

	seats, err := l.FindStaleHeld(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, seats, 2)
	assert.Equal(t, "1A", seats[0].SeatNumber)
	assert.Equal(t, model.SeatHeld, seats[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_ListSeatsUnknownFlight(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM flights WHERE id = ?")).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "flight_number", "departure_time", "arrival_time", "aircraft_type"}))

	_, err := l.ListSeats(context.Background(), 9)
	assert.ErrorIs(t, err, ledger.ErrFlightNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
