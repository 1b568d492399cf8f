package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/ports"
)

// ─── Bookings ───────────────────────────────────────────────

const bookingColumns = `
	id, customer_id, service_kind, service_id, status, payment_status, total_amount,
	from_station_id, to_station_id, class, no_cancellation_free_markup,
	no_reschedule_free_markup, email, phone, created_at, updated_at`

func loadBooking(ctx context.Context, q querier, id uuid.UUID, lock bool) (*model.Booking, error) {
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	b := &model.Booking{}
	var from, to uuid.NullUUID
	err := q.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.CustomerID, &b.ServiceKind, &b.ServiceID, &b.Status, &b.PaymentStatus, &b.TotalAmount,
		&from, &to, &b.Class, &b.NoCancellationMarkup,
		&b.NoRescheduleMarkup, &b.Email, &b.Phone, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, lookup("booking", id, err)
	}
	if from.Valid {
		b.FromStationID = &from.UUID
	}
	if to.Valid {
		b.ToStationID = &to.UUID
	}
	return b, nil
}

func loadPassengers(ctx context.Context, q querier, bookingID uuid.UUID) ([]model.Passenger, error) {
	rows, err := q.Query(ctx, `
		SELECT id, booking_id, name, age, gender, seat_number, document_id
		FROM passengers
		WHERE booking_id = $1
		ORDER BY id
	`, bookingID)
	if err != nil {
		return nil, wrap("list passengers", err)
	}
	defer rows.Close()

	var out []model.Passenger
	for rows.Next() {
		var p model.Passenger
		if err := rows.Scan(&p.ID, &p.BookingID, &p.Name, &p.Age, &p.Gender, &p.SeatNumber, &p.DocumentID); err != nil {
			return nil, wrap("list passengers", err)
		}
		out = append(out, p)
	}
	return out, wrap("list passengers", rows.Err())
}

func (t *pgTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		b.ID, b.CustomerID, string(b.ServiceKind), b.ServiceID, string(b.Status), string(b.PaymentStatus), b.TotalAmount,
		nullableUUID(b.FromStationID), nullableUUID(b.ToStationID), string(b.Class), b.NoCancellationMarkup,
		b.NoRescheduleMarkup, b.Email, b.Phone, b.CreatedAt, b.UpdatedAt,
	)
	return wrap("insert booking", err)
}

func (t *pgTx) LockBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return loadBooking(ctx, t.tx, id, true)
}

// UpdateBooking writes the mutable booking fields: status, payment status
// and total.
func (t *pgTx) UpdateBooking(ctx context.Context, b *model.Booking) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2, payment_status = $3, total_amount = $4, updated_at = $5
		WHERE id = $1
	`, b.ID, string(b.Status), string(b.PaymentStatus), b.TotalAmount, b.UpdatedAt)
	if err != nil {
		return wrap("update booking", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.Missing("booking", b.ID)
	}
	return nil
}

func (t *pgTx) InsertPassengers(ctx context.Context, passengers []model.Passenger) error {
	b := &pgx.Batch{}
	for _, p := range passengers {
		b.Queue(`
			INSERT INTO passengers (id, booking_id, name, age, gender, seat_number, document_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, p.ID, p.BookingID, p.Name, p.Age, p.Gender, p.SeatNumber, p.DocumentID)
	}
	return execBatch(ctx, t.tx, "insert passenger", b, false)
}

func (t *pgTx) ListPassengers(ctx context.Context, bookingID uuid.UUID) ([]model.Passenger, error) {
	return loadPassengers(ctx, t.tx, bookingID)
}

func (t *pgTx) AppendStatusLog(ctx context.Context, entry model.StatusLog) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO booking_status_logs (id, booking_id, status, remarks, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.BookingID, entry.Status, entry.Remarks, entry.CreatedAt)
	return wrap("append status log", err)
}

// FindSuccessfulTransaction returns the most recent successful payment for
// the booking, or nil when there is none.
func (t *pgTx) FindSuccessfulTransaction(ctx context.Context, bookingID uuid.UUID) (*model.PaymentTransaction, error) {
	p := &model.PaymentTransaction{}
	err := t.tx.QueryRow(ctx, `
		SELECT id, booking_id, customer_id, amount, method, status, created_at
		FROM payment_transactions
		WHERE booking_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, bookingID, string(model.TransactionSuccess)).Scan(
		&p.ID, &p.BookingID, &p.CustomerID, &p.Amount, &p.Method, &p.Status, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find transaction", err)
	}
	return p, nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, p *model.PaymentTransaction) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payment_transactions (id, booking_id, customer_id, amount, method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.BookingID, p.CustomerID, p.Amount, p.Method, string(p.Status), p.CreatedAt)
	return wrap("insert transaction", err)
}

func (t *pgTx) InsertRefund(ctx context.Context, r *model.Refund) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO refunds (id, transaction_id, booking_id, amount, reason, status, initiated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, nullableUUID(r.TransactionID), r.BookingID, r.Amount, r.Reason, string(r.Status), r.InitiatedAt)
	return wrap("insert refund", err)
}

func (t *pgTx) InsertTicket(ctx context.Context, tk *model.Ticket) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO tickets (id, booking_id, ticket_no, issued_at)
		VALUES ($1, $2, $3, $4)
	`, tk.ID, tk.BookingID, tk.Number, tk.IssuedAt)
	return wrap("insert ticket", err)
}

// ─── Reader: bookings ───────────────────────────────────────

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return loadBooking(ctx, s.db, id, false)
}

func (s *Store) ListPassengers(ctx context.Context, bookingID uuid.UUID) ([]model.Passenger, error) {
	return loadPassengers(ctx, s.db, bookingID)
}

func (s *Store) ListStatusLogs(ctx context.Context, bookingID uuid.UUID) ([]model.StatusLog, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, booking_id, status, remarks, created_at
		FROM booking_status_logs
		WHERE booking_id = $1
		ORDER BY id
	`, bookingID)
	if err != nil {
		return nil, wrap("list status logs", err)
	}
	defer rows.Close()

	var out []model.StatusLog
	for rows.Next() {
		var l model.StatusLog
		if err := rows.Scan(&l.ID, &l.BookingID, &l.Status, &l.Remarks, &l.CreatedAt); err != nil {
			return nil, wrap("list status logs", err)
		}
		out = append(out, l)
	}
	return out, wrap("list status logs", rows.Err())
}

func (s *Store) GetTicket(ctx context.Context, bookingID uuid.UUID) (*model.Ticket, error) {
	tk := &model.Ticket{}
	err := s.db.QueryRow(ctx, `
		SELECT id, booking_id, ticket_no, issued_at
		FROM tickets
		WHERE booking_id = $1
	`, bookingID).Scan(&tk.ID, &tk.BookingID, &tk.Number, &tk.IssuedAt)
	if err != nil {
		return nil, lookup("ticket", bookingID, err)
	}
	return tk, nil
}
