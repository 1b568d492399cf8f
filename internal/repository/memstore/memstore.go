// Package memstore is an in-memory ports.Store.
//
// A transaction holds the store-wide write lock from begin to commit, which
// is at least as strict as the service-row lock the PostgreSQL store takes.
// Writes go to a private copy that replaces the shared state on commit, so a
// failed transaction leaves nothing behind. Faults can be injected per
// operation to exercise error paths.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/ports"
)

type segKey struct {
	service uuid.UUID
	index   int
}

type data struct {
	stations   map[uuid.UUID]model.Station
	routes     map[uuid.UUID]model.Route
	policies   map[uuid.UUID]model.Policy
	vehicles   map[uuid.UUID]model.Vehicle
	services   map[uuid.UUID]model.Service
	seats      map[uuid.UUID]model.Seat
	segments   map[segKey]model.Segment
	bookings   map[uuid.UUID]model.Booking
	passengers map[uuid.UUID][]model.Passenger
	logs       map[uuid.UUID][]model.StatusLog
	txns       map[uuid.UUID][]model.PaymentTransaction
	refunds    map[uuid.UUID][]model.Refund
	tickets    map[uuid.UUID]model.Ticket
}

func newData() *data {
	return &data{
		stations:   map[uuid.UUID]model.Station{},
		routes:     map[uuid.UUID]model.Route{},
		policies:   map[uuid.UUID]model.Policy{},
		vehicles:   map[uuid.UUID]model.Vehicle{},
		services:   map[uuid.UUID]model.Service{},
		seats:      map[uuid.UUID]model.Seat{},
		segments:   map[segKey]model.Segment{},
		bookings:   map[uuid.UUID]model.Booking{},
		passengers: map[uuid.UUID][]model.Passenger{},
		logs:       map[uuid.UUID][]model.StatusLog{},
		txns:       map[uuid.UUID][]model.PaymentTransaction{},
		refunds:    map[uuid.UUID][]model.Refund{},
		tickets:    map[uuid.UUID]model.Ticket{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySlices[K comparable, V any](m map[K][]V) map[K][]V {
	out := make(map[K][]V, len(m))
	for k, v := range m {
		out[k] = append([]V(nil), v...)
	}
	return out
}

// clone copies everything a transaction may write. Masks are immutable and
// route stops are never modified after insert, so they are shared.
func (d *data) clone() *data {
	out := &data{
		stations:   copyMap(d.stations),
		routes:     copyMap(d.routes),
		policies:   copyMap(d.policies),
		vehicles:   copyMap(d.vehicles),
		services:   copyMap(d.services),
		seats:      copyMap(d.seats),
		segments:   make(map[segKey]model.Segment, len(d.segments)),
		bookings:   copyMap(d.bookings),
		passengers: copySlices(d.passengers),
		logs:       copySlices(d.logs),
		txns:       copySlices(d.txns),
		refunds:    copySlices(d.refunds),
		tickets:    copyMap(d.tickets),
	}
	for k, v := range d.segments {
		out.segments[k] = v.Clone()
	}
	return out
}

// Store is an in-memory ports.Store.
type Store struct {
	mu     sync.RWMutex
	d      *data
	faults sync.Map // operation name -> error
}

// New returns an empty store.
func New() *Store {
	return &Store{d: newData()}
}

// InjectFault makes every subsequent call of the named Tx operation fail
// with err. A nil err clears the fault.
func (s *Store) InjectFault(op string, err error) {
	if err == nil {
		s.faults.Delete(op)
		return
	}
	s.faults.Store(op, err)
}

func (s *Store) fault(op string) error {
	if v, ok := s.faults.Load(op); ok {
		return fmt.Errorf("memstore: %s: %w", op, v.(error))
	}
	return nil
}

// InTx implements ports.Store.
func (s *Store) InTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{store: s, d: s.d.clone()}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.d = t.d
	return nil
}

func (s *Store) read(fn func(d *data)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.d)
}

func notFound(what string, id any) error {
	return fmt.Errorf("memstore: %w", ports.Missing(what, id))
}

func rowCount(what string, id any) error {
	return fmt.Errorf("memstore: %s %v: %w", what, id, ports.ErrRowCount)
}

func sortSeats(seats []model.Seat) {
	sort.Slice(seats, func(i, j int) bool {
		return bytes.Compare(seats[i].ID[:], seats[j].ID[:]) < 0
	})
}

// ─── Tx ─────────────────────────────────────────────────────

type tx struct {
	store *Store
	d     *data
}

func (t *tx) Savepoint(ctx context.Context, fn func(tx ports.Tx) error) error {
	snapshot := t.d.clone()
	if err := fn(t); err != nil {
		t.d = snapshot
		return err
	}
	return nil
}

func (t *tx) LockService(_ context.Context, kind model.ServiceKind, id uuid.UUID) (*model.Service, error) {
	if err := t.store.fault("LockService"); err != nil {
		return nil, err
	}
	return getService(t.d, kind, id)
}

func getService(d *data, kind model.ServiceKind, id uuid.UUID) (*model.Service, error) {
	svc, ok := d.services[id]
	if !ok || svc.Kind != kind {
		return nil, notFound("service", id)
	}
	return &svc, nil
}

func (t *tx) GetRoute(_ context.Context, id uuid.UUID) (*model.Route, error) {
	return getRoute(t.d, id)
}

func getRoute(d *data, id uuid.UUID) (*model.Route, error) {
	r, ok := d.routes[id]
	if !ok {
		return nil, notFound("route", id)
	}
	return &r, nil
}

func (t *tx) LockSeatsByNumber(_ context.Context, serviceID uuid.UUID, numbers []string) ([]model.Seat, error) {
	want := make(map[string]bool, len(numbers))
	for _, n := range numbers {
		want[n] = true
	}
	var out []model.Seat
	for _, s := range t.d.seats {
		if s.ServiceID == serviceID && want[s.Number] {
			out = append(out, s)
		}
	}
	sortSeats(out)
	return out, nil
}

func (t *tx) LockSeatsByClass(_ context.Context, serviceID uuid.UUID, class model.SeatClass) ([]model.Seat, error) {
	var out []model.Seat
	for _, s := range t.d.seats {
		if s.ServiceID == serviceID && s.Class == class {
			out = append(out, s)
		}
	}
	sortSeats(out)
	return out, nil
}

func (t *tx) LockSegments(_ context.Context, serviceID uuid.UUID, start, end int) ([]model.Segment, error) {
	var out []model.Segment
	for i := start; i < end; i++ {
		if seg, ok := t.d.segments[segKey{serviceID, i}]; ok {
			out = append(out, seg.Clone())
		}
	}
	return out, nil
}

func (t *tx) CountSeats(_ context.Context, serviceID uuid.UUID, class model.SeatClass) (int, error) {
	n := 0
	for _, s := range t.d.seats {
		if s.ServiceID == serviceID && s.Class == class {
			n++
		}
	}
	return n, nil
}

func (t *tx) UpdateSeats(_ context.Context, seats []model.Seat) error {
	if err := t.store.fault("UpdateSeats"); err != nil {
		return err
	}
	for _, s := range seats {
		if _, ok := t.d.seats[s.ID]; !ok {
			return rowCount("seat", s.ID)
		}
		t.d.seats[s.ID] = s
	}
	return nil
}

func (t *tx) AdjustSegments(_ context.Context, serviceID uuid.UUID, class model.SeatClass, start, end, delta int) error {
	if err := t.store.fault("AdjustSegments"); err != nil {
		return err
	}
	for i := start; i < end; i++ {
		k := segKey{serviceID, i}
		seg, ok := t.d.segments[k]
		if !ok {
			return rowCount("segment", i)
		}
		seg = seg.Clone()
		seg.Available[class] += delta
		if seg.Available[class] < 0 {
			return fmt.Errorf("memstore: segment %d %s count would go negative", i, class)
		}
		t.d.segments[k] = seg
	}
	return nil
}

func (t *tx) ReplaceSegmentCounts(_ context.Context, serviceID uuid.UUID, index int, counts map[model.SeatClass]int) error {
	k := segKey{serviceID, index}
	seg, ok := t.d.segments[k]
	if !ok {
		return rowCount("segment", index)
	}
	seg = seg.Clone()
	for c, n := range counts {
		seg.Available[c] = n
	}
	t.d.segments[k] = seg
	return nil
}

func (t *tx) InsertBooking(_ context.Context, b *model.Booking) error {
	if _, ok := t.d.services[b.ServiceID]; !ok {
		return notFound("service", b.ServiceID)
	}
	t.d.bookings[b.ID] = *b
	return nil
}

func (t *tx) LockBooking(_ context.Context, id uuid.UUID) (*model.Booking, error) {
	b, ok := t.d.bookings[id]
	if !ok {
		return nil, notFound("booking", id)
	}
	return &b, nil
}

func (t *tx) UpdateBooking(_ context.Context, b *model.Booking) error {
	if _, ok := t.d.bookings[b.ID]; !ok {
		return notFound("booking", b.ID)
	}
	t.d.bookings[b.ID] = *b
	return nil
}

func (t *tx) InsertPassengers(_ context.Context, passengers []model.Passenger) error {
	for _, p := range passengers {
		if _, ok := t.d.bookings[p.BookingID]; !ok {
			return notFound("booking", p.BookingID)
		}
		t.d.passengers[p.BookingID] = append(t.d.passengers[p.BookingID], p)
	}
	return nil
}

func (t *tx) ListPassengers(_ context.Context, bookingID uuid.UUID) ([]model.Passenger, error) {
	return append([]model.Passenger(nil), t.d.passengers[bookingID]...), nil
}

func (t *tx) AppendStatusLog(_ context.Context, entry model.StatusLog) error {
	if err := t.store.fault("AppendStatusLog"); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	t.d.logs[entry.BookingID] = append(t.d.logs[entry.BookingID], entry)
	return nil
}

func (t *tx) FindSuccessfulTransaction(_ context.Context, bookingID uuid.UUID) (*model.PaymentTransaction, error) {
	txns := t.d.txns[bookingID]
	for i := len(txns) - 1; i >= 0; i-- {
		if txns[i].Status == model.TransactionSuccess {
			out := txns[i]
			return &out, nil
		}
	}
	return nil, nil
}

func (t *tx) InsertTransaction(_ context.Context, p *model.PaymentTransaction) error {
	t.d.txns[p.BookingID] = append(t.d.txns[p.BookingID], *p)
	return nil
}

func (t *tx) InsertRefund(_ context.Context, r *model.Refund) error {
	t.d.refunds[r.BookingID] = append(t.d.refunds[r.BookingID], *r)
	return nil
}

func (t *tx) InsertTicket(_ context.Context, tk *model.Ticket) error {
	if _, ok := t.d.tickets[tk.BookingID]; ok {
		return fmt.Errorf("memstore: %w", ports.Duplicate("ticket", tk.BookingID))
	}
	t.d.tickets[tk.BookingID] = *tk
	return nil
}

func (t *tx) InsertStation(_ context.Context, s *model.Station) error {
	for _, existing := range t.d.stations {
		if existing.Code == s.Code {
			return fmt.Errorf("memstore: %w", ports.Duplicate("station", s.Code))
		}
	}
	t.d.stations[s.ID] = *s
	return nil
}

func (t *tx) InsertRoute(_ context.Context, r *model.Route) error {
	for _, stop := range r.Stops {
		if _, ok := t.d.stations[stop.StationID]; !ok {
			return notFound("station", stop.StationID)
		}
	}
	t.d.routes[r.ID] = *r
	return nil
}

func (t *tx) InsertPolicy(_ context.Context, p *model.Policy) error {
	t.d.policies[p.ID] = *p
	return nil
}

func (t *tx) InsertVehicle(_ context.Context, v *model.Vehicle) error {
	t.d.vehicles[v.ID] = *v
	return nil
}

func (t *tx) InsertService(_ context.Context, s *model.Service) error {
	if _, ok := t.d.routes[s.RouteID]; !ok {
		return notFound("route", s.RouteID)
	}
	if s.VehicleID != nil {
		if _, ok := t.d.vehicles[*s.VehicleID]; !ok {
			return notFound("vehicle", *s.VehicleID)
		}
	}
	stored := *s
	if s.Policy != nil {
		p, ok := t.d.policies[s.Policy.ID]
		if !ok {
			return notFound("policy", s.Policy.ID)
		}
		stored.Policy = &p
	}
	t.d.services[s.ID] = stored
	return nil
}

func (t *tx) InsertSeats(_ context.Context, seats []model.Seat) error {
	numbers := map[string]bool{}
	for _, s := range t.d.seats {
		if len(seats) > 0 && s.ServiceID == seats[0].ServiceID {
			numbers[s.Number] = true
		}
	}
	for _, s := range seats {
		if numbers[s.Number] {
			return fmt.Errorf("memstore: %w", ports.Duplicate("seat", s.Number))
		}
		numbers[s.Number] = true
		t.d.seats[s.ID] = s
	}
	return nil
}

func (t *tx) InsertSegments(_ context.Context, segments []model.Segment) error {
	for _, seg := range segments {
		t.d.segments[segKey{seg.ServiceID, seg.Index}] = seg.Clone()
	}
	return nil
}

// ─── Reader ─────────────────────────────────────────────────

func (s *Store) GetService(_ context.Context, kind model.ServiceKind, id uuid.UUID) (out *model.Service, err error) {
	s.read(func(d *data) { out, err = getService(d, kind, id) })
	return
}

func (s *Store) GetRoute(_ context.Context, id uuid.UUID) (out *model.Route, err error) {
	s.read(func(d *data) { out, err = getRoute(d, id) })
	return
}

func (s *Store) ListSegments(_ context.Context, serviceID uuid.UUID) ([]model.Segment, error) {
	var out []model.Segment
	s.read(func(d *data) {
		for k, seg := range d.segments {
			if k.service == serviceID {
				out = append(out, seg.Clone())
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *Store) SeatCounts(_ context.Context, serviceID uuid.UUID) (map[model.SeatClass]ports.SeatCount, error) {
	out := map[model.SeatClass]ports.SeatCount{}
	s.read(func(d *data) {
		for _, seat := range d.seats {
			if seat.ServiceID != serviceID {
				continue
			}
			c := out[seat.Class]
			c.Total++
			if !seat.Booked && seat.Mask.Count() == 0 {
				c.Free++
			}
			out[seat.Class] = c
		}
	})
	return out, nil
}

func (s *Store) ListServiceIDs(_ context.Context, kind model.ServiceKind) ([]uuid.UUID, error) {
	var out []uuid.UUID
	s.read(func(d *data) {
		for id, svc := range d.services {
			if svc.Kind == kind {
				out = append(out, id)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out, nil
}

func (s *Store) GetBooking(_ context.Context, id uuid.UUID) (out *model.Booking, err error) {
	s.read(func(d *data) {
		b, ok := d.bookings[id]
		if !ok {
			err = notFound("booking", id)
			return
		}
		out = &b
	})
	return
}

func (s *Store) ListPassengers(_ context.Context, bookingID uuid.UUID) (out []model.Passenger, err error) {
	s.read(func(d *data) { out = append(out, d.passengers[bookingID]...) })
	return
}

func (s *Store) ListStatusLogs(_ context.Context, bookingID uuid.UUID) (out []model.StatusLog, err error) {
	s.read(func(d *data) { out = append(out, d.logs[bookingID]...) })
	return
}

func (s *Store) GetTicket(_ context.Context, bookingID uuid.UUID) (out *model.Ticket, err error) {
	s.read(func(d *data) {
		tk, ok := d.tickets[bookingID]
		if !ok {
			err = notFound("ticket", bookingID)
			return
		}
		out = &tk
	})
	return
}

// ─── Inspection helpers for tests ───────────────────────────

// Seats returns every seat of a service sorted by id.
func (s *Store) Seats(serviceID uuid.UUID) []model.Seat {
	var out []model.Seat
	s.read(func(d *data) {
		for _, seat := range d.seats {
			if seat.ServiceID == serviceID {
				out = append(out, seat)
			}
		}
	})
	sortSeats(out)
	return out
}

// SeatByNumber returns the seat with the given number, or false.
func (s *Store) SeatByNumber(serviceID uuid.UUID, number string) (model.Seat, bool) {
	for _, seat := range s.Seats(serviceID) {
		if seat.Number == number {
			return seat, true
		}
	}
	return model.Seat{}, false
}

// Refunds returns the refunds recorded for a booking.
func (s *Store) Refunds(bookingID uuid.UUID) []model.Refund {
	var out []model.Refund
	s.read(func(d *data) { out = append(out, d.refunds[bookingID]...) })
	return out
}

// Transactions returns the payment transactions recorded for a booking.
func (s *Store) Transactions(bookingID uuid.UUID) []model.PaymentTransaction {
	var out []model.PaymentTransaction
	s.read(func(d *data) { out = append(out, d.txns[bookingID]...) })
	return out
}
