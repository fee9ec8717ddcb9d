package booking_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/scooter-rentals/internal/booking"
	"github.com/example/scooter-rentals/internal/internaltypes"
	"github.com/example/scooter-rentals/internal/store"
)

// memStore is an in-memory booking.Store. InTx snapshots state up front and
// restores it when fn fails, mirroring the rollback the real store gets from
// postgres.
type memStore struct {
	mu           sync.Mutex
	scooters     map[uuid.UUID]store.Scooter
	reservations map[uuid.UUID]store.Reservation
	rentals      map[uuid.UUID]store.Rental

	// when set, InTx fails before running fn, like a connection drop
	txErr error

	setScooterRentalCalls      int
	setScooterReservationCalls int
}

func newMemStore() *memStore {
	return &memStore{
		scooters:     make(map[uuid.UUID]store.Scooter),
		reservations: make(map[uuid.UUID]store.Reservation),
		rentals:      make(map[uuid.UUID]store.Rental),
	}
}

func (m *memStore) addScooter(label string) store.Scooter {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc := store.Scooter{ID: uuid.New(), Label: label, CreatedAt: time.Now().UTC()}
	m.scooters[sc.ID] = sc
	return sc
}

func (m *memStore) scooter(t *testing.T, id uuid.UUID) store.Scooter {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.scooters[id]
	if !ok {
		t.Fatalf("scooter %s missing", id)
	}
	return sc
}

func (m *memStore) snapshot() (map[uuid.UUID]store.Scooter, map[uuid.UUID]store.Reservation, map[uuid.UUID]store.Rental) {
	sc := make(map[uuid.UUID]store.Scooter, len(m.scooters))
	for k, v := range m.scooters {
		sc[k] = v
	}
	res := make(map[uuid.UUID]store.Reservation, len(m.reservations))
	for k, v := range m.reservations {
		res[k] = v
	}
	ren := make(map[uuid.UUID]store.Rental, len(m.rentals))
	for k, v := range m.rentals {
		ren[k] = v
	}
	return sc, res, ren
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	m.mu.Lock()
	if err := m.txErr; err != nil {
		m.mu.Unlock()
		return err
	}
	sc, res, ren := m.snapshot()
	m.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		m.mu.Lock()
		m.scooters, m.reservations, m.rentals = sc, res, ren
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) GetScooterForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (store.Scooter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.scooters[id]
	if !ok {
		return store.Scooter{}, internaltypes.ErrScooterNotFound
	}
	return sc, nil
}

func (m *memStore) SetScooterReservation(ctx context.Context, tx pgx.Tx, scooterID uuid.UUID, reservationID *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc := m.scooters[scooterID]
	sc.ReservationID = reservationID
	m.scooters[scooterID] = sc
	m.setScooterReservationCalls++
	return nil
}

func (m *memStore) SetScooterRental(ctx context.Context, tx pgx.Tx, scooterID uuid.UUID, rentalID *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc := m.scooters[scooterID]
	sc.ActiveRentalID = rentalID
	m.scooters[scooterID] = sc
	m.setScooterRentalCalls++
	return nil
}

func (m *memStore) InsertReservation(ctx context.Context, tx pgx.Tx, userID, scooterID uuid.UUID, endsAt time.Time) (store.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.UserID == userID {
			return store.Reservation{}, internaltypes.ErrUserHasReservation
		}
		if r.ScooterID == scooterID {
			return store.Reservation{}, internaltypes.ErrScooterUnavailable
		}
	}
	res := store.Reservation{
		ID:        uuid.New(),
		UserID:    userID,
		ScooterID: scooterID,
		EndsAt:    endsAt,
		CreatedAt: time.Now().UTC(),
	}
	m.reservations[res.ID] = res
	return res, nil
}

func (m *memStore) GetReservationForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (store.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.reservations[id]
	if !ok {
		return store.Reservation{}, internaltypes.ErrReservationGone
	}
	return res, nil
}

func (m *memStore) DeleteReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reservations[id]; !ok {
		return internaltypes.ErrReservationGone
	}
	delete(m.reservations, id)
	return nil
}

func (m *memStore) reservationDetail(match func(store.Reservation) bool) (store.ReservationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, res := range m.reservations {
		if !match(res) {
			continue
		}
		d := store.ReservationDetail{Reservation: res}
		if sc, ok := m.scooters[res.ScooterID]; ok {
			d.ScooterLabel = sc.Label
		} else {
			d.Dangling = true
		}
		return d, nil
	}
	return store.ReservationDetail{}, internaltypes.ErrNotFound
}

func (m *memStore) GetReservationByUser(ctx context.Context, userID uuid.UUID) (store.ReservationDetail, error) {
	return m.reservationDetail(func(r store.Reservation) bool { return r.UserID == userID })
}

func (m *memStore) GetReservationByScooter(ctx context.Context, scooterID uuid.UUID) (store.ReservationDetail, error) {
	return m.reservationDetail(func(r store.Reservation) bool { return r.ScooterID == scooterID })
}

func (m *memStore) InsertRental(ctx context.Context, tx pgx.Tx, r store.Rental) (store.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	m.rentals[r.ID] = r
	return r, nil
}

func (m *memStore) GetRental(ctx context.Context, id uuid.UUID) (store.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rentals[id]
	if !ok {
		return store.Rental{}, internaltypes.ErrNotFound
	}
	return r, nil
}

func (m *memStore) GetRentalForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (store.Rental, error) {
	return m.GetRental(ctx, id)
}

func (m *memStore) MarkRentalEnded(ctx context.Context, tx pgx.Tx, id uuid.UUID, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rentals[id]
	if r.EndedAt == nil {
		r.EndedAt = &endedAt
		m.rentals[id] = r
	}
	return nil
}

func (m *memStore) AdvancePaidUntil(ctx context.Context, tx pgx.Tx, id uuid.UUID, paidUntil time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rentals[id]
	r.PaidUntil = &paidUntil
	m.rentals[id] = r
	return nil
}

func (m *memStore) ListRentalsByUser(ctx context.Context, userID uuid.UUID) ([]store.RentalHistoryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.RentalHistoryRow
	for _, r := range m.rentals {
		if r.UserID != userID {
			continue
		}
		h := store.RentalHistoryRow{Rental: r}
		if sc, ok := m.scooters[r.ScooterID]; ok {
			h.ScooterLabel = sc.Label
		}
		out = append(out, h)
	}
	return out, nil
}

func (m *memStore) ListReservations(ctx context.Context) ([]store.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Reservation
	for _, r := range m.reservations {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) ListActiveRentals(ctx context.Context) ([]store.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Rental
	for _, r := range m.rentals {
		if r.EndedAt == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeJobs records scheduled jobs so tests can fire them deterministically.
type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]fakeJob
}

type fakeJob struct {
	at time.Time
	fn func(ctx context.Context)
}

func newFakeJobs() *fakeJobs { return &fakeJobs{jobs: make(map[string]fakeJob)} }

func (f *fakeJobs) Schedule(key string, at time.Time, fn func(ctx context.Context)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[key] = fakeJob{at: at, fn: fn}
}

func (f *fakeJobs) EnsureScheduled(key string, at time.Time, fn func(ctx context.Context)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[key]; ok {
		return false
	}
	f.jobs[key] = fakeJob{at: at, fn: fn}
	return true
}

func (f *fakeJobs) Cancel(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, key)
}

func (f *fakeJobs) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.jobs[key]
	return ok
}

func (f *fakeJobs) at(t *testing.T, key string) time.Time {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[key]
	if !ok {
		t.Fatalf("no job scheduled under %q", key)
	}
	return j.at
}

// fire runs the pending job for key the way the scheduler would: removed
// first, then executed.
func (f *fakeJobs) fire(t *testing.T, key string) {
	t.Helper()
	f.mu.Lock()
	j, ok := f.jobs[key]
	delete(f.jobs, key)
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no job to fire under %q", key)
	}
	j.fn(context.Background())
}

// fakeCharger imitates the saga coordinator: an optional pre-book failure,
// and a compensating rollback count when the booking body fails.
type fakeCharger struct {
	mu       sync.Mutex
	failWith error
	calls    []chargeCall
	rollback int
}

type chargeCall struct {
	userID   uuid.UUID
	methodID uuid.UUID
	amount   int64
}

func (c *fakeCharger) RunCharge(ctx context.Context, userID, methodID uuid.UUID, amountCents int64, book func(ctx context.Context) error) error {
	c.mu.Lock()
	c.calls = append(c.calls, chargeCall{userID: userID, methodID: methodID, amount: amountCents})
	fail := c.failWith
	c.mu.Unlock()

	if fail != nil {
		return fail
	}
	if err := book(ctx); err != nil {
		c.mu.Lock()
		c.rollback++
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *fakeCharger) chargeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

const (
	testTTL      = 20 * time.Minute
	testInterval = 15 * time.Minute
	testMax      = 24 * time.Hour
	testPrice    = int64(250)
)

type env struct {
	st     *memStore
	jobs   *fakeJobs
	charge *fakeCharger

	reservations *booking.ReservationManager
	rentals      *booking.RentalManager
}

func newEnv(t *testing.T) *env { return newEnvWith(t, testInterval, testMax) }

func newEnvWith(t *testing.T, interval, max time.Duration) *env {
	t.Helper()
	st := newMemStore()
	jobs := newFakeJobs()
	charge := &fakeCharger{}
	log := slog.Default()

	reservations := booking.NewReservationManager(st, jobs, testTTL, log)
	rentals := booking.NewRentalManager(st, jobs, charge, reservations, interval, max, testPrice, log)

	return &env{
		st:           st,
		jobs:         jobs,
		charge:       charge,
		reservations: reservations,
		rentals:      rentals,
	}
}
