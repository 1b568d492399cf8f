package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/seatline/internal/apperr"
	"github.com/shiva/seatline/internal/model"
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]map[string][]byte
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[uuid.UUID]map[string][]byte{}}
}

func (c *fakeCache) Get(_ context.Context, id uuid.UUID, field string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[id][field]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dst)
}

func (c *fakeCache) Set(_ context.Context, id uuid.UUID, field string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.entries[id] == nil {
		c.entries[id] = map[string][]byte{}
	}
	c.entries[id][field] = raw
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func classAvail(a *Availability, class model.SeatClass) ClassAvailability {
	for _, c := range a.Classes {
		if c.Class == class {
			return c
		}
	}
	return ClassAvailability{}
}

func TestAvailability_TrainWindow(t *testing.T) {
	e := newEnv(t)
	st := e.stations(t, 4)
	svc := e.train(t, e.route(t, st, "300", "200", "100", "0"), 4)
	_, err := e.bookTrain(t, svc, st[1], st[2], model.ClassSleeper, "Asha", "Ravi")
	require.NoError(t, err)

	a := NewAvailabilityService(e.store, e.pricing, nil, quietLogger())

	whole, err := a.Availability(context.Background(), model.KindTrain, svc.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ClassAvailability{Class: model.ClassSleeper, Total: 4, Available: 2}, classAvail(whole, model.ClassSleeper))

	first, err := a.Availability(context.Background(), model.KindTrain, svc.ID, &st[0], &st[1])
	require.NoError(t, err)
	assert.Equal(t, 4, classAvail(first, model.ClassSleeper).Available)
	assert.Equal(t, 2, classAvail(first, model.ClassSecondAC).Available)
}

func TestAvailability_CacheHitAndInvalidate(t *testing.T) {
	e := newEnv(t)
	cache := newFakeCache()
	e.booking = NewBookingService(e.store, e.pricing, cache, nil, quietLogger())
	svc := e.flatService(t, model.KindBus, nil, busSeats()...)
	a := NewAvailabilityService(e.store, e.pricing, cache, quietLogger())

	got, err := a.Availability(context.Background(), model.KindBus, svc.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, classAvail(got, model.ClassSleeper).Available)
	assert.Equal(t, 0, cache.hits)

	_, err = a.Availability(context.Background(), model.KindBus, svc.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	_, err = e.bookFlat(svc, "", "A1")
	require.NoError(t, err)
	assert.Empty(t, cache.entries[svc.ID])

	got, err = a.Availability(context.Background(), model.KindBus, svc.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, classAvail(got, model.ClassSleeper).Available)
	assert.Equal(t, 1, classAvail(got, model.ClassNonSleeper).Available)
}

func TestAvailability_Errors(t *testing.T) {
	e := newEnv(t)
	a := NewAvailabilityService(e.store, e.pricing, nil, quietLogger())
	from := uuid.New()

	_, err := a.Availability(context.Background(), "boat", uuid.New(), nil, nil)
	assert.True(t, apperr.IsValidation(err))

	_, err = a.Availability(context.Background(), model.KindTrain, uuid.New(), &from, nil)
	assert.True(t, apperr.IsValidation(err))

	_, err = a.Availability(context.Background(), model.KindTrain, uuid.New(), nil, nil)
	assert.True(t, apperr.IsNotFound(err))
}

func TestQuoteFare(t *testing.T) {
	e := newEnv(t)
	st := e.stations(t, 3)
	svc := e.train(t, e.route(t, st, "300", "100", "0"), 4)
	a := NewAvailabilityService(e.store, e.pricing, nil, quietLogger())

	q, err := a.QuoteFare(context.Background(), svc.ID, st[0], st[1], model.ClassSecondAC)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Available)
	assert.Equal(t, "400.00", q.Price.Total.StringFixed(2))

	_, err = a.QuoteFare(context.Background(), svc.ID, st[0], st[1], model.ClassEconomy)
	assert.True(t, apperr.IsValidation(err))

	_, err = a.QuoteFare(context.Background(), svc.ID, st[1], st[0], model.ClassSleeper)
	assert.True(t, apperr.IsValidation(err))
}
