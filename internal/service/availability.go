package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shiva/seatline/internal/apperr"
	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/ports"
)

// ClassAvailability is the advisory free-seat count of one class.
type ClassAvailability struct {
	Class     model.SeatClass `json:"class"`
	Total     int             `json:"total"`
	Available int             `json:"available"`
}

// Availability is a lock-free snapshot for display. It may be stale;
// CreateBooking re-validates everything under lock.
type Availability struct {
	ServiceID uuid.UUID           `json:"service_id"`
	Kind      model.ServiceKind   `json:"kind"`
	Journey   model.Journey       `json:"journey"`
	Classes   []ClassAvailability `json:"classes"`
	AsOf      time.Time           `json:"as_of"`
}

// FareQuote is an advisory per-seat price for a train journey.
type FareQuote struct {
	ServiceID uuid.UUID       `json:"service_id"`
	Class     model.SeatClass `json:"class"`
	Journey   model.Journey   `json:"journey"`
	Available int             `json:"available"`
	Price     PriceBreakdown  `json:"price"`
}

// AvailabilityService answers display queries without taking locks.
//
// Strategy:
//  1. Try the Redis snapshot for (service, window).
//  2. On miss, read seats/segments from PostgreSQL and cache the result.
//
// Every committed booking or cancellation invalidates the service's entries.
type AvailabilityService struct {
	store   ports.Reader
	pricing *PricingEngine
	cache   ports.AvailabilityCache
	logger  *logrus.Entry
}

func NewAvailabilityService(store ports.Reader, pricing *PricingEngine, cache ports.AvailabilityCache, logger *logrus.Logger) *AvailabilityService {
	return &AvailabilityService{
		store:   store,
		pricing: pricing,
		cache:   cache,
		logger:  logger.WithField("component", "availability"),
	}
}

// Availability returns free seats per class. For trains from/to narrow the
// window; nil means the whole route.
func (s *AvailabilityService) Availability(ctx context.Context, kind model.ServiceKind, id uuid.UUID, from, to *uuid.UUID) (*Availability, error) {
	if !kind.Valid() {
		return nil, apperr.ValidationError{Field: "kind", Msg: fmt.Sprintf("unknown kind %q", kind)}
	}
	if (from == nil) != (to == nil) {
		return nil, apperr.ValidationError{Field: "to", Msg: "origin and destination must be given together"}
	}

	field := "all"
	if from != nil {
		field = from.String() + ":" + to.String()
	}

	// ── Fast path: cached snapshot ──────────────────────
	if s.cache != nil {
		var cached Availability
		hit, err := s.cache.Get(ctx, id, field, &cached)
		if err != nil {
			s.logger.WithError(err).Warn("availability cache read failed")
		} else if hit && cached.Kind == kind {
			return &cached, nil
		}
	}

	// ── Slow path: database ─────────────────────────────
	svc, err := s.store.GetService(ctx, kind, id)
	if err != nil {
		return nil, classifyError(err)
	}
	route, err := s.store.GetRoute(ctx, svc.RouteID)
	if err != nil {
		return nil, classifyError(err)
	}
	counts, err := s.store.SeatCounts(ctx, svc.ID)
	if err != nil {
		return nil, classifyError(err)
	}

	out := &Availability{ServiceID: svc.ID, Kind: svc.Kind, AsOf: time.Now().UTC()}
	if kind == model.KindTrain {
		j := model.Journey{Start: 0, End: route.SegmentCount()}
		if from != nil {
			if j, err = route.Journey(*from, *to); err != nil {
				return nil, journeyError(err)
			}
		}
		segments, err := s.store.ListSegments(ctx, svc.ID)
		if err != nil {
			return nil, classifyError(err)
		}
		window := windowSegments(segments, j)
		out.Journey = j
		for _, c := range model.ClassesFor(kind) {
			out.Classes = append(out.Classes, ClassAvailability{
				Class: c, Total: counts[c].Total, Available: minAvailable(window, c),
			})
		}
	} else {
		out.Journey = model.Journey{Start: 0, End: 1}
		for _, c := range model.ClassesFor(kind) {
			if counts[c].Total == 0 {
				continue
			}
			out.Classes = append(out.Classes, ClassAvailability{Class: c, Total: counts[c].Total, Available: counts[c].Free})
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, id, field, out); err != nil {
			s.logger.WithError(err).Warn("availability cache write failed")
		}
	}
	return out, nil
}

// QuoteFare prices one seat of class on a train journey using the current,
// unlocked segment counts.
func (s *AvailabilityService) QuoteFare(ctx context.Context, trainID uuid.UUID, from, to uuid.UUID, class model.SeatClass) (*FareQuote, error) {
	if !class.ValidFor(model.KindTrain) {
		return nil, apperr.ValidationError{Field: "class", Msg: fmt.Sprintf("%s is not sold on trains", class)}
	}
	svc, err := s.store.GetService(ctx, model.KindTrain, trainID)
	if err != nil {
		return nil, classifyError(err)
	}
	route, err := s.store.GetRoute(ctx, svc.RouteID)
	if err != nil {
		return nil, classifyError(err)
	}
	j, err := route.Journey(from, to)
	if err != nil {
		return nil, journeyError(err)
	}
	segments, err := s.store.ListSegments(ctx, svc.ID)
	if err != nil {
		return nil, classifyError(err)
	}
	counts, err := s.store.SeatCounts(ctx, svc.ID)
	if err != nil {
		return nil, classifyError(err)
	}

	avail := minAvailable(windowSegments(segments, j), class)
	quote, err := s.pricing.PriceForJourney(svc, route, j, class, Occupancy{
		Capacity:     counts[class].Total,
		MinAvailable: avail,
	})
	if err != nil {
		return nil, classifyError(err)
	}
	return &FareQuote{ServiceID: svc.ID, Class: class, Journey: j, Available: avail, Price: *quote}, nil
}

func windowSegments(segments []model.Segment, j model.Journey) []model.Segment {
	var out []model.Segment
	for _, seg := range segments {
		if seg.Index >= j.Start && seg.Index < j.End {
			out = append(out, seg)
		}
	}
	return out
}
