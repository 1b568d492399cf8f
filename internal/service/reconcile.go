package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/ports"
)

// Drift is one segment counter that disagreed with the seat masks.
type Drift struct {
	ServiceID uuid.UUID       `json:"service_id"`
	Index     int             `json:"segment_index"`
	Class     model.SeatClass `json:"class"`
	Stored    int             `json:"stored"`
	Actual    int             `json:"actual"`
}

// Reconciler recomputes train segment counters from seat masks and repairs
// any drift. It is a background consistency check, never a hot path.
type Reconciler struct {
	store  ports.Store
	cache  ports.AvailabilityCache
	logger *logrus.Entry
}

func NewReconciler(store ports.Store, cache ports.AvailabilityCache, logger *logrus.Logger) *Reconciler {
	return &Reconciler{store: store, cache: cache, logger: logger.WithField("component", "reconcile")}
}

// RunBackground reconciles every train each interval until ctx is done.
func (r *Reconciler) RunBackground(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.WithField("interval", interval).Info("segment reconciler started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("segment reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.ReconcileAll(ctx); err != nil {
				r.logger.WithError(err).Error("reconcile pass failed")
			}
		}
	}
}

// ReconcileAll reconciles every train and returns all repaired drifts.
// A failure on one service is logged and does not stop the pass.
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]Drift, error) {
	ids, err := r.store.ListServiceIDs(ctx, model.KindTrain)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list trains: %w", err)
	}
	var all []Drift
	for _, id := range ids {
		drifts, err := r.ReconcileService(ctx, id)
		if err != nil {
			r.logger.WithError(err).WithField("service_id", id).Error("reconcile service failed")
			continue
		}
		all = append(all, drifts...)
	}
	return all, nil
}

// ReconcileService locks one train (service, then seats, then segments),
// recounts free seats per segment and class, and rewrites any counter that
// disagrees.
func (r *Reconciler) ReconcileService(ctx context.Context, id uuid.UUID) ([]Drift, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultBookingTimeout)
	defer cancel()

	var drifts []Drift
	err := r.store.InTx(txCtx, func(tx ports.Tx) error {
		svc, err := tx.LockService(txCtx, model.KindTrain, id)
		if err != nil {
			return err
		}
		route, err := tx.GetRoute(txCtx, svc.RouteID)
		if err != nil {
			return fmt.Errorf("load route: %w", err)
		}
		n := route.SegmentCount()

		actual := make([]map[model.SeatClass]int, n)
		for i := range actual {
			actual[i] = map[model.SeatClass]int{}
		}
		for _, class := range model.ClassesFor(model.KindTrain) {
			seats, err := tx.LockSeatsByClass(txCtx, svc.ID, class)
			if err != nil {
				return fmt.Errorf("lock %s seats: %w", class, err)
			}
			for _, s := range seats {
				if err := checkMaskLen(s, n); err != nil {
					return err
				}
				for i := 0; i < n; i++ {
					if !s.Mask.Test(i) {
						actual[i][class]++
					}
				}
			}
		}

		segments, err := tx.LockSegments(txCtx, svc.ID, 0, n)
		if err != nil {
			return fmt.Errorf("lock segments: %w", err)
		}
		for _, seg := range segments {
			fixed := map[model.SeatClass]int{}
			for _, class := range model.ClassesFor(model.KindTrain) {
				if seg.Available[class] == actual[seg.Index][class] {
					continue
				}
				fixed[class] = actual[seg.Index][class]
				drifts = append(drifts, Drift{
					ServiceID: svc.ID, Index: seg.Index, Class: class,
					Stored: seg.Available[class], Actual: actual[seg.Index][class],
				})
			}
			if len(fixed) == 0 {
				continue
			}
			if err := tx.ReplaceSegmentCounts(txCtx, svc.ID, seg.Index, fixed); err != nil {
				return fmt.Errorf("repair segment %d: %w", seg.Index, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, classifyError(err)
	}

	for _, d := range drifts {
		r.logger.WithFields(logrus.Fields{
			"service_id": d.ServiceID,
			"segment":    d.Index,
			"class":      d.Class,
			"stored":     d.Stored,
			"actual":     d.Actual,
		}).Warn("repaired segment counter drift")
	}
	if len(drifts) > 0 {
		invalidate(ctx, r.cache, id, r.logger)
	}
	return drifts, nil
}
