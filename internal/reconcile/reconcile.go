package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"drinkLogAPI/internal/drink"
)

// ErrStore wraps every failure returned by the record store.
var ErrStore = errors.New("record store operation failed")

// Mutator is the write side of a record store.
type Mutator interface {
	CreateRecords(ctx context.Context, ownerID string, date civil.Date, count int) error
	BulkCreate(ctx context.Context, ownerID string, dates []civil.Date) error
	DeleteRecords(ctx context.Context, ownerID string, ids []uuid.UUID) error
}

// Plan is the minimal change that brings a day to its desired count.
// At most one of Create and Delete is set.
type Plan struct {
	Date    civil.Date  `json:"date"`
	Current int         `json:"current"`
	Desired int         `json:"desired"`
	Create  int         `json:"create"`
	Delete  []uuid.UUID `json:"delete,omitempty"`
}

func (p Plan) Empty() bool {
	return p.Create == 0 && len(p.Delete) == 0
}

// Diff computes the plan for setting date to desired given the current
// records. Deletions pick the first matching records in input order.
func Diff(date civil.Date, desired int, current []drink.Record) Plan {
	p := Plan{Date: date, Desired: desired, Current: drink.CountOn(current, date)}

	switch diff := desired - p.Current; {
	case diff > 0:
		p.Create = diff
	case diff < 0:
		p.Delete = drink.IDsOn(current, date, -diff)
	}
	return p
}

type Reconciler struct {
	store Mutator
}

func New(store Mutator) *Reconciler {
	return &Reconciler{store: store}
}

// SetCount issues at most one store call. The caller's record list is not
// touched; confirmed changes arrive through the store's event stream.
func (r *Reconciler) SetCount(ctx context.Context, ownerID string, date civil.Date, desired int, current []drink.Record) (Plan, error) {
	plan := Diff(date, desired, current)

	switch {
	case plan.Create > 0:
		if err := r.store.CreateRecords(ctx, ownerID, date, plan.Create); err != nil {
			return plan, fmt.Errorf("%w: create %d on %s: %w", ErrStore, plan.Create, date, err)
		}
		log.Printf("Reconcile: added %d drinks on %s for %s", plan.Create, date, ownerID)

	case len(plan.Delete) > 0:
		if err := r.store.DeleteRecords(ctx, ownerID, plan.Delete); err != nil {
			return plan, fmt.Errorf("%w: delete %d on %s: %w", ErrStore, len(plan.Delete), date, err)
		}
		log.Printf("Reconcile: removed %d drinks on %s for %s", len(plan.Delete), date, ownerID)
	}

	return plan, nil
}

// Import appends one record per date in a single bulk call. It never looks
// at existing counts.
func (r *Reconciler) Import(ctx context.Context, ownerID string, dates []civil.Date) (int, error) {
	if len(dates) == 0 {
		return 0, nil
	}
	if err := r.store.BulkCreate(ctx, ownerID, dates); err != nil {
		return 0, fmt.Errorf("%w: import %d records: %w", ErrStore, len(dates), err)
	}
	log.Printf("Reconcile: imported %d drinks for %s", len(dates), ownerID)
	return len(dates), nil
}
