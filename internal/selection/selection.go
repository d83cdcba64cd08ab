// Package selection persists confirmed medicine selections.
//
// A [Record] is written once per confirmed pick and never updated. Two
// [Store] implementations exist: a JSON file store for single-node
// deployments and a PostgreSQL store for shared ones.
package selection

import (
	"context"
	"errors"
	"time"
)

// Record is one confirmed medicine selection.
type Record struct {
	// MedicineName is the canonical catalog name, not the raw transcript.
	MedicineName string `json:"medicine_name"`

	// SelectedVariant is the chosen dosage/form variant for the medicine.
	SelectedVariant string `json:"selected_variant"`

	// Quantity is the number of units selected. Must be positive.
	Quantity int `json:"quantity"`

	// Unit is the free-form unit label, e.g. "box" or "strip".
	Unit string `json:"unit"`

	// SelectedAt is when the selection was confirmed, in UTC.
	SelectedAt time.Time `json:"selected_at"`
}

// Validate reports whether the record is complete enough to persist.
func (r Record) Validate() error {
	var errs []error
	if r.MedicineName == "" {
		errs = append(errs, errors.New("medicine_name must not be empty"))
	}
	if r.SelectedVariant == "" {
		errs = append(errs, errors.New("selected_variant must not be empty"))
	}
	if r.Quantity <= 0 {
		errs = append(errs, errors.New("quantity must be positive"))
	}
	return errors.Join(errs...)
}

// Store persists selection records. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append persists one record. The record must pass [Record.Validate].
	Append(ctx context.Context, rec Record) error

	// List returns all persisted records in insertion order.
	List(ctx context.Context) ([]Record, error)

	// Close releases any underlying resources.
	Close() error
}
