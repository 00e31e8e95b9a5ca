package reports

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
)

// Dimension selects which event log a report reads and which column it
// filters on.
type Dimension string

const (
	DimensionItem     Dimension = "item"
	DimensionEmployee Dimension = "employee"
	DimensionMachine  Dimension = "machine"
	DimensionSupplier Dimension = "supplier"
)

func ParseDimension(value string) (Dimension, error) {
	switch d := Dimension(strings.ToLower(strings.TrimSpace(value))); d {
	case DimensionItem, DimensionEmployee, DimensionMachine, DimensionSupplier:
		return d, nil
	}
	return "", fmt.Errorf("invalid dimension %q", value)
}

// Purchases reports whether the dimension reads the purchase log.
func (d Dimension) Purchases() bool {
	return d == DimensionSupplier
}

func (d Dimension) column() string {
	switch d {
	case DimensionItem:
		return "item_id"
	case DimensionEmployee:
		return "employee_id"
	case DimensionMachine:
		return "machine_id"
	case DimensionSupplier:
		return "supplier_id"
	}
	return ""
}

// Range bounds a report by event time. From is inclusive and To exclusive;
// either may be nil.
type Range struct {
	From *time.Time
	To   *time.Time
}

const dateLayout = "2006-01-02"

// ParseRange accepts RFC 3339 timestamps or plain dates. A plain "to" date
// covers the whole day.
func ParseRange(from, to string) (Range, error) {
	var r Range
	if strings.TrimSpace(from) != "" {
		t, _, err := parseTime(from)
		if err != nil {
			return Range{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from")
		}
		r.From = &t
	}
	if strings.TrimSpace(to) != "" {
		t, dateOnly, err := parseTime(to)
		if err != nil {
			return Range{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to")
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		r.To = &t
	}
	if r.From != nil && r.To != nil && !r.From.Before(*r.To) {
		return Range{}, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	return r, nil
}

func parseTime(value string) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}

// Query selects the events of one entity along a dimension.
type Query struct {
	Dimension Dimension
	ID        uuid.UUID
	Range     Range
	Limit     int
	Cursor    string
}

func (q Query) validate() error {
	if q.Dimension.column() == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "dimension must be item, employee, machine or supplier")
	}
	if q.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "id is required")
	}
	return nil
}
