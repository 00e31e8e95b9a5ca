package live

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
)

// Filter narrows a subscription. Field/Value is an exact match on a record
// key; From/To bound the event time of log collections (To is exclusive).
type Filter struct {
	Field string
	Value string
	From  *time.Time
	To    *time.Time
}

// TimeField returns the record key holding the event time of collection.
func TimeField(collection enums.Collection) string {
	switch collection {
	case enums.CollectionUsageLog:
		return "timestamp"
	case enums.CollectionPurchaseLog:
		return "purchaseTimestamp"
	}
	return ""
}

func (f Filter) validate(collection enums.Collection) error {
	if (f.Field == "") != (f.Value == "") {
		return pkgerrors.New(pkgerrors.CodeValidation, "field and value must be provided together")
	}
	if (f.From != nil || f.To != nil) && TimeField(collection) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "date range is only supported on log collections").
			WithDetails(map[string]any{"collection": collection})
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	return nil
}

func (f Filter) empty() bool {
	return f.Field == "" && f.From == nil && f.To == nil
}

// Matches reports whether record passes the filter.
func (f Filter) Matches(collection enums.Collection, record json.RawMessage) bool {
	if f.empty() {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(record, &fields); err != nil {
		return false
	}
	if f.Field != "" {
		value, ok := fields[f.Field]
		if !ok || !strings.EqualFold(stringify(value), f.Value) {
			return false
		}
	}
	if f.From == nil && f.To == nil {
		return true
	}
	raw, _ := fields[TimeField(collection)].(string)
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return false
	}
	if f.From != nil && at.Before(*f.From) {
		return false
	}
	if f.To != nil && !at.Before(*f.To) {
		return false
	}
	return true
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
