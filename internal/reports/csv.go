package reports

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/ppetrack/ppetrack-backend/internal/ledger"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
)

// Field is one column of a flat record.
type Field struct {
	Key   string
	Value string
}

// Record is a flat row whose field order defines the CSV column order.
type Record []Field

// WriteCSV writes a header row of the first record's keys followed by one row
// per record. Every record must carry the same keys in the same order.
func WriteCSV(w io.Writer, records []Record) error {
	if len(records) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "nothing to export")
	}
	header := make([]string, len(records[0]))
	for i, field := range records[0] {
		header[i] = field.Key
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for n, record := range records {
		if len(record) != len(header) {
			return pkgerrors.New(pkgerrors.CodeValidation, "records are not uniform").
				WithDetails(map[string]any{"record": n})
		}
		for i, field := range record {
			if field.Key != header[i] {
				return pkgerrors.New(pkgerrors.CodeValidation, "records are not uniform").
					WithDetails(map[string]any{"record": n, "field": field.Key})
			}
			row[i] = field.Value
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func UsageRecord(e ledger.UsageEventDTO) Record {
	return Record{
		{"timestamp", e.Timestamp.Format(time.RFC3339)},
		{"item", e.ItemName},
		{"employee", e.EmployeeName},
		{"machine", e.MachineName},
		{"location", e.Location.String()},
		{"quantity", strconv.Itoa(e.Quantity)},
		{"notes", e.Notes},
		{"loggedBy", e.LoggedByEmail},
		{"id", e.ID.String()},
	}
}

func PurchaseRecord(e ledger.PurchaseEventDTO) Record {
	return Record{
		{"purchaseTimestamp", e.PurchaseTimestamp.Format(time.RFC3339)},
		{"item", e.ItemName},
		{"supplier", e.SupplierName},
		{"location", e.Location.String()},
		{"quantity", strconv.Itoa(e.Quantity)},
		{"totalCost", e.TotalCost},
		{"loggedBy", e.LoggedByEmail},
		{"id", e.ID.String()},
	}
}
