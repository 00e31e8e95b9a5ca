package outbox

import (
	"encoding/json"
	"time"

	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
)

// Change is the wire form of one committed mutation. Record carries the full
// record for upserts and is empty for deletes.
type Change struct {
	Seq        int64            `json:"seq"`
	Collection enums.Collection `json:"collection"`
	Op         enums.ChangeOp   `json:"op"`
	ID         string           `json:"id"`
	Record     json.RawMessage  `json:"record,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
}

// ChangeFromRow converts a stored outbox row into its wire form.
func ChangeFromRow(row models.OutboxEvent) Change {
	change := Change{
		Seq:        row.ID,
		Collection: row.Collection,
		Op:         row.Op,
		ID:         row.RecordID.String(),
		OccurredAt: row.CreatedAt.UTC(),
	}
	if row.Op == enums.ChangeUpsert && row.Payload != "" {
		change.Record = json.RawMessage(row.Payload)
	}
	return change
}
