package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Notifier publishes a PostgreSQL NOTIFY whenever a new conversation summary
// is saved, so dashboards listening on the channel can refresh.
type Notifier struct {
	DB      *sql.DB
	Channel string
}

// NewNotifier constructs a new Notifier for the given channel.
func NewNotifier(db *sql.DB, channel string) *Notifier {
	return &Notifier{DB: db, Channel: channel}
}

// Notify sends the patient ID as the payload on the channel. NOTIFY takes no
// bind parameters, so both parts are quoted by pq.
func (n *Notifier) Notify(ctx context.Context, patientID string) error {
	stmt := fmt.Sprintf("NOTIFY %s, %s", pq.QuoteIdentifier(n.Channel), pq.QuoteLiteral(patientID))
	if _, err := n.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("db: notify %s: %w", n.Channel, err)
	}
	return nil
}
