package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsline/settled/internal/domain"
)

// EventJournal persists engine events to an append-only table that external
// indexers query. Rows are never updated or deleted.
type EventJournal struct {
	pool *pgxpool.Pool
}

// NewEventJournal creates an EventJournal backed by the given connection pool.
func NewEventJournal(pool *pgxpool.Pool) *EventJournal {
	return &EventJournal{pool: pool}
}

// Publish appends the event to the journal.
func (j *EventJournal) Publish(ctx context.Context, ev domain.Event) error {
	var amount pgtype.Numeric
	if ev.Amount != nil {
		amount = numericFromBig(ev.Amount)
	}

	if _, err := j.pool.Exec(ctx,
		`INSERT INTO events (id, topic, market_id, actor, side, amount, emitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, string(ev.Topic), int64(ev.MarketID), ev.Actor, string(ev.Side), amount, ev.EmittedAt,
	); err != nil {
		return fmt.Errorf("postgres: journal event %s: %w", ev.Topic, err)
	}
	return nil
}

// ListByMarket returns the journaled events of one market in emission order.
func (j *EventJournal) ListByMarket(ctx context.Context, marketID uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := j.pool.Query(ctx,
		`SELECT id, topic, market_id, actor, side, amount, emitted_at
		 FROM events WHERE market_id = $1
		 ORDER BY emitted_at ASC, recorded_at ASC
		 LIMIT $2`,
		int64(marketID), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events: %w", err)
	}
	return events, nil
}

func scanEventRows(rows pgx.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var (
			ev       domain.Event
			topic    string
			marketID int64
			side     string
			amount   pgtype.Numeric
		)
		if err := rows.Scan(&ev.ID, &topic, &marketID, &ev.Actor, &side, &amount, &ev.EmittedAt); err != nil {
			return nil, err
		}
		ev.Topic = domain.EventTopic(topic)
		ev.MarketID = uint64(marketID)
		ev.Side = domain.Side(side)
		if amount.Valid {
			v, err := bigFromNumeric(amount)
			if err != nil {
				return nil, err
			}
			ev.Amount = v
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Compile-time interface check.
var _ domain.EventPublisher = (*EventJournal)(nil)
