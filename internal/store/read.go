package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autodomum/autodomum/internal/lamp"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLamp(row rowScanner) (lamp.Lamp, error) {
	var (
		l       lamp.Lamp
		on      int
		callIDs string
	)
	if err := row.Scan(&l.ID, &l.Name, &on, &l.X, &l.Y, &callIDs); err != nil {
		return lamp.Lamp{}, err
	}
	l.On = on == 1

	ids, err := unmarshalCallIDs(callIDs)
	if err != nil {
		return lamp.Lamp{}, fmt.Errorf("lamp %s: %w", l.ID, err)
	}
	l.CallIDs = ids
	return l, nil
}

// Get implements lamp.Store.
func (l *Lamps) Get(ctx context.Context, id string) (lamp.Lamp, error) {
	return getLamp(ctx, l.store.db, id)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getLamp(ctx context.Context, q queryer, id string) (lamp.Lamp, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, on_state, x, y, call_ids
		FROM lamps
		WHERE id = ?
	`, id)

	got, err := scanLamp(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lamp.Lamp{}, fmt.Errorf("%w: %s", lamp.ErrNotFound, id)
	}
	if err != nil {
		return lamp.Lamp{}, fmt.Errorf("read lamp: %w", err)
	}
	return got, nil
}

// List implements lamp.Store. Lamps are ordered by id.
//
// Returns an empty slice (not nil) when the table is empty.
func (l *Lamps) List(ctx context.Context) ([]lamp.Lamp, error) {
	rows, err := l.store.db.QueryContext(ctx, `
		SELECT id, name, on_state, x, y, call_ids
		FROM lamps
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query lamps: %w", err)
	}
	defer rows.Close()

	lamps := []lamp.Lamp{}
	for rows.Next() {
		got, err := scanLamp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lamp: %w", err)
		}
		lamps = append(lamps, got)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lamps: %w", err)
	}

	return lamps, nil
}
