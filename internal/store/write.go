package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/autodomum/autodomum/internal/lamp"
)

// Lamps is a lamp.Store backed by the lamps table.
//
// Update announces a lamp.StateChanged through the publisher after the
// transaction commits, whether or not a field changed. Announcements come
// out in commit order.
type Lamps struct {
	store    *Store
	pub      lamp.Publisher
	log      *slog.Logger
	announce lamp.Announcer
}

// Lamps returns a lamp.Store over s that announces updates through pub.
func (s *Store) Lamps(pub lamp.Publisher) *Lamps {
	return &Lamps{store: s, pub: pub, log: s.log}
}

// SetPublisher replaces the publisher.
func (l *Lamps) SetPublisher(pub lamp.Publisher) {
	l.pub = pub
}

// Seed upserts lamps. Existing rows are overwritten in full, including the
// on state. Seeding does not announce anything.
func (l *Lamps) Seed(ctx context.Context, lamps []lamp.Lamp) error {
	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed lamps: %w", err)
	}
	defer tx.Rollback()

	for _, lp := range lamps {
		if lp.ID == "" {
			return fmt.Errorf("seed lamps: lamp %q has no id", lp.Name)
		}
		callIDs, err := marshalCallIDs(lp.CallIDs)
		if err != nil {
			return fmt.Errorf("seed lamps: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO lamps (id, name, on_state, x, y, call_ids)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				on_state = excluded.on_state,
				x = excluded.x,
				y = excluded.y,
				call_ids = excluded.call_ids
		`,
			lp.ID,
			lp.Name,
			boolToInt(lp.On),
			lp.X,
			lp.Y,
			callIDs,
		)
		if err != nil {
			return fmt.Errorf("seed lamp %s: %w", lp.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed lamps: %w", err)
	}
	return nil
}

// Update implements lamp.Store.
func (l *Lamps) Update(ctx context.Context, id string, p lamp.Patch) (lamp.Lamp, error) {
	return l.announce.Do(ctx, l.pub, l.log, func(ctx context.Context) (lamp.Lamp, bool, error) {
		return l.update(ctx, id, p)
	})
}

func (l *Lamps) update(ctx context.Context, id string, p lamp.Patch) (lamp.Lamp, bool, error) {
	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return lamp.Lamp{}, false, fmt.Errorf("update lamp: %w", err)
	}
	defer tx.Rollback()

	current, err := getLamp(ctx, tx, id)
	if err != nil {
		return lamp.Lamp{}, false, err
	}

	changed := p.Apply(&current)
	if changed {
		_, err = tx.ExecContext(ctx, `
			UPDATE lamps SET on_state = ?, x = ?, y = ?
			WHERE id = ?
		`,
			boolToInt(current.On),
			current.X,
			current.Y,
			id,
		)
		if err != nil {
			return lamp.Lamp{}, false, fmt.Errorf("update lamp %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return lamp.Lamp{}, false, fmt.Errorf("update lamp %s: %w", id, err)
	}
	return current, changed, nil
}
