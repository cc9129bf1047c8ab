package lamp

import (
	"context"
	"log/slog"
	"sync"
)

// Announcer keeps a store's announcements in the order its updates were
// stored. Without it two concurrent updates of one lamp can commit as on,
// off and announce as off, on, leaving drivers out of step with the store.
//
// The zero value is ready to use.
type Announcer struct {
	mu sync.Mutex
}

type announcingKey struct{ a *Announcer }

// Do runs update and announces its result through pub before any other Do
// on the same Announcer can start. Updates made while handling that
// announcement (a rule switching a second lamp in reaction to the first)
// carry the announcing ctx and run straight through instead of waiting on
// themselves.
//
// update returns the stored lamp and whether a field changed. A failed
// announcement is logged, not returned: the update is already stored, and
// publish failures belong to the callbacks, not the caller.
func (a *Announcer) Do(ctx context.Context, pub Publisher, log *slog.Logger, update func(context.Context) (Lamp, bool, error)) (Lamp, error) {
	key := announcingKey{a}
	if ctx.Value(key) == nil {
		a.mu.Lock()
		defer a.mu.Unlock()
		ctx = context.WithValue(ctx, key, true)
	}

	l, changed, err := update(ctx)
	if err != nil {
		return Lamp{}, err
	}
	if changed {
		log.Info("lamp updated", "lamp", l.String())
	}
	if err := Announce(ctx, pub, l, changed); err != nil {
		log.Error("lamp state announcement failed", "lamp", l.ID, "error", err)
	}
	return l.Clone(), nil
}
