package lamp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodomum/autodomum/internal/engine"
)

const fixture = `[{"id":"id1", "name":"name1","on":false,"x":1,"y":2,"callIds":["a","b"]}]`

type spyPublisher struct {
	mu     sync.Mutex
	events []engine.Event
	err    error
}

func (p *spyPublisher) PublishContext(_ context.Context, ev engine.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func newFixtureStore(t *testing.T) (*JSONStore, *spyPublisher) {
	t.Helper()
	pub := &spyPublisher{}
	s := NewJSONStore(pub)
	require.NoError(t, s.Load(strings.NewReader(fixture)))
	return s, pub
}

func intPtr(i int) *int { return &i }

func TestLamp_Clone(t *testing.T) {
	l := Lamp{ID: "id1", Name: "name1", On: true, X: 123, Y: 321, CallIDs: []string{"a", "b", "c"}}

	c := l.Clone()
	assert.Equal(t, l, c)

	c.CallIDs[0] = "z"
	assert.Equal(t, "a", l.CallIDs[0], "clone must not share call ids")

	assert.Nil(t, Lamp{ID: "x"}.Clone().CallIDs)
}

func TestLamp_String(t *testing.T) {
	l := Lamp{ID: "id1", Name: "name1", On: true, X: 123, Y: 321, CallIDs: []string{"a", "b", "c"}}
	assert.Equal(t, "Lamp[id=id1 name=name1 on=true x=123 y=321 callIds=[a, b, c]]", l.String())
}

func TestPatch_Apply(t *testing.T) {
	l := Lamp{ID: "id1", X: 1, Y: 2}

	assert.False(t, Patch{}.Apply(&l))
	assert.True(t, Patch{}.Empty())
	assert.False(t, Patch{X: intPtr(1)}.Apply(&l))
	assert.True(t, Patch{Y: intPtr(4)}.Apply(&l))
	assert.True(t, SetOn(true).Apply(&l))

	assert.Equal(t, Lamp{ID: "id1", On: true, X: 1, Y: 4}, l)
}

func TestJSONStore_Get(t *testing.T) {
	s, _ := newFixtureStore(t)

	l, err := s.Get(context.Background(), "id1")
	require.NoError(t, err)
	assert.Equal(t, "id1", l.ID)
	assert.Equal(t, "name1", l.Name)
}

func TestJSONStore_GetUnknown(t *testing.T) {
	s, _ := newFixtureStore(t)

	_, err := s.Get(context.Background(), "id2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJSONStore_GetReturnsCopy(t *testing.T) {
	s, _ := newFixtureStore(t)

	l, err := s.Get(context.Background(), "id1")
	require.NoError(t, err)
	l.CallIDs[0] = "mutated"
	l.X = 99

	again, err := s.Get(context.Background(), "id1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, again.CallIDs)
	assert.Equal(t, 1, again.X)
}

func TestJSONStore_Update(t *testing.T) {
	tests := []struct {
		name    string
		patch   Patch
		want    Lamp
		changed bool
	}{
		{"x", Patch{X: intPtr(3)}, Lamp{ID: "id1", Name: "name1", X: 3, Y: 2, CallIDs: []string{"a", "b"}}, true},
		{"x not modified", Patch{X: intPtr(1)}, Lamp{ID: "id1", Name: "name1", X: 1, Y: 2, CallIDs: []string{"a", "b"}}, false},
		{"y", Patch{Y: intPtr(4)}, Lamp{ID: "id1", Name: "name1", X: 1, Y: 4, CallIDs: []string{"a", "b"}}, true},
		{"y not modified", Patch{Y: intPtr(2)}, Lamp{ID: "id1", Name: "name1", X: 1, Y: 2, CallIDs: []string{"a", "b"}}, false},
		{"on", SetOn(true), Lamp{ID: "id1", Name: "name1", On: true, X: 1, Y: 2, CallIDs: []string{"a", "b"}}, true},
		{"on not modified", SetOn(false), Lamp{ID: "id1", Name: "name1", X: 1, Y: 2, CallIDs: []string{"a", "b"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, pub := newFixtureStore(t)

			got, err := s.Update(context.Background(), "id1", tt.patch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			stored, err := s.Get(context.Background(), "id1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored)

			// Announced exactly once, changed or not
			require.Len(t, pub.events, 1)
			assert.Equal(t, StateChanged{Lamp: tt.want, Changed: tt.changed}, pub.events[0])
		})
	}
}

func TestJSONStore_UpdateUnknownDoesNotPublish(t *testing.T) {
	s, pub := newFixtureStore(t)

	_, err := s.Update(context.Background(), "id2", SetOn(false))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, pub.events)
}

func TestJSONStore_UpdatePublishError(t *testing.T) {
	s, pub := newFixtureStore(t)
	pub.err = errors.New("engine gone")

	got, err := s.Update(context.Background(), "id1", SetOn(true))
	require.NoError(t, err, "the update is stored; announcement failures are only logged")
	assert.True(t, got.On)

	stored, err := s.Get(context.Background(), "id1")
	require.NoError(t, err)
	assert.True(t, stored.On)
}

// blockingPublisher records announcements and holds the first one until
// release is closed.
type blockingPublisher struct {
	mu      sync.Mutex
	on      []bool
	first   chan struct{}
	release chan struct{}
}

func newBlockingPublisher() *blockingPublisher {
	return &blockingPublisher{first: make(chan struct{}), release: make(chan struct{})}
}

func (p *blockingPublisher) PublishContext(_ context.Context, ev engine.Event) error {
	p.mu.Lock()
	p.on = append(p.on, ev.(StateChanged).Lamp.On)
	first := len(p.on) == 1
	p.mu.Unlock()
	if first {
		close(p.first)
		<-p.release
	}
	return nil
}

func (p *blockingPublisher) announced() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.on...)
}

func TestJSONStore_AnnouncementsFollowStoreOrder(t *testing.T) {
	pub := newBlockingPublisher()
	s := NewJSONStore(pub)
	require.NoError(t, s.Load(strings.NewReader(fixture)))

	onDone := make(chan error, 1)
	go func() {
		_, err := s.Update(context.Background(), "id1", SetOn(true))
		onDone <- err
	}()
	<-pub.first

	offDone := make(chan error, 1)
	go func() {
		_, err := s.Update(context.Background(), "id1", SetOn(false))
		offDone <- err
	}()
	assert.Never(t, func() bool { return len(offDone) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"the second update waits for the first announcement")

	// Reads are not held up by a pending announcement.
	stored, err := s.Get(context.Background(), "id1")
	require.NoError(t, err)
	assert.True(t, stored.On)

	close(pub.release)
	require.NoError(t, <-onDone)
	require.NoError(t, <-offDone)

	assert.Equal(t, []bool{true, false}, pub.announced())
	stored, err = s.Get(context.Background(), "id1")
	require.NoError(t, err)
	assert.False(t, stored.On, "the last announcement matches the stored state")
}

type funcPublisher func(ctx context.Context, ev engine.Event) error

func (f funcPublisher) PublishContext(ctx context.Context, ev engine.Event) error {
	return f(ctx, ev)
}

func TestJSONStore_UpdateInsideAnnouncement(t *testing.T) {
	var s *JSONStore
	s = NewJSONStore(funcPublisher(func(ctx context.Context, ev engine.Event) error {
		if l := ev.(StateChanged).Lamp; l.ID == "id1" {
			_, err := s.Update(ctx, "id0", SetOn(l.On))
			return err
		}
		return nil
	}))
	require.NoError(t, s.Load(strings.NewReader(fixture)))
	require.NoError(t, s.Load(strings.NewReader(`[{"id":"id0","name":"follower"}]`)))

	done := make(chan error, 1)
	go func() {
		_, err := s.Update(context.Background(), "id1", SetOn(true))
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("update from inside an announcement deadlocked")
	}

	follower, err := s.Get(context.Background(), "id0")
	require.NoError(t, err)
	assert.True(t, follower.On)
}

func TestJSONStore_NilPublisher(t *testing.T) {
	s := NewJSONStore(nil)
	require.NoError(t, s.Load(strings.NewReader(fixture)))

	_, err := s.Update(context.Background(), "id1", SetOn(true))
	assert.NoError(t, err)
}

func TestJSONStore_List(t *testing.T) {
	s, _ := newFixtureStore(t)
	require.NoError(t, s.Load(strings.NewReader(`[{"id":"id0","name":"first"}]`)))

	lamps, err := s.List(context.Background())
	require.NoError(t, err)

	require.Len(t, lamps, 2)
	assert.Equal(t, "id0", lamps[0].ID)
	assert.Equal(t, Lamp{ID: "id1", Name: "name1", X: 1, Y: 2, CallIDs: []string{"a", "b"}}, lamps[1])
}

func TestJSONStore_LoadErrors(t *testing.T) {
	s := NewJSONStore(nil)

	assert.Error(t, s.Load(strings.NewReader(`{"id":"not an array"}`)))
	assert.Error(t, s.Load(strings.NewReader(`[{"name":"no id"}]`)))
}

func TestJSONStore_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lamps.json")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	s := NewJSONStore(nil)
	require.NoError(t, s.LoadFile(path))

	lamps, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, lamps, 1)

	assert.Error(t, s.LoadFile(filepath.Join(t.TempDir(), "missing.json")))
}

func TestStateChanged_ThroughEngine(t *testing.T) {
	e, err := engine.New(daylightStub{}.coord(), daylightStub{}, nil)
	require.NoError(t, err)

	var got []StateChanged
	_, err = e.Register(engine.KindLampStateChanged, engine.CallbackFunc(func(_ *engine.Context, ev engine.Event) error {
		got = append(got, ev.(StateChanged))
		return nil
	}))
	require.NoError(t, err)

	s := NewJSONStore(e)
	require.NoError(t, s.Load(strings.NewReader(fixture)))

	_, err = s.Update(context.Background(), "id1", SetOn(true))
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.True(t, got[0].Lamp.On)
	assert.True(t, got[0].Changed)
}
