package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodomum/autodomum/internal/testutil"
)

func TestUUIDv7Generator_ValidFormat(t *testing.T) {
	gen := UUIDv7Generator{}
	h := gen.Generate()

	assert.Len(t, string(h), 36, "UUID should be 36 characters")

	parsed, err := uuid.Parse(string(h))
	require.NoError(t, err, "handle should be valid UUID")
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_Concurrent(t *testing.T) {
	gen := UUIDv7Generator{}
	const goroutines = 100

	handles := make(chan Handle, goroutines)
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles <- gen.Generate()
		}()
	}

	wg.Wait()
	close(handles)

	seen := make(map[Handle]bool)
	for h := range handles {
		require.False(t, seen[h], "duplicate handle generated")
		seen[h] = true
	}
	assert.Len(t, seen, goroutines)
}

func TestEngine_Register_UsesHandleGenerator(t *testing.T) {
	e := newTestEngine(t, WithHandleGenerator(testutil.NewFixedGenerator[Handle]("first", "second")))
	noop := CallbackFunc(func(*Context, Event) error { return nil })

	h1, err := e.Register(KindStartup, noop)
	require.NoError(t, err)
	h2, err := e.Register(KindStartup, noop)
	require.NoError(t, err)

	assert.Equal(t, Handle("first"), h1)
	assert.Equal(t, Handle("second"), h2)
}
