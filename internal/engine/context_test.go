package engine

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodomum/autodomum/internal/daylight"
)

func TestContext_Attributes(t *testing.T) {
	c := newContext(daylight.Stockholm, 1)

	require.NoError(t, c.Set("mode", "away"))
	require.NoError(t, c.Set("count", 3))
	require.NoError(t, c.Set("ratio", 0.5))
	require.NoError(t, c.Set("armed", true))

	v, ok := c.Get("mode")
	require.True(t, ok)
	assert.Equal(t, String("away"), v)

	assert.Equal(t, "away", c.GetString("mode"))
	assert.Equal(t, "3", c.GetString("count"))
	assert.Equal(t, "0.5", c.GetString("ratio"))
	assert.Equal(t, "true", c.GetString("armed"))
	assert.Equal(t, "", c.GetString("missing"))
}

func TestContext_LastWriteWins(t *testing.T) {
	c := newContext(daylight.Stockholm, 1)

	require.NoError(t, c.Set("k", "a"))
	require.NoError(t, c.Set("k", 7))

	assert.Equal(t, "7", c.GetString("k"))
}

func TestContext_SetNilRemoves(t *testing.T) {
	c := newContext(daylight.Stockholm, 1)

	require.NoError(t, c.Set("k", "a"))
	require.NoError(t, c.Set("k", nil))

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.SetValue("j", Int(1))
	c.Delete("j")
	c.Delete("never-set")
	assert.Empty(t, c.Attributes())
}

func TestContext_SetRejectsComposite(t *testing.T) {
	c := newContext(daylight.Stockholm, 1)

	err := c.Set("k", []int{1})
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
}

func TestContext_AttributesIsCopy(t *testing.T) {
	c := newContext(daylight.Stockholm, 1)
	c.SetValue("k", String("v"))

	attrs := c.Attributes()
	attrs["k"] = String("changed")

	assert.Equal(t, "v", c.GetString("k"))
}

func TestContext_ConcurrentAttributes(t *testing.T) {
	c := newContext(daylight.Stockholm, 1)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.SetValue("shared", Int(i))
			_ = c.GetString("shared")
			_ = c.Attributes()
		}(i)
	}
	wg.Wait()

	_, ok := c.Get("shared")
	assert.True(t, ok)
}

func TestContext_RandomDeterministicPerSeed(t *testing.T) {
	a := newContext(daylight.Stockholm, 42)
	b := newContext(daylight.Stockholm, 42)

	for i := 0; i < 20; i++ {
		x, y := a.IntN(1000), b.IntN(1000)
		assert.Equal(t, x, y)
		assert.GreaterOrEqual(t, x, 0)
		assert.Less(t, x, 1000)
	}
	assert.Equal(t, a.Float64(), b.Float64())
	assert.Equal(t, 0, a.IntN(0))
}

func TestContext_ApplyReportsFlip(t *testing.T) {
	c := newContext(daylight.Stockholm, 1)

	flipped, now := c.apply(recomputed{hour: 8, daylight: boolPtr(true)})
	assert.True(t, flipped)
	assert.True(t, now)

	flipped, now = c.apply(recomputed{hour: 9, daylight: boolPtr(true)})
	assert.False(t, flipped)
	assert.True(t, now)

	flipped, now = c.apply(recomputed{hour: 4})
	assert.False(t, flipped)
	assert.True(t, now, "nil daylight keeps the previous value")
	assert.Equal(t, 4, c.Hour())
}

func TestContext_SnapshotJSON(t *testing.T) {
	c := newContext(daylight.Coordinate{Latitude: 1.5, Longitude: 2.5}, 1)
	c.apply(recomputed{
		hour:        22,
		minute:      30,
		holiday:     true,
		nextSunrise: at("2016-04-06 06:35:02"),
		nextSunset:  at("2016-04-06 18:40:03"),
	})
	c.SetValue("mode", String("home"))
	c.SetValue("count", Int(2))

	data, err := json.Marshal(c.Snapshot())
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"hour": 22,
		"minute": 30,
		"holiday": true,
		"daylight": false,
		"next_sunrise": "2016-04-06T06:35:02Z",
		"next_sunset": "2016-04-06T18:40:03Z",
		"latitude": 1.5,
		"longitude": 2.5,
		"attributes": {"mode": "home", "count": 2}
	}`, string(data))
}
