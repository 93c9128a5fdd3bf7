package snowflake

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parts splits an ID into its timestamp in Unix milliseconds, node and step
func parts(id int64) (timestamp, node, step int64) {
	return (id >> timeShift) + Epoch, (id >> nodeShift) & nodeMask, id & stepMask
}

func TestNewIDGeneratorNodeRange(t *testing.T) {
	tests := []struct {
		node int64
		ok   bool
	}{
		{-1, false},
		{0, true},
		{nodeMask, true},
		{nodeMask + 1, false},
	}
	for _, tt := range tests {
		gen, err := NewIDGenerator(tt.node)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrInvalidNodeID, "node %d", tt.node)
			assert.Nil(t, gen)
			continue
		}
		require.NoError(t, err, "node %d", tt.node)
		_, node, _ := parts(gen.NextID())
		assert.Equal(t, tt.node, node)
	}
}

func TestIDLayout(t *testing.T) {
	gen, err := NewIDGenerator(123)
	require.NoError(t, err)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	gen.now = func() int64 { return clock }

	first := gen.NextID()
	second := gen.NextID()

	ts, node, step := parts(first)
	assert.Equal(t, clock, ts)
	assert.Equal(t, int64(123), node)
	assert.Equal(t, int64(0), step)
	_, _, step = parts(second)
	assert.Equal(t, int64(1), step)
	assert.Equal(t, int64(1023), int64(nodeMask))
	assert.Equal(t, int64(4095), int64(stepMask))
}

func TestIDsIncreaseWhenClockStepsBack(t *testing.T) {
	gen, err := NewIDGenerator(1)
	require.NoError(t, err)

	clock := time.Now().UnixMilli()
	gen.now = func() int64 { return clock }
	first := gen.NextID()

	clock -= 5000
	second := gen.NextID()
	assert.Greater(t, second, first)
	firstTS, _, _ := parts(first)
	secondTS, _, _ := parts(second)
	assert.Equal(t, firstTS, secondTS)
}

func TestSequenceRollsIntoNextMillisecond(t *testing.T) {
	gen, err := NewIDGenerator(1)
	require.NoError(t, err)

	clock := time.Now().UnixMilli()
	calls := 0
	gen.now = func() int64 {
		calls++
		// the generator spins on the clock once the step wraps
		if calls > stepMask+2 {
			return clock + 1
		}
		return clock
	}

	var last int64
	for i := 0; i <= stepMask+1; i++ {
		id := gen.NextID()
		assert.Greater(t, id, last)
		last = id
	}
	ts, _, step := parts(last)
	assert.Equal(t, clock+1, ts)
	assert.Equal(t, int64(0), step)
}

func TestConcurrentIDsAreUnique(t *testing.T) {
	gen, err := NewIDGenerator(7)
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, gen.NextID())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestOrderNumbers(t *testing.T) {
	gen, err := NewIDGenerator(3)
	require.NoError(t, err)

	number := gen.NextNumber("MK")
	assert.True(t, strings.HasPrefix(number, "MK"))

	id, err := ParseNumber("MK", number)
	require.NoError(t, err)
	_, node, _ := parts(id)
	assert.Equal(t, int64(3), node)
	assert.Equal(t, number, FormatNumber("MK", id))

	for _, bad := range []string{"XX123", "MKabc", "MK", "MK-5"} {
		_, err = ParseNumber("MK", bad)
		assert.ErrorIs(t, err, ErrInvalidNumber, bad)
	}
}
