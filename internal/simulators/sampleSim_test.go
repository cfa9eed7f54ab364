package simulators

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextValueStaysNearMean(t *testing.T) {
	s := NewSampleSimWithSource("temp", 45, 3, time.Second, time.Second, false, rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		v := s.NextValue()
		assert.InDelta(t, 45, v, 30)
	}
}

func TestStepSize(t *testing.T) {
	s := NewSampleSimWithSource("temp", 10, 2, time.Second, time.Second, false, rand.NewSource(7))
	prev := s.NextValue()
	for i := 0; i < 1000; i++ {
		v := s.NextValue()
		assert.LessOrEqual(t, v-prev, 0.2+1e-9)
		assert.GreaterOrEqual(t, v-prev, -0.2-1e-9)
		prev = v
	}
}

func TestUpdateParams(t *testing.T) {
	s := NewSampleSimWithSource("temp", 10, 2, time.Second, time.Second, false, rand.NewSource(3))
	s.UpdateParams(500, -4)
	assert.InDelta(t, 500, s.NextValue(), 2)
	assert.Equal(t, 4.0, s.standardDeviation)
}

func TestDelays(t *testing.T) {
	fixed := NewSampleSimWithSource("a", 0, 1, 0, 0, true, rand.NewSource(1))
	assert.Equal(t, time.Second, fixed.nextDelay())

	random := NewSampleSimWithSource("b", 0, 1, 10*time.Millisecond, 20*time.Millisecond, true, rand.NewSource(1))
	for i := 0; i < 100; i++ {
		d := random.nextDelay()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 20*time.Millisecond)
	}
}

func TestRun(t *testing.T) {
	s := NewSampleSimWithSource("temp", 45, 3, time.Millisecond, 2*time.Millisecond, true, rand.NewSource(5))
	var (
		mu     sync.Mutex
		values []float64
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, nil, func(v float64) {
			mu.Lock()
			values = append(values, v)
			mu.Unlock()
		})
		close(done)
	}()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(values) >= 3
	}, time.Second, time.Millisecond)
	cancel()
	<-done
}
