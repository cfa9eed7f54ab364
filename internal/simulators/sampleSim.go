package simulators

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var simulatedValues = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mtua",
	Name:      "simulated_values_total",
	Help:      "Values produced by the sample simulators, by sample.",
}, []string{"sample"})

// SampleSim produces a random walk around a mean value.
type SampleSim struct {
	// Sample id, used in logs and metrics
	ID string

	mu                sync.Mutex
	mean              float64
	standardDeviation float64
	currentValue      float64
	rng               *rand.Rand

	// Delay between each data point
	delayMin time.Duration
	delayMax time.Duration
	// Randomize delay between data points if true,
	// otherwise delayMin is used as a fixed delay
	randomize bool
}

func NewSampleSim(id string, mean, standardDeviation float64, delayMin, delayMax time.Duration, randomize bool) *SampleSim {
	return NewSampleSimWithSource(id, mean, standardDeviation, delayMin, delayMax, randomize, rand.NewSource(time.Now().UnixNano()))
}

// NewSampleSimWithSource is NewSampleSim with a given random source.
func NewSampleSimWithSource(id string, mean, standardDeviation float64, delayMin, delayMax time.Duration, randomize bool, src rand.Source) *SampleSim {
	rng := rand.New(src)
	if delayMin <= 0 {
		delayMin = time.Second
	}
	if delayMax < delayMin {
		delayMax = delayMin
	}
	return &SampleSim{
		ID:                id,
		mean:              mean,
		standardDeviation: math.Abs(standardDeviation),
		currentValue:      mean - rng.Float64(),
		rng:               rng,
		delayMin:          delayMin,
		delayMax:          delayMax,
		randomize:         randomize,
	}
}

// NextValue advances the walk by one step and returns the new value.
func (s *SampleSim) NextValue() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	// how much the value changes
	valueChange := s.rng.Float64() * s.standardDeviation / 10
	s.currentValue += valueChange * s.decideFactor()
	return s.currentValue
}

// decideFactor returns +1 or -1. Close to the mean both directions are about as
// likely; far from it the walk tends back towards the mean.
func (s *SampleSim) decideFactor() float64 {
	var (
		continueDirection, changeDirection float64
		distance                           float64 // the distance from the mean.
	)
	if s.currentValue > s.mean {
		distance = s.currentValue - s.mean
		continueDirection = 1
		changeDirection = -1
	} else {
		distance = s.mean - s.currentValue
		continueDirection = -1
		changeDirection = 1
	}
	// The division by 50 was found by empiric testing.
	chance := (s.standardDeviation / 2) - (distance / 50)
	randomValue := s.standardDeviation * s.rng.Float64()
	if randomValue < chance {
		return continueDirection
	}
	return changeDirection
}

// UpdateParams restarts the walk around a new mean.
func (s *SampleSim) UpdateParams(mean, standardDeviation float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mean = mean
	s.currentValue = mean - s.rng.Float64()
	s.standardDeviation = math.Abs(standardDeviation)
}

func (s *SampleSim) nextDelay() time.Duration {
	if !s.randomize || s.delayMax == s.delayMin {
		return s.delayMin
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delayMin + time.Duration(s.rng.Int63n(int64(s.delayMax-s.delayMin)))
}

// Run hands a first value to publish at once and a new one after every delay, until
// ctx is done.
func (s *SampleSim) Run(ctx context.Context, logger *zap.SugaredLogger, publish func(float64)) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger.Debugw("Started running 🔔", "sample", s.ID)
	emit := func() {
		publish(s.NextValue())
		simulatedValues.WithLabelValues(s.ID).Inc()
	}
	emit()
	timer := time.NewTimer(s.nextDelay())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debugw("Got shutdown signal 🔔", "sample", s.ID)
			return
		case <-timer.C:
			emit()
			timer.Reset(s.nextDelay())
		}
	}
}
