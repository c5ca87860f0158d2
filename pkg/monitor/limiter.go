package monitor

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterStore manages per-sensor refresh limiters: sensor key -> rate limiter
type RateLimiterStore struct {
	limiters     map[string]*rate.Limiter
	mu           sync.Mutex
	defaultRate  rate.Limit
	defaultBurst int
}

func NewRateLimiterStore(defaultRate rate.Limit, defaultBurst int) *RateLimiterStore {
	return &RateLimiterStore{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  defaultRate,
		defaultBurst: defaultBurst,
	}
}

func (s *RateLimiterStore) GetLimiter(sensorKey string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[sensorKey]
	if !exists {
		limiter = rate.NewLimiter(s.defaultRate, s.defaultBurst)
		s.limiters[sensorKey] = limiter
	}
	return limiter
}

func (s *RateLimiterStore) SetLimiter(sensorKey string, sensorRate rate.Limit, sensorBurst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiters[sensorKey] = rate.NewLimiter(sensorRate, sensorBurst)
}

// Allow reports whether a manual refresh of sensorKey may run now. A nil
// store allows everything.
func (s *RateLimiterStore) Allow(sensorKey string) bool {
	if s == nil {
		return true
	}
	return s.GetLimiter(sensorKey).Allow()
}
