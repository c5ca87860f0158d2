package grpc

import (
	"golang.org/x/time/rate"

	"liyu1981.xyz/water-quality-monitor/pkg/monitor"
)

type MonitorServer struct {
	Monitor          *monitor.Monitor
	RateLimiterStore *monitor.RateLimiterStore
}

var _ MonitorServiceServer = (*MonitorServer)(nil)

func (s *MonitorServer) GetLimiter(sensorKey string) *rate.Limiter {
	if s.RateLimiterStore == nil {
		return nil
	} else {
		return s.RateLimiterStore.GetLimiter(sensorKey)
	}
}

func (s *MonitorServer) CheckSensorLimiter(sensorKey string) bool {
	return s.RateLimiterStore.Allow(sensorKey)
}
