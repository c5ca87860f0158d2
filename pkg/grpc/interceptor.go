package grpc

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"liyu1981.xyz/water-quality-monitor/pkg/common"
)

// CreateRateLimitInterceptor limits the given methods per sensor. The sensor
// is resolved first so its key and store id share one limiter; unknown
// sensors pass through and fail in the handler.
func (s *MonitorServer) CreateRateLimitInterceptor(targetMethods []string) grpc.UnaryServerInterceptor {
	targetMethodMap := common.Reducer(targetMethods,
		func(m map[string]bool, method string) map[string]bool {
			m[method] = true
			return m
		},
		map[string]bool{},
	)

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if _, ok := targetMethodMap[info.FullMethod]; ok {
			if r, ok := req.(interface{ GetValue() string }); ok {
				if sm, err := s.Monitor.Sensor(r.GetValue()); err == nil {
					if !s.CheckSensorLimiter(sm.Profile.Key) {
						common.GetLoggerWith(common.LoggerNameGrpcServer).Debug("Rate limit exceeded",
							zap.String("method", info.FullMethod), zap.String("sensor", sm.Profile.Key))
						return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded")
					}
				}
			}
		}

		return handler(ctx, req)
	}
}
