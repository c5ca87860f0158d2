package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	z "github.com/Oudwins/zog"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/monitor"
)

func validateSensorKey(sensorKey *string) z.ZogIssueList {
	var sensorKeyValidator = z.String().Min(1).Required()
	return sensorKeyValidator.Validate(sensorKey)
}

func (s *MonitorServer) findSensor(req *wrapperspb.StringValue) (*monitor.SensorMonitor, error) {
	key := req.GetValue()
	if err := validateSensorKey(&key); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation error: %v", err)
	}

	sm, err := s.Monitor.Sensor(key)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return sm, nil
}

// toProtoValue converts v through its JSON form, so field names match the
// HTTP API.
func toProtoValue(v any) (*structpb.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}

func snapshotToStruct(snapshot monitor.Snapshot) (*structpb.Struct, error) {
	v, err := toProtoValue(snapshot)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return v.GetStructValue(), nil
}

func (s *MonitorServer) GetStatus(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	sm, err := s.findSensor(req)
	if err != nil {
		return nil, err
	}
	return snapshotToStruct(sm.Snapshot())
}

func (s *MonitorServer) ListAlerts(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	sm, err := s.findSensor(req)
	if err != nil {
		return nil, err
	}

	v, err := toProtoValue(sm.Alerts())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode alerts: %v", err)
	}
	if list := v.GetListValue(); list != nil {
		return list, nil
	}
	return &structpb.ListValue{}, nil
}

func (s *MonitorServer) Refresh(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	sm, err := s.findSensor(req)
	if err != nil {
		return nil, err
	}

	snapshot, err := sm.Refresh(ctx)
	if errors.Is(err, monitor.ErrNotRunning) {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return snapshotToStruct(snapshot)
}

func (s *MonitorServer) SetLimiter(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	fields := req.GetFields()

	sm, err := s.findSensor(wrapperspb.String(fields["sensor"].GetStringValue()))
	if err != nil {
		return nil, err
	}

	sensorRate := fields["rate"].GetNumberValue()
	var rateValidator = z.Float64().GT(0).Required()
	if err := rateValidator.Validate(&sensorRate); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation error: %v", err)
	}

	sensorBurst := int(fields["burst"].GetNumberValue())
	var burstValidator = z.Int().GT(0).Required()
	if err := burstValidator.Validate(&sensorBurst); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation error: %v", err)
	}

	if s.RateLimiterStore == nil {
		return nil, status.Error(codes.FailedPrecondition, "RateLimiterStore is not used. No effect.")
	}

	s.RateLimiterStore.SetLimiter(sm.Profile.Key, rate.Limit(sensorRate), sensorBurst)
	common.GetLoggerWith(common.LoggerNameGrpcServer).Info("Limiter updated",
		zap.String("sensor", sm.Profile.Key),
		zap.String("limiter", fmt.Sprintf("{\"rate\": %v, \"burst\": %v}", sensorRate, sensorBurst)))
	return &emptypb.Empty{}, nil
}
