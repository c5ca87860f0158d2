package grpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/datalog"
	"liyu1981.xyz/water-quality-monitor/pkg/db"
	"liyu1981.xyz/water-quality-monitor/pkg/models"
	"liyu1981.xyz/water-quality-monitor/pkg/monitor"
	"liyu1981.xyz/water-quality-monitor/pkg/monitor/mocks"
	"liyu1981.xyz/water-quality-monitor/pkg/quality"
	_ "liyu1981.xyz/water-quality-monitor/pkg/testing"
)

const bufSize = 1024 * 1024

func newTestMonitor() *monitor.Monitor {
	ph, do := quality.PH, quality.DissolvedOxygen
	ph.SensorID, do.SensorID = uuid.NewString(), uuid.NewString()

	m := &monitor.Monitor{
		Store:    db.NewDocumentStore(db.GetInstance(db.UseMemorySqliteDialector())),
		Interval: time.Hour,
		Location: time.UTC,
	}
	m.WithServices(monitor.ServiceOpts{Fetcher: m.GetIFetcher()})
	m.AddSensors(ph, do)
	return m
}

func startTestServerWithInterceptor(t *testing.T, m *monitor.Monitor, limiterStore *monitor.RateLimiterStore) MonitorServiceClient {
	listener := bufconn.Listen(bufSize)

	monitorServer := MonitorServer{Monitor: m, RateLimiterStore: limiterStore}
	interceptor := monitorServer.CreateRateLimitInterceptor([]string{
		MonitorService_Refresh_FullMethodName,
	})
	server := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	RegisterMonitorServiceServer(server, &monitorServer)

	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) {
			return listener.Dial()
		}),
		grpc.WithInsecure(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewMonitorServiceClient(conn)
}

func startTestServer(t *testing.T, m *monitor.Monitor) MonitorServiceClient {
	return startTestServerWithInterceptor(t, m, nil)
}

func appendReading(t *testing.T, m *monitor.Monitor, key string, value float64, at time.Time) {
	t.Helper()
	sm, err := m.Sensor(key)
	require.NoError(t, err)

	raw, _ := json.Marshal(value)
	_, err = m.Store.(datalog.Writer).Append(context.Background(), common.CollectionDatalog, datalog.RawDocument{
		SensorID:  sm.Profile.SensorID,
		Value:     raw,
		Timestamp: json.RawMessage(`"` + at.Format(time.RFC3339) + `"`),
	})
	require.NoError(t, err)
}

func startSensor(t *testing.T, m *monitor.Monitor, key string) {
	t.Helper()
	sm, err := m.Sensor(key)
	require.NoError(t, err)
	require.NoError(t, sm.Start(context.Background()))
	t.Cleanup(sm.Stop)
	require.Eventually(t, func() bool {
		return !sm.Snapshot().Refreshing
	}, time.Second, 5*time.Millisecond)
}

func TestGetStatusRefreshAndListAlerts(t *testing.T) {
	common.SetTestLoggerNop()

	m := newTestMonitor()
	client := startTestServer(t, m)
	ctx := context.Background()

	status0, err := client.GetStatus(ctx, wrapperspb.String("ph"))
	require.NoError(t, err)
	assert.Equal(t, "ph", status0.Fields["sensor"].GetStructValue().Fields["key"].GetStringValue())
	assert.Equal(t, "no_data", status0.Fields["evaluation"].GetStructValue().Fields["status"].GetStringValue())
	assert.IsType(t, &structpb.Value_NullValue{}, status0.Fields["reading"].GetKind())

	appendReading(t, m, "ph", 9, time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC))
	startSensor(t, m, "ph")
	sm, err := m.Sensor("ph")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s := sm.Snapshot()
		return s.Reading != nil && !s.Refreshing
	}, time.Second, 5*time.Millisecond)

	// the startup poll logged the first alert, the refresh logs another
	refreshed, err := client.Refresh(ctx, wrapperspb.String("ph"))
	require.NoError(t, err)
	evaluation := refreshed.Fields["evaluation"].GetStructValue().Fields
	assert.Equal(t, "above_range", evaluation["status"].GetStringValue())
	assert.Equal(t, 9.0, evaluation["severity"].GetNumberValue())
	assert.Equal(t, "Alkaline", evaluation["label"].GetStringValue())
	assert.Equal(t, 2.0, refreshed.Fields["alert_count"].GetNumberValue())
	assert.False(t, refreshed.Fields["refreshing"].GetBoolValue())

	alerts, err := client.ListAlerts(ctx, wrapperspb.String("ph"))
	require.NoError(t, err)
	require.Len(t, alerts.Values, 2)
	alert := alerts.Values[0].GetStructValue().Fields
	assert.Equal(t, "ph", alert["sensor"].GetStringValue())
	assert.Equal(t, "pH too high at 9.00, 08:00 on 17/10/2026", alert["message"].GetStringValue())

	empty, err := client.ListAlerts(ctx, wrapperspb.String("do"))
	require.NoError(t, err)
	assert.Empty(t, empty.Values)
}

func TestStatusErrors(t *testing.T) {
	common.SetTestLoggerNop()

	client := startTestServer(t, newTestMonitor())
	ctx := context.Background()

	{
		// empty sensor will fail validation
		_, err := client.GetStatus(ctx, wrapperspb.String(""))
		st, ok := status.FromError(err)
		require.True(t, ok)
		assert.Equal(t, codes.InvalidArgument, st.Code())
		assert.Contains(t, st.Message(), "validation error")
	}

	{
		_, err := client.ListAlerts(ctx, wrapperspb.String("turbidity"))
		assert.Equal(t, codes.NotFound, status.Code(err))
	}

	{
		// refresh before start
		_, err := client.Refresh(ctx, wrapperspb.String("do"))
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	}
}

func TestRateLimitInterceptor_Refresh(t *testing.T) {
	common.SetTestLoggerNop()

	m := newTestMonitor()
	limiterStore := monitor.NewRateLimiterStore(2, 2) // Allow 2 req/sec per sensor
	client := startTestServerWithInterceptor(t, m, limiterStore)
	startSensor(t, m, "do")

	ctx := context.Background()
	sm, err := m.Sensor("do")
	require.NoError(t, err)

	// First 2 requests should pass, by key or by id
	_, err = client.Refresh(ctx, wrapperspb.String("do"))
	require.NoError(t, err, "expected request 1 to pass")
	_, err = client.Refresh(ctx, wrapperspb.String(sm.Profile.SensorID))
	require.NoError(t, err, "expected request 2 to pass")

	// 3rd request should fail immediately
	_, err = client.Refresh(ctx, wrapperspb.String("do"))
	require.Error(t, err, "expected third request to be rate limited")

	st, ok := status.FromError(err)
	require.True(t, ok, "expected gRPC status error")
	require.Equal(t, codes.ResourceExhausted, st.Code(), "expected ResourceExhausted code")

	// reads are not limited
	_, err = client.GetStatus(ctx, wrapperspb.String("do"))
	require.NoError(t, err)

	// increase rate limiter
	limiter, err := structpb.NewStruct(map[string]any{"sensor": "do", "rate": 3, "burst": 2})
	require.NoError(t, err)
	_, err = client.SetLimiter(ctx, limiter)
	require.NoError(t, err)

	// Should pass again
	_, err = client.Refresh(ctx, wrapperspb.String("do"))
	require.NoError(t, err, "expected request after limiter reset to pass")
}

func TestSetLimiter_EdgeCases(t *testing.T) {
	common.SetTestLoggerNop()

	ctx := context.Background()

	{
		client := startTestServerWithInterceptor(t, newTestMonitor(), monitor.NewRateLimiterStore(1, 1))

		for _, fields := range []map[string]any{
			{"sensor": "ph"},
			{"sensor": "ph", "rate": 1},
			{"sensor": "ph", "rate": -1, "burst": 1},
			{"sensor": "", "rate": 1, "burst": 1},
		} {
			req, err := structpb.NewStruct(fields)
			require.NoError(t, err)
			_, err = client.SetLimiter(ctx, req)
			assert.Equal(t, codes.InvalidArgument, status.Code(err), "fields %v", fields)
		}
	}

	{
		// without limiter store setting a limiter has no effect
		client := startTestServer(t, newTestMonitor())
		req, err := structpb.NewStruct(map[string]any{"sensor": "ph", "rate": 1, "burst": 1})
		require.NoError(t, err)
		_, err = client.SetLimiter(ctx, req)
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	}
}

func TestRefreshUsesFetcher(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newTestMonitor()
	mockFetcher := mocks.NewMockIFetcher(ctrl)
	m.WithServices(monitor.ServiceOpts{Fetcher: mockFetcher})

	sm, err := m.Sensor("do")
	require.NoError(t, err)

	value := 12.0
	at := time.Date(2026, 10, 17, 14, 5, 0, 0, time.UTC)
	mockFetcher.EXPECT().
		FetchLatest(gomock.Any(), sm.Profile.SensorID).
		Return(&models.Reading{DocumentID: "d1", SensorID: sm.Profile.SensorID, Value: &value, Timestamp: at}, nil).
		MinTimes(1)

	client := startTestServer(t, m)
	startSensor(t, m, "do")

	refreshed, err := client.Refresh(context.Background(), wrapperspb.String("do"))
	require.NoError(t, err)
	evaluation := refreshed.Fields["evaluation"].GetStructValue().Fields
	assert.Equal(t, "above_range", evaluation["status"].GetStringValue())
	assert.Equal(t, 20.0, evaluation["severity"].GetNumberValue())
	assert.Equal(t, "High", evaluation["label"].GetStringValue())
}
