package monitor_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zapcore"

	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/models"
	"liyu1981.xyz/water-quality-monitor/pkg/monitor"
	"liyu1981.xyz/water-quality-monitor/pkg/monitor/mocks"
	"liyu1981.xyz/water-quality-monitor/pkg/quality"
)

func reading(sensorID string, value float64, at time.Time) *models.Reading {
	return &models.Reading{DocumentID: "doc", SensorID: sensorID, Value: ptr(value), Timestamp: at}
}

// waitForReading blocks until the startup poll has stored a reading and
// finished.
func waitForReading(t *testing.T, sm *monitor.SensorMonitor) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := sm.Snapshot()
		return s.Reading != nil && !s.Refreshing
	}, time.Second, 5*time.Millisecond)
}

func TestSensorLookup(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, m, _, _, _ := GetMockMonitorWithMemorySqliteDialector(t, true, false)
	defer ctrl.Finish()

	sm, err := m.Sensor("ph")
	require.NoError(t, err)
	assert.Equal(t, "ph", sm.Profile.Key)

	byID, err := m.Sensor(sm.Profile.SensorID)
	require.NoError(t, err)
	assert.Same(t, sm, byID)

	do, err := m.Sensor(" DO ")
	require.NoError(t, err)
	assert.Equal(t, "do", do.Profile.Key)

	_, err = m.Sensor("turbidity")
	assert.ErrorIs(t, err, monitor.ErrUnknownSensor)

	m.AddSensors(quality.PH)
	assert.Len(t, m.Sensors(), 2)
}

func TestPollsAtStartAndOnInterval(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, m, _, mockFetcher, _ := GetMockMonitorWithMemorySqliteDialector(t, true, false)
	defer ctrl.Finish()
	m.Interval = 80 * time.Millisecond

	sm, err := m.Sensor("ph")
	require.NoError(t, err)

	var mu sync.Mutex
	var calls []time.Time
	fetched := make(chan struct{}, 16)

	mockFetcher.EXPECT().
		FetchLatest(gomock.Any(), sm.Profile.SensorID).
		DoAndReturn(func(ctx context.Context, sensorID string) (*models.Reading, error) {
			mu.Lock()
			calls = append(calls, time.Now())
			mu.Unlock()
			fetched <- struct{}{}
			return nil, nil
		}).
		AnyTimes()

	started := time.Now()
	require.NoError(t, sm.Start(context.Background()))

	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("no fetch at start")
	}
	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("no fetch after one interval")
	}

	sm.Stop()
	assert.False(t, sm.Active())

	mu.Lock()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Less(t, calls[0].Sub(started), m.Interval/2)
	assert.GreaterOrEqual(t, calls[1].Sub(started), m.Interval/2)
	stoppedCalls := len(calls)
	mu.Unlock()

	time.Sleep(3 * m.Interval)

	mu.Lock()
	assert.Equal(t, stoppedCalls, len(calls), "fetched after stop")
	mu.Unlock()
}

func TestStartTwice(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, m, _, mockFetcher, _ := GetMockMonitorWithMemorySqliteDialector(t, true, false)
	defer ctrl.Finish()

	mockFetcher.EXPECT().FetchLatest(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	sm, err := m.Sensor("ph")
	require.NoError(t, err)

	require.NoError(t, sm.Start(context.Background()))
	defer sm.Stop()
	assert.ErrorIs(t, sm.Start(context.Background()), monitor.ErrAlreadyRunning)
	assert.NoError(t, m.Start(context.Background()))
	m.Stop()
}

func TestRefreshClassifiesAndLogsAlerts(t *testing.T) {
	var buf bytes.Buffer
	common.SetTestCaptureLogger(&buf, zapcore.InfoLevel)

	ctrl, m, _, mockFetcher, _ := GetMockMonitorWithMemorySqliteDialector(t, true, false)
	defer ctrl.Finish()

	sm, err := m.Sensor("do")
	require.NoError(t, err)

	at := time.Date(2026, 10, 17, 14, 5, 0, 0, time.UTC)
	gomock.InOrder(
		mockFetcher.EXPECT().FetchLatest(gomock.Any(), sm.Profile.SensorID).Return(reading(sm.Profile.SensorID, 7, at), nil),
		mockFetcher.EXPECT().FetchLatest(gomock.Any(), sm.Profile.SensorID).Return(reading(sm.Profile.SensorID, 2, at), nil),
		mockFetcher.EXPECT().FetchLatest(gomock.Any(), sm.Profile.SensorID).Return(reading(sm.Profile.SensorID, 2, at), nil),
	)

	require.NoError(t, sm.Start(context.Background()))
	defer sm.Stop()

	waitForReading(t, sm)

	snapshot := sm.Snapshot()
	assert.Equal(t, models.StatusNormal, snapshot.Evaluation.Status)
	assert.Equal(t, 0, snapshot.AlertCount)
	require.NotNil(t, snapshot.LastUpdated)
	assert.Equal(t, at, *snapshot.LastUpdated)

	snapshot, err = sm.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, snapshot.Refreshing)
	assert.Equal(t, models.StatusBelowRange, snapshot.Evaluation.Status)
	assert.Equal(t, 50, snapshot.Evaluation.Severity)
	assert.Equal(t, "Low", snapshot.Evaluation.Label)
	assert.Equal(t, 1, snapshot.AlertCount)

	// the same reading alerts again
	snapshot, err = sm.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.AlertCount)
	assert.Equal(t, monitor.LayoutScroll, snapshot.Layout)

	alerts := sm.Alerts()
	require.Len(t, alerts, 2)
	assert.NotEqual(t, alerts[0].ID, alerts[1].ID)
	assert.Equal(t, "DO too low at 2.00 mg/L, 14:05 on 17/10/2026", alerts[0].Message)

	found := 0
	for _, l := range ParseLogs(&buf) {
		entry := l.(map[string]any)
		if entry["msg"] == "Alert found" {
			found++
			assert.Equal(t, common.LoggerCategoryAlert, entry["category"])
			assert.Equal(t, "do", entry["sensor"])
		}
	}
	assert.Equal(t, 2, found)
}

func TestEmptyResultKeepsState(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, m, _, mockFetcher, _ := GetMockMonitorWithMemorySqliteDialector(t, true, false)
	defer ctrl.Finish()

	sm, err := m.Sensor("ph")
	require.NoError(t, err)

	first := make(chan struct{})
	gomock.InOrder(
		mockFetcher.EXPECT().
			FetchLatest(gomock.Any(), sm.Profile.SensorID).
			DoAndReturn(func(ctx context.Context, sensorID string) (*models.Reading, error) {
				close(first)
				return nil, nil
			}),
		mockFetcher.EXPECT().FetchLatest(gomock.Any(), sm.Profile.SensorID).Return(nil, nil),
	)

	require.NoError(t, sm.Start(context.Background()))
	defer sm.Stop()
	<-first
	require.Eventually(t, func() bool {
		return !sm.Snapshot().Refreshing
	}, time.Second, 5*time.Millisecond)

	snapshot, err := sm.Refresh(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snapshot.Reading)
	assert.Nil(t, snapshot.LastUpdated)
	assert.False(t, snapshot.Refreshing)
	assert.Equal(t, models.StatusNoData, snapshot.Evaluation.Status)
	assert.Equal(t, "No data", snapshot.Evaluation.Label)
	assert.Equal(t, 0, snapshot.AlertCount)
}

func TestFetchErrorKeepsPreviousReading(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, m, _, mockFetcher, _ := GetMockMonitorWithMemorySqliteDialector(t, true, false)
	defer ctrl.Finish()

	sm, err := m.Sensor("ph")
	require.NoError(t, err)

	at := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	gomock.InOrder(
		mockFetcher.EXPECT().FetchLatest(gomock.Any(), sm.Profile.SensorID).Return(reading(sm.Profile.SensorID, 9, at), nil),
		mockFetcher.EXPECT().FetchLatest(gomock.Any(), sm.Profile.SensorID).Return(nil, errors.New("unavailable")),
	)

	require.NoError(t, sm.Start(context.Background()))
	defer sm.Stop()

	waitForReading(t, sm)

	snapshot, err := sm.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snapshot.Reading)
	assert.Equal(t, 9.0, *snapshot.Reading.Value)
	assert.Equal(t, models.StatusAboveRange, snapshot.Evaluation.Status)
	assert.Equal(t, 9, snapshot.Evaluation.Severity)
	assert.Equal(t, 1, snapshot.AlertCount)
	assert.False(t, snapshot.Refreshing)
}

func TestRefreshWhenStopped(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, m, _, _, _ := GetMockMonitorWithMemorySqliteDialector(t, true, false)
	defer ctrl.Finish()

	sm, err := m.Sensor("ph")
	require.NoError(t, err)

	_, err = sm.Refresh(context.Background())
	assert.ErrorIs(t, err, monitor.ErrNotRunning)
}

func TestResultAfterStopIsDiscarded(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, m, _, mockFetcher, mockNotifier := GetMockMonitorWithMemorySqliteDialector(t, true, true)
	defer ctrl.Finish()

	sm, err := m.Sensor("ph")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	at := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

	mockNotifier.EXPECT().NotifyStatus(gomock.Any()).Times(0)
	mockNotifier.EXPECT().NotifyAlert(gomock.Any()).Times(0)
	mockFetcher.EXPECT().
		FetchLatest(gomock.Any(), sm.Profile.SensorID).
		DoAndReturn(func(ctx context.Context, sensorID string) (*models.Reading, error) {
			close(entered)
			<-release
			return reading(sensorID, 3, at), nil
		}).
		Times(1)

	require.NoError(t, sm.Start(context.Background()))
	<-entered
	assert.True(t, sm.Snapshot().Refreshing)

	stopped := make(chan struct{})
	go func() {
		sm.Stop()
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		return !sm.Active()
	}, time.Second, 5*time.Millisecond)
	close(release)
	<-stopped

	snapshot := sm.Snapshot()
	assert.Nil(t, snapshot.Reading)
	assert.Equal(t, models.StatusNoData, snapshot.Evaluation.Status)
	assert.Equal(t, 0, snapshot.AlertCount)
	assert.Empty(t, sm.Alerts())
	assert.False(t, snapshot.Refreshing)
}

func TestParentContextCancelStopsMonitor(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, m, _, mockFetcher, _ := GetMockMonitorWithMemorySqliteDialector(t, true, false)
	defer ctrl.Finish()

	sm, err := m.Sensor("ph")
	require.NoError(t, err)

	at := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	gomock.InOrder(
		mockFetcher.EXPECT().FetchLatest(gomock.Any(), sm.Profile.SensorID).Return(reading(sm.Profile.SensorID, 5, at), nil),
		mockFetcher.EXPECT().FetchLatest(gomock.Any(), sm.Profile.SensorID).Return(nil, nil).AnyTimes(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sm.Start(ctx))
	waitForReading(t, sm)
	require.Equal(t, 1, sm.Snapshot().AlertCount)

	cancel()
	require.Eventually(t, func() bool {
		return !sm.Active()
	}, time.Second, 5*time.Millisecond)

	// torn down: refresh is refused and state is frozen
	snapshot, err := sm.Refresh(context.Background())
	assert.ErrorIs(t, err, monitor.ErrNotRunning)
	assert.Equal(t, 1, snapshot.AlertCount)
	assert.Len(t, sm.Alerts(), 1)
	assert.False(t, snapshot.Active)

	// and can be started again
	require.NoError(t, sm.Start(context.Background()))
	assert.True(t, sm.Active())
	sm.Stop()
	assert.False(t, sm.Active())
}

func TestRestartResetsState(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, m, _, mockFetcher, _ := GetMockMonitorWithMemorySqliteDialector(t, true, false)
	defer ctrl.Finish()

	sm, err := m.Sensor("ph")
	require.NoError(t, err)

	at := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	gomock.InOrder(
		mockFetcher.EXPECT().FetchLatest(gomock.Any(), sm.Profile.SensorID).Return(reading(sm.Profile.SensorID, 5, at), nil),
		mockFetcher.EXPECT().FetchLatest(gomock.Any(), sm.Profile.SensorID).Return(nil, nil).AnyTimes(),
	)

	require.NoError(t, sm.Start(context.Background()))
	require.Eventually(t, func() bool {
		return sm.Snapshot().AlertCount == 1
	}, time.Second, 5*time.Millisecond)
	sm.Stop()

	// stopped state stays readable
	assert.Equal(t, 1, sm.Snapshot().AlertCount)

	require.NoError(t, sm.Start(context.Background()))
	defer sm.Stop()
	snapshot := sm.Snapshot()
	assert.True(t, snapshot.Active)
	assert.Equal(t, 0, snapshot.AlertCount)
	assert.Nil(t, snapshot.Reading)
}

func TestNotifierReceivesStatusAndAlert(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, m, _, mockFetcher, mockNotifier := GetMockMonitorWithMemorySqliteDialector(t, true, true)
	defer ctrl.Finish()

	sm, err := m.Sensor("ph")
	require.NoError(t, err)

	at := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	mockFetcher.EXPECT().FetchLatest(gomock.Any(), sm.Profile.SensorID).Return(reading(sm.Profile.SensorID, 5, at), nil).Times(1)

	statusSeen := make(chan monitor.Snapshot, 1)
	alertSeen := make(chan models.AlertRecord, 1)
	mockNotifier.EXPECT().NotifyStatus(gomock.Any()).Do(func(s monitor.Snapshot) { statusSeen <- s }).Times(1)
	mockNotifier.EXPECT().NotifyAlert(gomock.Any()).Do(func(a models.AlertRecord) { alertSeen <- a }).Times(1)

	require.NoError(t, sm.Start(context.Background()))
	defer sm.Stop()

	select {
	case s := <-statusSeen:
		assert.Equal(t, "ph", s.Sensor.Key)
		assert.Equal(t, models.StatusBelowRange, s.Evaluation.Status)
		assert.Equal(t, 23, s.Evaluation.Severity)
		assert.Equal(t, 1, s.AlertCount)
	case <-time.After(time.Second):
		t.Fatal("no status notification")
	}

	select {
	case a := <-alertSeen:
		assert.Equal(t, "ph", a.SensorKey)
		assert.Equal(t, "pH too low at 5.00, 08:00 on 17/10/2026", a.Message)
	case <-time.After(time.Second):
		t.Fatal("no alert notification")
	}
}

func TestNotifiersFanOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	first := mocks.NewMockINotifier(ctrl)
	second := mocks.NewMockINotifier(ctrl)
	ns := monitor.Notifiers{first, nil, second}

	first.EXPECT().NotifyStatus(gomock.Any()).Times(1)
	second.EXPECT().NotifyStatus(gomock.Any()).Times(1)
	first.EXPECT().NotifyAlert(gomock.Any()).Times(1)
	second.EXPECT().NotifyAlert(gomock.Any()).Times(1)

	ns.NotifyStatus(monitor.Snapshot{})
	ns.NotifyAlert(models.AlertRecord{})
}
