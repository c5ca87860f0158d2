package monitor_test

import (
	"bufio"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"
	"liyu1981.xyz/water-quality-monitor/pkg/db"
	"liyu1981.xyz/water-quality-monitor/pkg/monitor"
	"liyu1981.xyz/water-quality-monitor/pkg/monitor/mocks"
	"liyu1981.xyz/water-quality-monitor/pkg/quality"
)

// GetMockMonitorWithMemorySqliteDialector builds a Monitor over the shared
// in-memory datalog, with a pH and a DO profile whose sensor ids are unique
// to the calling test.
func GetMockMonitorWithMemorySqliteDialector(t *testing.T, useMockFetcher, useMockNotifier bool) (
	*gomock.Controller,
	*monitor.Monitor,
	*db.DocumentStore,
	*mocks.MockIFetcher,
	*mocks.MockINotifier,
) {
	ctrl := gomock.NewController(t)

	mockIFetcher := mocks.NewMockIFetcher(ctrl)
	mockINotifier := mocks.NewMockINotifier(ctrl)
	store := db.NewDocumentStore(db.GetInstance(db.UseMemorySqliteDialector()))

	m := &monitor.Monitor{
		Store:    store,
		Interval: time.Hour,
		Location: time.UTC,
	}

	fetcher := m.GetIFetcher()
	if useMockFetcher {
		fetcher = mockIFetcher
	}

	opts := monitor.ServiceOpts{Fetcher: fetcher}
	if useMockNotifier {
		opts.Notifier = mockINotifier
	}
	m.WithServices(opts)
	m.AddSensors(uniqueProfile(quality.PH), uniqueProfile(quality.DissolvedOxygen))

	return ctrl, m, store, mockIFetcher, mockINotifier
}

func uniqueProfile(p quality.SensorProfile) quality.SensorProfile {
	p.SensorID = uuid.NewString()
	return p
}

func ParseLogs(r io.Reader) []any {
	scanner := bufio.NewScanner(r)
	var logs []any

	for scanner.Scan() {
		line := scanner.Text()
		var j any
		if err := json.Unmarshal([]byte(line), &j); err == nil {
			logs = append(logs, j)
		}
	}
	return logs
}

func ptr(v float64) *float64 {
	return &v
}
