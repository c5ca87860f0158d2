package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"liyu1981.xyz/water-quality-monitor/pkg/datalog"
	"liyu1981.xyz/water-quality-monitor/pkg/models"
	"liyu1981.xyz/water-quality-monitor/pkg/quality"
)

const DefaultPollInterval = 5 * time.Second

var (
	ErrUnknownSensor  = errors.New("unknown sensor")
	ErrNotRunning     = errors.New("sensor monitor is not running")
	ErrAlreadyRunning = errors.New("sensor monitor is already running")
)

type IFetcher interface {
	FetchLatest(ctx context.Context, sensorID string) (*models.Reading, error)
}

type INotifier interface {
	NotifyStatus(status Snapshot)
	NotifyAlert(alert models.AlertRecord)
}

type Monitor struct {
	Store        datalog.Store
	Fetcher      IFetcher
	Notifier     INotifier
	Interval     time.Duration
	FetchTimeout time.Duration
	Location     *time.Location
	Now          func() time.Time

	mu      sync.RWMutex
	sensors []*SensorMonitor
}

type ServiceOpts struct {
	Fetcher  IFetcher
	Notifier INotifier
}

func (m *Monitor) WithServices(opts ServiceOpts) *Monitor {
	if opts.Fetcher != nil {
		m.Fetcher = opts.Fetcher
	}
	if opts.Notifier != nil {
		m.Notifier = opts.Notifier
	}
	return m
}

// AddSensors registers one SensorMonitor per profile. Profiles already
// registered under the same key are ignored.
func (m *Monitor) AddSensors(profiles ...quality.SensorProfile) *Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range profiles {
		if m.findLocked(p.Key) != nil {
			continue
		}
		m.sensors = append(m.sensors, newSensorMonitor(m, p))
	}
	return m
}

func (m *Monitor) findLocked(keyOrID string) *SensorMonitor {
	for _, sm := range m.sensors {
		if sm.Profile.Key == keyOrID || sm.Profile.SensorID == keyOrID {
			return sm
		}
	}
	return nil
}

// Sensor finds a registered sensor by profile key or store sensor id.
func (m *Monitor) Sensor(keyOrID string) (*SensorMonitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sm := m.findLocked(keyOrID); sm != nil {
		return sm, nil
	}
	if p, ok := quality.Lookup(keyOrID); ok {
		if sm := m.findLocked(p.Key); sm != nil {
			return sm, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSensor, keyOrID)
}

func (m *Monitor) Sensors() []*SensorMonitor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sensors := make([]*SensorMonitor, len(m.sensors))
	copy(sensors, m.sensors)
	return sensors
}

// Start activates every registered sensor's poll loop.
func (m *Monitor) Start(ctx context.Context) error {
	for _, sm := range m.Sensors() {
		if err := sm.Start(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			return fmt.Errorf("start %s: %w", sm.Profile.Key, err)
		}
	}
	return nil
}

func (m *Monitor) Stop() {
	for _, sm := range m.Sensors() {
		sm.Stop()
	}
}

func (m *Monitor) interval() time.Duration {
	if m.Interval <= 0 {
		return DefaultPollInterval
	}
	return m.Interval
}

func (m *Monitor) location() *time.Location {
	if m.Location == nil {
		return time.Local
	}
	return m.Location
}

func (m *Monitor) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

// Notifiers fans every notification out to each member.
type Notifiers []INotifier

func (ns Notifiers) NotifyStatus(status Snapshot) {
	for _, n := range ns {
		if n != nil {
			n.NotifyStatus(status)
		}
	}
}

func (ns Notifiers) NotifyAlert(alert models.AlertRecord) {
	for _, n := range ns {
		if n != nil {
			n.NotifyAlert(alert)
		}
	}
}
