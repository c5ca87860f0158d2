package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/models"
	"liyu1981.xyz/water-quality-monitor/pkg/quality"
)

const (
	triggerStartup = "startup"
	triggerTimer   = "timer"
	triggerManual  = "manual"
)

// Snapshot is what a dashboard shows for one sensor.
type Snapshot struct {
	Sensor      quality.SensorProfile `json:"sensor"`
	Reading     *models.Reading       `json:"reading"`
	Evaluation  quality.Evaluation    `json:"evaluation"`
	LastUpdated *time.Time            `json:"last_updated"`
	Refreshing  bool                  `json:"refreshing"`
	Active      bool                  `json:"active"`
	AlertCount  int                   `json:"alert_count"`
	Layout      string                `json:"layout"`
}

// SensorMonitor runs the fetch, classify and alert cycle for one sensor.
// State lives from Start until the next Start; Stop freezes it and any
// fetch finishing after Stop is discarded.
type SensorMonitor struct {
	Profile quality.SensorProfile

	monitor *Monitor

	mu         sync.Mutex
	alerts     *AlertLog
	latest     *models.Reading
	evaluation quality.Evaluation
	inflight   int
	generation uint64
	stopped    bool
	cancel     context.CancelFunc
	done       chan struct{}
}

func newSensorMonitor(m *Monitor, p quality.SensorProfile) *SensorMonitor {
	return &SensorMonitor{
		Profile:    p,
		monitor:    m,
		alerts:     NewAlertLog(),
		evaluation: p.Classify(nil),
	}
}

func (sm *SensorMonitor) logger(category string) *zap.Logger {
	return common.GetLoggerWith(
		common.LoggerNameMonitorCore,
		zap.String(common.LoggerFieldCategory, category),
		zap.String("sensor", sm.Profile.Key),
	)
}

// Start fetches once immediately and then on every poll interval until Stop
// is called or ctx is done.
func (sm *SensorMonitor) Start(ctx context.Context) error {
	sm.mu.Lock()
	if sm.cancel != nil {
		sm.mu.Unlock()
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	sm.generation++
	sm.stopped = false
	sm.alerts = NewAlertLog()
	sm.latest = nil
	sm.evaluation = sm.Profile.Classify(nil)
	sm.cancel = cancel
	sm.done = done
	interval := sm.monitor.interval()
	sm.mu.Unlock()

	sm.logger(common.LoggerCategoryPoll).Info("Sensor monitor started", zap.Duration("interval", interval))

	go sm.run(loopCtx, interval, done)
	return nil
}

func (sm *SensorMonitor) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sm.poll(ctx, triggerStartup)

	for {
		select {
		case <-ctx.Done():
			sm.detach(done)
			return
		case <-ticker.C:
			sm.poll(ctx, triggerTimer)
		}
	}
}

// detach tears the monitor down when the parent context ends the loop. It is
// a no-op if Stop or a restart already replaced this run.
func (sm *SensorMonitor) detach(done chan struct{}) {
	sm.mu.Lock()
	if sm.done != done {
		sm.mu.Unlock()
		return
	}
	cancel := sm.cancel
	sm.cancel, sm.done = nil, nil
	sm.stopped = true
	sm.mu.Unlock()

	cancel()
	sm.logger(common.LoggerCategoryPoll).Info("Sensor monitor stopped", zap.String("reason", "context done"))
}

// Stop cancels the poll loop and waits for it to exit.
func (sm *SensorMonitor) Stop() {
	sm.mu.Lock()
	cancel, done := sm.cancel, sm.done
	sm.cancel, sm.done = nil, nil
	sm.stopped = true
	sm.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	sm.logger(common.LoggerCategoryPoll).Info("Sensor monitor stopped")
}

// Refresh runs one poll cycle outside the timer; the timer phase is not
// reset.
func (sm *SensorMonitor) Refresh(ctx context.Context) (Snapshot, error) {
	if !sm.Active() {
		return sm.Snapshot(), ErrNotRunning
	}
	return sm.poll(ctx, triggerManual), nil
}

func (sm *SensorMonitor) Active() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.cancel != nil
}

func (sm *SensorMonitor) Alerts() []models.AlertRecord {
	sm.mu.Lock()
	alerts := sm.alerts
	sm.mu.Unlock()
	return alerts.List()
}

func (sm *SensorMonitor) Snapshot() Snapshot {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.snapshotLocked()
}

func (sm *SensorMonitor) snapshotLocked() Snapshot {
	s := Snapshot{
		Sensor:     sm.Profile,
		Evaluation: sm.evaluation,
		Refreshing: sm.inflight > 0,
		Active:     sm.cancel != nil,
		AlertCount: sm.alerts.Len(),
		Layout:     sm.alerts.Layout(),
	}
	if sm.latest != nil {
		reading := *sm.latest
		ts := reading.Timestamp
		s.Reading = &reading
		s.LastUpdated = &ts
	}
	return s
}

func (sm *SensorMonitor) beginFetch() (uint64, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.stopped || sm.cancel == nil {
		return 0, false
	}
	sm.inflight++
	return sm.generation, true
}

func (sm *SensorMonitor) endFetch() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.inflight--
}

// apply stores a poll result unless the monitor was stopped or restarted
// while the fetch was in flight.
func (sm *SensorMonitor) apply(generation uint64, reading *models.Reading, ev quality.Evaluation, alert *models.AlertRecord) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.stopped || generation != sm.generation {
		return false
	}

	sm.latest = reading
	sm.evaluation = ev
	if alert != nil {
		sm.alerts.Prepend(*alert)
	}
	return true
}

func (sm *SensorMonitor) poll(ctx context.Context, trigger string) Snapshot {
	generation, ok := sm.beginFetch()
	if !ok {
		return sm.Snapshot()
	}

	alert, applied := sm.fetchAndApply(ctx, trigger, generation)
	sm.endFetch()

	snapshot := sm.Snapshot()
	if applied && sm.monitor.Notifier != nil {
		sm.monitor.Notifier.NotifyStatus(snapshot)
		if alert != nil {
			sm.monitor.Notifier.NotifyAlert(*alert)
		}
	}
	return snapshot
}

func (sm *SensorMonitor) fetchAndApply(ctx context.Context, trigger string, generation uint64) (*models.AlertRecord, bool) {
	logger := sm.logger(common.LoggerCategoryPoll).With(zap.String("trigger", trigger))

	if sm.monitor.Fetcher == nil {
		logger.Error("Fetcher not available")
		return nil, false
	}

	fetchCtx := ctx
	if sm.monitor.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, sm.monitor.FetchTimeout)
		defer cancel()
	}

	reading, err := sm.monitor.Fetcher.FetchLatest(fetchCtx, sm.Profile.SensorID)
	if err != nil {
		logger.Error("Fetch failed, keeping previous reading", zap.Error(err))
		return nil, false
	}
	if reading == nil {
		return nil, false
	}

	ev := sm.Profile.Classify(reading.Value)

	var alert *models.AlertRecord
	if ev.Status.Abnormal() {
		record := NewAlertRecord(sm.Profile, reading, ev, sm.monitor.location(), sm.monitor.now())
		alert = &record
		sm.logger(common.LoggerCategoryAlert).Info("Alert found", zap.Reflect("alert", record))
	}

	if !sm.apply(generation, reading, ev, alert) {
		logger.Info("Discarded poll result after teardown", zap.String("document_id", reading.DocumentID))
		return nil, false
	}

	if alert != nil {
		sm.logger(common.LoggerCategoryAlert).Info("Alert logged", zap.Reflect("alert", *alert))
	}
	return alert, true
}
