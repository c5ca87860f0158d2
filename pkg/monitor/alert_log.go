package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"liyu1981.xyz/water-quality-monitor/pkg/models"
	"liyu1981.xyz/water-quality-monitor/pkg/quality"
)

const (
	LayoutScroll = "scroll"
	LayoutList   = "list"

	// logs longer than this render as a list instead of inline
	layoutListAbove = 4
)

// AlertLog keeps alerts most recent first. It never evicts.
type AlertLog struct {
	mu      sync.RWMutex
	records []models.AlertRecord
}

func NewAlertLog() *AlertLog {
	return &AlertLog{}
}

func (l *AlertLog) Prepend(alert models.AlertRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append([]models.AlertRecord{alert}, l.records...)
}

func (l *AlertLog) List() []models.AlertRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := make([]models.AlertRecord, len(l.records))
	copy(records, l.records)
	return records
}

func (l *AlertLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func (l *AlertLog) Layout() string {
	if l.Len() > layoutListAbove {
		return LayoutList
	}
	return LayoutScroll
}

func newAlertID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewAlertRecord builds the alert for an out-of-range reading.
func NewAlertRecord(p quality.SensorProfile, reading *models.Reading, ev quality.Evaluation, loc *time.Location, now time.Time) models.AlertRecord {
	return models.AlertRecord{
		ID:          newAlertID(),
		SensorKey:   p.Key,
		Status:      ev.Status,
		Value:       *reading.Value,
		Severity:    ev.Severity,
		Message:     AlertMessage(p, ev.Status, *reading.Value, reading.Timestamp, loc),
		ReadingTime: reading.Timestamp,
		CreatedAt:   now,
	}
}

// AlertMessage reads e.g. "DO too low at 2.00 mg/L, 14:05 on 17/10/2026".
func AlertMessage(p quality.SensorProfile, status models.Status, value float64, at time.Time, loc *time.Location) string {
	direction := "too low"
	if status == models.StatusAboveRange {
		direction = "too high"
	}

	unit := ""
	if p.Unit != "" {
		unit = " " + p.Unit
	}

	return fmt.Sprintf("%s %s at %.2f%s, %s", p.Name, direction, value, unit, at.In(loc).Format("15:04 on 02/01/2006"))
}
