// Package quality classifies water-quality readings against the normal range
// of the sensor that produced them.
package quality

import (
	"math"
	"strings"

	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/models"
)

const (
	ColorNoData = "#808080"
	ColorBelow  = "#F44336"
	ColorAbove  = "#9C27B0"
	ColorNormal = "#4CAF50"

	GaugeColorCritical = "#FF5252"
	GaugeColorWarning  = "#64B5F6"
	gaugeCriticalAbove = 50
)

// SensorProfile holds everything that differs between sensors: where their
// documents live, their normal range and how they are labelled.
type SensorProfile struct {
	Key      string `json:"key"`
	SensorID string `json:"sensor_id"`
	Name     string `json:"name"`
	Unit     string `json:"unit,omitempty"`

	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	// ScaleCeiling is the reading at which the high side reaches 100%.
	ScaleCeiling float64 `json:"scale_ceiling"`

	BelowLabel string `json:"below_label"`
	AboveLabel string `json:"above_label"`
}

var PH = SensorProfile{
	Key:          "ph",
	SensorID:     "1",
	Name:         "pH",
	Lower:        6.5,
	Upper:        8.5,
	ScaleCeiling: 14,
	BelowLabel:   "Acidic",
	AboveLabel:   "Alkaline",
}

// DissolvedOxygen measures the high side against a span equal to its upper
// bound, (v-10)/10. Kept as observed on the deployed probes.
var DissolvedOxygen = SensorProfile{
	Key:          "do",
	SensorID:     "2",
	Name:         "DO",
	Unit:         "mg/L",
	Lower:        4,
	Upper:        10,
	ScaleCeiling: 20,
	BelowLabel:   "Low",
	AboveLabel:   "High",
}

func Profiles() []SensorProfile {
	return []SensorProfile{PH, DissolvedOxygen}
}

// Lookup finds a profile by key ("ph") or store sensor id ("1").
func Lookup(keyOrID string) (SensorProfile, bool) {
	needle := strings.ToLower(strings.TrimSpace(keyOrID))
	for _, p := range Profiles() {
		if p.Key == needle || p.SensorID == needle {
			return p, true
		}
	}
	return SensorProfile{}, false
}

type Evaluation struct {
	Status     models.Status `json:"status"`
	Severity   int           `json:"severity"`
	Label      string        `json:"label"`
	Color      string        `json:"color"`
	GaugeColor string        `json:"gauge_color"`
}

// Classify scores a reading: 0 inside [Lower, Upper], otherwise the distance
// out of range as a rounded percentage clamped to [0, 100].
func (p SensorProfile) Classify(value *float64) Evaluation {
	if value == nil {
		return p.evaluation(models.StatusNoData, 0)
	}

	v := *value
	switch {
	case v < p.Lower:
		return p.evaluation(models.StatusBelowRange, percent((p.Lower-v)/p.Lower))
	case v > p.Upper:
		return p.evaluation(models.StatusAboveRange, percent((v-p.Upper)/(p.ScaleCeiling-p.Upper)))
	default:
		return p.evaluation(models.StatusNormal, 0)
	}
}

func percent(ratio float64) int {
	if math.IsNaN(ratio) {
		return 0
	}
	return int(math.Round(common.Clamp(ratio*100, 0, 100)))
}

func (p SensorProfile) evaluation(status models.Status, severity int) Evaluation {
	gauge := GaugeColorWarning
	if severity > gaugeCriticalAbove {
		gauge = GaugeColorCritical
	}
	return Evaluation{
		Status:     status,
		Severity:   severity,
		Label:      p.Label(status),
		Color:      Color(status),
		GaugeColor: gauge,
	}
}

func (p SensorProfile) Label(status models.Status) string {
	switch status {
	case models.StatusBelowRange:
		return p.BelowLabel
	case models.StatusAboveRange:
		return p.AboveLabel
	case models.StatusNormal:
		return "Normal"
	default:
		return "No data"
	}
}

func Color(status models.Status) string {
	switch status {
	case models.StatusBelowRange:
		return ColorBelow
	case models.StatusAboveRange:
		return ColorAbove
	case models.StatusNormal:
		return ColorNormal
	default:
		return ColorNoData
	}
}
