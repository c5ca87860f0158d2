package models

import "time"

type Status string

const (
	StatusNoData     Status = "no_data"
	StatusNormal     Status = "normal"
	StatusBelowRange Status = "below_range"
	StatusAboveRange Status = "above_range"
)

func (s Status) Abnormal() bool {
	return s == StatusBelowRange || s == StatusAboveRange
}

// Reading is the latest datalog document picked for a sensor. Value is nil
// when the document carried no numeric value.
type Reading struct {
	DocumentID string    `json:"document_id"`
	SensorID   string    `json:"sensor_id"`
	Value      *float64  `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
}

type AlertRecord struct {
	ID          string    `json:"id"`
	SensorKey   string    `json:"sensor"`
	Status      Status    `json:"status"`
	Value       float64   `json:"value"`
	Severity    int       `json:"severity"`
	Message     string    `json:"message"`
	ReadingTime time.Time `json:"reading_time"`
	CreatedAt   time.Time `json:"created_at"`
}

// DatalogDocument is the sqlite row behind the local datalog collection.
// Value and Timestamp keep the raw JSON the writer sent.
type DatalogDocument struct {
	ID        uint   `gorm:"primaryKey"`
	SensorID  string `gorm:"index"`
	Value     string
	Timestamp string
	CreatedAt time.Time
}

func (DatalogDocument) TableName() string {
	return "datalog"
}
