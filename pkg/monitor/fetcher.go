package monitor

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/datalog"
	"liyu1981.xyz/water-quality-monitor/pkg/models"
)

// SelectLatest returns the document with the strictly greatest normalized
// timestamp, the earliest in result order on ties, plus the number of
// documents skipped for lacking a usable timestamp.
func SelectLatest(docs []datalog.Document) (*models.Reading, int) {
	var latest *models.Reading
	skipped := 0

	for _, doc := range docs {
		ts, ok := datalog.Normalize(doc.Timestamp)
		if !ok {
			skipped++
			continue
		}
		if latest == nil || ts.After(latest.Timestamp) {
			latest = &models.Reading{
				DocumentID: doc.ID,
				SensorID:   doc.SensorID,
				Value:      doc.Value,
				Timestamp:  ts,
			}
		}
	}
	return latest, skipped
}

func (m *Monitor) fetchLatest(ctx context.Context, sensorID string) (*models.Reading, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameMonitorCore,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryFetch),
	)

	if m.Store == nil {
		return nil, fmt.Errorf("datalog store not available")
	}

	docs, err := m.Store.Query(ctx, datalog.Query{
		Collection: common.CollectionDatalog,
		Field:      common.FieldDatalogSensor,
		Value:      sensorID,
	})
	if err != nil {
		return nil, fmt.Errorf("query datalog for sensor %s: %w", sensorID, err)
	}

	if len(docs) == 0 {
		logger.Warn("No datalog documents for sensor", zap.String("sensor_id", sensorID))
		return nil, nil
	}

	latest, skipped := SelectLatest(docs)
	if skipped > 0 {
		logger.Info("Skipped documents without a usable timestamp",
			zap.String("sensor_id", sensorID), zap.Int("skipped", skipped), zap.Int("total", len(docs)))
	}
	if latest == nil {
		logger.Warn("No datalog document with a usable timestamp", zap.String("sensor_id", sensorID))
		return nil, nil
	}

	logger.Debug("Selected latest reading", zap.Reflect("reading", latest))
	return latest, nil
}

type IFetcherImpl struct {
	monitor *Monitor
}

func (f *IFetcherImpl) FetchLatest(ctx context.Context, sensorID string) (*models.Reading, error) {
	return f.monitor.fetchLatest(ctx, sensorID)
}

func (m *Monitor) GetIFetcher() IFetcher {
	return &IFetcherImpl{monitor: m}
}
