package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/datalog"
	"liyu1981.xyz/water-quality-monitor/pkg/models"
)

// DocumentStore serves the datalog collection from sqlite. Only equality on
// sensor_id is indexed, so that is the only filter it accepts.
type DocumentStore struct {
	Db *DB
}

func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{Db: db}
}

func checkCollection(collection string) error {
	if collection != common.CollectionDatalog {
		return fmt.Errorf("%w: collection %q", datalog.ErrUnsupportedQuery, collection)
	}
	return nil
}

func (s *DocumentStore) Query(ctx context.Context, q datalog.Query) ([]datalog.Document, error) {
	if err := checkCollection(q.Collection); err != nil {
		return nil, err
	}
	if q.Field != common.FieldDatalogSensor {
		return nil, fmt.Errorf("%w: field %q", datalog.ErrUnsupportedQuery, q.Field)
	}

	var rows []models.DatalogDocument
	if err := s.Db.Conn.WithContext(ctx).
		Where("sensor_id = ?", q.Value).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query datalog: %w", err)
	}

	docs := common.Mapper(rows, func(row models.DatalogDocument) datalog.Document {
		return datalog.RawDocument{
			SensorID:  row.SensorID,
			Value:     rawOrNil(row.Value),
			Timestamp: rawOrNil(row.Timestamp),
		}.Decode(strconv.FormatUint(uint64(row.ID), 10))
	})
	return docs, nil
}

func (s *DocumentStore) Append(ctx context.Context, collection string, doc datalog.RawDocument) (string, error) {
	if err := checkCollection(collection); err != nil {
		return "", err
	}

	logger := common.GetLoggerWith(
		common.LoggerNameDatalogStore,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryIngest),
	)

	row := models.DatalogDocument{
		SensorID:  doc.SensorID,
		Value:     string(doc.Value),
		Timestamp: string(doc.Timestamp),
	}
	if err := s.Db.Conn.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("append datalog: %w", err)
	}

	id := strconv.FormatUint(uint64(row.ID), 10)
	logger.Info("Appended datalog document", zap.String("id", id), zap.String("sensor_id", row.SensorID))
	return id, nil
}

func rawOrNil(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}
