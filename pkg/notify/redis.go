// Package notify forwards alerts to other systems.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/models"
	"liyu1981.xyz/water-quality-monitor/pkg/monitor"
)

const (
	EventTypeAlert = "water_quality.alert"

	publishTimeout = 3 * time.Second
)

// AlertEvent is the JSON message published for every logged alert.
type AlertEvent struct {
	Type        string             `json:"type"`
	Alert       models.AlertRecord `json:"alert"`
	PublishedAt time.Time          `json:"published_at"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes alerts on a Redis pub/sub channel. Status updates
// are not forwarded.
type RedisPublisher struct {
	client  publisher
	channel string
	now     func() time.Time
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return newRedisPublisher(client, channel)
}

func newRedisPublisher(client publisher, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, now: time.Now}
}

func (p *RedisPublisher) NotifyStatus(monitor.Snapshot) {}

func (p *RedisPublisher) NotifyAlert(alert models.AlertRecord) {
	logger := common.GetLoggerWith(
		common.LoggerNameNotifier,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryAlert),
	)

	payload, err := json.Marshal(AlertEvent{Type: EventTypeAlert, Alert: alert, PublishedAt: p.now()})
	if err != nil {
		logger.Error("Failed to marshal alert event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		logger.Error("Failed to publish alert", zap.String("channel", p.channel), zap.String("alert_id", alert.ID), zap.Error(err))
		return
	}
	logger.Debug("Published alert", zap.String("channel", p.channel), zap.String("alert_id", alert.ID), zap.Int64("receivers", receivers))
}
