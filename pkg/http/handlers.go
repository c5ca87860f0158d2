package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"

	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/datalog"
	"liyu1981.xyz/water-quality-monitor/pkg/monitor"
	"liyu1981.xyz/water-quality-monitor/pkg/quality"
	"liyu1981.xyz/water-quality-monitor/pkg/ws"
)

func logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameRestfulServer)
}

func (rs *RestfulServer) findSensor(c *gin.Context) (*monitor.SensorMonitor, bool) {
	sm, err := rs.Monitor.Sensor(c.Param("sensor"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return sm, true
}

func (rs *RestfulServer) ListSensors(c *gin.Context) {
	profiles := common.Mapper(rs.Monitor.Sensors(), func(sm *monitor.SensorMonitor) quality.SensorProfile {
		return sm.Profile
	})
	c.JSON(http.StatusOK, gin.H{
		"sensors":       profiles,
		"dashboard_url": rs.dashboardURL(),
	})
}

func (rs *RestfulServer) GetSensor(c *gin.Context) {
	sm, ok := rs.findSensor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sm.Snapshot())
}

func (rs *RestfulServer) GetAlerts(c *gin.Context) {
	sm, ok := rs.findSensor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sm.Alerts())
}

func (rs *RestfulServer) PostRefresh(c *gin.Context) {
	sm, ok := rs.findSensor(c)
	if !ok {
		return
	}

	if !rs.CheckSensorLimiter(sm.Profile.Key) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	snapshot, err := sm.Refresh(c.Request.Context())
	if errors.Is(err, monitor.ErrNotRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

type LimiterRequest struct {
	Rate  float64 `json:"rate"`
	Burst int     `json:"burst"`
}

var limiterRequestSchema = z.Struct(z.Shape{
	"rate":  z.Float64().GT(0).Required(),
	"burst": z.Int().GT(0).Required(),
})

func (rs *RestfulServer) PostLimiter(c *gin.Context) {
	sm, ok := rs.findSensor(c)
	if !ok {
		return
	}

	var req LimiterRequest
	if err := limiterRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	rs.SetLimiter(sm.Profile.Key, req.Rate, req.Burst)

	c.Status(http.StatusOK)
}

// DatalogRequest is one sensor document. Value and Timestamp are kept raw,
// the timestamp may be a string, epoch millis or {"seconds", "nanoseconds"}.
type DatalogRequest struct {
	SensorID  string          `json:"sensor_id"`
	Value     json.RawMessage `json:"value"`
	Timestamp json.RawMessage `json:"timestamp"`
}

func validateSensorID(sensorID *string) z.ZogIssueList {
	var sensorIdValidator = z.String().Min(1).Required()
	return sensorIdValidator.Validate(sensorID)
}

func (rs *RestfulServer) PostDatalog(c *gin.Context) {
	writer, ok := rs.Monitor.Store.(datalog.Writer)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "datalog store is read-only"})
		return
	}

	var req DatalogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateSensorID(&req.SensorID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}
	if len(req.Timestamp) == 0 || string(req.Timestamp) == "null" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timestamp is required"})
		return
	}

	id, err := writer.Append(c.Request.Context(), common.CollectionDatalog, datalog.RawDocument{
		SensorID:  req.SensorID,
		Value:     req.Value,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		logger().Error("Failed to append datalog document", zap.String("sensor_id", req.SensorID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (rs *RestfulServer) Dashboard(c *gin.Context) {
	c.Redirect(http.StatusFound, rs.dashboardURL())
}

// ServeWs upgrades to the live feed, starting with the current status of
// every sensor.
func (rs *RestfulServer) ServeWs(c *gin.Context) {
	if rs.Hub == nil {
		c.Status(http.StatusNotFound)
		return
	}

	initial := common.Mapper(rs.Monitor.Sensors(), func(sm *monitor.SensorMonitor) ws.Message {
		return ws.Message{Type: ws.MessageTypeStatus, Payload: sm.Snapshot()}
	})
	_ = rs.Hub.Serve(c.Writer, c.Request, initial...)
}

func (rs *RestfulServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
