package http

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/monitor"
	"liyu1981.xyz/water-quality-monitor/pkg/ws"
)

type RestfulServer struct {
	Server           *gin.Engine
	Monitor          *monitor.Monitor
	Hub              *ws.Hub
	RateLimiterStore *monitor.RateLimiterStore
	DashboardURL     string
}

func (rs *RestfulServer) GetLimiter(sensorKey string) *rate.Limiter {
	if rs.RateLimiterStore == nil {
		return nil
	} else {
		return rs.RateLimiterStore.GetLimiter(sensorKey)
	}
}

func (rs *RestfulServer) CheckSensorLimiter(sensorKey string) bool {
	return rs.RateLimiterStore.Allow(sensorKey)
}

func (rs *RestfulServer) SetLimiter(sensorKey string, sensorRate float64, sensorBurst int) {
	if rs.RateLimiterStore == nil {
		return
	}
	rs.RateLimiterStore.SetLimiter(sensorKey, rate.Limit(sensorRate), sensorBurst)
}

func (rs *RestfulServer) dashboardURL() string {
	if rs.DashboardURL == "" {
		return common.DefaultDashboardURL
	}
	return rs.DashboardURL
}

func (rs *RestfulServer) Setup() {
	rs.Server.GET("/healthz", rs.HealthCheck)
	rs.Server.GET("/dashboard", rs.Dashboard)
	rs.Server.GET("/ws", rs.ServeWs)
	rs.Server.POST("/datalog", rs.PostDatalog)
	rs.Server.GET("/sensors", rs.ListSensors)

	sensors := rs.Server.Group("/sensors/:sensor")
	{
		sensors.GET("", rs.GetSensor)
		sensors.GET("/alerts", rs.GetAlerts)
		sensors.POST("/refresh", rs.PostRefresh)
		sensors.POST("/limiter", rs.PostLimiter)
	}
}
