package common

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileName       = "monitor.log"
	logMaxSizeMB      = 10
	logMaxBackups     = 5
	logMaxAgeDays     = 28
	envKeyMonitorLogs = "MONITOR_LOG_DIR"
)

var (
	logger *zap.Logger
	mu     sync.RWMutex
	once   sync.Once
)

func getLogger() *zap.Logger {
	once.Do(initLogger)
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func GetLogger() *zap.Logger {
	return getLogger().Named("default")
}

// GetLoggerWith returns a named child of the process logger, e.g.
//
//	common.GetLoggerWith(common.LoggerNameMonitorCore,
//		zap.String(common.LoggerFieldCategory, common.LoggerCategoryPoll))
func GetLoggerWith(name string, fields ...zap.Field) *zap.Logger {
	return getLogger().Named(name).With(fields...)
}

// Sync flushes buffered entries, call it before the process exits.
func Sync() {
	_ = getLogger().Sync()
}

func logsDir() string {
	if dir := os.Getenv(envKeyMonitorLogs); dir != "" {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("Error getting current directory: %v", err)
	}
	return filepath.Join(wd, "logs")
}

func initLogger() {
	dir := logsDir()
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		log.Fatalf("Error find/create logs directory: %v", err)
	}

	logFile := &lumberjack.Logger{
		Filename:   filepath.Join(dir, logFileName),
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   true,
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(logFile),
		zap.InfoLevel,
	)

	core := fileCore
	if !IsProduction() {
		consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		consoleCore := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), zap.DebugLevel)
		core = zapcore.NewTee(fileCore, consoleCore)
	}

	mu.Lock()
	logger = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	mu.Unlock()
}

func replaceLogger(l *zap.Logger) {
	once.Do(initLogger)
	mu.Lock()
	logger = l
	mu.Unlock()
}

func SetTestCaptureLogger(buf *bytes.Buffer, level zapcore.Level) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(&lockedBuffer{buf: buf}), level)
	replaceLogger(zap.New(core))
}

func SetTestLoggerNop() {
	replaceLogger(zap.NewNop())
}

// lockedBuffer lets poll goroutines write to a test buffer while the test reads it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
