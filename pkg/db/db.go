package db

import (
	"log"
	"os"
	"sync"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/models"
)

type DB struct {
	Conn *gorm.DB
}

var (
	instance *DB
	once     sync.Once
)

func GetInstance(dialector gorm.Dialector) *DB {
	logger := common.GetLoggerWith(common.LoggerNameDatalogStore)
	once.Do(func() {
		conn, err := gorm.Open(dialector, &gorm.Config{
			Logger: gormLogger.Default.LogMode(gormLogger.Warn),
		})
		if err != nil {
			log.Fatal("Failed to connect to database:", err)
		}

		logger.Info("Connected to database with dialector:", zap.String("dialector", dialector.Name()))

		instance = &DB{Conn: conn}

		if err := instance.Conn.AutoMigrate(&models.DatalogDocument{}); err != nil {
			log.Fatal("Failed to migrate database:", err)
		}

		logger.Info("Database migration completed")

		if err := instance.Conn.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
			log.Fatal("Failed to set sqlite journal mode", err)
		}
	})
	return instance
}

func UseSqliteDialector() gorm.Dialector {
	dbPath, found := os.LookupEnv(common.EnvKeyMonitorDbPath)
	if !found || dbPath == "" {
		dbPath = "datalog.db"
	}
	return sqlite.Open(dbPath)
}

func UseSqliteDialectorAt(dbPath string) gorm.Dialector {
	if dbPath == "" {
		return UseSqliteDialector()
	}
	return sqlite.Open(dbPath)
}

func UseMemorySqliteDialector() gorm.Dialector {
	return sqlite.Open("file::memory:?cache=shared")
}
