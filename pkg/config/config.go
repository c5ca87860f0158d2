// Package config reads the monitor settings from defaults, an optional
// monitor.yaml and MONITOR_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"
	"liyu1981.xyz/water-quality-monitor/pkg/common"
)

const (
	StoreTypeFirestore = "firestore"
	StoreTypeSqlite    = "sqlite"
	StoreTypeMemory    = "memory"

	DefaultFirestoreBaseURL = "https://firestore.googleapis.com/v1"
	DefaultHttpHostPort     = ":1080"
	DefaultRedisChannel     = "water-quality.alerts"

	configFileName = "monitor"
)

var ErrInvalidConfig = errors.New("invalid config")

type FirestoreConfig struct {
	BaseURL   string
	ProjectID string
	Database  string
	APIKey    string
}

type Config struct {
	StoreType string
	DbPath    string
	Firestore FirestoreConfig

	PollInterval time.Duration
	FetchTimeout time.Duration

	HttpHostPort string
	GrpcHostPort string

	RefreshRate  rate.Limit
	RefreshBurst int

	Location     *time.Location
	DashboardURL string

	RedisAddr    string
	RedisChannel string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(common.ConfigKeyStoreType, StoreTypeSqlite)
	v.SetDefault(common.ConfigKeyStoreDbPath, "datalog.db")
	v.SetDefault(common.ConfigKeyFirestoreBaseURL, DefaultFirestoreBaseURL)
	v.SetDefault(common.ConfigKeyFirestoreProject, "")
	v.SetDefault(common.ConfigKeyFirestoreDatabase, "(default)")
	v.SetDefault(common.ConfigKeyFirestoreAPIKey, "")
	v.SetDefault(common.ConfigKeyPollInterval, 5*time.Second)
	v.SetDefault(common.ConfigKeyFetchTimeout, 10*time.Second)
	v.SetDefault(common.ConfigKeyHttpHostPort, DefaultHttpHostPort)
	v.SetDefault(common.ConfigKeyGrpcHostPort, "")
	v.SetDefault(common.ConfigKeyRefreshRate, 1.0)
	v.SetDefault(common.ConfigKeyRefreshBurst, 3)
	v.SetDefault(common.ConfigKeyTimezone, "")
	v.SetDefault(common.ConfigKeyDashboardURL, common.DefaultDashboardURL)
	v.SetDefault(common.ConfigKeyRedisAddr, "")
	v.SetDefault(common.ConfigKeyRedisChannel, DefaultRedisChannel)
}

// NewViper returns a viper instance with the monitor defaults and env
// binding, searching configPaths (or the working directory) for monitor.yaml.
func NewViper(configPaths ...string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(common.ConfigEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType("yaml")
	if len(configPaths) == 0 {
		configPaths = []string{"."}
	}
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	return v
}

func Load(configPaths ...string) (*Config, error) {
	v := NewViper(configPaths...)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read %s.yaml: %w", configFileName, err)
		}
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		StoreType: strings.ToLower(strings.TrimSpace(v.GetString(common.ConfigKeyStoreType))),
		DbPath:    strings.TrimSpace(v.GetString(common.ConfigKeyStoreDbPath)),
		Firestore: FirestoreConfig{
			BaseURL:   strings.TrimRight(strings.TrimSpace(v.GetString(common.ConfigKeyFirestoreBaseURL)), "/"),
			ProjectID: strings.TrimSpace(v.GetString(common.ConfigKeyFirestoreProject)),
			Database:  strings.TrimSpace(v.GetString(common.ConfigKeyFirestoreDatabase)),
			APIKey:    strings.TrimSpace(v.GetString(common.ConfigKeyFirestoreAPIKey)),
		},
		PollInterval: v.GetDuration(common.ConfigKeyPollInterval),
		FetchTimeout: v.GetDuration(common.ConfigKeyFetchTimeout),
		HttpHostPort: strings.TrimSpace(v.GetString(common.ConfigKeyHttpHostPort)),
		GrpcHostPort: strings.TrimSpace(v.GetString(common.ConfigKeyGrpcHostPort)),
		RefreshRate:  rate.Limit(v.GetFloat64(common.ConfigKeyRefreshRate)),
		RefreshBurst: v.GetInt(common.ConfigKeyRefreshBurst),
		DashboardURL: strings.TrimSpace(v.GetString(common.ConfigKeyDashboardURL)),
		RedisAddr:    strings.TrimSpace(v.GetString(common.ConfigKeyRedisAddr)),
		RedisChannel: strings.TrimSpace(v.GetString(common.ConfigKeyRedisChannel)),
	}

	switch cfg.StoreType {
	case StoreTypeFirestore:
		if cfg.Firestore.ProjectID == "" {
			return nil, fmt.Errorf("%w: %s is required for the firestore store", ErrInvalidConfig, common.ConfigKeyFirestoreProject)
		}
	case StoreTypeSqlite, StoreTypeMemory:
	default:
		return nil, fmt.Errorf("%w: unknown %s %q", ErrInvalidConfig, common.ConfigKeyStoreType, cfg.StoreType)
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, common.ConfigKeyPollInterval)
	}
	if cfg.FetchTimeout < 0 {
		return nil, fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, common.ConfigKeyFetchTimeout)
	}
	if cfg.RefreshRate <= 0 || cfg.RefreshBurst <= 0 {
		return nil, fmt.Errorf("%w: %s and %s must be positive", ErrInvalidConfig, common.ConfigKeyRefreshRate, common.ConfigKeyRefreshBurst)
	}
	if cfg.HttpHostPort == "" {
		cfg.HttpHostPort = DefaultHttpHostPort
	}
	if cfg.DashboardURL == "" {
		cfg.DashboardURL = common.DefaultDashboardURL
	}

	cfg.Location = time.Local
	if tz := strings.TrimSpace(v.GetString(common.ConfigKeyTimezone)); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, common.ConfigKeyTimezone, err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}
