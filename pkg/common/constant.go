package common

const (
	EnvKeyGoEnv string = "GO_ENV"

	EnvKeyRunIntegrationTests string = "RUN_INTEGRATION_TESTS"

	// viper keys, read from env as MONITOR_<KEY> with dots replaced by underscores
	ConfigEnvPrefix string = "MONITOR"

	ConfigKeyStoreType         string = "store.type"
	ConfigKeyStoreDbPath       string = "store.db_path"
	ConfigKeyFirestoreBaseURL  string = "firestore.base_url"
	ConfigKeyFirestoreProject  string = "firestore.project_id"
	ConfigKeyFirestoreDatabase string = "firestore.database"
	ConfigKeyFirestoreAPIKey   string = "firestore.api_key"
	ConfigKeyPollInterval      string = "poll.interval"
	ConfigKeyFetchTimeout      string = "fetch.timeout"
	ConfigKeyHttpHostPort      string = "http.host_port"
	ConfigKeyGrpcHostPort      string = "grpc.host_port"
	ConfigKeyRefreshRate       string = "refresh.rate"
	ConfigKeyRefreshBurst      string = "refresh.burst"
	ConfigKeyTimezone          string = "timezone"
	ConfigKeyDashboardURL      string = "dashboard_url"
	ConfigKeyRedisAddr         string = "redis.addr"
	ConfigKeyRedisChannel      string = "redis.channel"

	// env name of ConfigKeyStoreDbPath, used directly by the db package
	EnvKeyMonitorDbPath string = "MONITOR_STORE_DB_PATH"

	CollectionDatalog   string = "datalog"
	FieldDatalogSensor  string = "sensor_id"
	DefaultDashboardURL string = "https://wiki.dfrobot.com/Gravity__Analog_Dissolved_Oxygen_Sensor_SKU_SEN0237"

	LoggerNameMonitorCore     string = "monitor_core"
	LoggerNameDatalogStore    string = "datalog_store"
	LoggerNameFirestoreClient string = "firestore_client"
	LoggerNameRestfulServer   string = "restful_server"
	LoggerNameGrpcServer      string = "grpc_server"
	LoggerNameWsHub           string = "ws_hub"
	LoggerNameNotifier        string = "notifier"
	LoggerFieldCategory       string = "category"
	LoggerCategoryFetch       string = "fetch"
	LoggerCategoryPoll        string = "poll"
	LoggerCategoryAlert       string = "alert"
	LoggerCategoryIngest      string = "ingest"
)
