package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App       AppConfig       `json:"app"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Email     EmailConfig     `json:"email"`
	Security  SecurityConfig  `json:"security"`
	Storage   StorageConfig   `json:"storage"`
	Search    SearchConfig    `json:"search"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Log       LogConfig       `json:"log"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env             string        `json:"env"`              // 运行环境: local / prod
	LogLevel        string        `json:"log_level"`        // 日志级别: debug / info / warn / error
	HTTPAddr        string        `json:"http_addr"`        // API 服务监听地址
	WorkerPoolSize  int           `json:"worker_pool_size"` // 通知 Worker Pool 大小
	QueueCapacity   int           `json:"queue_capacity"`   // 通知队列容量
	SyncReplayTTL   time.Duration `json:"sync_replay_ttl"`  // 离线同步 op_id 去重窗口（如 "24h"）
	LoginRateLimit  float64       `json:"login_rate_limit"` // 登录限流速率（token/s）
	LoginRateBurst  float64       `json:"login_rate_burst"` // 登录限流桶容量
	SyncRateLimit   float64       `json:"sync_rate_limit"`  // 同步接口限流速率（token/s）
	SyncRateBurst   float64       `json:"sync_rate_burst"`  // 同步接口限流桶容量
	MailRateLimit   float64       `json:"mail_rate_limit"`  // 邮件发送限流速率（token/s）
	MailRateBurst   float64       `json:"mail_rate_burst"`  // 邮件发送限流桶容量
	CORSOrigins     []string      `json:"cors_origins"`     // 允许的跨域来源
	SeedDemo        bool          `json:"seed_demo"`        // 启动时写入演示数据
	ModeratorEmails []string      `json:"moderator_emails"` // 接收新举报通知的邮箱
	MaxUploadBytes  int64         `json:"max_upload_bytes"` // multipart 请求体上限
	ShutdownTimeout time.Duration `json:"shutdown_timeout"` // 优雅关闭超时
}

// DatabaseConfig 关系型数据库配置。
type DatabaseConfig struct {
	Driver          string        `json:"driver"`            // mysql / postgres / sqlite
	DSN             string        `json:"dsn"`               // 数据库连接字符串
	MaxOpenConns    int           `json:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `json:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"` // 连接最长存活时间
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowThreshold   time.Duration `json:"slow_threshold"` // 慢查询阈值
}

// RedisConfig Redis 配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret  string        `json:"jwt_secret"`  // JWT 签名密钥
	TokenTTL   time.Duration `json:"token_ttl"`   // JWT 有效期
	AdminToken string        `json:"admin_token"` // 管理后台静态令牌（为空表示关闭管理接口）
}

// StorageConfig 附件存储配置。
type StorageConfig struct {
	Driver   string      `json:"driver"`    // local / minio
	LocalDir string      `json:"local_dir"` // 本地存储目录
	Minio    MinioConfig `json:"minio"`
}

// MinioConfig MinIO / S3 兼容存储配置。
type MinioConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"use_ssl"`
}

// SearchConfig 任务全文检索配置。
type SearchConfig struct {
	Enabled  bool   `json:"enabled"`
	MeiliURL string `json:"meili_url"`
	MeiliKey string `json:"meili_key"`
	Index    string `json:"index"`
}

// SchedulerConfig 后台任务配置。
type SchedulerConfig struct {
	Enabled         bool   `json:"enabled"`
	Timezone        string `json:"timezone"`         // cron 使用的时区
	OverdueSpec     string `json:"overdue_spec"`     // 逾期扫描的 cron 表达式
	RecurrenceSpec  string `json:"recurrence_spec"`  // 周期任务重置的 cron 表达式
	RecurrenceLimit int    `json:"recurrence_limit"` // 单次重置的最大任务数
}

// LogConfig 日志输出配置。
type LogConfig struct {
	File       string `json:"file"`        // 为空时只输出到 stdout
	MaxSizeMB  int    `json:"max_size_mb"` // 单个日志文件大小上限
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败或数据库配置非法时返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	var cfg *Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// 即使没有配置文件，也允许环境变量覆盖默认值
		cfg = getDefaultConfig()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		cfg = &Config{}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		applyDefaults(cfg)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查数据库驱动与 DSN 是否匹配。
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql":
		if _, err := mysql.ParseDSN(c.Database.DSN); err != nil {
			return fmt.Errorf("invalid mysql dsn: %w", err)
		}
	case "postgres":
		if _, err := pgx.ParseConfig(c.Database.DSN); err != nil {
			return fmt.Errorf("invalid postgres dsn: %w", err)
		}
	case "sqlite":
		if c.Database.DSN == "" {
			return fmt.Errorf("sqlite dsn is empty")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "local", "minio":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	return nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:             "local",
			LogLevel:        "info",
			HTTPAddr:        ":3000",
			WorkerPoolSize:  4,
			QueueCapacity:   256,
			SyncReplayTTL:   24 * time.Hour,
			LoginRateLimit:  1,
			LoginRateBurst:  5,
			SyncRateLimit:   2,
			SyncRateBurst:   10,
			MailRateLimit:   1,
			MailRateBurst:   3,
			CORSOrigins:     []string{"*"},
			MaxUploadBytes:  16 << 20,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "mysql",
			DSN:             "root:password@tcp(localhost:3306)/noiton?parseTime=true&loc=Local",
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			SlowThreshold:   time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
			TokenTTL:  time.Hour,
		},
		Storage: StorageConfig{
			Driver:   "local",
			LocalDir: "uploads/anexos",
		},
		Search: SearchConfig{
			Enabled:  false,
			MeiliURL: "http://localhost:7700",
			Index:    "tarefas",
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			Timezone:        "America/Sao_Paulo",
			OverdueSpec:     "@every 5m",
			RecurrenceSpec:  "0 0 * * * *",
			RecurrenceLimit: 500,
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	d := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = d.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = d.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = d.App.HTTPAddr
	}
	if cfg.App.WorkerPoolSize == 0 {
		cfg.App.WorkerPoolSize = d.App.WorkerPoolSize
	}
	if cfg.App.QueueCapacity == 0 {
		cfg.App.QueueCapacity = d.App.QueueCapacity
	}
	if cfg.App.SyncReplayTTL == 0 {
		cfg.App.SyncReplayTTL = d.App.SyncReplayTTL
	}
	if cfg.App.LoginRateLimit == 0 {
		cfg.App.LoginRateLimit = d.App.LoginRateLimit
	}
	if cfg.App.LoginRateBurst == 0 {
		cfg.App.LoginRateBurst = d.App.LoginRateBurst
	}
	if cfg.App.SyncRateLimit == 0 {
		cfg.App.SyncRateLimit = d.App.SyncRateLimit
	}
	if cfg.App.SyncRateBurst == 0 {
		cfg.App.SyncRateBurst = d.App.SyncRateBurst
	}
	if cfg.App.MailRateLimit == 0 {
		cfg.App.MailRateLimit = d.App.MailRateLimit
	}
	if cfg.App.MailRateBurst == 0 {
		cfg.App.MailRateBurst = d.App.MailRateBurst
	}
	if len(cfg.App.CORSOrigins) == 0 {
		cfg.App.CORSOrigins = d.App.CORSOrigins
	}
	if cfg.App.MaxUploadBytes == 0 {
		cfg.App.MaxUploadBytes = d.App.MaxUploadBytes
	}
	if cfg.App.ShutdownTimeout == 0 {
		cfg.App.ShutdownTimeout = d.App.ShutdownTimeout
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = d.Database.Driver
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == d.Database.Driver {
		cfg.Database.DSN = d.Database.DSN
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = d.Database.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = d.Database.MaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = d.Database.ConnMaxLifetime
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = d.Database.ConnMaxIdleTime
	}
	if cfg.Database.SlowThreshold == 0 {
		cfg.Database.SlowThreshold = d.Database.SlowThreshold
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = d.Redis.Addr
	}
	if cfg.Email.SMTPHost == "" {
		cfg.Email.SMTPHost = d.Email.SMTPHost
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = d.Email.SMTPPort
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = d.Security.JWTSecret
	}
	if cfg.Security.TokenTTL == 0 {
		cfg.Security.TokenTTL = d.Security.TokenTTL
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = d.Storage.Driver
	}
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = d.Storage.LocalDir
	}
	if cfg.Search.MeiliURL == "" {
		cfg.Search.MeiliURL = d.Search.MeiliURL
	}
	if cfg.Search.Index == "" {
		cfg.Search.Index = d.Search.Index
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = d.Scheduler.Timezone
	}
	if cfg.Scheduler.OverdueSpec == "" {
		cfg.Scheduler.OverdueSpec = d.Scheduler.OverdueSpec
	}
	if cfg.Scheduler.RecurrenceSpec == "" {
		cfg.Scheduler.RecurrenceSpec = d.Scheduler.RecurrenceSpec
	}
	if cfg.Scheduler.RecurrenceLimit == 0 {
		cfg.Scheduler.RecurrenceLimit = d.Scheduler.RecurrenceLimit
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = d.Log.MaxSizeMB
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = d.Log.MaxBackups
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = d.Log.MaxAgeDays
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("admin_token", "ADMIN_TOKEN")
	_ = viper.BindEnv("minio_secret_key", "MINIO_SECRET_KEY")
	_ = viper.BindEnv("meili_key", "MEILI_MASTER_KEY")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	} else if v := os.Getenv("PORT"); v != "" {
		cfg.App.HTTPAddr = ":" + v
	}
	if v := os.Getenv("APP_WORKER_POOL_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.WorkerPoolSize = i
		}
	}
	if v := os.Getenv("APP_QUEUE_CAPACITY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.QueueCapacity = i
		}
	}
	if v := os.Getenv("APP_SYNC_REPLAY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.SyncReplayTTL = d
		}
	}
	if v := os.Getenv("APP_LOGIN_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.LoginRateLimit = f
		}
	}
	if v := os.Getenv("APP_SYNC_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.SyncRateLimit = f
		}
	}
	if v := os.Getenv("APP_CORS_ORIGINS"); v != "" {
		cfg.App.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("APP_SEED_DEMO"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.App.SeedDemo = b
		}
	}
	if v := os.Getenv("APP_MODERATOR_EMAILS"); v != "" {
		cfg.App.ModeratorEmails = splitList(v)
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("JWT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Security.TokenTTL = d
		}
	}
	if v := viper.GetString("admin_token"); v != "" {
		cfg.Security.AdminToken = v
	}

	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Database.DSN = v
	} else if cfg.Database.Driver == "mysql" &&
		(hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "") {
		parsed := parseMySQLDSN(cfg.Database.DSN)
		if v := viper.GetString("db_host"); v != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = v + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.Database.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}

	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("STORAGE_LOCAL_DIR"); v != "" {
		cfg.Storage.LocalDir = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.Storage.Minio.Endpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.Storage.Minio.AccessKey = v
	}
	if v := viper.GetString("minio_secret_key"); v != "" {
		cfg.Storage.Minio.SecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.Storage.Minio.Bucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Storage.Minio.UseSSL = b
		}
	}

	if v := os.Getenv("SEARCH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Search.Enabled = b
		}
	}
	if v := os.Getenv("MEILI_URL"); v != "" {
		cfg.Search.MeiliURL = v
	}
	if v := viper.GetString("meili_key"); v != "" {
		cfg.Search.MeiliKey = v
	}

	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Scheduler.Enabled = b
		}
	}
	if v := os.Getenv("SCHEDULER_TIMEZONE"); v != "" {
		cfg.Scheduler.Timezone = v
	}

	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:   "root",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "noiton",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "Local",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持时间Duration字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		SyncReplayTTL   string `json:"sync_replay_ttl"`
		ShutdownTimeout string `json:"shutdown_timeout"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if err := parseDurationField("sync_replay_ttl", aux.SyncReplayTTL, &a.SyncReplayTTL); err != nil {
		return err
	}
	return parseDurationField("shutdown_timeout", aux.ShutdownTimeout, &a.ShutdownTimeout)
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		SyncReplayTTL   string `json:"sync_replay_ttl"`
		ShutdownTimeout string `json:"shutdown_timeout"`
		*Alias
	}{
		SyncReplayTTL:   a.SyncReplayTTL.String(),
		ShutdownTimeout: a.ShutdownTimeout.String(),
		Alias:           (*Alias)(&a),
	})
}

// UnmarshalJSON 支持 "30m" 形式的连接池时间配置。
func (d *DatabaseConfig) UnmarshalJSON(data []byte) error {
	type Alias DatabaseConfig
	aux := &struct {
		ConnMaxLifetime string `json:"conn_max_lifetime"`
		ConnMaxIdleTime string `json:"conn_max_idle_time"`
		SlowThreshold   string `json:"slow_threshold"`
		*Alias
	}{
		Alias: (*Alias)(d),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if err := parseDurationField("conn_max_lifetime", aux.ConnMaxLifetime, &d.ConnMaxLifetime); err != nil {
		return err
	}
	if err := parseDurationField("conn_max_idle_time", aux.ConnMaxIdleTime, &d.ConnMaxIdleTime); err != nil {
		return err
	}
	return parseDurationField("slow_threshold", aux.SlowThreshold, &d.SlowThreshold)
}

// UnmarshalJSON 支持 "1h" 形式的 token_ttl。
func (s *SecurityConfig) UnmarshalJSON(data []byte) error {
	type Alias SecurityConfig
	aux := &struct {
		TokenTTL string `json:"token_ttl"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return parseDurationField("token_ttl", aux.TokenTTL, &s.TokenTTL)
}

func parseDurationField(name, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s format: %w", name, err)
	}
	*dst = d
	return nil
}
