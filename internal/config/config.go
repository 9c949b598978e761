package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	AI         AIConfig
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Mail       MailConfig       `mapstructure:"mail"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

// AIConfig 内容评分模型（OpenAI兼容接口）
type AIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EvaluationConfig 评审流水线的默认参数，可被平台设置覆盖，支持热更新
type EvaluationConfig struct {
	AutoApprovalEnabled  bool           `mapstructure:"auto_approval_enabled"`
	ScoreThreshold       int            `mapstructure:"score_threshold"`
	MinDescriptionLength int            `mapstructure:"min_description_length"`
	MinSections          int            `mapstructure:"min_sections"`
	MinLessons           int            `mapstructure:"min_lessons"`
	DailyAutoApprovalCap int            `mapstructure:"daily_auto_approval_cap"`
	ScoringWorkers       int            `mapstructure:"scoring_workers"`
	ScoringQueueSize     int            `mapstructure:"scoring_queue_size"`
	RoleCapacity         map[string]int `mapstructure:"role_capacity"`
	SLATargetHours       map[string]int `mapstructure:"sla_target_hours"`
}

type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	Enabled  bool   `mapstructure:"enabled"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("LMS")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// AI 评分模型
	viper.BindEnv("ai.base_url", "AI_BASE_URL")
	viper.BindEnv("ai.api_key", "AI_API_KEY")
	viper.BindEnv("ai.model", "AI_MODEL")

	// Mail
	viper.BindEnv("mail.host", "MAIL_HOST")
	viper.BindEnv("mail.port", "MAIL_PORT")
	viper.BindEnv("mail.username", "MAIL_USERNAME")
	viper.BindEnv("mail.password", "MAIL_PASSWORD")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	applyEvaluationDefaults(&cfg.Evaluation)

	return &cfg, nil
}

// applyEvaluationDefaults 填充评审流水线缺省值，保证配置缺项时系统仍可运行
func applyEvaluationDefaults(ec *EvaluationConfig) {
	if ec.ScoreThreshold == 0 {
		ec.ScoreThreshold = 85
	}
	if ec.MinDescriptionLength == 0 {
		ec.MinDescriptionLength = 50
	}
	if ec.MinSections == 0 {
		ec.MinSections = 3
	}
	if ec.MinLessons == 0 {
		ec.MinLessons = 5
	}
	if ec.DailyAutoApprovalCap == 0 {
		ec.DailyAutoApprovalCap = 50
	}
	if ec.ScoringWorkers == 0 {
		ec.ScoringWorkers = 2
	}
	if ec.ScoringQueueSize == 0 {
		ec.ScoringQueueSize = 64
	}
	if len(ec.RoleCapacity) == 0 {
		ec.RoleCapacity = map[string]int{
			"primary":   10,
			"content":   8,
			"technical": 8,
			"quality":   6,
			"final":     5,
		}
	}
	if len(ec.SLATargetHours) == 0 {
		ec.SLATargetHours = map[string]int{
			"low":    168,
			"normal": 72,
			"high":   24,
			"urgent": 8,
		}
	}
}
