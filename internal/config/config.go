package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Import     ImportConfig     `yaml:"import" mapstructure:"import"`
	Ranking    RankingConfig    `yaml:"ranking" mapstructure:"ranking"`
	Commission CommissionConfig `yaml:"commission" mapstructure:"commission"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Goals      GoalsConfig      `yaml:"goals" mapstructure:"goals"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// IngestConfig maps extract headers onto record fields and lists the
// advisor names that mark system rows.
type IngestConfig struct {
	Format    string        `yaml:"format" mapstructure:"format"`
	Sentinels []string      `yaml:"sentinels" mapstructure:"sentinels"`
	Columns   ColumnsConfig `yaml:"columns" mapstructure:"columns"`
}

// ColumnsConfig names the extract column for each record field.
type ColumnsConfig struct {
	AdvisorName  string `yaml:"advisor_name" mapstructure:"advisor_name"`
	AdvisorID    string `yaml:"advisor_id" mapstructure:"advisor_id"`
	TotalSales   string `yaml:"total_sales" mapstructure:"total_sales"`
	ROCount      string `yaml:"ro_count" mapstructure:"ro_count"`
	ELR          string `yaml:"elr" mapstructure:"elr"`
	OpCount      string `yaml:"op_count" mapstructure:"op_count"`
	TechHours    string `yaml:"tech_hours" mapstructure:"tech_hours"`
	LaborSales   string `yaml:"labor_sales" mapstructure:"labor_sales"`
	PartsSales   string `yaml:"parts_sales" mapstructure:"parts_sales"`
	LaborAvg     string `yaml:"labor_avg" mapstructure:"labor_avg"`
	PartsAvg     string `yaml:"parts_avg" mapstructure:"parts_avg"`
	TotalAvg     string `yaml:"total_avg" mapstructure:"total_avg"`
	TechHoursAvg string `yaml:"tech_hours_avg" mapstructure:"tech_hours_avg"`
}

// ImportConfig configures the scheduled extract pull.
type ImportConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Cron        string `yaml:"cron" mapstructure:"cron"`
	SourceURL   string `yaml:"source_url" mapstructure:"source_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RankingConfig configures peer ranking.
type RankingConfig struct {
	MinROCount int `yaml:"min_ro_count" mapstructure:"min_ro_count"`
}

// CommissionConfig controls rate plan resolution.
type CommissionConfig struct {
	UseDefaultFallback bool `yaml:"use_default_fallback" mapstructure:"use_default_fallback"`
}

// ReportConfig configures report rendering.
type ReportConfig struct {
	OutputDir   string `yaml:"output_dir" mapstructure:"output_dir"`
	Format      string `yaml:"format" mapstructure:"format"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	Dealership  string `yaml:"dealership" mapstructure:"dealership"`
}

// NotifyConfig selects and configures the delivery transport.
type NotifyConfig struct {
	Transport     string        `yaml:"transport" mapstructure:"transport"`
	From          string        `yaml:"from" mapstructure:"from"`
	TemplateDir   string        `yaml:"template_dir" mapstructure:"template_dir"`
	TimeoutSecs   int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSecond float64       `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	SMTP          SMTPConfig    `yaml:"smtp" mapstructure:"smtp"`
	Webhook       WebhookConfig `yaml:"webhook" mapstructure:"webhook"`
}

// SMTPConfig holds SMTP relay settings (SendGrid, SES SMTP, or any relay).
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// WebhookConfig holds the JSON webhook transport settings.
type WebhookConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// GoalsConfig holds the dealership's monthly targets.
type GoalsConfig struct {
	TargetELR      float64 `yaml:"target_elr" mapstructure:"target_elr"`
	TargetROAvg    float64 `yaml:"target_ro_avg" mapstructure:"target_ro_avg"`
	TargetOpsPerRO float64 `yaml:"target_ops_per_ro" mapstructure:"target_ops_per_ro"`
	TargetLaborMix float64 `yaml:"target_labor_mix" mapstructure:"target_labor_mix"`
}

// ScheduleConfig configures the monthly report trigger.
type ScheduleConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	ReportCron string `yaml:"report_cron" mapstructure:"report_cron"`
	Notify     bool   `yaml:"notify" mapstructure:"notify"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int    `yaml:"port" mapstructure:"port"`
	CORSOrigin  string `yaml:"cors_origin" mapstructure:"cors_origin"`
	MaxUploadMB int64  `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file, and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ADVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.timeout_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.cors_origin", "http://localhost:5173")
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("ingest.format", "csv")
	v.SetDefault("ingest.sentinels", []string{"XTIME ADVISOR"})
	v.SetDefault("ingest.columns.advisor_name", "Advisor Name")
	v.SetDefault("ingest.columns.advisor_id", "Advisor")
	v.SetDefault("ingest.columns.total_sales", "Labor & Parts")
	v.SetDefault("ingest.columns.ro_count", "Repair Order Count")
	v.SetDefault("ingest.columns.elr", "Effective Labor Rate")
	v.SetDefault("ingest.columns.op_count", "Operation Count")
	v.SetDefault("ingest.columns.tech_hours", "Tech Hours")
	v.SetDefault("ingest.columns.labor_sales", "Labor Sales")
	v.SetDefault("ingest.columns.parts_sales", "Parts Sales")
	v.SetDefault("ingest.columns.labor_avg", "Labor Sale Average")
	v.SetDefault("ingest.columns.parts_avg", "Parts Sales Average")
	v.SetDefault("ingest.columns.total_avg", "Labor & Parts Average")
	v.SetDefault("ingest.columns.tech_hours_avg", "Tech Hours Average")
	v.SetDefault("import.enabled", false)
	v.SetDefault("import.cron", "0 0 2 * * *")
	v.SetDefault("import.source_url", "")
	v.SetDefault("import.timeout_secs", 60)
	v.SetDefault("ranking.min_ro_count", 500)
	v.SetDefault("commission.use_default_fallback", false)
	v.SetDefault("report.output_dir", "reports")
	v.SetDefault("report.format", "pdf")
	v.SetDefault("report.concurrency", 4)
	v.SetDefault("report.dealership", "Service Operations")
	v.SetDefault("notify.transport", "log")
	v.SetDefault("notify.from", "noreply@dealership.com")
	v.SetDefault("notify.template_dir", "")
	v.SetDefault("notify.timeout_secs", 15)
	v.SetDefault("notify.rate_per_second", 5.0)
	v.SetDefault("notify.smtp.host", "smtp.sendgrid.net")
	v.SetDefault("notify.smtp.port", 587)
	v.SetDefault("notify.smtp.username", "apikey")
	v.SetDefault("notify.smtp.password", "")
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("goals.target_elr", 115.00)
	v.SetDefault("goals.target_ro_avg", 350.00)
	v.SetDefault("goals.target_ops_per_ro", 4.50)
	v.SetDefault("goals.target_labor_mix", 60.00)
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.report_cron", "0 0 8 1 * *")
	v.SetDefault("schedule.notify", true)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks that the settings required by the given command mode are present.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "store":
	case "report", "schedule":
		if c.Report.Concurrency < 1 || c.Report.Concurrency > 32 {
			problems = append(problems, "report.concurrency must be between 1 and 32")
		}
		if c.Report.Format != "pdf" && c.Report.Format != "text" {
			problems = append(problems, fmt.Sprintf("report.format %q must be pdf or text", c.Report.Format))
		}
	case "notify":
		problems = append(problems, c.notifyProblems()...)
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for the postgres driver")
	}
	if c.Ranking.MinROCount < 0 {
		problems = append(problems, "ranking.min_ro_count must be >= 0")
	}
	if mode == "schedule" && c.Schedule.Notify {
		problems = append(problems, c.notifyProblems()...)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) notifyProblems() []string {
	var problems []string
	switch c.Notify.Transport {
	case "smtp":
		if c.Notify.SMTP.Host == "" {
			problems = append(problems, "notify.smtp.host is required")
		}
		if c.Notify.SMTP.Password == "" {
			problems = append(problems, "notify.smtp.password is required")
		}
	case "webhook":
		if c.Notify.Webhook.URL == "" {
			problems = append(problems, "notify.webhook.url is required")
		}
	case "log":
	default:
		problems = append(problems, fmt.Sprintf("notify.transport %q must be smtp, webhook, or log", c.Notify.Transport))
	}
	if c.Notify.RatePerSecond <= 0 {
		problems = append(problems, "notify.rate_per_second must be > 0")
	}
	return problems
}
