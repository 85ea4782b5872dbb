package config

import (
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	// GitHub search credentials, comma separated. The only hard requirement:
	// without at least one token the search quota is unusable.
	GitHubTokens []string `envconfig:"GITHUB_TOKENS"`

	// Optional outbound proxies, comma separated. Each request picks one at random.
	Proxies []string `envconfig:"PROXY"`

	DataPath        string `envconfig:"DATA_PATH" default:"data"`
	QueriesFile     string `envconfig:"QUERIES_FILE" default:"queries.txt"`
	ScannedSHAsFile string `envconfig:"SCANNED_SHAS_FILE" default:"scanned_shas.txt"`

	// Deep scan: total lookback window and per-slice width, both in days.
	DateRangeDays        int `envconfig:"DATE_RANGE_DAYS" default:"365"`
	DeepScanIntervalDays int `envconfig:"DEEP_SCAN_INTERVAL_DAYS" default:"7"`

	// Appended to every sliced query to cut documentation/test noise at the
	// search-request level.
	GlobalExcludeDork string `envconfig:"GLOBAL_EXCLUDE_DORK" default:"-path:docs -path:tests -path:samples -filename:README.md -filename:package-lock.json -path:node_modules"`

	// Second-pass path denylist, case-insensitive substring match.
	FilePathBlacklist []string `envconfig:"FILE_PATH_BLACKLIST" default:"readme,docs,doc/,.md,sample,tutorial,node_modules"`

	// Search client bounds.
	SearchMaxPages         int `envconfig:"SEARCH_MAX_PAGES" default:"10"`
	SearchRetriesPerPage   int `envconfig:"SEARCH_RETRIES_PER_PAGE" default:"5"`
	CooldownBasePenaltySec int `envconfig:"COOLDOWN_BASE_PENALTY_SECONDS" default:"60"`

	// Pacing between slices and between full crawl cycles.
	SliceDelaySec int `envconfig:"SLICE_DELAY_SECONDS" default:"2"`
	CycleSleepSec int `envconfig:"CYCLE_SLEEP_SECONDS" default:"60"`

	// Balancer sync channel.
	BalancerSyncEnabled bool   `envconfig:"BALANCER_SYNC_ENABLED" default:"false"`
	BalancerURL         string `envconfig:"BALANCER_URL"`
	BalancerAuth        string `envconfig:"BALANCER_AUTH"`

	// GPT-load sync channel.
	GPTLoadSyncEnabled bool     `envconfig:"GPT_LOAD_SYNC_ENABLED" default:"false"`
	GPTLoadURL         string   `envconfig:"GPT_LOAD_URL"`
	GPTLoadAuth        string   `envconfig:"GPT_LOAD_AUTH"`
	GPTLoadGroupNames  []string `envconfig:"GPT_LOAD_GROUP_NAME"`

	SyncBatchIntervalSec int `envconfig:"SYNC_BATCH_INTERVAL_SECONDS" default:"60"`

	// Telegram summary channel.
	TelegramBotToken string `envconfig:"TG_BOT_TOKEN"`
	TelegramChatID   string `envconfig:"TG_CHAT_ID"`

	// Liveness/stats HTTP server.
	ServerPort int `envconfig:"PORT" default:"8000"`

	// Optional Postgres findings store.
	EnablePostgres bool   `envconfig:"ENABLE_POSTGRES" default:"false"`
	DBHost         string `envconfig:"DB_HOST" default:"postgres"`
	DBPort         int    `envconfig:"DB_PORT" default:"5432"`
	DBUser         string `envconfig:"DB_USER" default:"patscan"`
	DBPass         string `envconfig:"DB_PASS" default:"password"`
	DBName         string `envconfig:"DB_NAME" default:"patscan"`
	MigrationPath  string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Optional NSQ feed of confirmed findings.
	EnableNSQ     bool   `envconfig:"ENABLE_NSQ" default:"false"`
	NSQDHost      string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP      string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	NSQValidTopic string `envconfig:"NSQ_VALID_TOPIC" default:"findings.valid"`

	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell win over the .env file.
	_ = godotenv.Load(".env")

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	hasToken := false
	for _, tk := range c.GitHubTokens {
		if tk != "" {
			hasToken = true
			break
		}
	}
	if !hasToken {
		return fmt.Errorf("%w: GITHUB_TOKENS", ErrMissingRequired)
	}
	if c.DateRangeDays <= 0 {
		return fmt.Errorf("%w: DATE_RANGE_DAYS must be positive", ErrMissingRequired)
	}
	if c.DeepScanIntervalDays <= 0 {
		return fmt.Errorf("%w: DEEP_SCAN_INTERVAL_DAYS must be positive", ErrMissingRequired)
	}
	if c.BalancerSyncEnabled && (c.BalancerURL == "" || c.BalancerAuth == "") {
		return fmt.Errorf("%w: BALANCER_URL and BALANCER_AUTH", ErrMissingRequired)
	}
	if c.GPTLoadSyncEnabled && (c.GPTLoadURL == "" || c.GPTLoadAuth == "" || len(c.GPTLoadGroupNames) == 0) {
		return fmt.Errorf("%w: GPT_LOAD_URL, GPT_LOAD_AUTH and GPT_LOAD_GROUP_NAME", ErrMissingRequired)
	}
	return nil
}
