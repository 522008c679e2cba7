package infra

import (
	"fmt"
	"os"
	"strings"

	"sarraf_go/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// a margin below -100% would turn a positive quote negative
var minMarginPct = decimal.NewFromInt(-100)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Feed struct {
		URL             string `yaml:"url"`
		PollIntervalSec int    `yaml:"poll_interval_sec"`
		TimeoutSec      int    `yaml:"timeout_sec"`
	} `yaml:"feed"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Pricing struct {
		Margins  domain.MarginRuleSet  `yaml:"margins"`
		Classify []domain.ClassifyRule `yaml:"classify"`
	} `yaml:"pricing"`

	Client struct {
		CacheTTLMin         int `yaml:"cache_ttl_min"`
		FallbackIntervalSec int `yaml:"fallback_interval_sec"`
	} `yaml:"client"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":5001"
	}
	if cfg.Feed.PollIntervalSec <= 0 {
		cfg.Feed.PollIntervalSec = 15
	}
	if cfg.Feed.TimeoutSec <= 0 {
		cfg.Feed.TimeoutSec = 10
	}
	if cfg.Client.CacheTTLMin <= 0 {
		cfg.Client.CacheTTLMin = 30
	}
	if cfg.Client.FallbackIntervalSec <= 0 {
		cfg.Client.FallbackIntervalSec = 30
	}
	if len(cfg.Pricing.Classify) == 0 {
		cfg.Pricing.Classify = domain.DefaultClassifyRules()
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Feed.URL == "" || (!strings.HasPrefix(c.Feed.URL, "http://") && !strings.HasPrefix(c.Feed.URL, "https://")) {
		return &domain.ConfigError{Field: "feed.url", Err: fmt.Errorf("invalid feed URL: %s", c.Feed.URL)}
	}
	if c.Feed.PollIntervalSec <= 0 {
		return &domain.ConfigError{Field: "feed.poll_interval_sec", Err: fmt.Errorf("feed poll interval must be positive")}
	}
	if c.Server.Addr == "" {
		return &domain.ConfigError{Field: "server.addr", Err: fmt.Errorf("server addr is required")}
	}
	for code, rule := range c.Pricing.Margins.Rules {
		if code == "" {
			return &domain.ConfigError{Field: "pricing.margins.rules", Err: fmt.Errorf("margin rule with empty code")}
		}
		if rule.AlisMarginPct.LessThan(minMarginPct) || rule.SatisMarginPct.LessThan(minMarginPct) {
			return &domain.ConfigError{Field: "pricing.margins.rules", Err: fmt.Errorf("margin rule %s: percent margin below %s", code, minMarginPct)}
		}
	}
	for _, cp := range c.Pricing.Margins.Custom {
		if cp.Code == "" || cp.BaseCode == "" {
			return &domain.ConfigError{Field: "pricing.margins.custom", Err: fmt.Errorf("custom product requires code and base_code")}
		}
		if !cp.Multiplier.IsPositive() {
			return &domain.ConfigError{Field: "pricing.margins.custom", Err: fmt.Errorf("custom product %s: multiplier must be positive", cp.Code)}
		}
	}
	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("SARRAF_FEED_URL"); url != "" {
		cfg.Feed.URL = url
	}
	if addr := os.Getenv("SARRAF_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if path := os.Getenv("SARRAF_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if level := os.Getenv("SARRAF_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
