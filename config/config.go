/*
Package config loads runtime settings and plan rules.

PURPOSE:
  One Config value drives the server and the CLI. Plan rules (vesting
  schedule, eligibility thresholds, rank table, report layout and the
  default what-if parameters) live in a YAML file. Runtime settings
  (database path, port, logging) can additionally come from a .env file
  and PROFITSHARE_* environment variables.

PRECEDENCE (lowest to highest):
  1. Default()
  2. YAML file
  3. .env file (does not override variables already set)
  4. Process environment

ENVIRONMENT:
  PROFITSHARE_DB_PATH            SQLite database path
  PROFITSHARE_PORT               HTTP port
  PROFITSHARE_LOG_LEVEL          logrus level
  PROFITSHARE_LOG_OUTPUT         stdout | file | both
  PROFITSHARE_LOG_DIR            Directory for rotated log files
  PROFITSHARE_SCHEDULER_ENABLED  true | false

SEE ALSO:
  - report/service.go: Options built by ReportOptions
  - logging/logging.go: Logging config
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/warp/profit-sharing/breakdown"
	"github.com/warp/profit-sharing/eligibility"
	"github.com/warp/profit-sharing/logging"
	"github.com/warp/profit-sharing/plan"
	"github.com/warp/profit-sharing/report"
	"github.com/warp/profit-sharing/vesting"
	"github.com/warp/profit-sharing/yearend"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PROFITSHARE_"

// Config is the full application configuration.
type Config struct {
	DBPath         string          `yaml:"db_path"`
	Port           int             `yaml:"port"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	Scheduler      SchedulerConfig `yaml:"scheduler"`
	Logging        logging.Config  `yaml:"logging"`
	Plan           PlanConfig      `yaml:"plan"`
}

// SchedulerConfig controls the automatic close of finished plan years.
type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// PlanConfig holds the plan rules.
type PlanConfig struct {
	Vesting            []VestingStepConfig `yaml:"vesting"`
	MinHours           int                 `yaml:"min_hours"`
	MinAge             int                 `yaml:"min_age"`
	RetirementAge      int                 `yaml:"retirement_age"`
	IncomePerPoint     decimal.Decimal     `yaml:"income_per_point"`
	VestedServiceYears int                 `yaml:"vested_service_years"`
	StrictEligibility  bool                `yaml:"strict_eligibility"`
	Ranks              []RankConfig        `yaml:"ranks"`
	Report             ReportConfig        `yaml:"report"`
	WhatIf             WhatIfConfig        `yaml:"what_if"`
}

// VestingStepConfig is one step of the schedule; Percent is 0-100.
type VestingStepConfig struct {
	Years   int             `yaml:"years"`
	Percent decimal.Decimal `yaml:"percent"`
}

type RankConfig struct {
	Department     int `yaml:"department"`
	Classification int `yaml:"classification"`
	Rank           int `yaml:"rank"`
}

type ReportConfig struct {
	Title                 string `yaml:"title"`
	LinesPerPage          int    `yaml:"lines_per_page"`
	AlwaysShowStore       int    `yaml:"always_show_store"`
	KeepZeroBalanceStores []int  `yaml:"keep_zero_balance_stores"`
}

// WhatIfConfig are the default allocation parameters of a close.
type WhatIfConfig struct {
	ContributionPercent decimal.Decimal `yaml:"contribution_percent"`
	ForfeiturePercent   decimal.Decimal `yaml:"forfeiture_percent"`
	EarningsPercent     decimal.Decimal `yaml:"earnings_percent"`
	MaxContribution     decimal.Decimal `yaml:"max_contribution"`
}

// Default returns the legacy plan rules and local runtime settings.
func Default() *Config {
	rules := yearend.DefaultRules()

	cfg := &Config{
		DBPath:         "./profit-sharing.db",
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		Scheduler:      SchedulerConfig{Enabled: false, Interval: time.Hour},
		Logging:        logging.DefaultConfig(),
		Plan: PlanConfig{
			MinHours:           rules.Criteria.MinHours,
			MinAge:             rules.Criteria.MinAge,
			RetirementAge:      rules.RetirementAge,
			IncomePerPoint:     rules.IncomePerPoint,
			VestedServiceYears: rules.VestedServiceYears,
			Report: ReportConfig{
				Title:           breakdown.DefaultTitle,
				LinesPerPage:    breakdown.DefaultLinesPerPage,
				AlwaysShowStore: breakdown.DefaultAlwaysShow,
			},
		},
	}

	hundred := decimal.NewFromInt(100)
	for _, s := range vesting.DefaultSchedule().Steps() {
		cfg.Plan.Vesting = append(cfg.Plan.Vesting, VestingStepConfig{Years: s.Years, Percent: s.Ratio.Mul(hundred)})
	}
	for k, rank := range breakdown.DefaultRankTable() {
		cfg.Plan.Ranks = append(cfg.Plan.Ranks, RankConfig{Department: k.Department, Classification: k.Classification, Rank: rank})
	}
	return cfg
}

// =============================================================================
// LOADING
// =============================================================================

// Load builds the configuration from an optional YAML file, an optional
// .env file and the environment. Empty paths are skipped.
func Load(yamlPath, envPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envPath, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := lookup("DB_PATH"); ok {
		c.DBPath = v
	}
	if v, ok := lookup("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", envPrefix, err)
		}
		c.Port = port
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := lookup("LOG_OUTPUT"); ok {
		c.Logging.Output = v
	}
	if v, ok := lookup("LOG_DIR"); ok {
		c.Logging.Dir = v
	}
	if v, ok := lookup("SCHEDULER_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSCHEDULER_ENABLED: %w", envPrefix, err)
		}
		c.Scheduler.Enabled = enabled
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	return v, ok && v != ""
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks runtime settings and plan rules.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}
	if err := c.Plan.validate(); err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	return nil
}

func (p PlanConfig) validate() error {
	if _, err := p.schedule(); err != nil {
		return err
	}
	if p.MinHours < 0 || p.MinAge < 0 {
		return fmt.Errorf("eligibility thresholds must not be negative")
	}
	if p.RetirementAge <= p.MinAge {
		return fmt.Errorf("retirement_age %d must exceed min_age %d", p.RetirementAge, p.MinAge)
	}
	if !p.IncomePerPoint.IsPositive() {
		return fmt.Errorf("income_per_point must be positive")
	}
	if p.Report.LinesPerPage <= 0 {
		return fmt.Errorf("report lines_per_page must be positive")
	}
	seen := make(map[breakdown.RankKey]bool)
	for _, r := range p.Ranks {
		k := breakdown.RankKey{Department: r.Department, Classification: r.Classification}
		if seen[k] {
			return fmt.Errorf("duplicate rank for department %d classification %d", r.Department, r.Classification)
		}
		if r.Rank <= 0 || r.Rank >= breakdown.AssociateRank {
			return fmt.Errorf("rank %d must be between 1 and %d", r.Rank, breakdown.AssociateRank-1)
		}
		seen[k] = true
	}
	return p.whatIf().Validate()
}

func (p PlanConfig) schedule() (vesting.Schedule, error) {
	hundred := decimal.NewFromInt(100)
	steps := make([]plan.VestingStep, len(p.Vesting))
	for i, s := range p.Vesting {
		steps[i] = plan.VestingStep{Years: s.Years, Ratio: s.Percent.Div(hundred)}
	}
	return vesting.NewSchedule(steps)
}

func (p PlanConfig) whatIf() yearend.Params {
	return yearend.Params{
		ContributionPercent: p.WhatIf.ContributionPercent,
		ForfeiturePercent:   p.WhatIf.ForfeiturePercent,
		EarningsPercent:     p.WhatIf.EarningsPercent,
		MaxContribution:     p.WhatIf.MaxContribution,
	}
}

// =============================================================================
// CONVERSION
// =============================================================================

// ReportOptions converts the plan rules into the engine's options.
func (c *Config) ReportOptions() (report.Options, error) {
	sched, err := c.Plan.schedule()
	if err != nil {
		return report.Options{}, err
	}

	ranks := make(breakdown.RankTable, len(c.Plan.Ranks))
	for _, r := range c.Plan.Ranks {
		ranks[breakdown.RankKey{Department: r.Department, Classification: r.Classification}] = r.Rank
	}

	layout := breakdown.DefaultOptions(0, time.Time{})
	if c.Plan.Report.Title != "" {
		layout.Title = c.Plan.Report.Title
	}
	layout.LinesPerPage = c.Plan.Report.LinesPerPage
	layout.AlwaysShowStore = c.Plan.Report.AlwaysShowStore
	layout.KeepZeroBalanceStores = c.Plan.Report.KeepZeroBalanceStores
	layout.Ranks = ranks

	return report.Options{
		Schedule: sched,
		Rules: yearend.Rules{
			Criteria:           eligibility.Criteria{MinHours: c.Plan.MinHours, MinAge: c.Plan.MinAge},
			RetirementAge:      c.Plan.RetirementAge,
			IncomePerPoint:     c.Plan.IncomePerPoint,
			VestedServiceYears: c.Plan.VestedServiceYears,
		},
		DefaultParams:     c.Plan.whatIf(),
		Layout:            layout,
		StrictEligibility: c.Plan.StrictEligibility,
	}, nil
}

// Address is the HTTP listen address.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}
