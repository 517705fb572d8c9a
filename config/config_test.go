package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/profit-sharing/breakdown"
	"github.com/warp/profit-sharing/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValidAndMatchesLegacyRules(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	opts, err := cfg.ReportOptions()
	require.NoError(t, err)
	assert.Equal(t, 1000, opts.Rules.Criteria.MinHours)
	assert.Equal(t, 21, opts.Rules.Criteria.MinAge)
	assert.Equal(t, 65, opts.Rules.RetirementAge)
	assert.True(t, opts.Schedule.Ratio(5).Equal(decimal.RequireFromString("0.6")))
	assert.Equal(t, 10, opts.Layout.Ranks.Rank(1, 1))
	assert.Equal(t, breakdown.DefaultAlwaysShow, opts.Layout.AlwaysShowStore)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	// GIVEN: A YAML file with a shorter schedule and custom layout
	path := writeFile(t, "plan.yaml", `
port: 9090
scheduler:
  enabled: true
  interval: 30m
plan:
  vesting:
    - years: 2
      percent: "50"
    - years: 4
      percent: "100"
  min_hours: 500
  min_age: 18
  retirement_age: 62
  income_per_point: "50"
  vested_service_years: 3
  ranks:
    - department: 9
      classification: 1
      rank: 15
  report:
    lines_per_page: 20
    always_show_store: 0
    keep_zero_balance_stores: [900]
  what_if:
    contribution_percent: "10"
    max_contribution: "2500"
`)

	// WHEN: Loading it
	cfg, err := config.Load(path, "")
	require.NoError(t, err)

	// THEN: Every section is applied
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "./profit-sharing.db", cfg.DBPath, "unset keys keep defaults")

	opts, err := cfg.ReportOptions()
	require.NoError(t, err)
	assert.True(t, opts.Schedule.Ratio(3).Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, 4, opts.Schedule.FullyVestedAt())
	assert.Equal(t, 500, opts.Rules.Criteria.MinHours)
	assert.Equal(t, 62, opts.Rules.RetirementAge)
	assert.Equal(t, 15, opts.Layout.Ranks.Rank(9, 1))
	assert.Equal(t, breakdown.AssociateRank, opts.Layout.Ranks.Rank(1, 1), "ranks replace the default table")
	assert.Equal(t, 20, opts.Layout.LinesPerPage)
	assert.Equal(t, []int{900}, opts.Layout.KeepZeroBalanceStores)
	assert.True(t, opts.DefaultParams.ContributionPercent.Equal(decimal.NewFromInt(10)))
	assert.True(t, opts.DefaultParams.MaxContribution.Equal(decimal.NewFromInt(2500)))
}

func TestLoad_EnvironmentWins(t *testing.T) {
	// GIVEN: A .env file and a process variable for the same key
	envPath := writeFile(t, ".env", "PROFITSHARE_DB_PATH=/from/dotenv.db\nPROFITSHARE_LOG_LEVEL=debug\n")
	t.Setenv("PROFITSHARE_DB_PATH", "/from/env.db")
	t.Setenv("PROFITSHARE_PORT", "7000")
	// godotenv sets variables process-wide; registering the key restores it.
	t.Setenv("PROFITSHARE_LOG_LEVEL", "")
	os.Unsetenv("PROFITSHARE_LOG_LEVEL")

	cfg, err := config.Load("", envPath)
	require.NoError(t, err)

	// THEN: The process environment is not overridden by .env
	assert.Equal(t, "/from/env.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, ":7000", cfg.Address())
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	_, err := config.Load("", filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "schedule not ending at 100", yaml: "plan:\n  vesting:\n    - years: 3\n      percent: \"60\"\n"},
		{name: "decreasing schedule", yaml: "plan:\n  vesting:\n    - years: 2\n      percent: \"60\"\n    - years: 3\n      percent: \"40\"\n    - years: 4\n      percent: \"100\"\n"},
		{name: "retirement below min age", yaml: "plan:\n  retirement_age: 20\n"},
		{name: "zero page length", yaml: "plan:\n  report:\n    lines_per_page: 0\n"},
		{name: "duplicate rank", yaml: "plan:\n  ranks:\n    - {department: 1, classification: 1, rank: 10}\n    - {department: 1, classification: 1, rank: 20}\n"},
		{name: "rank collides with associates", yaml: "plan:\n  ranks:\n    - {department: 1, classification: 1, rank: 999}\n"},
		{name: "percent above 100", yaml: "plan:\n  what_if:\n    earnings_percent: \"101\"\n"},
		{name: "malformed yaml", yaml: "plan: [\n"},
		{name: "bad port", env: map[string]string{"PROFITSHARE_PORT": "http"}},
		{name: "bad scheduler flag", env: map[string]string{"PROFITSHARE_SCHEDULER_ENABLED": "sometimes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, "plan.yaml", tt.yaml)
			}
			_, err := config.Load(path, "")
			assert.Error(t, err)
		})
	}
}
