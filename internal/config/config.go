package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "PROMPT_HARVESTER_CONFIG"
	databasePathEnv = "DATABASE_PATH"
	httpAddrEnv     = "HTTP_ADDR"
	llmAPIKeyEnv    = "OPENAI_API_KEY"
	llmModelEnv     = "OPENAI_MODEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	HTTP       HTTPConfig       `yaml:"http"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	LLM        LLMConfig        `yaml:"llm"`
	Static     StaticConfig     `yaml:"static"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
}

// LoggingConfig controls the slog handler level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes the sqlite file location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig describes the admin API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SchedulerConfig defines the two calendar triggers as cron expressions.
type SchedulerConfig struct {
	// PreSeasonCron fires the full run before applications open.
	PreSeasonCron string `yaml:"preSeasonCron"`
	// PostRDCron fires the verification run after regular-decision deadlines.
	PostRDCron string         `yaml:"postRdCron"`
	Timezone   string         `yaml:"timezone"`
	location   *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// PipelineConfig tunes the acquisition flow.
type PipelineConfig struct {
	// ApplicationYear is the admission cycle being harvested.
	ApplicationYear int `yaml:"applicationYear"`
	// StrategyDelay is the politeness pause between source strategies
	// inside one institution's flow.
	StrategyDelay time.Duration `yaml:"strategyDelay"`
	// InstitutionDelay is the pause between institutions in batch mode.
	InstitutionDelay time.Duration `yaml:"institutionDelay"`
}

// LLMConfig defines how to contact the text-understanding API. An empty
// APIKey disables LLM extraction and validation; the pipeline then runs on
// heuristics and fallback lists alone.
type LLMConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// StaticConfig is the hand-maintained institution→essay-page table.
type StaticConfig struct {
	Pages map[string]string `yaml:"pages"`
}

// AggregatorConfig maps institutions into a third-party prompt catalog.
type AggregatorConfig struct {
	BaseURL string            `yaml:"baseUrl"`
	Slugs   map[string]string `yaml:"slugs"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}
	if override.Database.Path != "" {
		base.Database = override.Database
	}
	if override.HTTP.Addr != "" {
		base.HTTP = override.HTTP
	}

	if override.Scheduler.PreSeasonCron != "" {
		base.Scheduler.PreSeasonCron = override.Scheduler.PreSeasonCron
	}
	if override.Scheduler.PostRDCron != "" {
		base.Scheduler.PostRDCron = override.Scheduler.PostRDCron
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Pipeline.ApplicationYear != 0 {
		base.Pipeline.ApplicationYear = override.Pipeline.ApplicationYear
	}
	if override.Pipeline.StrategyDelay != 0 {
		base.Pipeline.StrategyDelay = override.Pipeline.StrategyDelay
	}
	if override.Pipeline.InstitutionDelay != 0 {
		base.Pipeline.InstitutionDelay = override.Pipeline.InstitutionDelay
	}

	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}

	if len(override.Static.Pages) > 0 {
		base.Static = override.Static
	}
	if override.Aggregator.BaseURL != "" {
		base.Aggregator.BaseURL = override.Aggregator.BaseURL
	}
	if len(override.Aggregator.Slugs) > 0 {
		base.Aggregator.Slugs = override.Aggregator.Slugs
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Path: "promptharvester.db"},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Scheduler: SchedulerConfig{
			// August 1st, before the application season opens.
			PreSeasonCron: "0 6 1 8 *",
			// January 15th, after regular-decision deadlines.
			PostRDCron: "0 6 15 1 *",
			Timezone:   defaultTimezone,
			location:   tz,
		},
		Pipeline: PipelineConfig{
			ApplicationYear:  time.Now().Year() + 1,
			StrategyDelay:    2 * time.Second,
			InstitutionDelay: 3 * time.Second,
		},
		LLM: LLMConfig{
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
			APIKey:   "",
		},
		Static: StaticConfig{
			Pages: map[string]string{
				"Stanford University":                   "https://admission.stanford.edu/apply/essays/",
				"Massachusetts Institute of Technology": "https://mitadmissions.org/apply/firstyear/essays/",
				"University of Michigan":                "https://admissions.umich.edu/apply/first-year-applicants/essay-questions",
				"University of Texas at Austin":         "https://admissions.utexas.edu/apply/essays/",
			},
		},
		Aggregator: AggregatorConfig{
			BaseURL: "https://www.collegeessayguy.com/college-essay-prompts",
			Slugs: map[string]string{
				"Stanford University":           "stanford-university",
				"University of Michigan":        "university-of-michigan",
				"University of Texas at Austin": "university-of-texas-austin",
				"Boston College":                "boston-college",
			},
		},
	}
}
