package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/palikit/canonpress/internal/depth"
)

type Config struct {
	Port string

	// Publication API connection
	APIBaseURL string
	APIKey     string

	// Auth for this service
	ServiceAPIKey string

	// Worker pool
	WorkerCount          int
	MaxQueueSize         int
	MaxConcurrentVolumes int

	// Heading/TOC shape
	MaxHeadingLevel   int
	MainTocDepth      int
	SecondaryTocDepth int

	// Depth overrides, delivered as JSON-valued env vars
	PannasakaSuffix        string
	additionalPannasakaIDs string
	forcedChapters         string
	overridePrecedence     string

	// Job state
	JobTTL time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8091"),

		APIBaseURL: envOr("API_BASE_URL", "http://localhost:80/api"),
		APIKey:     os.Getenv("API_KEY"),

		ServiceAPIKey: os.Getenv("CANONPRESS_API_KEY"),

		WorkerCount:          envInt("WORKER_COUNT", 4),
		MaxQueueSize:         envInt("MAX_QUEUE_SIZE", 50),
		MaxConcurrentVolumes: envInt("MAX_CONCURRENT_VOLUMES", 4),

		MaxHeadingLevel:   envInt("MAX_HEADING_LEVEL", 6),
		MainTocDepth:      envInt("MAIN_TOC_DEPTH", 2),
		SecondaryTocDepth: envInt("SECONDARY_TOC_DEPTH", 5),

		PannasakaSuffix:        envOr("PANNASAKA_SUFFIX", "pannasaka"),
		additionalPannasakaIDs: os.Getenv("ADDITIONAL_PANNASAKA_IDS"),
		forcedChapters:         os.Getenv("FORCED_CHAPTER_COLLECTIONS"),
		overridePrecedence:     os.Getenv("OVERRIDE_PRECEDENCE"),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.MaxConcurrentVolumes <= 0 {
		cfg.MaxConcurrentVolumes = 4
	}
	if cfg.MaxHeadingLevel <= 0 {
		cfg.MaxHeadingLevel = 6
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.ServiceAPIKey == "" {
		return fmt.Errorf("CANONPRESS_API_KEY is required")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if _, err := c.Overrides(); err != nil {
		return err
	}
	return nil
}

// Overrides parses the depth-override env vars into a validated override set.
// Parse failures surface as InvalidOverrideConfigError so a bad deployment
// fails at startup rather than mid-run.
func (c Config) Overrides() (depth.Overrides, error) {
	o := depth.Overrides{PannasakaSuffix: c.PannasakaSuffix}

	if c.additionalPannasakaIDs != "" {
		if err := json.Unmarshal([]byte(c.additionalPannasakaIDs), &o.PannasakaIDs); err != nil {
			return depth.Overrides{}, &depth.InvalidOverrideConfigError{
				Reason: fmt.Sprintf("ADDITIONAL_PANNASAKA_IDS: %v", err),
			}
		}
	}
	if c.forcedChapters != "" {
		if err := json.Unmarshal([]byte(c.forcedChapters), &o.ForcedChapters); err != nil {
			return depth.Overrides{}, &depth.InvalidOverrideConfigError{
				Reason: fmt.Sprintf("FORCED_CHAPTER_COLLECTIONS: %v", err),
			}
		}
	}
	if c.overridePrecedence != "" {
		for _, k := range strings.Split(c.overridePrecedence, ",") {
			o.Precedence = append(o.Precedence, depth.OverrideKind(strings.TrimSpace(k)))
		}
	}

	if err := o.Validate(); err != nil {
		return depth.Overrides{}, err
	}
	return o, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
