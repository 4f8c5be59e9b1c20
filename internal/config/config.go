// Package config loads the runtime's typed Config from environment
// variables (optionally via a .env file), following the teacher's
// godotenv + getEnvOrDefault idiom.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ReasoningType selects which reasoning engine (if any) runs before the LM
// call each turn.
type ReasoningType string

const (
	ReasoningNone           ReasoningType = "None"
	ReasoningChainOfThought ReasoningType = "ChainOfThought"
	ReasoningTreeOfThoughts ReasoningType = "TreeOfThoughts"
	ReasoningHybrid         ReasoningType = "Hybrid"
)

// ExplorationStrategy selects the ToT frontier-selection policy.
type ExplorationStrategy string

const (
	StrategyBestFirst     ExplorationStrategy = "BestFirst"
	StrategyBreadthFirst  ExplorationStrategy = "BreadthFirst"
	StrategyDepthFirst    ExplorationStrategy = "DepthFirst"
	StrategyBeamSearch    ExplorationStrategy = "BeamSearch"
)

// Config holds every option enumerated in spec.md §6.
type Config struct {
	MaxTurns                   int
	MaxRecentTurns             int
	EnableHistorySummarization bool
	MaxToolOutputSize          int

	MaxToolCallHistory          int
	ConsecutiveFailureThreshold int

	UseFunctionCalling bool
	EmitPublicStatus   bool
	EnableStreaming    bool

	LlmTimeout   time.Duration
	ToolTimeout  time.Duration
	TotalTimeout time.Duration

	MaxRetries             int
	RetryBaseDelay         time.Duration
	RetryBackoffMultiplier float64

	ReasoningType             ReasoningType
	MaxReasoningSteps         int
	MaxTreeDepth              int
	MaxTreeNodes              int
	TreeExplorationStrategy   ExplorationStrategy
	BeamWidth                 int
	EnableReasoningValidation bool
	MinReasoningConfidence    float64
}

// Default returns the configuration defaults, used as the base before env
// overlay.
func Default() *Config {
	return &Config{
		MaxTurns:                    40,
		MaxRecentTurns:              5,
		EnableHistorySummarization:  true,
		MaxToolOutputSize:           8 * 1024,
		MaxToolCallHistory:          20,
		ConsecutiveFailureThreshold: 3,
		UseFunctionCalling:          true,
		EmitPublicStatus:            false,
		EnableStreaming:             false,
		LlmTimeout:                  120 * time.Second,
		ToolTimeout:                 60 * time.Second,
		TotalTimeout:                20 * time.Minute,
		MaxRetries:                  3,
		RetryBaseDelay:              500 * time.Millisecond,
		RetryBackoffMultiplier:      2.0,
		ReasoningType:               ReasoningNone,
		MaxReasoningSteps:           4,
		MaxTreeDepth:                5,
		MaxTreeNodes:                40,
		TreeExplorationStrategy:     StrategyBestFirst,
		BeamWidth:                   3,
		EnableReasoningValidation:   false,
		MinReasoningConfidence:      0.5,
	}
}

// Load loads a .env file (if present at any of paths, default "./.env"),
// then overlays recognized OMEGA_* environment variables onto the defaults.
// A missing .env file is not an error — env vars and defaults still apply,
// matching the teacher's "continue on missing .env" behavior.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	if err := godotenv.Load(paths...); err != nil {
		log.Printf("[Config] no .env file loaded (%v), continuing with process environment", err)
	}

	cfg := Default()

	cfg.MaxTurns = envInt("OMEGA_MAX_TURNS", cfg.MaxTurns)
	cfg.MaxRecentTurns = envInt("OMEGA_MAX_RECENT_TURNS", cfg.MaxRecentTurns)
	cfg.EnableHistorySummarization = envBool("OMEGA_ENABLE_HISTORY_SUMMARIZATION", cfg.EnableHistorySummarization)
	cfg.MaxToolOutputSize = envInt("OMEGA_MAX_TOOL_OUTPUT_SIZE", cfg.MaxToolOutputSize)

	cfg.MaxToolCallHistory = envInt("OMEGA_MAX_TOOL_CALL_HISTORY", cfg.MaxToolCallHistory)
	cfg.ConsecutiveFailureThreshold = envInt("OMEGA_CONSECUTIVE_FAILURE_THRESHOLD", cfg.ConsecutiveFailureThreshold)

	cfg.UseFunctionCalling = envBool("OMEGA_USE_FUNCTION_CALLING", cfg.UseFunctionCalling)
	cfg.EmitPublicStatus = envBool("OMEGA_EMIT_PUBLIC_STATUS", cfg.EmitPublicStatus)
	cfg.EnableStreaming = envBool("OMEGA_ENABLE_STREAMING", cfg.EnableStreaming)

	cfg.LlmTimeout = envDuration("OMEGA_LLM_TIMEOUT", cfg.LlmTimeout)
	cfg.ToolTimeout = envDuration("OMEGA_TOOL_TIMEOUT", cfg.ToolTimeout)
	cfg.TotalTimeout = envDuration("OMEGA_TOTAL_TIMEOUT", cfg.TotalTimeout)

	cfg.MaxRetries = envInt("OMEGA_MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryBaseDelay = envDuration("OMEGA_RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	cfg.RetryBackoffMultiplier = envFloat("OMEGA_RETRY_BACKOFF_MULTIPLIER", cfg.RetryBackoffMultiplier)

	cfg.ReasoningType = ReasoningType(envString("OMEGA_REASONING_TYPE", string(cfg.ReasoningType)))
	cfg.MaxReasoningSteps = envInt("OMEGA_MAX_REASONING_STEPS", cfg.MaxReasoningSteps)
	cfg.MaxTreeDepth = envInt("OMEGA_MAX_TREE_DEPTH", cfg.MaxTreeDepth)
	cfg.MaxTreeNodes = envInt("OMEGA_MAX_TREE_NODES", cfg.MaxTreeNodes)
	cfg.TreeExplorationStrategy = ExplorationStrategy(envString("OMEGA_TREE_EXPLORATION_STRATEGY", string(cfg.TreeExplorationStrategy)))
	cfg.BeamWidth = envInt("OMEGA_BEAM_WIDTH", cfg.BeamWidth)
	cfg.EnableReasoningValidation = envBool("OMEGA_ENABLE_REASONING_VALIDATION", cfg.EnableReasoningValidation)
	cfg.MinReasoningConfidence = envFloat("OMEGA_MIN_REASONING_CONFIDENCE", cfg.MinReasoningConfidence)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures deep in the scheduler.
func (c *Config) Validate() error {
	if c.MaxTurns <= 0 {
		return fmt.Errorf("OMEGA_MAX_TURNS must be positive, got %d", c.MaxTurns)
	}
	if c.MaxRecentTurns < 0 {
		return fmt.Errorf("OMEGA_MAX_RECENT_TURNS cannot be negative, got %d", c.MaxRecentTurns)
	}
	if c.MinReasoningConfidence < 0 || c.MinReasoningConfidence > 1 {
		return fmt.Errorf("OMEGA_MIN_REASONING_CONFIDENCE must be in [0,1], got %f", c.MinReasoningConfidence)
	}
	switch c.ReasoningType {
	case ReasoningNone, ReasoningChainOfThought, ReasoningTreeOfThoughts, ReasoningHybrid:
	default:
		return fmt.Errorf("OMEGA_REASONING_TYPE %q not recognized", c.ReasoningType)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("[Config] WARNING: invalid value for %s=%q, using default %d", key, v, def)
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("[Config] WARNING: invalid value for %s=%q, using default %v", key, v, def)
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("[Config] WARNING: invalid value for %s=%q, using default %v", key, v, def)
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("[Config] WARNING: invalid value for %s=%q, using default %v", key, v, def)
	}
	return def
}
