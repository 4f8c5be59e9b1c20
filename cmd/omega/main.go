package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/omegarun/agentcore/examples/provider"
	"github.com/omegarun/agentcore/examples/tools"
	"github.com/omegarun/agentcore/internal/config"
	"github.com/omegarun/agentcore/internal/events"
	"github.com/omegarun/agentcore/internal/llm"
	"github.com/omegarun/agentcore/internal/loopdetect"
	"github.com/omegarun/agentcore/internal/metrics"
	"github.com/omegarun/agentcore/internal/reasoning"
	"github.com/omegarun/agentcore/internal/reasoning/cot"
	"github.com/omegarun/agentcore/internal/reasoning/hybrid"
	"github.com/omegarun/agentcore/internal/reasoning/tot"
	"github.com/omegarun/agentcore/internal/scheduler"
	"github.com/omegarun/agentcore/internal/state"
	"github.com/omegarun/agentcore/internal/state/filestore"
	"github.com/omegarun/agentcore/internal/tool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] config: %v", err)
	}

	agentID := flag.String("agent", "cli-agent", "agent id to load/persist state under")
	goal := flag.String("goal", "", "goal for the agent to pursue; prompts interactively if empty")
	stateDir := flag.String("state-dir", "./.omega-state", "directory for JSON-file agent state persistence")
	flag.Parse()

	g := *goal
	if g == "" {
		g = promptForGoal()
	}
	if strings.TrimSpace(g) == "" {
		log.Fatalf("[Main] no goal given")
	}

	client, err := provider.NewOpenAIClient(provider.Config{
		APIKey:                  os.Getenv("OPENAI_API_KEY"),
		BaseURL:                 os.Getenv("OPENAI_BASE_URL"),
		Model:                   envOr("OPENAI_MODEL", "gpt-4o-mini"),
		SupportsFunctionCalling: true,
		ContextWindowTokens:     128_000,
	})
	if err != nil {
		log.Fatalf("[Main] provider: %v", err)
	}

	comm := llm.NewCommunicator(client, llm.CommunicatorConfig{
		MaxRetries:             cfg.MaxRetries,
		RetryBaseDelay:         cfg.RetryBaseDelay,
		RetryBackoffMultiplier: cfg.RetryBackoffMultiplier,
		UseFunctionCalling:     cfg.UseFunctionCalling,
	})

	registry := tool.NewRegistry()
	registry.Register(tools.EchoTool{})
	registry.Register(tools.CalculatorTool{})
	registry.Register(tools.NewWebTextTool())

	store, err := buildStore(*stateDir)
	if err != nil {
		log.Fatalf("[Main] state store: %v", err)
	}

	detector := loopdetect.New(cfg.MaxToolCallHistory, cfg.ConsecutiveFailureThreshold)
	bus := events.NewBus()
	bus.Subscribe(logEvent)
	mtr := metrics.New()

	reasoner := buildReasoner(cfg, comm)

	sched := scheduler.New(store, registry, comm, detector, bus, mtr, reasoner, cfg)

	result := sched.Run(context.Background(), *agentID, g, nil, nil)
	if !result.Succeeded {
		if result.Error != nil {
			log.Fatalf("[Main] run failed: %s: %s", result.Error.Kind, result.Error.Message)
		}
		log.Fatalf("[Main] run did not complete")
	}

	fmt.Println(result.FinalOutput)
}

func buildStore(dir string) (state.Store, error) {
	return filestore.New(dir)
}

func buildReasoner(cfg *config.Config, comm reasoning.Communicator) reasoning.Engine {
	switch cfg.ReasoningType {
	case config.ReasoningChainOfThought:
		return cot.New(comm, cot.Config{EnableValidation: cfg.EnableReasoningValidation, MinConfidence: cfg.MinReasoningConfidence})
	case config.ReasoningTreeOfThoughts:
		return tot.New(comm, tot.Config{MaxDepth: cfg.MaxTreeDepth, MaxNodes: cfg.MaxTreeNodes, Strategy: cfg.TreeExplorationStrategy, BeamWidth: cfg.BeamWidth})
	case config.ReasoningHybrid:
		ct := cot.New(comm, cot.Config{EnableValidation: cfg.EnableReasoningValidation, MinConfidence: cfg.MinReasoningConfidence})
		tt := tot.New(comm, tot.Config{MaxDepth: cfg.MaxTreeDepth, MaxNodes: cfg.MaxTreeNodes, Strategy: cfg.TreeExplorationStrategy, BeamWidth: cfg.BeamWidth})
		return hybrid.New(ct, tt)
	default:
		return nil
	}
}

func logEvent(e events.Event) {
	switch e.Type {
	case events.RunStarted:
		log.Printf("[Main] run started agent=%s goal=%q", e.AgentID, e.Goal)
	case events.StepCompleted:
		log.Printf("[Main] turn %d complete tool=%s", e.TurnIndex, e.ExecutedTool)
	case events.RunCompleted:
		log.Printf("[Main] run completed agent=%s succeeded=%v turns=%d", e.AgentID, e.Succeeded, e.TotalTurns)
	}
}

func promptForGoal() string {
	fmt.Print("Goal: ")
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
