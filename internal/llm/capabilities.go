package llm

import "strings"

// DetectThinkingCapability reports whether a model is known to support
// native extended-thinking output, by exact-prefix match against a known
// model list and, failing that, by keyword heuristics on the model name.
func DetectThinkingCapability(modelName string) bool {
	lower := strings.ToLower(modelName)
	parts := strings.Split(lower, "/")
	baseName := parts[len(parts)-1]

	knownThinkingModels := []string{
		"deepseek-reasoner", "deepseek-r1", "deepseek-r2",
		"o1-mini", "o1-preview", "o1", "o3-mini", "o3", "o4-mini",
		"claude-sonnet-4-5", "claude-3-7-sonnet",
	}
	for _, known := range knownThinkingModels {
		if strings.HasPrefix(baseName, known) {
			return true
		}
	}

	thinkingKeywords := []string{"-r1", "-r2", "reasoner", "thinking", "-o1", "-o3", "-o4"}
	for _, kw := range thinkingKeywords {
		if strings.Contains(baseName, kw) {
			return true
		}
	}
	return false
}

// DetectToolCallingCapability reports whether a model is known to support
// native function calling; every model not on its short deny-list counts
// as supporting it.
func DetectToolCallingCapability(modelName string) bool {
	lower := strings.ToLower(modelName)
	unsupported := []string{"deepseek-reasoner", "o1-preview"}
	for _, u := range unsupported {
		if strings.Contains(lower, u) {
			return false
		}
	}
	return true
}

// knownContextWindows maps model-name fragments to their documented context
// window; GetContextWindow matches a fragment anywhere in the model name.
var knownContextWindows = []struct {
	prefix string
	tokens int
}{
	{"gpt-4o", 128_000},
	{"gpt-4.1", 1_000_000},
	{"o1", 200_000},
	{"o3", 200_000},
	{"deepseek", 64_000},
	{"claude-3", 200_000},
	{"claude-sonnet-4", 200_000},
}

// GetContextWindow returns the known context window for modelName, or 0 if
// unknown.
func GetContextWindow(modelName string) int {
	lower := strings.ToLower(modelName)
	for _, known := range knownContextWindows {
		if strings.Contains(lower, known.prefix) {
			return known.tokens
		}
	}
	return 0
}
