// Package loopdetect implements the repeated-tool-failure detector (C5). It
// never fails a call itself — it only answers whether the scheduler should
// annotate the next observation so the LM is nudged to change approach.
package loopdetect

import (
	"container/ring"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// entry is one recorded tool call outcome.
type entry struct {
	toolName   string
	paramsHash string
	success    bool
	timestamp  time.Time
}

// Detector holds a per-agent ring buffer of recent tool-call outcomes.
type Detector struct {
	mu                         sync.Mutex
	maxHistory                 int
	consecutiveFailureThreshold int
	history                    map[string]*ring.Ring // agent_id -> ring of *entry
}

// New creates a Detector. maxHistory bounds the per-agent ring buffer size
// (max_tool_call_history); threshold is the number of consecutive identical
// failures that triggers a LoopDetected signal (consecutive_failure_threshold).
func New(maxHistory, threshold int) *Detector {
	if maxHistory < 1 {
		maxHistory = 1
	}
	if threshold < 1 {
		threshold = 1
	}
	return &Detector{
		maxHistory:                  maxHistory,
		consecutiveFailureThreshold: threshold,
		history:                     make(map[string]*ring.Ring),
	}
}

// CanonicalHash produces a hash of params that is stable across key order
// and insignificant whitespace, so semantically-equal payloads hash equally.
func CanonicalHash(params json.RawMessage) string {
	var v any
	if len(params) == 0 {
		v = map[string]any{}
	} else if err := json.Unmarshal(params, &v); err != nil {
		// Not valid JSON — hash the raw bytes so we still get stable
		// comparisons, just without semantic normalization.
		sum := sha256.Sum256(params)
		return hex.EncodeToString(sum[:])
	}
	canon := canonicalize(v)
	data, _ := json.Marshal(canon)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalize recursively sorts map keys (via a stable representation)
// so json.Marshal produces a deterministic byte sequence regardless of the
// original key order.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]keyValue, len(keys))
		for i, k := range keys {
			ordered[i] = keyValue{Key: k, Value: canonicalize(t[k])}
		}
		return ordered
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return t
	}
}

type keyValue struct {
	Key   string `json:"k"`
	Value any    `json:"v"`
}

// Record appends one tool-call outcome to the agent's history, evicting the
// oldest entry once maxHistory is reached.
func (d *Detector) Record(agentID, toolName string, params json.RawMessage, success bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.history[agentID]
	if !ok {
		r = ring.New(d.maxHistory)
		d.history[agentID] = r
	}
	r.Value = &entry{
		toolName:   toolName,
		paramsHash: CanonicalHash(params),
		success:    success,
		timestamp:  time.Now().UTC(),
	}
	d.history[agentID] = r.Next()
}

// DetectRepeatedFailures reports whether the last consecutive_failure_threshold
// entries for this exact (tool_name, canonical(params)) combination are all
// failures, with no intervening success for that same combination. Calls to
// other (tool, params) combinations do not reset the streak.
func (d *Detector) DetectRepeatedFailures(agentID, toolName string, params json.RawMessage) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.history[agentID]
	if !ok {
		return false
	}
	hash := CanonicalHash(params)

	streak := 0
	// Walk backward from the most recently written slot.
	cursor := r.Prev()
	for i := 0; i < d.maxHistory; i++ {
		e, ok := cursor.Value.(*entry)
		if !ok || e == nil {
			break
		}
		if e.toolName == toolName && e.paramsHash == hash {
			if !e.success {
				streak++
				if streak >= d.consecutiveFailureThreshold {
					return true
				}
			} else {
				return false
			}
		}
		cursor = cursor.Prev()
	}
	return streak >= d.consecutiveFailureThreshold
}

// Reset clears history for an agent, e.g. when a run completes.
func (d *Detector) Reset(agentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, agentID)
}
