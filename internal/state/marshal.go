package state

import "encoding/json"

// alias avoids infinite recursion when AgentState's custom (Un)MarshalJSON
// calls back into the standard encoder/decoder.
type agentStateAlias AgentState

// MarshalJSON re-merges any unknown top-level fields captured at decode
// time, so a round-trip through an older or newer schema version never
// silently drops data (spec.md §6).
func (s *AgentState) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal((*agentStateAlias)(s))
	if err != nil {
		return nil, err
	}
	if len(s.extra) == 0 {
		return known, nil
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields and stashes anything unrecognized
// in extra for later re-emission.
func (s *AgentState) UnmarshalJSON(data []byte) error {
	var alias agentStateAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*s = AgentState(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := map[string]bool{
		"agent_id": true, "goal": true, "additional_messages": true, "turns": true,
		"current_reasoning_chain": true, "current_reasoning_tree": true,
		"reasoning_metadata": true, "created_utc": true, "last_updated_utc": true,
	}
	for k, v := range raw {
		if !known[k] {
			if s.extra == nil {
				s.extra = map[string]json.RawMessage{}
			}
			s.extra[k] = v
		}
	}
	return nil
}
