// Package ids defines the identifier newtypes and the error taxonomy shared
// by every other package in the module.
package ids

import "github.com/google/uuid"

// TurnID identifies a single turn within an agent run.
type TurnID string

// NewTurnID generates a fresh TurnID.
func NewTurnID() TurnID {
	return TurnID(uuid.NewString())
}

// ToolCallID identifies a single tool invocation.
type ToolCallID string

// NewToolCallID generates a fresh ToolCallID.
func NewToolCallID() ToolCallID {
	return ToolCallID(uuid.NewString())
}

// NodeID identifies a node within a reasoning tree (ToT).
type NodeID string

// NewNodeID generates a fresh NodeID.
func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}
