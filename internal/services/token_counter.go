package services

import (
	"encoding/json"

	"datapipe/internal/models"
)

// EstimateTokens returns an approximate token count using the ~4 chars/token heuristic.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// EstimateMessagesTokens estimates the total token count of a conversation.
// Each message carries ~4 tokens of role and separator overhead.
func EstimateMessagesTokens(messages []models.AgentMessage) int {
	total := 0
	for _, msg := range messages {
		total += 4 + EstimateTokens(msg.Content)
		if len(msg.ToolCalls) > 0 {
			tcJSON, _ := json.Marshal(msg.ToolCalls)
			total += EstimateTokens(string(tcJSON))
		}
	}
	return total
}

// EstimateToolSpecTokens estimates the prompt overhead of the tool definitions sent with every turn.
func EstimateToolSpecTokens(tools []ToolSpec) int {
	if len(tools) == 0 {
		return 0
	}
	toolsJSON, _ := json.Marshal(tools)
	return EstimateTokens(string(toolsJSON))
}
