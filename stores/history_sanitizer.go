package stores

import (
	"log"
)

// SanitizeTurns ensures a turn list has a valid structure before it is turned
// into model messages. Two failure modes show up in practice:
//  1. a crash between the immediate user-turn append and the final commit
//     leaves a tool-call with no tool-result
//  2. truncation or partial reads start the list mid tool cycle
//
// The function guarantees:
//   - the list starts with a user, assistant, or system turn
//   - every mid-list tool-call is followed by at least one tool-result
//   - no orphaned tool-results survive
func SanitizeTurns(turns []Turn) []Turn {
	if len(turns) == 0 {
		return turns
	}

	startIdx := findValidStartIndex(turns)
	if startIdx == -1 {
		for i := len(turns) - 1; i >= 0; i-- {
			if turns[i].Role == RoleUser {
				log.Printf("[SANITIZER] No valid start, using trailing user turn at index %d as fallback", i)
				return []Turn{turns[i]}
			}
		}
		log.Printf("[SANITIZER] No valid starting point found, returning empty history")
		return []Turn{}
	}

	if startIdx > 0 {
		log.Printf("[SANITIZER] Skipping first %d turns to find valid start (was role: %s)", startIdx, turns[0].Role)
		turns = turns[startIdx:]
	}

	sanitized := sanitizeToolCycles(turns)
	if len(sanitized) != len(turns) {
		log.Printf("[SANITIZER] Removed %d turns with broken tool cycles", len(turns)-len(sanitized))
	}

	return sanitized
}

// findValidStartIndex finds the first turn that can open a conversation.
// Leading tool-call/tool-result turns are orphans from a truncated cycle.
func findValidStartIndex(turns []Turn) int {
	for i, t := range turns {
		switch t.Role {
		case RoleUser, RoleAssistant, RoleSystem:
			return i
		case RoleToolCall, RoleToolResult:
			continue
		default:
			return i
		}
	}
	return -1
}

func sanitizeToolCycles(turns []Turn) []Turn {
	if len(turns) == 0 {
		return turns
	}

	result := make([]Turn, 0, len(turns))
	i := 0

	for i < len(turns) {
		t := turns[i]

		switch t.Role {
		case RoleUser, RoleAssistant, RoleSystem:
			result = append(result, t)
			i++

		case RoleToolCall:
			cycleStart := i
			cycleTurns, nextIdx, valid := collectCompleteCycle(turns, i)

			if valid {
				result = append(result, cycleTurns...)
				i = nextIdx
			} else if nextIdx >= len(turns) {
				// Trailing tool-calls at the end of history: the result may
				// still arrive in the current request, keep them.
				log.Printf("[SANITIZER] Keeping trailing tool-call(s) at end of history (index %d-%d)", cycleStart, nextIdx-1)
				result = append(result, cycleTurns...)
				i = nextIdx
			} else {
				log.Printf("[SANITIZER] Removing incomplete tool cycle at index %d (tool-call without result)", cycleStart)
				i = nextIdx
			}

		case RoleToolResult:
			log.Printf("[SANITIZER] Removing orphaned tool-result at index %d", i)
			i++

		default:
			log.Printf("[SANITIZER] Unknown role '%s' at index %d, including anyway", t.Role, i)
			result = append(result, t)
			i++
		}
	}

	return result
}

// collectCompleteCycle gathers one or more tool-calls and the tool-results
// that answer them. Valid when at least one result follows the calls.
func collectCompleteCycle(turns []Turn, startIdx int) ([]Turn, int, bool) {
	cycle := []Turn{}
	resultCount := 0
	i := startIdx

	for i < len(turns) && turns[i].Role == RoleToolCall {
		cycle = append(cycle, turns[i])
		i++
	}

	for i < len(turns) && turns[i].Role == RoleToolResult {
		cycle = append(cycle, turns[i])
		resultCount++
		i++
	}

	if resultCount == 0 {
		return cycle, i, false
	}

	return cycle, i, true
}
