package security

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// charsPerToken is a rough estimate used for logging prompt cost.
const charsPerToken = 4.0

// CostTracker enforces a daily budget of remote SQL generations per API key.
// Structured (hybrid) prompts are cheap, but every call still costs an LLM
// round trip.
type CostTracker struct {
	maxPerDay int
	clock     clockwork.Clock

	mu     sync.Mutex
	day    string
	counts map[string]int
}

// NewCostTracker returns a tracker; maxPerDay <= 0 disables the budget.
func NewCostTracker(maxPerDay int, clock clockwork.Clock) *CostTracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CostTracker{maxPerDay: maxPerDay, clock: clock, counts: make(map[string]int)}
}

// CheckLimits reserves one generation for apiKey. It returns false and a
// message when the key has used its budget for the current UTC day.
func (ct *CostTracker) CheckLimits(apiKey string) (bool, string) {
	if ct.maxPerDay <= 0 {
		return true, ""
	}
	ct.mu.Lock()
	defer ct.mu.Unlock()

	today := ct.clock.Now().UTC().Format("2006-01-02")
	if today != ct.day {
		ct.day = today
		ct.counts = make(map[string]int)
	}
	key := hashStr(apiKey)[:16]
	if ct.counts[key] >= ct.maxPerDay {
		return false, fmt.Sprintf("daily SQL generation limit reached (%d per day)", ct.maxPerDay)
	}
	ct.counts[key]++
	return true, ""
}

// LogGenerationCost logs an estimate of the prompt size sent to the model.
func (ct *CostTracker) LogGenerationCost(path, prompt, apiKey string, durationMs int64) {
	tokens := float64(len(prompt)) / charsPerToken

	log.Info().
		Str("event", "generation_cost").
		Str("path", path).
		Str("api_key_hash", hashStr(apiKey)[:16]).
		Int("prompt_chars", len(prompt)).
		Float64("prompt_tokens_est", tokens).
		Int64("duration_ms", durationMs).
		Msgf("SQL generation: ~%.0f prompt tokens | Duration: %dms | Path: %s", tokens, durationMs, path)
}

func hashStr(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h)
}
