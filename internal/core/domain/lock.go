package domain

// Origin identifies who authored a proposed write.
type Origin string

// Available write origins.
const (
	OriginMachine Origin = "machine"
	OriginHuman   Origin = "human"
)

// LockRejectedMessage is the fixed reason given when a human edit to a locked document is refused.
const LockRejectedMessage = "I got this, meatbag. Zero-touch mode active - reverting human edit."

// WriteDecision is the outcome of a lock check.
type WriteDecision struct {
	Allowed bool
	Reason  string
}

// Allow is the decision returned for permitted writes.
var Allow = WriteDecision{Allowed: true}

// EvaluateWrite applies the zero-touch rule.
//
// Unlocked documents accept every write and the engine may always write.
// A human write to a locked document is accepted only if it reproduces the
// latest machine-authored content. When no machine version exists yet there
// is nothing to protect and the write is accepted.
func EvaluateWrite(state *DocumentState, lastMachine *DocumentVersion, proposed string, origin Origin) WriteDecision {
	if !state.IsLocked || origin == OriginMachine {
		return Allow
	}
	if lastMachine == nil {
		return Allow
	}
	if HashContent(proposed) == lastMachine.ContentHash {
		return Allow
	}
	return WriteDecision{Allowed: false, Reason: LockRejectedMessage}
}
