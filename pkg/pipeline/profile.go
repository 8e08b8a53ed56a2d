package pipeline

// Profile captures the driver-dependent meaning of an execute reply.
// Drivers disagree on how a result set is signaled: some answer with a
// fixed sentinel number, some with a non-numeric "rows available"
// value. The branch below must be validated against each target
// driver; the sentinel is configuration, not a universal constant.
type Profile struct {
	// ResultSentinel is the numeric execute reply that means "a result
	// set is available" rather than an affected-row count. For most
	// drivers a SELECT reports 0 here.
	ResultSentinel float64
}

// DefaultProfile treats 0 as the result-set sentinel.
func DefaultProfile() Profile {
	return Profile{ResultSentinel: 0}
}

type replyKind int

const (
	replyError replyKind = iota
	replyResult
	replyUpdate
)

// classify maps an execute reply onto the state machine branch.
func (p Profile) classify(v any) replyKind {
	switch val := v.(type) {
	case nil:
		return replyError
	case bool:
		if !val {
			return replyError
		}
		return replyResult
	case float64:
		if val == p.ResultSentinel {
			return replyResult
		}
		return replyUpdate
	default:
		// Non-numeric truthy reply: the driver's "rows available"
		// sentinel.
		return replyResult
	}
}
