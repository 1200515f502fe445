package governor

// Evaluate maps one memory sample onto a recycle action. Pure function,
// no side effects.
//
// The hard limit check runs first: a sample at or above the hard limit is
// always a forced recycle, even when the soft limit is also exceeded.
func Evaluate(sample Sample, limits Limits) Action {
	switch {
	case sample.MemoryBytes >= limits.HardBytes:
		return ActionRecycleForced
	case sample.MemoryBytes >= limits.SoftBytes:
		return ActionRecycleGraceful
	default:
		return ActionContinue
	}
}
