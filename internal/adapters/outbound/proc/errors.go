package proc

// ProcessNotFoundError marks "the process is already gone" cases so the
// governor can tell them apart from real sampling or signalling failures.
type ProcessNotFoundError struct{}

func (e *ProcessNotFoundError) Error() string {
	return "process not found"
}

func (e *ProcessNotFoundError) IsNotFound() {}

var errProcessNotFound = &ProcessNotFoundError{}
