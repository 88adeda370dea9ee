package budget

import "fmt"

// Budget kinds reported by ErrExceeded.
const (
	KindIterations = "iterations"
	KindGoals      = "goals"
)

// ErrExceeded is returned when usage surpasses configured limits.
type ErrExceeded struct {
	Kind  string
	Usage int
	Limit int
}

func (e ErrExceeded) Error() string {
	return fmt.Sprintf("budget %s exceeded: usage=%d limit=%d", e.Kind, e.Usage, e.Limit)
}
