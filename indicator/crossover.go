package indicator

// Cross classifies the relationship change between a fast and a slow
// moving average across two consecutive bars.
type Cross int

const (
	None Cross = iota
	Golden
	Death
)

func (c Cross) String() string {
	switch c {
	case Golden:
		return "golden"
	case Death:
		return "death"
	default:
		return "none"
	}
}

// Classify is pure and stateless: the caller owns history retention.
// A golden cross requires the fast average to move from at-or-below the
// slow average to strictly above it; a death cross is the mirror image.
// Equality on the current bar is never a cross, so a flat touch cannot
// fire twice.
func Classify(prevFast, prevSlow, currFast, currSlow float64) Cross {
	if prevFast <= prevSlow && currFast > currSlow {
		return Golden
	}
	if prevFast >= prevSlow && currFast < currSlow {
		return Death
	}
	return None
}
