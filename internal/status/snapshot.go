package status

// Snapshot is a point-in-time progress reading derived from a Progress block.
type Snapshot struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	InProgress int `json:"in_progress"`
	Pending    int `json:"pending"`
	Percentage int `json:"percentage"`

	// Inconsistent is set when the counters cannot describe a real job:
	// more work accounted for than the total, or a percentage outside 0..100.
	// The snapshot is still usable; displays may want to clamp Pending.
	Inconsistent bool `json:"inconsistent,omitempty"`
}

// NewSnapshot computes pending work and the completion percentage.
//
//	pending    = total - completed - failed - inProgress
//	percentage = total > 0 ? round(100 * (completed + failed) / total) : 0
//
// Rounding is half-up. The percentage is clamped to [0, 100].
func NewSnapshot(p Progress) Snapshot {
	s := Snapshot{
		Total:      p.Total,
		Completed:  p.Completed,
		Failed:     p.Failed,
		InProgress: p.InProgress,
		Pending:    p.Total - p.Completed - p.Failed - p.InProgress,
	}

	if p.Total > 0 {
		s.Percentage = roundHalfUp(100*(p.Completed+p.Failed), p.Total)
	}
	if s.Percentage > 100 {
		s.Percentage = 100
		s.Inconsistent = true
	}
	if s.Percentage < 0 {
		s.Percentage = 0
		s.Inconsistent = true
	}
	if s.Pending < 0 {
		s.Inconsistent = true
	}
	return s
}

// Done is the amount of work that reached a final outcome.
func (s Snapshot) Done() int {
	return s.Completed + s.Failed
}

// roundHalfUp returns num/den rounded to the nearest integer, ties toward
// positive infinity. den must be positive.
func roundHalfUp(num, den int) int {
	return floorDiv(2*num+den, 2*den)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
