package service

// Progress is one sync event. Value runs 0..1; the terminal event is
// either 1 ("done") or -1 ("failed") with Err set.
type Progress struct {
	Description string
	Value       float64
	Err         error
}

// Terminal reports whether this event ends the sync.
func (p Progress) Terminal() bool {
	return p.Value == 1 || p.Value == -1
}

// Collect drains a progress channel and returns the full trail plus the
// terminal error, if any. Used by callers that want the sync to behave
// synchronously.
func Collect(events <-chan Progress) ([]Progress, error) {
	var trail []Progress
	var err error

	for event := range events {
		trail = append(trail, event)
		if event.Err != nil {
			err = event.Err
		}
	}

	return trail, err
}
