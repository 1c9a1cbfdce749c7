package domain

// FilterEpochState is the mutable run state of the filtering engine.
// It is owned by the controller and handed to every pass by pointer.
//
// An epoch spans the time between two blocklist changes. Within an epoch
// CumulativeHidden counts distinct cards hidden and NotificationShown flips
// to true at most once.
type FilterEpochState struct {
	Epoch             uint64
	CumulativeHidden  int
	NotificationShown bool
}

// Reset starts a new epoch.
func (s *FilterEpochState) Reset() {
	s.Epoch++
	s.CumulativeHidden = 0
	s.NotificationShown = false
}

// FilterPassResult summarizes one filtering sweep.
type FilterPassResult struct {
	HiddenThisPass   int
	CumulativeHidden int
}
