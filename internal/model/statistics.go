package model

// SessionStatistics holds the running outcome counters of a capture session.
type SessionStatistics struct {
	TotalCaptured uint64 `json:"total_captured"`
	NormalCount   uint64 `json:"normal_count"`
	AttackCount   uint64 `json:"attack_count"`
	// ErrorCount is the subset of TotalCaptured whose classification failed.
	// Those are also counted in NormalCount.
	ErrorCount uint64 `json:"error_count"`
	// Dropped counts packets discarded because the worker queue was full.
	Dropped uint64 `json:"dropped"`
}

// AttackRatio returns AttackCount / TotalCaptured, or 0 for an empty session.
func (s SessionStatistics) AttackRatio() float64 {
	if s.TotalCaptured == 0 {
		return 0
	}
	return float64(s.AttackCount) / float64(s.TotalCaptured)
}
