package feedback

type ClassStats struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

type Stats struct {
	Total    int                   `json:"total_feedback"`
	Accepted int                   `json:"accepted"`
	Rejected int                   `json:"rejected"`
	Invalid  int                   `json:"invalid_records"`
	Accuracy float64               `json:"accuracy"` // percent of accepted feedback
	PerClass map[string]ClassStats `json:"per_class"`
}

// ComputeStats summarises the persisted feedback log.
func ComputeStats(store *FileStore) (Stats, error) {
	records, invalid, err := store.List()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Invalid:  invalid,
		PerClass: make(map[string]ClassStats),
	}
	for _, rec := range records {
		stats.Total++
		cs := stats.PerClass[rec.Prediction]
		if rec.FeedbackType == Accept {
			stats.Accepted++
			cs.Accepted++
		} else {
			stats.Rejected++
			cs.Rejected++
		}
		stats.PerClass[rec.Prediction] = cs
	}

	if stats.Total > 0 {
		stats.Accuracy = float64(stats.Accepted) / float64(stats.Total) * 100
	}
	return stats, nil
}
