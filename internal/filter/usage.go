package filter

// Usage counts the conditions of a step for analytics. It has no effect on
// the filter verdict.
type Usage struct {
	StepFilters   int `json:"stepFilters"`
	FailedFilters int `json:"failedFilters"`
	PassedFilters int `json:"passedFilters"`
}

// SumFilters aggregates per-condition results into Usage.
func SumFilters(conditions []GroupResult) Usage {
	var u Usage
	for _, g := range conditions {
		for _, c := range g.Children {
			u.StepFilters++
			if c.Passed {
				u.PassedFilters++
			} else {
				u.FailedFilters++
			}
		}
	}
	return u
}
