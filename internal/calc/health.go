package calc

// HealthStatus grades overall market data quality.
type HealthStatus string

const (
	StatusOK       HealthStatus = "ok"
	StatusDegraded HealthStatus = "degraded"
	StatusDown     HealthStatus = "down"
)

// Health is the composite score with the issues that reduced it.
type Health struct {
	Status HealthStatus `json:"status"`
	Score  float64      `json:"score"`
	Issues []string     `json:"issues"`
}

// HealthInputs are the signals the score is derived from. Pointer fields
// are nil when the underlying metric is unavailable.
type HealthInputs struct {
	DataAgeMs    *int64
	SpreadBps    *float64
	Imbalance    *float64
	HasAnomalies bool
}

// HealthScore starts at 100 and applies penalties for stale data (40/20),
// poor spreads (30/15), book imbalance (20/10), and detected anomalies
// (10), clamping to [0, 100]. Status is down when data is absent or older
// than 2s; any other penalty degrades an otherwise ok status.
func HealthScore(in HealthInputs) Health {
	score := 100.0
	issues := []string{}
	down := false

	switch {
	case in.DataAgeMs == nil:
		score -= 40
		issues = append(issues, "no_data")
		down = true
	case *in.DataAgeMs > 2000:
		score -= 40
		issues = append(issues, "stale_data")
		down = true
	case *in.DataAgeMs > 1000:
		score -= 20
		issues = append(issues, "degraded_freshness")
	}

	switch {
	case in.SpreadBps == nil:
		score -= 30
		issues = append(issues, "no_spread")
	case *in.SpreadBps > 100:
		score -= 30
		issues = append(issues, "wide_spread")
	case *in.SpreadBps > 50:
		score -= 15
		issues = append(issues, "moderate_spread")
	}

	if in.Imbalance != nil {
		abs := *in.Imbalance
		if abs < 0 {
			abs = -abs
		}
		switch {
		case abs >= 0.6:
			score -= 20
			issues = append(issues, "severe_imbalance")
		case abs >= 0.3:
			score -= 10
			issues = append(issues, "moderate_imbalance")
		}
	}

	if in.HasAnomalies {
		score -= 10
		issues = append(issues, "anomalies_detected")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	status := StatusOK
	switch {
	case down:
		status = StatusDown
	case len(issues) > 0:
		status = StatusDegraded
	}

	return Health{Status: status, Score: round1(score), Issues: issues}
}
