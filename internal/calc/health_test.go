package calc

import "testing"

func i64Ptr(v int64) *int64     { return &v }
func f64Ptr(v float64) *float64 { return &v }

func TestHealthScore_StaleDataIsDown(t *testing.T) {
	h := HealthScore(HealthInputs{
		DataAgeMs: i64Ptr(2500),
		SpreadBps: f64Ptr(10),
		Imbalance: f64Ptr(0.1),
	})

	if h.Status != StatusDown {
		t.Errorf("status = %s, want down", h.Status)
	}
	if h.Score != 60 {
		t.Errorf("score = %v, want 60", h.Score)
	}
}

func TestHealthScore_WideSpreadDegrades(t *testing.T) {
	h := HealthScore(HealthInputs{
		DataAgeMs: i64Ptr(500),
		SpreadBps: f64Ptr(120),
		Imbalance: f64Ptr(0.1),
	})

	if h.Status != StatusDegraded {
		t.Errorf("status = %s, want degraded", h.Status)
	}
	if h.Score != 70 {
		t.Errorf("score = %v, want 70", h.Score)
	}
}

func TestHealthScore_Healthy(t *testing.T) {
	h := HealthScore(HealthInputs{
		DataAgeMs: i64Ptr(200),
		SpreadBps: f64Ptr(5),
		Imbalance: f64Ptr(0.05),
	})

	if h.Status != StatusOK || h.Score != 100 || len(h.Issues) != 0 {
		t.Errorf("healthy inputs = %+v", h)
	}
}

func TestHealthScore_AnyPenaltyDegrades(t *testing.T) {
	h := HealthScore(HealthInputs{
		DataAgeMs: i64Ptr(200),
		SpreadBps: f64Ptr(5),
		Imbalance: f64Ptr(0.4),
	})

	if h.Status != StatusDegraded {
		t.Errorf("status = %s, want degraded for moderate imbalance", h.Status)
	}
	if h.Score != 90 {
		t.Errorf("score = %v, want 90", h.Score)
	}
}

func TestHealthScore_ClampsAtZero(t *testing.T) {
	h := HealthScore(HealthInputs{
		DataAgeMs:    nil,
		SpreadBps:    nil,
		Imbalance:    f64Ptr(0.9),
		HasAnomalies: true,
	})

	if h.Score != 0 {
		t.Errorf("score = %v, want clamp at 0", h.Score)
	}
	if h.Status != StatusDown {
		t.Errorf("status = %s, want down with no data", h.Status)
	}
	if len(h.Issues) != 4 {
		t.Errorf("issues = %v, want 4 entries", h.Issues)
	}
}
