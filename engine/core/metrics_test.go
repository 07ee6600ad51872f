package core

import "testing"

func TestMetricsBarrierCounters(t *testing.T) {
	if err := MetricsInitialize(); err != nil {
		t.Fatalf("MetricsInitialize: %v", err)
	}
	MetricsBarriersReset()

	MetricsBarrierQueued()
	MetricsBarrierQueued()
	MetricsBarrierQueued()
	MetricsBarrierCall()

	queued, calls := MetricsBarriers()
	if queued != 3 || calls != 1 {
		t.Errorf("barriers = %d queued / %d calls, want 3 / 1", queued, calls)
	}

	MetricsBarriersReset()
	queued, calls = MetricsBarriers()
	if queued != 0 || calls != 0 {
		t.Errorf("barriers after reset = %d / %d, want 0 / 0", queued, calls)
	}
}

func TestMetricsUpdateAccumulatesFrames(t *testing.T) {
	if err := MetricsInitialize(); err != nil {
		t.Fatalf("MetricsInitialize: %v", err)
	}

	// 1.1 seconds of 100ms frames rolls the FPS window over once.
	for i := 0; i < 11; i++ {
		MetricsUpdate(0.1)
	}
	if fps := MetricsFPS(); fps <= 0 {
		t.Errorf("FPS = %f after a full window, want > 0", fps)
	}
}
