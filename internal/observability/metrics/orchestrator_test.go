package metrics

import (
	"strings"
	"testing"
)

func TestOrchestratorCollectorRendersCounters(t *testing.T) {
	orchestratorCollector.mu.Lock()
	orchestratorCollector.eventsProcessed = 0
	orchestratorCollector.eventsFailed = 0
	orchestratorCollector.pluginExecutionCount = 0
	orchestratorCollector.fraudDetected = 0
	orchestratorCollector.riskLevels = make(map[string]uint64)
	orchestratorCollector.mu.Unlock()

	ObserveEventProcessed()
	ObserveEventFailed()
	ObservePluginExecuted()
	ObservePluginExecuted()
	ObserveRiskLevel("fraud")
	ObserveRiskLevel("safe")

	out := orchestratorCollector.render()

	if !strings.Contains(out, "antifraud_events_processed_total 1") {
		t.Error("expected events processed counter of 1")
	}
	if !strings.Contains(out, "antifraud_events_failed_total 1") {
		t.Error("expected events failed counter of 1")
	}
	if !strings.Contains(out, "antifraud_plugin_executions_total 2") {
		t.Error("expected plugin execution counter of 2")
	}
	if !strings.Contains(out, "antifraud_fraud_detected_total 1") {
		t.Error("expected fraud detected counter of 1")
	}
	if !strings.Contains(out, `antifraud_risk_level_total{level="fraud"} 1`) {
		t.Error("expected risk level fraud counter of 1")
	}
}
