package metrics

import (
	"fmt"
	"strings"
	"sync"
)

type orchestratorState struct {
	mu                   sync.Mutex
	eventsProcessed      uint64
	eventsFailed         uint64
	pluginExecutionCount uint64
	fraudDetected        uint64
	riskLevels           map[string]uint64
}

var orchestratorCollector = &orchestratorState{
	riskLevels: make(map[string]uint64),
}

// ObserveEventProcessed increments the count of listings that made it
// through the pipeline and were published to listings.processed.
func ObserveEventProcessed() {
	orchestratorCollector.mu.Lock()
	defer orchestratorCollector.mu.Unlock()
	orchestratorCollector.eventsProcessed++
}

// ObserveEventFailed increments the count of listings that failed
// somewhere in the pipeline (validation, a plugin step, or scoring).
func ObserveEventFailed() {
	orchestratorCollector.mu.Lock()
	defer orchestratorCollector.mu.Unlock()
	orchestratorCollector.eventsFailed++
}

// ObservePluginExecuted increments the count of individual plugin
// invocations across both the processing and detection chains.
func ObservePluginExecuted() {
	orchestratorCollector.mu.Lock()
	defer orchestratorCollector.mu.Unlock()
	orchestratorCollector.pluginExecutionCount++
}

// ObserveRiskLevel records a scored listing's risk classification.
func ObserveRiskLevel(level string) {
	orchestratorCollector.mu.Lock()
	defer orchestratorCollector.mu.Unlock()
	orchestratorCollector.riskLevels[level]++
	if level == "fraud" {
		orchestratorCollector.fraudDetected++
	}
}

func (o *orchestratorState) render() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	var b strings.Builder
	b.WriteString("# HELP antifraud_events_processed_total Listings that completed the processing pipeline.\n")
	b.WriteString("# TYPE antifraud_events_processed_total counter\n")
	b.WriteString(fmt.Sprintf("antifraud_events_processed_total %d\n", o.eventsProcessed))

	b.WriteString("# HELP antifraud_events_failed_total Listings that failed somewhere in the processing pipeline.\n")
	b.WriteString("# TYPE antifraud_events_failed_total counter\n")
	b.WriteString(fmt.Sprintf("antifraud_events_failed_total %d\n", o.eventsFailed))

	b.WriteString("# HELP antifraud_plugin_executions_total Individual plugin invocations across the processing and detection chains.\n")
	b.WriteString("# TYPE antifraud_plugin_executions_total counter\n")
	b.WriteString(fmt.Sprintf("antifraud_plugin_executions_total %d\n", o.pluginExecutionCount))

	b.WriteString("# HELP antifraud_fraud_detected_total Listings that scored at or above the fraud risk threshold.\n")
	b.WriteString("# TYPE antifraud_fraud_detected_total counter\n")
	b.WriteString(fmt.Sprintf("antifraud_fraud_detected_total %d\n", o.fraudDetected))

	b.WriteString("# HELP antifraud_risk_level_total Scored listings by risk level.\n")
	b.WriteString("# TYPE antifraud_risk_level_total counter\n")
	for _, level := range []string{"safe", "suspicious", "fraud"} {
		b.WriteString(fmt.Sprintf("antifraud_risk_level_total{level=\"%s\"} %d\n", level, o.riskLevels[level]))
	}

	return b.String()
}
