// Package telemetry wires OpenTelemetry tracing and metrics for codeloops.
//
// Components obtain tracers and meters from the otel globals. New installs
// SDK providers with OTLP exporters when telemetry is enabled; otherwise the
// globals stay no-op. Telemetry failures degrade to no-op and never stop the
// process.
//
// Tests use NewTestTelemetry, which records spans in memory and collects
// metrics through a manual reader:
//
//	tt := telemetry.NewTestTelemetry()
//	tt.Install(t)
//	// exercise code
//	tt.AssertSpanExists(t, "graph.append")
//	assert.Equal(t, int64(1), tt.CounterValue(t, "codeloops.graph.nodes_appended_total"))
package telemetry
