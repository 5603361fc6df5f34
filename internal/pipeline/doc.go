// Package pipeline runs the KPI batch as a fixed sequence of steps.
//
// A Runner executes the steps of a Registry in registration order over a
// RunState. Each step reads the payloads earlier steps left on the state
// and stores its own; the default chain is load, clean, kpi, analysis and
// report. Every step gets a span and a duration metric, cancellation is
// checked between steps and the first failure skips the rest.
package pipeline
