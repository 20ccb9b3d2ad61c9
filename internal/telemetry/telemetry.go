// Package telemetry exposes the OpenTelemetry tracer and metric instruments
// used by agents and the orchestrator. Start installs OTLP exporting
// providers; without it the global no-op providers are used.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ShayCichocki/devteam"

// Common attribute keys.
var (
	AttrRole      = attribute.Key("devteam.role")
	AttrTaskID    = attribute.Key("devteam.task_id")
	AttrOperation = attribute.Key("devteam.operation")
	AttrStatus    = attribute.Key("devteam.status")
	AttrVerdict   = attribute.Key("devteam.verdict")
)

// Tracer returns the package tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

type instrumentSet struct {
	agentCalls    metric.Int64Counter
	agentDuration metric.Float64Histogram
	taskOutcomes  metric.Int64Counter
	retries       metric.Int64Counter
}

var (
	instMu sync.RWMutex
	inst   *instrumentSet
)

func newInstruments(mp metric.MeterProvider) (*instrumentSet, error) {
	m := mp.Meter(instrumentationName)
	var (
		set instrumentSet
		err error
	)
	if set.agentCalls, err = m.Int64Counter("devteam_agent_calls_total",
		metric.WithDescription("Agent respond and evaluate calls"),
		metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("create agent calls counter: %w", err)
	}
	if set.agentDuration, err = m.Float64Histogram("devteam_agent_call_duration_seconds",
		metric.WithDescription("Agent call latency in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create agent duration histogram: %w", err)
	}
	if set.taskOutcomes, err = m.Int64Counter("devteam_task_outcomes_total",
		metric.WithDescription("Tasks reaching a terminal status"),
		metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("create task outcomes counter: %w", err)
	}
	if set.retries, err = m.Int64Counter("devteam_retries_total",
		metric.WithDescription("Boundary retries of agent calls"),
		metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("create retries counter: %w", err)
	}
	return &set, nil
}

// InitMeterProvider binds the instruments to mp.
func InitMeterProvider(mp metric.MeterProvider) error {
	if mp == nil {
		return errors.New("init meter provider: provider is nil")
	}
	set, err := newInstruments(mp)
	if err != nil {
		return fmt.Errorf("init meter provider: %w", err)
	}
	instMu.Lock()
	inst = set
	instMu.Unlock()
	return nil
}

// instruments returns the bound instruments, creating them from the global
// provider on first use.
func instruments() *instrumentSet {
	instMu.RLock()
	set := inst
	instMu.RUnlock()
	if set != nil {
		return set
	}

	instMu.Lock()
	defer instMu.Unlock()
	if inst == nil {
		created, err := newInstruments(otel.GetMeterProvider())
		if err != nil {
			otel.Handle(err)
			created = &instrumentSet{}
		}
		inst = created
	}
	return inst
}

// RecordAgentCall records one agent call and its latency.
func RecordAgentCall(ctx context.Context, role, operation string, d time.Duration, err error) {
	set := instruments()
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(AttrRole.String(role), AttrOperation.String(operation), AttrStatus.String(status))
	if set.agentCalls != nil {
		set.agentCalls.Add(ctx, 1, attrs)
	}
	if set.agentDuration != nil {
		set.agentDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordTaskOutcome records a task reaching a terminal status.
func RecordTaskOutcome(ctx context.Context, role, status string) {
	if c := instruments().taskOutcomes; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(AttrRole.String(role), AttrStatus.String(status)))
	}
}

// RecordRetry records one retried call.
func RecordRetry(ctx context.Context, operation string) {
	if c := instruments().retries; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(operation)))
	}
}
