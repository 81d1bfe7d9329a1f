package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/crew"
	"github.com/BaSui01/crewflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/crewflow"

// Observer maps crew runs onto OTel spans and counters. A run span is opened
// on RunStarted; every task report becomes a child span carrying the task's
// own start and finish timestamps.
type Observer struct {
	tracer   trace.Tracer
	tasks    metric.Int64Counter
	runs     metric.Int64Counter
	duration metric.Float64Histogram
	logger   *zap.Logger

	mu    sync.Mutex
	spans map[string]runSpan
}

type runSpan struct {
	ctx  context.Context
	span trace.Span
}

// ObserverOption configures an Observer.
type ObserverOption func(*observerOptions)

type observerOptions struct {
	tp trace.TracerProvider
	mp metric.MeterProvider
}

// WithTracerProvider overrides the global TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) ObserverOption {
	return func(o *observerOptions) { o.tp = tp }
}

// WithMeterProvider overrides the global MeterProvider.
func WithMeterProvider(mp metric.MeterProvider) ObserverOption {
	return func(o *observerOptions) { o.mp = mp }
}

// NewObserver creates an Observer bound to the global providers unless
// overridden.
func NewObserver(logger *zap.Logger, opts ...ObserverOption) (*Observer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := observerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tp == nil {
		o.tp = otel.GetTracerProvider()
	}
	if o.mp == nil {
		o.mp = otel.GetMeterProvider()
	}

	meter := o.mp.Meter(instrumentationName)
	tasks, err := meter.Int64Counter("crewflow.task.reports",
		metric.WithDescription("Task reports by crew, task and state"))
	if err != nil {
		return nil, err
	}
	runs, err := meter.Int64Counter("crewflow.runs",
		metric.WithDescription("Finished crew runs by status"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("crewflow.run.duration",
		metric.WithDescription("Crew run wall time"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Observer{
		tracer:   o.tp.Tracer(instrumentationName),
		tasks:    tasks,
		runs:     runs,
		duration: duration,
		logger:   logger.With(zap.String("component", "telemetry_observer")),
		spans:    make(map[string]runSpan),
	}, nil
}

var _ crew.Observer = (*Observer)(nil)

func (o *Observer) RunStarted(ctx context.Context, run crew.RunInfo) {
	spanCtx, span := o.tracer.Start(ctx, "crew.run "+run.Crew,
		trace.WithTimestamp(run.StartedAt),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("crew.name", run.Crew),
			attribute.String("crew.run_id", run.RunID),
			attribute.String("crew.process", string(run.Process)),
			attribute.Int("crew.inputs", len(run.Inputs)),
		),
	)
	o.mu.Lock()
	o.spans[run.RunID] = runSpan{ctx: spanCtx, span: span}
	o.mu.Unlock()
}

func (o *Observer) TaskFinished(ctx context.Context, run crew.RunInfo, report crew.TaskReport) {
	parent := ctx
	o.mu.Lock()
	if rs, ok := o.spans[run.RunID]; ok {
		parent = rs.ctx
	}
	o.mu.Unlock()

	start := report.StartedAt
	if start.IsZero() {
		start = report.FinishedAt
	}
	attrs := []attribute.KeyValue{
		attribute.String("crew.name", run.Crew),
		attribute.String("task.id", report.TaskID),
		attribute.String("task.state", string(report.State)),
		attribute.Int("task.revision", report.Revision),
		attribute.Int("task.attempts", report.Attempts),
	}
	if report.Agent != "" {
		attrs = append(attrs, attribute.String("task.agent", report.Agent))
	}
	if report.Sink != "" {
		attrs = append(attrs, attribute.String("task.sink", report.Sink))
	}
	_, span := o.tracer.Start(parent, "crew.task "+report.TaskID,
		trace.WithTimestamp(start),
		trace.WithAttributes(attrs...),
	)
	if report.Err != nil {
		span.RecordError(report.Err)
		span.SetAttributes(attribute.String("error.code", string(types.GetErrorCode(report.Err))))
		span.SetStatus(codes.Error, report.Err.Error())
	}
	span.End(trace.WithTimestamp(endTime(report.FinishedAt)))

	o.tasks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("crew", run.Crew),
		attribute.String("task", report.TaskID),
		attribute.String("state", string(report.State)),
	))
}

func (o *Observer) RunFinished(ctx context.Context, run crew.RunInfo, result *crew.CrewResult) {
	o.mu.Lock()
	rs, ok := o.spans[run.RunID]
	delete(o.spans, run.RunID)
	o.mu.Unlock()

	status := crew.RunFailed
	finished := time.Now()
	if result != nil {
		status = result.Status
		finished = endTime(result.FinishedAt)
	}
	if ok {
		rs.span.SetAttributes(attribute.String("crew.status", string(status)))
		if status != crew.RunDone {
			rs.span.SetStatus(codes.Error, "run "+string(status))
		}
		rs.span.End(trace.WithTimestamp(finished))
	} else {
		o.logger.Warn("run finished without a started span", zap.String("run_id", run.RunID))
	}

	attrs := metric.WithAttributes(
		attribute.String("crew", run.Crew),
		attribute.String("status", string(status)),
	)
	o.runs.Add(ctx, 1, attrs)
	if !run.StartedAt.IsZero() {
		o.duration.Record(ctx, finished.Sub(run.StartedAt).Seconds(), attrs)
	}
}

func endTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
