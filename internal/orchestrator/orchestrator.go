// Package orchestrator drives a task through the harm screen, the inference
// provider and the memory store.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/easeaico/adk-task-harness/internal/inference"
	"github.com/easeaico/adk-task-harness/internal/memory"
)

const (
	DefaultImportance = 0.7
	DefaultTier       = memory.TierHot
	DefaultKind       = memory.KindExperience
)

// Screener flags and redacts harmful text. *harm.Screen satisfies it.
type Screener interface {
	DetectTerm(text string) (string, bool)
	Rewrite(text string) string
}

// TaskContext describes where a task came from.
type TaskContext struct {
	TaskType string `yaml:"task_type" json:"task_type,omitempty"`
	UserRole string `yaml:"user_role" json:"user_role,omitempty"`
	Modality string `yaml:"modality" json:"modality,omitempty"`
}

// Task is one unit of work. Kind, Importance and Tier override the
// orchestrator defaults for the record the task produces.
type Task struct {
	ID         string      `yaml:"id"`
	Text       string      `yaml:"text"`
	Context    TaskContext `yaml:"context"`
	Kind       string      `yaml:"kind"`
	Importance *float64    `yaml:"importance"`
	Tier       memory.Tier `yaml:"tier"`
}

// Outcome reports how a task left the pipeline.
type Outcome struct {
	TaskID string
	State  State
	// Prompt is the text sent to the provider: the rewritten text when the
	// task was rewritten.
	Prompt      string
	Response    string
	MatchedTerm string
	// Record is the stored memory record; nil unless the task was answered.
	Record *memory.Record
}

// Orchestrator sequences screen, inference and memory for each task. It is
// safe for concurrent use when its collaborators are.
type Orchestrator struct {
	screen   Screener
	provider inference.Provider
	store    memory.Store
	embedder memory.Embedder

	policy     Policy
	importance float64
	tier       memory.Tier
	kind       string

	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPolicy sets the harm policy. The default is PolicyRewrite.
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithImportance sets the importance of stored records.
func WithImportance(importance float64) Option {
	return func(o *Orchestrator) { o.importance = importance }
}

// WithTier sets the tier of stored records.
func WithTier(tier memory.Tier) Option {
	return func(o *Orchestrator) {
		if tier != "" {
			o.tier = tier
		}
	}
}

// WithKind sets the kind of stored records.
func WithKind(kind string) Option {
	return func(o *Orchestrator) {
		if kind != "" {
			o.kind = kind
		}
	}
}

// WithEmbedder attaches an embedding of the prompt to stored records.
func WithEmbedder(e memory.Embedder) Option {
	return func(o *Orchestrator) { o.embedder = e }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithClock sets the clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an Orchestrator.
func New(screen Screener, provider inference.Provider, store memory.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		screen:     screen,
		provider:   provider,
		store:      store,
		policy:     PolicyRewrite,
		importance: DefaultImportance,
		tier:       DefaultTier,
		kind:       DefaultKind,
		logger:     slog.Default(),
		tracer:     noop.NewTracerProvider().Tracer("orchestrator"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Policy returns the configured harm policy.
func (o *Orchestrator) Policy() Policy {
	return o.policy
}

// Process runs task through the pipeline once.
//
// An aborted task is not an error: the outcome says StateAborted. Provider
// errors are returned as they are, with nothing stored. A record is stored
// only after the provider has answered.
func (o *Orchestrator) Process(ctx context.Context, task Task) (Outcome, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.process",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("task.type", task.Context.TaskType),
			attribute.String("orchestrator.policy", o.policy.String()),
		),
	)
	defer span.End()

	logger := o.logger.With("task", task.ID)
	out := Outcome{TaskID: task.ID, State: StateReceived, Prompt: task.Text}

	term, harmful := o.screen.DetectTerm(task.Text)
	out.State = StateScreened

	if harmful {
		out.MatchedTerm = term
		span.SetAttributes(attribute.String("harm.term", term))

		if o.policy == PolicyAbort {
			out.State = StateAborted
			span.SetAttributes(attribute.String("task.state", string(out.State)))
			logger.InfoContext(ctx, "task aborted", "term", term)
			return out, nil
		}
		out.Prompt = o.screen.Rewrite(task.Text)
	}

	response, err := o.provider.Respond(ctx, out.Prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference failed")
		return out, err
	}
	out.Response = response

	record, err := o.remember(ctx, logger, task, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "memory store failed")
		return out, err
	}
	out.Record = &record

	out.State = StateAnswered
	if harmful {
		out.State = StateRewrittenAnswered
	}
	span.SetAttributes(attribute.String("task.state", string(out.State)))
	logger.InfoContext(ctx, "task answered", "state", string(out.State))
	return out, nil
}

func (o *Orchestrator) remember(ctx context.Context, logger *slog.Logger, task Task, out Outcome) (memory.Record, error) {
	kind, importance, tier := o.kind, o.importance, o.tier
	if task.Kind != "" {
		kind = task.Kind
	}
	if task.Importance != nil {
		importance = *task.Importance
	}
	if task.Tier != "" {
		tier = task.Tier
	}

	record := memory.NewRecord(kind, memory.Exchange{
		TaskID:   task.ID,
		Prompt:   out.Prompt,
		Response: out.Response,
	}, importance, tier)
	record.CreatedAt = o.now()

	if o.embedder != nil {
		vec, err := o.embedder.Embed(ctx, out.Prompt)
		if err != nil {
			logger.WarnContext(ctx, "failed to embed prompt, storing without embedding", "error", err)
		} else {
			record.Embedding = vec
		}
	}

	if err := o.store.Save(ctx, record); err != nil {
		return memory.Record{}, fmt.Errorf("failed to store memory: %w", err)
	}
	return record, nil
}

// ProcessAll processes tasks in order and stops at the first error. It
// returns the outcomes of every task it processed, including the failed one.
func (o *Orchestrator) ProcessAll(ctx context.Context, tasks []Task) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(tasks))
	for _, task := range tasks {
		out, err := o.Process(ctx, task)
		outcomes = append(outcomes, out)
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}
