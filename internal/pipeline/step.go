// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/the-crypt-keeper/scribe/internal/store"
)

// ParamBundle is the dynamic, string-to-string parameter map every Step
// is configured from. Steps parse values on demand rather than the
// engine coercing types up front, so an unrecognized or malformed key
// only breaks the one step that actually reads it.
type ParamBundle map[string]string

func (p ParamBundle) String(key, def string) string {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

func (p ParamBundle) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (p ParamBundle) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func (p ParamBundle) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (p ParamBundle) Duration(key string, def time.Duration) time.Duration {
	v, ok := p[key]
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Clone returns a shallow copy, used when the registry hands out a
// prototype step to be specialized with CLI-supplied overrides.
func (p ParamBundle) Clone() ParamBundle {
	out := make(ParamBundle, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// WorkItem is a single unit of pending work a step's PendingInputs has
// identified: an id to run, plus its decoded input (nil for generators).
type WorkItem struct {
	ID    string
	Input any
}

// Step is the polymorphic unit of work the Dispatcher drives to
// quiescence. Every built-in kind in internal/steps composes BaseStep or
// GeneratorBase and overrides Run (and, for LLM-family steps,
// PendingInputs) to specialize behavior.
type Step interface {
	Name() string
	InKey() string
	OutKey() string
	Params() ParamBundle

	// Run executes one unit of work and returns the values to commit.
	Run(ctx context.Context, id string, input any) (payload, meta any, err error)

	// PendingInputs returns ids eligible to run right now, excluding any
	// id already claimed or committed under OutKey or present in inFlight (ids the
	// dispatcher currently has a future open for).
	PendingInputs(ctx context.Context, st store.Store, inFlight map[string]bool) ([]WorkItem, error)

	// QDepth caps how many futures may be in flight for this step at
	// once; the dispatcher refuses to submit more until some complete.
	QDepth() int

	// Parallel sizes the step's worker pool: the number of Run calls
	// that may execute concurrently.
	Parallel() int
}

// BaseStep implements the default transform-step PendingInputs: the set
// difference I \ (O ∪ Q), where I is every committed id under InKey, O is
// every id under OutKey (claimed or committed), and Q is the dispatcher's in-flight
// set. Built-in step kinds embed BaseStep and only need to implement Run.
type BaseStep struct {
	name    string
	inKey   string
	outKey  string
	params  ParamBundle
}

// NewBaseStep constructs the shared transform-step scaffolding.
func NewBaseStep(name, inKey, outKey string, params ParamBundle) BaseStep {
	return BaseStep{name: name, inKey: inKey, outKey: outKey, params: params}
}

func (b BaseStep) Name() string        { return b.name }
func (b BaseStep) InKey() string       { return b.inKey }
func (b BaseStep) OutKey() string      { return b.outKey }
func (b BaseStep) Params() ParamBundle { return b.params }

func (b BaseStep) QDepth() int {
	return b.params.Int("qdepth", 4)
}

func (b BaseStep) Parallel() int {
	return b.params.Int("parallel", 1)
}

// PendingInputs implements I \ (O ∪ Q). Callers needing extra
// back-pressure (e.g. LLM-family steps honoring model_max) compose this
// result further rather than reimplementing the set difference.
func (b BaseStep) PendingInputs(ctx context.Context, st store.Store, inFlight map[string]bool) ([]WorkItem, error) {
	if b.inKey == "" {
		return nil, fmt.Errorf("step %q: BaseStep requires an inkey; use GeneratorBase for generator steps", b.name)
	}

	inputs, err := st.Find(ctx, b.inKey, "")
	if err != nil {
		return nil, fmt.Errorf("step %q: load inputs from %q: %w", b.name, b.inKey, err)
	}

	outputIDs, err := st.AllIDs(ctx, b.outKey)
	if err != nil {
		return nil, fmt.Errorf("step %q: load output ids from %q: %w", b.name, b.outKey, err)
	}
	done := lo.SliceToMap(outputIDs, func(id string) (string, struct{}) { return id, struct{}{} })

	items := make([]WorkItem, 0, len(inputs))
	for _, rec := range inputs {
		if _, ok := done[rec.ID]; ok {
			continue
		}
		if inFlight[rec.ID] {
			continue
		}
		var payload any
		if rec.Payload != nil {
			payload = *rec.Payload
		}
		items = append(items, WorkItem{ID: rec.ID, Input: payload})
	}
	return items, nil
}

// GeneratorBase implements the Generate-family PendingInputs: mint
// max - |O| - |inFlight| fresh ids, where O is the set of ids already
// under OutKey (claimed or committed). Generators have no InKey.
type GeneratorBase struct {
	name   string
	outKey string
	params ParamBundle
}

// NewGeneratorBase constructs the shared generator-step scaffolding.
func NewGeneratorBase(name, outKey string, params ParamBundle) GeneratorBase {
	return GeneratorBase{name: name, outKey: outKey, params: params}
}

func (g GeneratorBase) Name() string        { return g.name }
func (g GeneratorBase) InKey() string       { return "" }
func (g GeneratorBase) OutKey() string      { return g.outKey }
func (g GeneratorBase) Params() ParamBundle { return g.params }

func (g GeneratorBase) QDepth() int {
	return g.params.Int("qdepth", 4)
}

func (g GeneratorBase) Parallel() int {
	return g.params.Int("parallel", 1)
}

// Max is the target total row count under OutKey.
func (g GeneratorBase) Max() int {
	return g.params.Int("max", 1)
}

func (g GeneratorBase) PendingInputs(ctx context.Context, st store.Store, inFlight map[string]bool) ([]WorkItem, error) {
	ids, err := st.AllIDs(ctx, g.outKey)
	if err != nil {
		return nil, fmt.Errorf("generator %q: load ids from %q: %w", g.name, g.outKey, err)
	}

	remaining := g.Max() - len(ids) - len(inFlight)
	if remaining <= 0 {
		return nil, nil
	}

	items := make([]WorkItem, 0, remaining)
	for i := 0; i < remaining; i++ {
		items = append(items, WorkItem{ID: newID(), Input: nil})
	}
	return items, nil
}
