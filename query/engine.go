// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package query

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/nosqlx/planexec/partition"
	"github.com/nosqlx/planexec/plan"
	"github.com/nosqlx/planexec/values"
)

// ErrNotResumable is returned when a continuation
// key is requested from, or supplied to, a plan
// whose output cannot be resumed part way.
var ErrNotResumable = errors.New("query cannot be resumed")

// Engine prepares plans and runs executions
// with the limits of one Config.
// An Engine is safe for concurrent use.
type Engine struct {
	cfg     Config
	logger  log.Logger
	metrics *metrics
	cache   *Cache
}

// NewEngine validates cfg and returns an Engine.
// Metrics are registered with cfg.Registerer.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		logger:  cfg.logger(),
		metrics: newMetrics(cfg.Registerer),
	}
	if cfg.PlanCacheSize > 0 {
		c, err := newCache(e, cfg.PlanCacheSize)
		if err != nil {
			return nil, err
		}
		e.cache = c
	}
	return e, nil
}

var defaultEngine = func() *Engine {
	e, err := NewEngine(Config{SortRunSize: plan.DefaultSortRunSize})
	if err != nil {
		panic(err)
	}
	return e
}()

// Prepare decodes a plan with the default
// configuration and no plan cache.
func Prepare(blob []byte, version int16) (*Prepared, error) {
	return defaultEngine.prepare(blob, version)
}

// Prepare returns the prepared plan for blob,
// decoding it only if it is not already cached.
func (e *Engine) Prepare(blob []byte, version int16) (*Prepared, error) {
	if e.cache == nil {
		return e.prepare(blob, version)
	}
	return e.cache.Prepare(blob, version)
}

// Cache returns the plan cache of e,
// or nil if caching is disabled.
func (e *Engine) Cache() *Cache { return e.cache }

func (e *Engine) prepare(blob []byte, version int16) (*Prepared, error) {
	var opts []plan.DecodeOption
	if e.cfg.TraceDecode {
		opts = append(opts, plan.WithTrace(log.With(e.logger, "component", "decoder")))
	}
	p, err := plan.Decode(blob, version, opts...)
	if err != nil {
		level.Error(e.logger).Log("msg", "decoding plan", "err", err)
		return nil, err
	}
	level.Debug(e.logger).Log("msg", "plan prepared", "version", version, "bytes", len(blob),
		"states", p.NumStates, "registers", p.NumRegs, "resumable", p.Resumable())
	return &Prepared{eng: e, plan: p}, nil
}

// Prepared is a decoded plan. It is immutable
// and may be executed concurrently any number
// of times.
type Prepared struct {
	eng  *Engine
	plan *plan.Plan
}

// Plan returns the decoded plan.
func (p *Prepared) Plan() *plan.Plan { return p.plan }

// Display renders the iterator tree.
func (p *Prepared) Display() string { return p.plan.Display() }

// Resumable reports whether executions of p
// can hand out continuation keys mid-stream.
func (p *Prepared) Resumable() bool { return p.plan.Resumable() }

// Externals returns the names of the external
// variables an execution must bind.
func (p *Prepared) Externals() []string { return p.plan.Externals() }

// Options are the per-execution inputs.
type Options struct {
	// Externals binds external variables by name.
	Externals map[string]values.Value
	// Source supplies partition pages.
	Source partition.Source
	// Table identifies the queried table.
	Table partition.Table
	// ContinuationKey resumes a previous
	// execution of the same plan.
	ContinuationKey []byte
	// Diagnostics receives user-facing errors.
	Diagnostics plan.Diagnostics
}

// Execute starts an execution of p. The returned
// Cursor must be closed.
func (p *Prepared) Execute(ctx context.Context, opts Options) (*Cursor, error) {
	e := p.eng
	ec := plan.NewExecContext(ctx, p.plan)
	ec.Logger = log.With(e.logger, "exec", ec.ID)
	ec.Diagnostics = opts.Diagnostics
	ec.Source = opts.Source
	ec.Table = opts.Table
	ec.MaxMemory = e.cfg.MaxMemoryBytes
	ec.SortRunSize = e.cfg.SortRunSize
	if p.plan.Resumable() {
		// suspending below a buffering iterator
		// would hand it a partial input
		ec.MaxFetches = e.cfg.MaxFetches
	}
	for name, v := range opts.Externals {
		if err := ec.SetExternal(name, v); err != nil {
			return nil, err
		}
	}
	if opts.ContinuationKey != nil {
		if !p.plan.Resumable() {
			return nil, errors.Wrap(ErrNotResumable, "continuation key supplied")
		}
		pos, err := DecodeContinuation(opts.ContinuationKey)
		if err != nil {
			return nil, err
		}
		ec.Resume(pos)
	}
	if p.plan.Receive() != nil && ec.Source == nil {
		return nil, errors.New("plan receives partition rows but no source was given")
	}
	c := newCursor(p, ec)
	level.Debug(ec.Logger).Log("msg", "execution started", "resumed", opts.ContinuationKey != nil)
	e.metrics.executions.WithLabelValues(outcomeStarted).Inc()
	if err := p.plan.Root.Open(ec); err != nil {
		c.fail(err)
		c.Close()
		return nil, err
	}
	return c, nil
}
