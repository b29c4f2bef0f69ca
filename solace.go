// Package solace provides a high-level façade over the conversational
// orchestrator and the scoring engine. Most applications interact with this
// package by:
//  1. Creating a Solace via New() with their provider, memory and model
//  2. Calling Respond for conversational exchanges
//  3. Calling Score / ValidateFollowUp for questionnaire submissions
//
// The façade only wires; all behavior lives in the orchestrator, scoring,
// provider and memory packages. Defaults are safe for local development and
// testing; production deployments supply durable backends and a structured
// logger.
package solace

import (
	"context"

	"github.com/mindfold/solace/core"
	"github.com/mindfold/solace/logging"
	"github.com/mindfold/solace/model"
	"github.com/mindfold/solace/orchestrator"
	"github.com/mindfold/solace/scoring"
)

// Options configures the Solace instance.
type Options struct {
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
	// OrchestratorOptions customize the exchange state machine.
	OrchestratorOptions []func(o *orchestrator.Options)
	// EngineOptions customize the scoring engine.
	EngineOptions []func(o *scoring.Options)
}

// Solace aggregates the conversational orchestrator and the scoring engine
// behind one handle.
type Solace struct {
	orch   *orchestrator.Orchestrator
	engine *scoring.Engine
}

// New creates a Solace instance with explicit dependencies and optional
// overrides.
func New(provider core.Provider, mem core.Memory, mdl model.Model, optFns ...func(o *Options)) *Solace {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	orchOpts := append([]func(o *orchestrator.Options){func(o *orchestrator.Options) {
		o.Logger = opts.Logger
	}}, opts.OrchestratorOptions...)

	return &Solace{
		orch:   orchestrator.New(provider, mem, mdl, orchOpts...),
		engine: scoring.NewEngine(opts.EngineOptions...),
	}
}

// Respond runs one conversational exchange.
func (s *Solace) Respond(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	return s.orch.Respond(ctx, req)
}

// Score computes a score record from a questionnaire and response map.
func (s *Solace) Score(questions []core.Question, responses map[int]int) (*core.ScoreRecord, error) {
	return s.engine.Score(questions, responses)
}

// Engine exposes the underlying scoring engine.
func (s *Solace) Engine() *scoring.Engine { return s.engine }

// Orchestrator exposes the underlying orchestrator.
func (s *Solace) Orchestrator() *orchestrator.Orchestrator { return s.orch }
