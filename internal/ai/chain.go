package ai

import (
	"context"
	"errors"
	"strings"
)

// Chain tries providers in order until one succeeds.
type Chain struct {
	steps []Provider
}

func NewChain(steps ...Provider) *Chain {
	return &Chain{steps: steps}
}

func (c *Chain) Providers() []Provider {
	return append([]Provider(nil), c.steps...)
}

type ChainResult struct {
	Reply    Reply
	Provider string
	// Index is the position of the provider that answered; > 0 means a
	// fallback was used.
	Index int
	// Failures are the upstream errors of the providers tried before it.
	Failures []*UpstreamError
}

func (r ChainResult) UsedFallback() bool { return r.Index > 0 }

// Calls lists every upstream call in the order they happened.
func (r ChainResult) Calls() []CallRecord {
	out := make([]CallRecord, 0, len(r.Failures)+1)
	for _, f := range r.Failures {
		out = append(out, f.Call)
	}
	return append(out, r.Reply.Call)
}

// ChainError is returned when every provider in the chain failed upstream.
type ChainError struct {
	Failures []*UpstreamError
}

func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// Summary reads like "chatbase failed; openai fallback failed".
func (e *ChainError) Summary() string {
	if len(e.Failures) == 0 {
		return "no provider configured"
	}
	if len(e.Failures) == 1 {
		return e.Failures[0].Summary()
	}
	parts := make([]string, 0, len(e.Failures))
	for i, f := range e.Failures {
		if i == 0 {
			parts = append(parts, f.Provider+" failed")
			continue
		}
		parts = append(parts, f.Provider+" fallback failed")
	}
	return strings.Join(parts, "; ")
}

// Run sends conv to each provider in turn. Only *UpstreamError moves on to the
// next provider; any other error aborts the chain and is returned unchanged.
func (c *Chain) Run(ctx context.Context, conv Conversation) (ChainResult, error) {
	var failures []*UpstreamError
	for i, p := range c.steps {
		reply, err := p.SendConversation(ctx, conv)
		if err == nil {
			return ChainResult{Reply: reply, Provider: p.Name(), Index: i, Failures: failures}, nil
		}

		var ue *UpstreamError
		if !errors.As(err, &ue) {
			return ChainResult{}, err
		}
		failures = append(failures, ue)
	}
	return ChainResult{}, &ChainError{Failures: failures}
}
