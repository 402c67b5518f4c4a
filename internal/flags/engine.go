// Package flags provides the CEL-based advisory flag rule engine.
package flags

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/fraudlens/internal/domain"
)

// Engine compiles and evaluates advisory flag rules against scored
// transactions. Rules are compiled once at load time and evaluated in
// parallel per transaction.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*compiledRule
	maxWorkers    int
}

type compiledRule struct {
	rule    *domain.FlagRule
	program cel.Program
}

// NewEngine creates a flag rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// The CEL environment exposes the scored transaction's signals.
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("z_score", cel.DoubleType),
		cel.Variable("signature_score", cel.DoubleType),
		cel.Variable("velocity_score", cel.DoubleType),
		cel.Variable("merchant", cel.StringType),
		cel.Variable("narrative", cel.StringType),
		cel.Variable("risk_level", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*compiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it into the engine.
func (e *Engine) ValidateRule(rule *domain.FlagRule) error {
	if rule == nil {
		return fmt.Errorf("%w: flag rule is required", domain.ErrInvalidInput)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a single rule, replacing any rule with the
// same ID.
func (e *Engine) LoadRule(rule *domain.FlagRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiledRules[rule.ID] = compiled
	return nil
}

// LoadRules compiles and loads all enabled rules.
func (e *Engine) LoadRules(rules []*domain.FlagRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically swaps the loaded rule set for the given one,
// skipping disabled rules. Used for hot-reloading from the repository.
func (e *Engine) ReloadRules(rules []*domain.FlagRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*compiledRule)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		next[rule.ID] = compiled
	}

	e.compiledRules = next
	return nil
}

// Evaluate runs every loaded rule against the scored transaction and
// returns the rules that fired, ordered by rule ID. Rules that error at
// evaluation time are treated as not fired; a broken advisory rule must
// never block the scoring pipeline.
func (e *Engine) Evaluate(ctx context.Context, tx *domain.Transaction) []domain.FlagResult {
	e.mu.RLock()
	rules := make([]*compiledRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"amount":          tx.Amount,
		"z_score":         tx.ZScore,
		"signature_score": tx.SignatureMatchScore,
		"velocity_score":  tx.VelocityScore,
		"merchant":        tx.Merchant,
		"narrative":       tx.Narrative,
		"risk_level":      string(tx.RiskLevel),
	}

	fired := make([]*domain.FlagRule, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *compiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			out, _, err := r.program.ContextEval(ctx, activation)
			if err != nil {
				return
			}
			if b, ok := out.(types.Bool); ok && bool(b) {
				fired[idx] = r.rule
			}
		}(i, rule)
	}
	wg.Wait()

	var results []domain.FlagResult
	for _, r := range fired {
		if r == nil {
			continue
		}
		results = append(results, domain.FlagResult{
			RuleID: r.ID,
			Name:   r.Name,
			Reason: r.Reason,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].RuleID < results[j].RuleID })
	return results
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// LoadedRules returns the currently loaded rule definitions.
func (e *Engine) LoadedRules() []*domain.FlagRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.FlagRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close clears the loaded rules.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*compiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.FlagRule) (*compiledRule, error) {
	if rule.ID == "" || rule.Expression == "" {
		return nil, fmt.Errorf("%w: flag rule needs an id and an expression", domain.ErrInvalidInput)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile flag rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("flag rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for flag rule %s: %w", rule.ID, err)
	}

	return &compiledRule{rule: rule, program: program}, nil
}
