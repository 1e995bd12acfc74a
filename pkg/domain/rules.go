package domain

import (
	"context"
	"fmt"

	"gitlab.com/tozd/go/errors"
)

// RuleView is the state a rule sees at commit: the transaction's pending
// records, not the committed ones.
type RuleView interface {
	Find(t EntityType, id string) (*Record, bool)
	List(t EntityType) []*Record
}

// Rule inspects the changes of one transaction before it commits.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine runs every registered rule at commit. Stores call Evaluate once
// per transaction and abort when the merged result blocks.
type RulesEngine struct {
	rules []Rule
}

func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register adds rule. Rules run in registration order.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

func (e *RulesEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate merges the findings of all rules. The first rule that fails to
// evaluate stops the run.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var merged Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, errors.Errorf("rule %s: %w", rule.Name(), err)
		}
		merged.Merge(res)
	}
	return merged, nil
}

type Severity string

// SeverityBlock aborts the commit. Warn and log findings are reported in the
// transaction's Result.
const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
	SeverityLog   Severity = "log"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Change is one Save recorded by a transaction. Before is nil when the record
// was created.
type Change struct {
	Entity EntityType
	Action Action
	Before *Record
	After  *Record
}

type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result collects rule findings.
type Result struct {
	Violations []Violation
}

func (r *Result) Merge(other Result) {
	r.Violations = append(r.Violations, other.Violations...)
}

func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError aborts a transaction whose Result blocks. Its message
// names the first blocking violation.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return fmt.Sprintf("transaction blocked by rules: %s: %s", v.Rule, v.Message)
		}
	}
	return "transaction blocked by rules"
}

// UniqueAttributeRule blocks commits that leave two records of Type sharing a
// non-blank value for Attribute. Only records touched by the transaction are
// checked.
type UniqueAttributeRule struct {
	Type      EntityType
	Attribute string
}

func (r UniqueAttributeRule) Name() string {
	return fmt.Sprintf("unique_%s_%s", r.Type, r.Attribute)
}

func (r UniqueAttributeRule) Evaluate(_ context.Context, view RuleView, changes []Change) (Result, error) {
	var res Result
	seen := make(map[string]bool)
	for _, change := range changes {
		if change.Entity != r.Type || change.After == nil {
			continue
		}
		value, ok := change.After.Attributes[r.Attribute]
		if !ok || IsBlank(value) {
			continue
		}
		key := fmt.Sprint(value)
		if seen[key] {
			continue
		}
		seen[key] = true
		count := 0
		for _, rec := range view.List(r.Type) {
			if v, ok := rec.Attributes[r.Attribute]; ok && !IsBlank(v) && fmt.Sprint(v) == key {
				count++
			}
		}
		if count > 1 {
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("%s %q is used by %d %s records", r.Attribute, key, count, r.Type),
				Entity:   r.Type,
				EntityID: change.After.ID,
			})
		}
	}
	return res, nil
}
