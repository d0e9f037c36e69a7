package errors

import (
	"context"
	"net"
	"strings"

	"github.com/gobwas/glob"
)

// Rule maps a message glob pattern to a classification. Patterns are
// matched against the lowercased error message, so they should be written
// in lowercase. Custom rules are configurable and are consulted before the
// built-in ones.
type Rule struct {
	Pattern string
	Class   Classification
}

// Built-in classification rules, ordered most specific first. The first
// matching rule wins.
var defaultRules = []Rule{
	// Overload / quota exhaustion.
	{Pattern: "*overload*", Class: ClassOverload},
	{Pattern: "*quota exceeded*", Class: ClassOverload},
	{Pattern: "*quota reached*", Class: ClassOverload},
	{Pattern: "*capacity*exceeded*", Class: ClassOverload},
	{Pattern: "*usage limit*", Class: ClassOverload},

	// Throttling.
	{Pattern: "*rate limit*", Class: ClassRateLimited},
	{Pattern: "*too many requests*", Class: ClassRateLimited},
	{Pattern: "*429*", Class: ClassRateLimited},
	{Pattern: "*throttl*", Class: ClassRateLimited},

	// Completion-shape specific failures.
	{Pattern: "*artifact*", Class: ClassModeSpecific},
	{Pattern: "*canvas*", Class: ClassModeSpecific},
	{Pattern: "*continuation*", Class: ClassModeSpecific},
	{Pattern: "*deep research*", Class: ClassModeSpecific},

	// Connectivity.
	{Pattern: "*network*", Class: ClassNetwork},
	{Pattern: "*connection*", Class: ClassNetwork},
	{Pattern: "*timeout*", Class: ClassNetwork},
	{Pattern: "*timed out*", Class: ClassNetwork},
	{Pattern: "*unreachable*", Class: ClassNetwork},
	{Pattern: "*502*", Class: ClassNetwork},
	{Pattern: "*503*", Class: ClassNetwork},

	// Missing interactive elements or state.
	{Pattern: "*not found*", Class: ClassResourceNotFound},
	{Pattern: "*no such element*", Class: ClassResourceNotFound},
	{Pattern: "*element*missing*", Class: ClassResourceNotFound},

	// Operation attempted before the target was ready.
	{Pattern: "*not ready*", Class: ClassTiming},
	{Pattern: "*still loading*", Class: ClassTiming},
	{Pattern: "*not yet*", Class: ClassTiming},
	{Pattern: "*premature*", Class: ClassTiming},
}

// compiledRule pairs a compiled glob with its classification.
type compiledRule struct {
	g     glob.Glob
	class Classification
}

// Classifier maps failures to classifications. Structural checks (sentinel
// errors, context cancellation, net.Error) are consulted first, then the
// message is matched against the rule list, most specific first. Unmatched
// failures classify as ClassGeneral.
//
// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	rules []compiledRule
}

// NewClassifier creates a classifier with the built-in rules. Extra rules
// (typically loaded from configuration) take precedence over the built-ins.
// Rules with invalid patterns are skipped.
func NewClassifier(extra ...Rule) *Classifier {
	all := make([]Rule, 0, len(extra)+len(defaultRules))
	all = append(all, extra...)
	all = append(all, defaultRules...)

	compiled := make([]compiledRule, 0, len(all))
	for _, r := range all {
		g, err := glob.Compile(r.Pattern)
		if err != nil {
			continue
		}
		compiled = append(compiled, compiledRule{g: g, class: r.Class})
	}
	return &Classifier{rules: compiled}
}

// Classify returns the classification for an error. A nil error classifies
// as ClassGeneral; callers should not classify nil.
func (c *Classifier) Classify(err error) Classification {
	if err == nil {
		return ClassGeneral
	}

	// Cancellation terminates retries regardless of the message text.
	if Is(err, context.Canceled) || Is(err, ErrCancelled) {
		return ClassCancelled
	}

	// Errors that carry their own classification are authoritative, except
	// the General default which still gets a chance at message matching.
	var cl classified
	if As(err, &cl) {
		if class := cl.Class(); class != ClassGeneral {
			return class
		}
	}

	// Structural checks before message inspection.
	if Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}
	var netErr net.Error
	if As(err, &netErr) {
		return ClassNetwork
	}
	if Is(err, ErrNotReady) {
		return ClassTiming
	}

	msg := strings.ToLower(err.Error())
	for _, r := range c.rules {
		if r.g.Match(msg) {
			return r.class
		}
	}
	return ClassGeneral
}
