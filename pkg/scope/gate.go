// Package scope decides whether a user question belongs to the banking
// analytics domain before any model or database work happens. The gate is
// deterministic and lexicon-based; it never performs I/O.
package scope

import (
	"fmt"
	"strings"
)

// Status classifies where a question stands relative to the analytics domain.
type Status string

const (
	StatusInScope    Status = "in_scope"
	StatusOutOfScope Status = "out_of_scope"
	StatusUnclear    Status = "unclear"
)

// Verdict is the outcome of an admission check.
type Verdict struct {
	Status     Status  `json:"status"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Allowed reports whether the question may proceed through the pipeline.
// Unclear questions are let through; downstream stages fail soft.
func (v Verdict) Allowed() bool {
	return v.Status == StatusInScope || v.Status == StatusUnclear
}

// DomainKeywords are terms that indicate a banking analytics question.
// Matching is case-insensitive substring.
var DomainKeywords = []string{
	// transaction types
	"transaction", "deposit", "withdrawal", "payment", "transfer",
	"e-transfer", "etransfer",
	// financial metrics
	"balance", "amount", "total", "sum", "count", "average", "avg",
	"volume", "flow", "net",
	// channels
	"channel", "digital", "branch", "call center", "batch", "online", "mobile",
	// entities
	"customer", "account", "client",
	// products
	"chequing", "checking", "savings", "gic",
	// time terms
	"daily", "weekly", "monthly", "trend", "period", "date", "month", "year",
	// analytics terms
	"breakdown", "distribution", "top", "most", "least", "highest", "lowest",
	// event types
	"fee", "interest", "event",
}

// OffDomainKeywords immediately reject a question regardless of any other
// match.
var OffDomainKeywords = []string{
	"weather", "stock market", "news", "sports", "politics",
	"recipe", "movie", "music", "game", "joke",
	"remind", "alarm", "timer", "calendar",
	"translate", "define", "wikipedia",
	"write code", "debug", "compile", "programming",
}

// AnalyticsPatterns are multi-word phrasings that suggest an analytics
// question even when no domain keyword is present.
var AnalyticsPatterns = []string{
	"how many", "how much", "what is the",
	"show me", "list", "compare",
	"by month", "by channel", "by product",
	"last month", "this month", "year to date",
	"increase", "decrease", "growth", "change",
}

// InterrogativeLeads mark a string as question-shaped when it starts with one
// of them.
var InterrogativeLeads = []string{
	"what", "how", "who", "when", "where", "why", "which", "show", "list", "get",
}

type rule struct {
	name string
	eval func(q string) (Verdict, bool)
}

// Gate evaluates admission rules in a fixed priority order.
type Gate struct {
	domain    []string
	offDomain []string
	patterns  []string
	leads     []string
	rules     []rule
}

// NewGate builds a gate with the default banking lexicon.
func NewGate() *Gate {
	g := &Gate{
		domain:    DomainKeywords,
		offDomain: OffDomainKeywords,
		patterns:  AnalyticsPatterns,
		leads:     InterrogativeLeads,
	}
	g.rules = []rule{
		{name: "off_domain_keyword", eval: g.evalOffDomain},
		{name: "strong_domain_match", eval: g.evalStrongMatch},
		{name: "weak_domain_match", eval: g.evalWeakMatch},
		{name: "interrogative_leadin", eval: g.evalInterrogative},
		{name: "default_reject", eval: g.evalDefault},
	}
	return g
}

// RuleNames returns the evaluation order. Priority is part of the gate's
// contract.
func (g *Gate) RuleNames() []string {
	names := make([]string, 0, len(g.rules))
	for _, r := range g.rules {
		names = append(names, r.name)
	}
	return names
}

// Check runs the rules in order and returns the first verdict produced.
// The default rule always produces one, so Check is total.
func (g *Gate) Check(question string) Verdict {
	q := strings.ToLower(question)
	for _, r := range g.rules {
		if v, ok := r.eval(q); ok {
			return v
		}
	}
	// Unreachable: default_reject always matches.
	return Verdict{Status: StatusOutOfScope, Reason: "no rule matched", Confidence: 0.5}
}

func (g *Gate) evalOffDomain(q string) (Verdict, bool) {
	for _, kw := range g.offDomain {
		if strings.Contains(q, kw) {
			return Verdict{
				Status:     StatusOutOfScope,
				Reason:     fmt.Sprintf("Question appears to be about '%s', which is outside banking analytics scope.", kw),
				Confidence: 0.9,
			}, true
		}
	}
	return Verdict{}, false
}

func (g *Gate) matchCount(q string) int {
	n := 0
	for _, kw := range g.domain {
		if strings.Contains(q, kw) {
			n++
		}
	}
	for _, p := range g.patterns {
		if strings.Contains(q, p) {
			n++
		}
	}
	return n
}

func (g *Gate) evalStrongMatch(q string) (Verdict, bool) {
	if g.matchCount(q) >= 2 {
		return Verdict{
			Status:     StatusInScope,
			Reason:     "Question contains multiple analytics-related terms.",
			Confidence: 0.9,
		}, true
	}
	return Verdict{}, false
}

func (g *Gate) evalWeakMatch(q string) (Verdict, bool) {
	if g.matchCount(q) == 1 {
		return Verdict{
			Status:     StatusInScope,
			Reason:     "Question appears related to analytics.",
			Confidence: 0.7,
		}, true
	}
	return Verdict{}, false
}

func (g *Gate) evalInterrogative(q string) (Verdict, bool) {
	for _, lead := range g.leads {
		if strings.HasPrefix(q, lead) {
			return Verdict{
				Status:     StatusUnclear,
				Reason:     "Question type unclear. Proceeding with caution.",
				Confidence: 0.5,
			}, true
		}
	}
	return Verdict{}, false
}

func (g *Gate) evalDefault(_ string) (Verdict, bool) {
	return Verdict{
		Status:     StatusOutOfScope,
		Reason:     "Unable to determine if this is a banking analytics question. Please ask about transactions, deposits, withdrawals, or account data.",
		Confidence: 0.6,
	}, true
}

// RejectionMessage formats the user-facing text for a rejected question.
func RejectionMessage(v Verdict) string {
	return fmt.Sprintf(`I can only answer questions about banking transaction analytics.

%s

**Examples of questions I can help with:**
- "What was the total deposit amount last month?"
- "Show me the transaction breakdown by channel"
- "Which customers had the most withdrawals?"
- "What's the trend in digital vs branch transactions?"

Please rephrase your question to focus on transaction or account analytics.`, v.Reason)
}
