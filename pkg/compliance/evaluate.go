package compliance

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Rule names a check.
type Rule string

const (
	RuleForbiddenChar   Rule = "forbidden_char"
	RuleFAQSection      Rule = "faq_section"
	RuleFAQCount        Rule = "faq_count"
	RuleCitations       Rule = "citations"
	RuleDisallowedLink  Rule = "disallowed_link"
	RuleMissingSource   Rule = "missing_source"
	RuleForbiddenPhrase Rule = "forbidden_phrase"
	RuleSectionCount    Rule = "section_count"
	RuleSummary         Rule = "summary"
	RuleTable           Rule = "html_table"
)

// Severity grades a violation. Violations are advisory; severity only
// orders them for a reviewer.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Violation is one failed rule.
type Violation struct {
	Rule     Rule     `json:"rule"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Match    string   `json:"match,omitempty"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s[%s]: %s", v.Rule, v.Severity, v.Message)
}

var (
	faqQuestionRe = regexp.MustCompile(`(?m)^\*\*Q\d+:.*\?\*\*\s*$`)
	h2Re          = regexp.MustCompile(`(?m)^##\s+\S`)
	linkRe        = regexp.MustCompile(`https?://[^\s<>"'()\[\]]+`)
	sentenceEndRe = regexp.MustCompile(`[.!?]+`)
	tableOpenRe   = regexp.MustCompile(`(?i)<table\b`)
	tableCloseRe  = regexp.MustCompile(`(?i)</table\s*>`)

	tableParts = []struct {
		tag string
		re  *regexp.Regexp
	}{
		{"thead", regexp.MustCompile(`(?i)<thead\b`)},
		{"tbody", regexp.MustCompile(`(?i)<tbody\b`)},
		{"tr", regexp.MustCompile(`(?i)<tr\b`)},
		{"th", regexp.MustCompile(`(?i)<th\b`)},
		{"td", regexp.MustCompile(`(?i)<td\b`)},
	}
)

// Evaluator applies a RuleSet. It is safe for concurrent use.
type Evaluator struct {
	rules *RuleSet
}

// NewEvaluator returns an Evaluator for rs. A nil rs uses the defaults.
func NewEvaluator(rs *RuleSet) (*Evaluator, error) {
	if rs == nil {
		rs = DefaultRuleSet()
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{rules: rs}, nil
}

// Rules returns the evaluator's rule set.
func (e *Evaluator) Rules() *RuleSet { return e.rules }

// Evaluate checks draft and returns every violation in rule order. The
// result is never nil. sources are the URLs the draft was written from.
func (e *Evaluator) Evaluate(draft string, sources []string) []Violation {
	rs := e.rules
	out := []Violation{}

	for _, ch := range rs.ForbiddenChars {
		if n := strings.Count(draft, ch); n > 0 {
			out = append(out, Violation{
				Rule:     RuleForbiddenChar,
				Message:  fmt.Sprintf("found %d occurrence(s) of forbidden character %q", n, ch),
				Severity: SeverityError,
				Match:    ch,
			})
		}
	}

	if rs.FAQHeading != "" {
		if !hasLine(draft, rs.FAQHeading) {
			out = append(out, Violation{
				Rule:     RuleFAQSection,
				Message:  fmt.Sprintf("missing %q section", rs.FAQHeading),
				Severity: SeverityError,
			})
		}
		if n := len(faqQuestionRe.FindAllString(draft, -1)); n != rs.FAQCount {
			out = append(out, Violation{
				Rule:     RuleFAQCount,
				Message:  fmt.Sprintf("expected exactly %d FAQ questions, found %d", rs.FAQCount, n),
				Severity: SeverityError,
			})
		}
	}

	if rs.citation != nil && rs.MinCitations > 0 {
		if n := len(rs.citation.FindAllString(draft, -1)); n < rs.MinCitations {
			out = append(out, Violation{
				Rule:     RuleCitations,
				Message:  fmt.Sprintf("expected at least %d citations, found %d", rs.MinCitations, n),
				Severity: SeverityError,
			})
		}
	}

	out = append(out, e.checkLinks(draft, sources)...)

	lower := strings.ToLower(draft)
	for _, phrase := range rs.ForbiddenPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			out = append(out, Violation{
				Rule:     RuleForbiddenPhrase,
				Message:  fmt.Sprintf("contains forbidden phrase %q", phrase),
				Severity: SeverityWarning,
				Match:    phrase,
			})
		}
	}

	n := len(h2Re.FindAllString(draft, -1))
	if (rs.MinSections > 0 && n < rs.MinSections) || (rs.MaxSections > 0 && n > rs.MaxSections) {
		out = append(out, Violation{
			Rule:     RuleSectionCount,
			Message:  fmt.Sprintf("expected %d to %d H2 sections, found %d", rs.MinSections, rs.MaxSections, n),
			Severity: SeverityWarning,
		})
	}

	if rs.RequireSummary {
		if v, ok := e.checkSummary(draft); !ok {
			out = append(out, v)
		}
	}

	if rs.CheckTables {
		out = append(out, checkTable(draft)...)
	}
	return out
}

// checkTable validates the HTML table of a draft that has one.
func checkTable(draft string) []Violation {
	opens := tableOpenRe.FindAllStringIndex(draft, -1)
	if len(opens) == 0 {
		return nil
	}
	closes := tableCloseRe.FindAllStringIndex(draft, -1)
	if len(opens) != 1 || len(closes) != 1 || closes[0][0] < opens[0][0] {
		return []Violation{{
			Rule:     RuleTable,
			Message:  fmt.Sprintf("expected exactly one <table>...</table>, found %d opening and %d closing tags", len(opens), len(closes)),
			Severity: SeverityError,
		}}
	}

	var out []Violation
	start, end := opens[0][0], closes[0][1]
	table := draft[start:end]
	if strings.Contains(table, "```") || strings.Count(draft[:start], "```")%2 == 1 {
		out = append(out, Violation{
			Rule:     RuleTable,
			Message:  "table must be raw HTML, not inside a code fence",
			Severity: SeverityError,
		})
	}
	var missing []string
	for _, p := range tableParts {
		if !p.re.MatchString(table) {
			missing = append(missing, "<"+p.tag+">")
		}
	}
	if len(missing) > 0 {
		out = append(out, Violation{
			Rule:     RuleTable,
			Message:  "table is missing " + strings.Join(missing, ", "),
			Severity: SeverityError,
			Match:    strings.Join(missing, ","),
		})
	}
	return out
}

func (e *Evaluator) checkLinks(draft string, sources []string) []Violation {
	var out []Violation
	if e.rules.RequireSourceLinks {
		for _, src := range sources {
			if src != "" && !strings.Contains(draft, src) {
				out = append(out, Violation{
					Rule:     RuleMissingSource,
					Message:  fmt.Sprintf("no backlink to source %s", src),
					Severity: SeverityWarning,
					Match:    src,
				})
			}
		}
	}
	if len(e.rules.AllowedDomains) == 0 {
		return out
	}

	allowed := append([]string{}, e.rules.AllowedDomains...)
	for _, src := range sources {
		if h := hostOf(src); h != "" {
			allowed = append(allowed, h)
		}
	}

	seen := make(map[string]bool)
	for _, raw := range linkRe.FindAllString(draft, -1) {
		link := strings.TrimRight(raw, ".,;:!?")
		if seen[link] {
			continue
		}
		seen[link] = true
		if !domainAllowed(hostOf(link), allowed) {
			out = append(out, Violation{
				Rule:     RuleDisallowedLink,
				Message:  fmt.Sprintf("link to %s is not allowed", link),
				Severity: SeverityError,
				Match:    link,
			})
		}
	}
	return out
}

// checkSummary expects a blockquote as the first content after the H1.
func (e *Evaluator) checkSummary(draft string) (Violation, bool) {
	lines := strings.Split(draft, "\n")
	i := 0
	for i < len(lines) && (strings.TrimSpace(lines[i]) == "" || strings.HasPrefix(lines[i], "# ")) {
		i++
	}
	var quote []string
	for ; i < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i]), ">"); i++ {
		quote = append(quote, strings.TrimLeft(strings.TrimSpace(lines[i]), "> "))
	}
	if len(quote) == 0 {
		return Violation{Rule: RuleSummary, Message: "missing blockquote summary under the title", Severity: SeverityWarning}, false
	}

	sentences := 0
	for _, s := range sentenceEndRe.Split(strings.Join(quote, " "), -1) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}
	lo, hi := e.rules.SummaryMinSentences, e.rules.SummaryMaxSentences
	if sentences < lo || sentences > hi {
		return Violation{
			Rule:     RuleSummary,
			Message:  fmt.Sprintf("summary must be %d to %d sentences, found %d", lo, hi, sentences),
			Severity: SeverityWarning,
		}, false
	}
	return Violation{}, true
}

func hasLine(text, line string) bool {
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func domainAllowed(host string, allowed []string) bool {
	if host == "" {
		return false
	}
	for _, d := range allowed {
		d = strings.ToLower(strings.TrimPrefix(d, "www."))
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
