// Package compliance checks generated drafts against an editorial rule
// set and sanitizes model output before it is stored or published.
//
// Rule sets are YAML documents. Fields left out of a document keep
// their default value, so a file only needs to name what it changes.
package compliance

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
)

// RuleSet configures the evaluator.
type RuleSet struct {
	// ForbiddenChars may not appear anywhere in the draft.
	ForbiddenChars []string `yaml:"forbidden_chars"`

	// FAQHeading is the exact heading line of the FAQ section. Empty
	// disables both FAQ rules.
	FAQHeading string `yaml:"faq_heading"`

	// FAQCount is the exact number of **Qn: ...?** lines required.
	FAQCount int `yaml:"faq_count"`

	// CitationPattern matches one inline citation.
	CitationPattern string `yaml:"citation_pattern"`

	// MinCitations is the least number of citations required.
	MinCitations int `yaml:"min_citations"`

	// AllowedDomains lists hosts that links may point to. Subdomains
	// match. Hosts of the brief's source URLs are always allowed. An
	// empty list allows every link.
	AllowedDomains []string `yaml:"allowed_domains"`

	// RequireSourceLinks demands a link to every source URL.
	RequireSourceLinks bool `yaml:"require_source_links"`

	// ForbiddenPhrases are matched case-insensitively.
	ForbiddenPhrases []string `yaml:"forbidden_phrases"`

	// MinSections and MaxSections bound the number of H2 headings,
	// the FAQ heading included. Zero disables a bound.
	MinSections int `yaml:"min_sections"`
	MaxSections int `yaml:"max_sections"`

	// RequireSummary demands a blockquote summary directly under the
	// title with a sentence count in [SummaryMinSentences,
	// SummaryMaxSentences].
	RequireSummary      bool `yaml:"require_summary"`
	SummaryMinSentences int  `yaml:"summary_min_sentences"`
	SummaryMaxSentences int  `yaml:"summary_max_sentences"`

	// CheckTables validates an embedded HTML table: exactly one
	// <table>...</table> with thead, tbody, tr, th and td elements, outside
	// any code fence. Drafts without a table are not affected.
	CheckTables bool `yaml:"check_tables"`

	// MaxLength caps the sanitized draft, in characters.
	MaxLength int `yaml:"max_length"`

	citation *regexp.Regexp
}

// DefaultMaxLength is the sanitizer's default length cap.
const DefaultMaxLength = 20000

// DefaultRuleSet returns the house style rules.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		ForbiddenChars:      []string{"—", "–"},
		FAQHeading:          "## FAQs",
		FAQCount:            4,
		CitationPattern:     `\(Source\s\d+\)`,
		MinCitations:        6,
		AllowedDomains:      []string{"bitxcapital.com"},
		RequireSourceLinks:  true,
		MinSections:         4,
		MaxSections:         6,
		SummaryMinSentences: 4,
		SummaryMaxSentences: 5,
		CheckTables:         true,
		MaxLength:           DefaultMaxLength,
	}
}

// ParseRuleSet reads a YAML rule set over the defaults.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	rs := DefaultRuleSet()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(rs); err != nil && !errors.Is(err, io.EOF) {
		return nil, sserr.Wrap(err, sserr.CodeValidationFormat, "compliance: parse rule set")
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// LoadRuleSet reads a YAML rule set file. An empty path returns the
// defaults.
func LoadRuleSet(path string) (*RuleSet, error) {
	if path == "" {
		rs := DefaultRuleSet()
		return rs, rs.Validate()
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, sserr.Newf(sserr.CodeValidationFormat,
			"compliance: rule set must be .yaml or .yml, got %q", ext)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration, "compliance: read rule set %s", path)
	}
	return ParseRuleSet(data)
}

// Validate checks bounds and compiles the citation pattern.
func (rs *RuleSet) Validate() error {
	switch {
	case rs.FAQCount < 0:
		return sserr.Newf(sserr.CodeValidationRange, "compliance: faq_count must not be negative, got %d", rs.FAQCount)
	case rs.MinCitations < 0:
		return sserr.Newf(sserr.CodeValidationRange, "compliance: min_citations must not be negative, got %d", rs.MinCitations)
	case rs.MaxSections > 0 && rs.MinSections > rs.MaxSections:
		return sserr.Newf(sserr.CodeValidationRange,
			"compliance: min_sections %d exceeds max_sections %d", rs.MinSections, rs.MaxSections)
	case rs.RequireSummary && rs.SummaryMinSentences > rs.SummaryMaxSentences:
		return sserr.Newf(sserr.CodeValidationRange,
			"compliance: summary_min_sentences %d exceeds summary_max_sentences %d",
			rs.SummaryMinSentences, rs.SummaryMaxSentences)
	case rs.MaxLength < 0:
		return sserr.Newf(sserr.CodeValidationRange, "compliance: max_length must not be negative, got %d", rs.MaxLength)
	}
	if rs.CitationPattern != "" {
		re, err := regexp.Compile(rs.CitationPattern)
		if err != nil {
			return sserr.Wrap(err, sserr.CodeValidationFormat, "compliance: invalid citation_pattern")
		}
		rs.citation = re
	}
	return nil
}

func (rs *RuleSet) String() string {
	return fmt.Sprintf("RuleSet{faqs=%d citations>=%d sections=%d..%d domains=%v}",
		rs.FAQCount, rs.MinCitations, rs.MinSections, rs.MaxSections, rs.AllowedDomains)
}
