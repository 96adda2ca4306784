package orchestrator

import (
	"strings"

	"github.com/StricklySoft/contentflow/pkg/compliance"
	sserr "github.com/StricklySoft/contentflow/pkg/errors"
)

// Brief describes the article a workflow produces.
type Brief struct {
	Topic          string   `json:"topic"`
	Audience       string   `json:"audience,omitempty"`
	PrimaryKeyword string   `json:"primary_keyword,omitempty"`
	Goal           string   `json:"goal,omitempty"`
	Angle          string   `json:"angle,omitempty"`
	WordCount      int      `json:"word_count,omitempty"`
	Sources        []string `json:"sources,omitempty"`

	// Research is filled in from the research phase before outline
	// runs.
	Research *ResearchContext `json:"research,omitempty"`
}

// ResearchContext is the part of the research output carried forward.
type ResearchContext struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// DefaultWordCount is used when a brief leaves WordCount unset.
const DefaultWordCount = 1400

// Normalize trims fields, fills defaults and validates the brief.
func (b *Brief) Normalize() error {
	b.Topic = strings.TrimSpace(b.Topic)
	if b.Topic == "" {
		return sserr.New(sserr.CodeValidationRequired, "orchestrator: brief topic is required")
	}
	if b.PrimaryKeyword == "" {
		b.PrimaryKeyword = b.Topic
	}
	if b.WordCount < 0 {
		return sserr.Newf(sserr.CodeValidationRange, "orchestrator: word count must not be negative, got %d", b.WordCount)
	}
	if b.WordCount == 0 {
		b.WordCount = DefaultWordCount
	}
	return nil
}

// ResearchOutput is the expected research phase output.
type ResearchOutput struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Sources   []string `json:"sources,omitempty"`
}

// OutlineSection is one planned H2 section.
type OutlineSection struct {
	Heading string   `json:"heading"`
	Points  []string `json:"points,omitempty"`
}

// OutlineOutput is the expected outline phase output.
type OutlineOutput struct {
	Title    string           `json:"title"`
	Sections []OutlineSection `json:"sections"`
}

// DraftOutput is the expected draft phase output.
type DraftOutput struct {
	Markdown string `json:"markdown"`
}

// ComplianceReport is the compliance phase output.
type ComplianceReport struct {
	Passed     bool                   `json:"passed"`
	Violations []compliance.Violation `json:"violations"`
	Characters int                    `json:"characters"`
	Draft      string                 `json:"draft"`
}
