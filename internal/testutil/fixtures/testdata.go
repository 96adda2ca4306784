// Package fixtures holds shared test values so scenarios read the same
// in every package.
package fixtures

import "time"

// Pipeline scenario values.
const (
	// Topic is the topic submitted in the end-to-end pipeline scenarios.
	Topic = "SBA Loans"

	// Audience is the brief audience used with Topic.
	Audience = "small business owners"

	// ClientIP is the client identifier used in abuse tracking tests.
	ClientIP = "1.2.3.4"

	// DailyLimit is the quota cap used by ledger scenarios.
	DailyLimit int64 = 30000
)

// Agent designations used by registry and orchestrator tests.
const (
	ResearchAgent = "research-agent"
	OutlineAgent  = "outline-agent"
	DraftAgent    = "draft-agent"
	RuleBased     = "rule-based"
)

// Now is a fixed instant used with injected clocks. 2026-03-14 is a
// Saturday in UTC, far from any DST edge.
var Now = time.Date(2026, time.March, 14, 15, 9, 26, 0, time.UTC)

// CompliantDraft passes every default compliance rule: no forbidden
// dashes, four FAQs, six citations, only allowed links.
const CompliantDraft = `# SBA Loans Explained

## What SBA Loans Are

SBA loans are partially guaranteed by the government (Source 1). [SBA](https://www.sba.gov/funding-programs/loans)

## Who Qualifies

Most for-profit small businesses qualify (Source 1). Lenders review credit history (Source 2). [Lender guide](https://www.example.gov/lenders)

## Loan Types

The 7(a) program is the most common (Source 1). The 504 program funds fixed assets (Source 2).

## Next Steps

Talk to a lender about terms (Source 2). Visit https://bitxcapital.com to learn more.

## FAQs

**Q1: What is an SBA loan?**
A: A bank loan partially guaranteed by the SBA.

**Q2: Who can apply?**
A: Most for-profit small businesses.

**Q3: How long does approval take?**
A: Usually several weeks.

**Q4: Is collateral required?**
A: Often, depending on the amount.
`

// Sources are the brief source URLs CompliantDraft links to.
var Sources = []string{
	"https://www.sba.gov/funding-programs/loans",
	"https://www.example.gov/lenders",
}
