package review

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/seanmckee-pacmet/contract-review-2/pkg/logger"
)

const poSystemPrompt = `You are a purchase order analyst. Extract the quality clause invocation scope from the purchase order text.

Determine:
1. all_invoked: true only if the purchase order states that ALL quality clauses or the entire quality manual applies. If specific clauses are listed, this is false.
2. clause_identifiers: every individually referenced quality clause identifier. The text comes from OCR, so identifiers may be garbled; reconstruct the intended identifiers and expand every range into its individual members.
3. requirements: any other explicitly stated quality or compliance requirements that are not clause references.

Range expansion and OCR repair examples:
- "WOQRI-WQRI17" means WQR1 through WQR17: ["WQR1", "WQR2", "WQR3", "WQR4", "WQR5", "WQR6", "WQR7", "WQR8", "WQR9", "WQR10", "WQR11", "WQR12", "WQR13", "WQR14", "WQR15", "WQR16", "WQR17"]
- "WQR39, WRQ42-44" means: ["WQR39", "WQR42", "WQR43", "WQR44"]
- "Clause 1, 2, 4-6" means: ["Clause 1", "Clause 2", "Clause 4", "Clause 5", "Clause 6"]
- "Item 1A-B3" style alphanumeric ranges: expand conservatively, listing only the members you are confident of, and keep the original reference as-is if the range is ambiguous.

Never invent identifiers that have no basis in the text.`

// POAnalyzer extracts the invocation scope from purchase order text. Unlike
// classification, a failed analysis is a hard error: the scope gates every
// downstream clause decision, so the job cannot proceed without it.
type POAnalyzer struct {
	completer StructuredCompleter
	sampleLen int
}

func NewPOAnalyzer(completer StructuredCompleter, sampleLen int) *POAnalyzer {
	if sampleLen <= 0 {
		sampleLen = 4000
	}
	return &POAnalyzer{completer: completer, sampleLen: sampleLen}
}

func (a *POAnalyzer) Analyze(ctx context.Context, path, text string) (*POAnalysis, error) {
	sample := truncateRunes(text, a.sampleLen)

	var analysis POAnalysis
	err := a.completer.CompleteStructured(ctx, "analyze_purchase_order", poSystemPrompt, sample, &analysis)
	if err != nil {
		return nil, fmt.Errorf("purchase order analysis failed for %s: %w", path, err)
	}

	// The model is asked to expand ranges itself; this pass catches any it
	// left compacted and dedupes the result.
	analysis.ClauseIdentifiers = ExpandClauseIdentifiers(analysis.ClauseIdentifiers)

	logger.Info("Purchase order analyzed",
		zap.String("path", path),
		zap.Bool("all_invoked", analysis.AllInvoked),
		zap.Int("clause_identifiers", len(analysis.ClauseIdentifiers)),
		zap.Int("requirements", len(analysis.Requirements)),
	)
	return &analysis, nil
}
