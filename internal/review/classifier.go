package review

import (
	"context"

	"go.uber.org/zap"

	"github.com/seanmckee-pacmet/contract-review-2/internal/metrics"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/logger"
)

const classifierSystemPrompt = `You are a document classifier for contract review.
Classify the document excerpt into exactly one of these types:
- "Purchase Order": an order for goods or services, typically with line items, part numbers, quantities, and referenced quality clauses.
- "Quality Document": a quality manual, quality clause catalog, or supplier quality requirements document.
- "Terms and Conditions": general legal terms governing purchases.
- "Unknown": none of the above.

Respond with the document type only.`

// Classifier assigns a DocumentType from a bounded prefix of the document
// text. Classification never fails the pipeline; any error or out-of-set
// label degrades to Unknown.
type Classifier struct {
	completer StructuredCompleter
	sampleLen int
}

func NewClassifier(completer StructuredCompleter, sampleLen int) *Classifier {
	if sampleLen <= 0 {
		sampleLen = 2000
	}
	return &Classifier{completer: completer, sampleLen: sampleLen}
}

type documentTypeResponse struct {
	DocumentType string `json:"document_type"`
}

func (c *Classifier) Classify(ctx context.Context, path, text string) DocumentType {
	sample := truncateRunes(text, c.sampleLen)

	var resp documentTypeResponse
	err := c.completer.CompleteStructured(ctx, "classify_document", classifierSystemPrompt, sample, &resp)
	if err != nil {
		logger.Warn("Document classification failed, treating as Unknown",
			zap.String("path", path),
			zap.Error(err),
		)
		metrics.DocumentsProcessed.WithLabelValues(string(DocTypeUnknown)).Inc()
		return DocTypeUnknown
	}

	docType := ParseDocumentType(resp.DocumentType)
	if docType == DocTypeUnknown && resp.DocumentType != string(DocTypeUnknown) {
		logger.Warn("Classifier returned out-of-set label",
			zap.String("path", path),
			zap.String("label", resp.DocumentType),
		)
	}

	logger.Info("Document classified",
		zap.String("path", path),
		zap.String("document_type", string(docType)),
	)
	metrics.DocumentsProcessed.WithLabelValues(string(docType)).Inc()
	return docType
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
