package review

import "context"

// DocumentType is the closed label set the classifier maps documents onto.
type DocumentType string

const (
	DocTypePurchaseOrder DocumentType = "Purchase Order"
	DocTypeQuality       DocumentType = "Quality Document"
	DocTypeTerms         DocumentType = "Terms and Conditions"
	DocTypeUnknown       DocumentType = "Unknown"
)

// ParseDocumentType coerces arbitrary model output to the label set; anything
// outside it becomes Unknown.
func ParseDocumentType(s string) DocumentType {
	switch DocumentType(s) {
	case DocTypePurchaseOrder, DocTypeQuality, DocTypeTerms:
		return DocumentType(s)
	default:
		return DocTypeUnknown
	}
}

// Chunk is a bounded span of one document's text plus the header trail and
// document type it was indexed under.
type Chunk struct {
	Content      string
	HeaderPath   string
	DocumentType DocumentType
	SourcePath   string
	Index        int
}

// POAnalysis captures the clause-invocation scope a purchase order declares.
// Clause ranges arrive pre-expanded and OCR-corrected. Immutable once
// produced.
type POAnalysis struct {
	AllInvoked        bool     `json:"all_invoked"`
	ClauseIdentifiers []string `json:"clause_identifiers"`
	Requirements      []string `json:"requirements"`
}

// Quote is one piece of supporting evidence for an invoked clause.
type Quote struct {
	Clause       string `json:"clause"`
	Quote        string `json:"quote"`
	DocumentType string `json:"document_type"`
}

// ClauseAnalysis is the decision for one notable clause. Quotes are non-empty
// only when Invoked is "Yes".
type ClauseAnalysis struct {
	Clause    string  `json:"clause"`
	Invoked   string  `json:"invoked"`
	Reasoning string  `json:"reasoning,omitempty"`
	Quotes    []Quote `json:"quotes"`
}

// Failure records one isolated per-unit failure (a document, an embedding
// batch, a clause) that did not abort the job.
type Failure struct {
	Stage   string `json:"stage"`
	Subject string `json:"subject"`
	Error   string `json:"error"`
}

// Failure stages.
const (
	StageParse      = "parse"
	StageEmbedding  = "embedding"
	StagePOAnalysis = "po_analysis"
	StageUpsert     = "upsert"
	StageClause     = "clause_analysis"
)

// ReviewResult is the aggregate outcome of one company review job. Only
// clauses decided "Yes" are retained in ClauseAnalysis; Failures reports
// partial completion explicitly instead of leaving it to the logs.
type ReviewResult struct {
	CompanyName    string                  `json:"company_name"`
	DocumentTypes  map[string]DocumentType `json:"document_types"`
	POAnalysis     *POAnalysis             `json:"po_analysis"`
	ClauseAnalysis []ClauseAnalysis        `json:"clause_analysis"`
	Failures       []Failure               `json:"failures,omitempty"`
}

// StructuredCompleter issues one schema-constrained LLM call and decodes the
// response into out.
type StructuredCompleter interface {
	CompleteStructured(ctx context.Context, task, systemPrompt, userPrompt string, out any) error
}

// Embedder produces embedding vectors. EmbedTexts may return fewer vectors
// than inputs when a batch is dropped; callers re-align by zipping to the
// shorter list.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, int, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
