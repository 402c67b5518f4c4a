package domain

import "context"

// Analyzer is the external deep-analysis collaborator (a generative-AI
// service in production). It is invoked asynchronously with a snapshot of
// the knowledge base; its result is advisory and is attached to the
// transaction for audit. A failure degrades to "no analysis attached" and
// never alters scores or status.
type Analyzer interface {
	Analyze(ctx context.Context, tx *Transaction, knowledgeBase []*FraudCase) (*AnalysisResult, error)
}

// AnalyzerFunc adapts a plain function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, tx *Transaction, knowledgeBase []*FraudCase) (*AnalysisResult, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, tx *Transaction, knowledgeBase []*FraudCase) (*AnalysisResult, error) {
	return f(ctx, tx, knowledgeBase)
}
