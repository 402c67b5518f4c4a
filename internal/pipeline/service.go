// Package pipeline wires the scoring stages into the transaction
// processing service: behavioral scoring, signature matching, risk
// classification, advisory flags and the analyst feedback loop.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/flags"
	"github.com/opensource-finance/fraudlens/internal/knowledge"
	"github.com/opensource-finance/fraudlens/internal/scoring"
	"github.com/opensource-finance/fraudlens/internal/signature"
	"github.com/opensource-finance/fraudlens/internal/stats"
	"github.com/opensource-finance/fraudlens/internal/velocity"
)

// cacheTTL is how long scored transactions stay in the hot-read cache.
const cacheTTL = 15 * time.Minute

// Service is the transaction scoring pipeline.
type Service struct {
	repo     domain.Repository
	cache    domain.Cache
	eventBus domain.EventBus

	tracker  *stats.Tracker
	velocity *velocity.Tracker
	matcher  *signature.Matcher
	kb       *knowledge.Base
	flags    *flags.Engine
	analyzer domain.Analyzer

	logger *slog.Logger
}

// Options holds the pipeline's collaborators. Analyzer is optional;
// everything else is required.
type Options struct {
	Repository domain.Repository
	Cache      domain.Cache
	EventBus   domain.EventBus
	Tracker    *stats.Tracker
	Velocity   *velocity.Tracker
	Matcher    *signature.Matcher
	Knowledge  *knowledge.Base
	Flags      *flags.Engine
	Analyzer   domain.Analyzer
	Logger     *slog.Logger
}

// NewService creates the scoring pipeline.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:     opts.Repository,
		cache:    opts.Cache,
		eventBus: opts.EventBus,
		tracker:  opts.Tracker,
		velocity: opts.Velocity,
		matcher:  opts.Matcher,
		kb:       opts.Knowledge,
		flags:    opts.Flags,
		analyzer: opts.Analyzer,
		logger:   logger,
	}
}

// ScoreTransaction runs a raw transaction through the full scoring
// pipeline and returns the scored transaction. The behavioral score is
// computed against the user's baseline as it stood before this
// transaction; the amount joins the history only after scoring.
func (s *Service) ScoreTransaction(ctx context.Context, raw domain.RawTransaction) (*domain.Transaction, error) {
	if err := validate(raw); err != nil {
		return nil, err
	}

	if raw.ID == "" {
		raw.ID = uuid.New().String()
	}
	if raw.Timestamp.IsZero() {
		raw.Timestamp = time.Now().UTC()
	}

	profile := s.tracker.Profile(raw.UserID)
	zScore := scoring.ZScore(raw.Amount, profile)

	velocityScore := s.velocity.Observe(ctx, raw.UserID)

	match := s.matcher.Match(raw.Merchant, raw.Narrative, s.kb.Snapshot())

	riskLevel := scoring.Classify(zScore, match.Score)
	status := scoring.InitialStatus(riskLevel)

	tx := &domain.Transaction{
		ID:                  raw.ID,
		UserID:              raw.UserID,
		Timestamp:           raw.Timestamp,
		Amount:              raw.Amount,
		Merchant:            raw.Merchant,
		MerchantID:          raw.MerchantID,
		Narrative:           raw.Narrative,
		Location:            raw.Location,
		IP:                  raw.IP,
		ZScore:              zScore,
		VelocityScore:       velocityScore,
		SignatureMatchScore: match.Score,
		RiskLevel:           riskLevel,
		Status:              status,
		CreatedAt:           time.Now().UTC(),
	}
	if match.Case != nil {
		tx.MatchedCaseID = match.Case.ID
	}

	// Advisory flags can promote an allowed low-risk transaction to
	// FLAGGED; they never touch the risk level.
	if s.flags != nil {
		for _, fired := range s.flags.Evaluate(ctx, tx) {
			tx.FlagReasons = append(tx.FlagReasons, fired.Reason)
		}
		if len(tx.FlagReasons) > 0 && tx.Status == domain.StatusAllowed {
			tx.Status = domain.StatusFlagged
		}
	}

	// The amount joins the baseline only after scoring, so a spike is
	// judged against history that does not yet contain it.
	s.tracker.Record(raw.UserID, raw.Amount)

	// Persistence failures degrade to log-and-continue: the caller still
	// gets the scored transaction.
	if err := s.repo.SaveTransaction(ctx, tx); err != nil {
		s.logger.Error("failed to persist transaction",
			"transaction_id", tx.ID,
			"error", err,
		)
	}
	if err := s.cache.SetTransaction(ctx, tx.ID, tx, cacheTTL); err != nil {
		s.logger.Warn("failed to cache transaction",
			"transaction_id", tx.ID,
			"error", err,
		)
	}

	s.publish(ctx, domain.TopicTransactionScored, tx)
	if riskLevel == domain.RiskCritical {
		s.publish(ctx, domain.TopicAlert, tx)
	}

	s.logger.Info("transaction scored",
		"transaction_id", tx.ID,
		"user_id", tx.UserID,
		"amount", tx.Amount,
		"z_score", tx.ZScore,
		"signature_score", tx.SignatureMatchScore,
		"risk_level", tx.RiskLevel,
		"status", tx.Status,
	)

	// Non-low transactions get deep analysis in the background. The
	// result only ever lands in the analysis column.
	if s.analyzer != nil && riskLevel != domain.RiskLow {
		go s.runAnalysis(tx)
	}

	return tx, nil
}

// GetTransaction reads a transaction, cache first.
func (s *Service) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	if tx, err := s.cache.GetTransaction(ctx, txID); err == nil && tx != nil {
		return tx, nil
	}
	return s.repo.GetTransaction(ctx, txID)
}

// RecordVerdict applies an analyst decision to a transaction. A block
// verdict closes the feedback loop: the transaction's merchant and
// narrative become a new confirmed fraud case, so future transactions
// with the same signature match it. Deliberately not idempotent - a
// second block on the same transaction seeds another case.
func (s *Service) RecordVerdict(ctx context.Context, txID string, verdict domain.Verdict, notes string) (*domain.Transaction, error) {
	var status domain.Status
	switch verdict {
	case domain.VerdictBlock:
		status = domain.StatusBlocked
	case domain.VerdictAllow:
		status = domain.StatusAllowed
	default:
		return nil, fmt.Errorf("%w: unknown verdict %q", domain.ErrInvalidInput, verdict)
	}

	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTransactionStatus(ctx, txID, status); err != nil {
		return nil, err
	}
	tx.Status = status

	// Keep the hot-read cache in step with the new status.
	if err := s.cache.SetTransaction(ctx, txID, tx, cacheTTL); err != nil {
		s.logger.Warn("failed to refresh cached transaction",
			"transaction_id", txID,
			"error", err,
		)
	}

	s.publish(ctx, domain.TopicVerdict, tx)

	if verdict == domain.VerdictBlock {
		s.learnFromBlock(ctx, tx, notes)
	}

	s.logger.Info("verdict recorded",
		"transaction_id", txID,
		"verdict", verdict,
		"status", status,
	)

	return tx, nil
}

// learnFromBlock turns a blocked transaction into a knowledge base case.
func (s *Service) learnFromBlock(ctx context.Context, tx *domain.Transaction, notes string) {
	annotation := notes
	if annotation == "" && tx.Analysis != nil {
		annotation = tx.Analysis.Reasoning
	}
	if annotation == "" {
		annotation = "Manual block"
	}

	c := &domain.FraudCase{
		ID:        uuid.New().String(),
		Merchant:  tx.Merchant,
		Narrative: tx.Narrative,
		Type:      domain.CaseTypeConfirmed,
		Notes:     annotation,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.kb.Add(c); err != nil {
		s.logger.Error("failed to add fraud case to knowledge base",
			"case_id", c.ID,
			"error", err,
		)
		return
	}
	if err := s.repo.SaveFraudCase(ctx, c); err != nil {
		s.logger.Error("failed to persist fraud case",
			"case_id", c.ID,
			"error", err,
		)
	}

	s.publishCase(ctx, c)

	s.logger.Info("fraud case learned from block verdict",
		"case_id", c.ID,
		"transaction_id", tx.ID,
		"merchant", c.Merchant,
	)
}

// ImportCase seeds the knowledge base with an externally supplied case,
// bypassing the verdict flow. Used by the knowledge endpoint.
func (s *Service) ImportCase(ctx context.Context, c *domain.FraudCase) (*domain.FraudCase, error) {
	if c == nil || (c.Merchant == "" && c.Narrative == "") {
		return nil, fmt.Errorf("%w: case needs a merchant or narrative", domain.ErrInvalidInput)
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Type == "" {
		c.Type = domain.CaseTypeConfirmed
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	if err := s.kb.Add(c); err != nil {
		return nil, err
	}
	if err := s.repo.SaveFraudCase(ctx, c); err != nil {
		s.logger.Error("failed to persist imported fraud case",
			"case_id", c.ID,
			"error", err,
		)
	}

	s.publishCase(ctx, c)
	return c, nil
}

// KnowledgeBase exposes the live knowledge base.
func (s *Service) KnowledgeBase() *knowledge.Base {
	return s.kb
}

// UserProfile returns a user's current spending baseline plus the
// transaction count in the active velocity window.
func (s *Service) UserProfile(ctx context.Context, userID string) (domain.UserProfile, int64) {
	return s.tracker.Profile(userID), s.velocity.Count(ctx, userID)
}

// runAnalysis invokes the deep analyzer off the request path. The result
// is attached to the transaction's analysis column; failures degrade to
// "no analysis attached".
func (s *Service) runAnalysis(tx *domain.Transaction) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := s.analyzer.Analyze(ctx, tx, s.kb.Snapshot())
	if err != nil {
		s.logger.Warn("deep analysis failed",
			"transaction_id", tx.ID,
			"error", err,
		)
		return
	}
	if result == nil {
		return
	}

	if err := s.repo.AttachAnalysis(ctx, tx.ID, result); err != nil {
		s.logger.Error("failed to attach analysis",
			"transaction_id", tx.ID,
			"error", err,
		)
		return
	}

	annotated := *tx
	annotated.Analysis = result
	if err := s.cache.SetTransaction(ctx, tx.ID, &annotated, cacheTTL); err != nil {
		s.logger.Warn("failed to refresh cached transaction",
			"transaction_id", tx.ID,
			"error", err,
		)
	}

	s.publish(ctx, domain.TopicAnalysisComplete, &annotated)
}

func (s *Service) publish(ctx context.Context, topic string, tx *domain.Transaction) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return
	}
	if err := s.eventBus.Publish(ctx, topic, payload); err != nil {
		s.logger.Warn("failed to publish event",
			"topic", topic,
			"transaction_id", tx.ID,
			"error", err,
		)
	}
}

func (s *Service) publishCase(ctx context.Context, c *domain.FraudCase) {
	payload, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := s.eventBus.Publish(ctx, domain.TopicCaseAdded, payload); err != nil {
		s.logger.Warn("failed to publish event",
			"topic", domain.TopicCaseAdded,
			"case_id", c.ID,
			"error", err,
		)
	}
}

func validate(raw domain.RawTransaction) error {
	if raw.UserID == "" {
		return fmt.Errorf("%w: userId is required", domain.ErrInvalidInput)
	}
	if raw.Amount < 0 || math.IsNaN(raw.Amount) || math.IsInf(raw.Amount, 0) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidAmount, raw.Amount)
	}
	return nil
}
