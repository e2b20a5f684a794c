package classify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/process"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

// Classifier runs identities through the oracle batch by batch.
type Classifier struct {
	oracle    Oracle
	batchSize int
	maxTokens int
	counter   *process.TokenCounter
	retry     RetryPolicy
	risk      bool
	log       *logrus.Entry
}

// NewClassifier creates a classifier. oracle is normally the process-wide
// Dispatcher. counter may be nil.
func NewClassifier(oracle Oracle, cfg config.OracleConfig, counter *process.TokenCounter, log *logrus.Entry) *Classifier {
	return &Classifier{
		oracle:    oracle,
		batchSize: cfg.BatchSize,
		maxTokens: cfg.MaxPromptTokens,
		counter:   counter,
		retry:     RetryPolicy{MaxRetries: config.IntOr(cfg.MaxRetries, config.DefaultOracleRetries), Base: cfg.BackoffBase},
		risk:      config.BoolOr(cfg.RiskAssessment, true),
		log:       log.WithField("component", "classifier"),
	}
}

// Results maps identity keys to oracle verdicts.
type Results map[string]models.ClassificationResult

// Classify sends items to the oracle in batches, calling progress before each
// batch. Batches run one after another; the first batch that fails after
// retries fails the whole classification.
func (c *Classifier) Classify(ctx context.Context, items []Item, progress func(batch, total int)) (Results, error) {
	batches := BuildBatches(items, c.batchSize, c.maxTokens, c.counter)
	results := make(Results, len(items))
	for _, b := range batches {
		if progress != nil {
			progress(b.Index+1, len(batches))
		}
		batchLog := c.log.WithFields(logrus.Fields{"batch": b.Index + 1, "of": len(batches), "items": b.Len()})
		var parsed []models.ClassificationResult
		err := c.retry.do(ctx, batchLog, func() error {
			text, err := c.oracle.Complete(ctx, b.Prompt())
			if err != nil {
				return err
			}
			parsed, err = parseBatchResponse(text, b)
			return err
		})
		if err != nil {
			batchLog.WithField("error_type", utils.CategorizeError(err)).Error("Batch classification failed")
			return nil, fmt.Errorf("%w: batch %d/%d: %w", utils.ErrClassification, b.Index+1, len(batches), err)
		}
		for _, r := range parsed {
			results[r.Key] = r
		}
	}
	return results, nil
}

// AssessRisk asks the oracle for a GDPR/CCPA assessment of the issue counts
// and enforces the deterministic floor. Any oracle failure falls back to the
// deterministic assessment.
func (c *Classifier) AssessRisk(ctx context.Context, pre, post int) models.ComplianceSummary {
	if !c.risk {
		return DeterministicRisk(pre, post)
	}
	var summary models.ComplianceSummary
	err := c.retry.do(ctx, c.log, func() error {
		text, err := c.oracle.Complete(ctx, riskPrompt(pre, post))
		if err != nil {
			return err
		}
		summary, err = parseRiskResponse(text)
		return err
	})
	if err != nil {
		c.log.WithField("error_type", utils.CategorizeError(err)).Warnf("Risk assessment failed, using deterministic assessment: %v", err)
		return DeterministicRisk(pre, post)
	}
	return applyFloor(summary, pre, post)
}
