package worker

import (
	"context"
	"time"

	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/adapter"
)

const serviceTextAnalysis = "text-analysis"

// TextProcessor runs the enabled analysis operations against the text
// provider and assembles one TextResult.
type TextProcessor struct {
	analysis      adapter.TextAnalysisAdapter
	commitPartial bool
}

func NewTextProcessor(analysis adapter.TextAnalysisAdapter, commitPartial bool) *TextProcessor {
	return &TextProcessor{analysis: analysis, commitPartial: commitPartial}
}

func (p *TextProcessor) Type() model.JobType { return model.JobTypeText }

func (p *TextProcessor) Process(ctx context.Context, e *Execution) (any, error) {
	payload := e.Job().Payload.(*model.TextPayload)
	ops := payload.Operations()
	if err := e.InitProgress(ctx, ops); err != nil {
		return nil, err
	}

	result := &model.TextResult{}
	succeeded := 0
	var lastErr error

	for _, op := range ops {
		if err := e.CheckCancel(ctx); err != nil {
			return nil, err
		}
		if err := e.BeginOp(ctx, op); err != nil {
			return nil, err
		}

		err := p.runOp(ctx, e, op, payload.RawText, result)
		if err != nil {
			if !p.commitPartial || errorAborts(err) {
				return nil, err
			}
			lastErr = err
			e.Logger().Warn().Err(err).Str("operation", op).Msg("operation failed, continuing")
			if ferr := e.FailOp(ctx, op, err); ferr != nil {
				return nil, ferr
			}
			continue
		}
		succeeded++
		if err := e.CompleteOp(ctx, op); err != nil {
			return nil, err
		}
	}

	if succeeded == 0 && lastErr != nil {
		return nil, lastErr
	}
	return result, nil
}

func (p *TextProcessor) runOp(ctx context.Context, e *Execution, op, text string, result *model.TextResult) error {
	cctx, cancel := e.ProviderCtx(ctx)
	defer cancel()
	start := time.Now()

	switch op {
	case model.OpDetectSentiment:
		res, err := p.analysis.DetectSentiment(cctx, text)
		observeCall(serviceTextAnalysis, op, start, cost(res), err)
		if err != nil {
			return err
		}
		result.Sentiment = res.Sentiment
		result.SentimentScore = res.Score
		result.TotalCostMicros += res.CostMicros
		e.TrackCost(ctx, serviceTextAnalysis, op, res.CostMicros)
	case model.OpDetectEntities:
		res, err := p.analysis.DetectEntities(cctx, text)
		observeCall(serviceTextAnalysis, op, start, cost(res), err)
		if err != nil {
			return err
		}
		result.Entities = res.Entities
		result.TotalCostMicros += res.CostMicros
		e.TrackCost(ctx, serviceTextAnalysis, op, res.CostMicros)
	case model.OpDetectKeyPhrases:
		res, err := p.analysis.DetectKeyPhrases(cctx, text)
		observeCall(serviceTextAnalysis, op, start, cost(res), err)
		if err != nil {
			return err
		}
		result.KeyPhrases = res.KeyPhrases
		result.TotalCostMicros += res.CostMicros
		e.TrackCost(ctx, serviceTextAnalysis, op, res.CostMicros)
	case model.OpDetectLanguage:
		res, err := p.analysis.DetectLanguage(cctx, text)
		observeCall(serviceTextAnalysis, op, start, cost(res), err)
		if err != nil {
			return err
		}
		result.Language = res.Language
		result.TotalCostMicros += res.CostMicros
		e.TrackCost(ctx, serviceTextAnalysis, op, res.CostMicros)
	}
	return nil
}
