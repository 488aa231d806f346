package worker

import (
	"context"
	"time"

	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/adapter"
	"media-analysis-pipeline/internal/infra/metrics"
)

const serviceVision = "vision"

func observeCall(service, operation string, start time.Time, costMicros int64, err error) {
	metrics.ObserveProviderCall(service, operation, costMicros, int(time.Since(start).Milliseconds()), err == nil)
}

// ImageProcessor runs the enabled detection operations sequentially against
// the vision provider and assembles one ImageResult.
type ImageProcessor struct {
	vision     adapter.VisionAdapter
	moderation adapter.ModerationAdapter

	// commitPartial keeps the job going past a failed operation and completes
	// it with warnings, as long as at least one operation succeeded.
	commitPartial bool
}

func NewImageProcessor(vision adapter.VisionAdapter, moderation adapter.ModerationAdapter, commitPartial bool) *ImageProcessor {
	return &ImageProcessor{vision: vision, moderation: moderation, commitPartial: commitPartial}
}

func (p *ImageProcessor) Type() model.JobType { return model.JobTypeImage }

func (p *ImageProcessor) Process(ctx context.Context, e *Execution) (any, error) {
	payload := e.Job().Payload.(*model.ImagePayload)
	ops := payload.Operations()
	if err := e.InitProgress(ctx, ops); err != nil {
		return nil, err
	}

	result := &model.ImageResult{}
	succeeded := 0
	var lastErr error

	for _, op := range ops {
		if err := e.CheckCancel(ctx); err != nil {
			return nil, err
		}
		if err := e.BeginOp(ctx, op); err != nil {
			return nil, err
		}

		err := p.runOp(ctx, e, op, payload.SourceURI, result)
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

func (p *ImageProcessor) runOp(ctx context.Context, e *Execution, op, sourceURI string, result *model.ImageResult) error {
	cctx, cancel := e.ProviderCtx(ctx)
	defer cancel()
	start := time.Now()

	switch op {
	case model.OpDetectLabels:
		res, err := p.vision.DetectLabels(cctx, sourceURI)
		observeCall(serviceVision, op, start, cost(res), err)
		if err != nil {
			return err
		}
		result.Labels = res.Labels
		result.TotalCostMicros += res.CostMicros
		e.TrackCost(ctx, serviceVision, op, res.CostMicros)
	case model.OpDetectText:
		res, err := p.vision.DetectText(cctx, sourceURI)
		observeCall(serviceVision, op, start, cost(res), err)
		if err != nil {
			return err
		}
		result.Text = res.Text
		result.TotalCostMicros += res.CostMicros
		e.TrackCost(ctx, serviceVision, op, res.CostMicros)
	case model.OpDetectFaces:
		res, err := p.vision.DetectFaces(cctx, sourceURI)
		observeCall(serviceVision, op, start, cost(res), err)
		if err != nil {
			return err
		}
		result.Faces = res.Faces
		result.TotalCostMicros += res.CostMicros
		e.TrackCost(ctx, serviceVision, op, res.CostMicros)
	case model.OpDetectModeration:
		res, err := p.moderation.Moderate(cctx, sourceURI)
		observeCall(serviceVision, op, start, cost(res), err)
		if err != nil {
			return err
		}
		v := res.Verdict
		result.Moderation = &v
		result.TotalCostMicros += res.CostMicros
		e.TrackCost(ctx, serviceVision, op, res.CostMicros)
	}
	return nil
}

// cost pulls CostMicros off any provider result, nil-safe for error paths.
func cost(res any) int64 {
	switch r := res.(type) {
	case *adapter.LabelsResult:
		if r != nil {
			return r.CostMicros
		}
	case *adapter.TextDetectionResult:
		if r != nil {
			return r.CostMicros
		}
	case *adapter.FacesResult:
		if r != nil {
			return r.CostMicros
		}
	case *adapter.ModerationResult:
		if r != nil {
			return r.CostMicros
		}
	case *adapter.SentimentResult:
		if r != nil {
			return r.CostMicros
		}
	case *adapter.EntitiesResult:
		if r != nil {
			return r.CostMicros
		}
	case *adapter.KeyPhrasesResult:
		if r != nil {
			return r.CostMicros
		}
	case *adapter.LanguageResult:
		if r != nil {
			return r.CostMicros
		}
	case *adapter.EmbeddingVector:
		if r != nil {
			return r.CostMicros
		}
	}
	return 0
}
