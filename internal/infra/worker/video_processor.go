package worker

import (
	"context"
	"errors"
	"time"

	"media-analysis-pipeline/internal/domain"
	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/adapter"
)

const serviceTranscribe = "transcribe"

// VideoProcessor drives the asynchronous transcription flow plus optional
// label detection. During the long poll loop it heartbeats the lease so
// stall recovery leaves the job alone.
type VideoProcessor struct {
	transcription adapter.TranscriptionAdapter
	vision        adapter.VisionAdapter

	pollInterval  time.Duration
	commitPartial bool
}

func NewVideoProcessor(transcription adapter.TranscriptionAdapter, vision adapter.VisionAdapter, pollInterval time.Duration, commitPartial bool) *VideoProcessor {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &VideoProcessor{
		transcription: transcription,
		vision:        vision,
		pollInterval:  pollInterval,
		commitPartial: commitPartial,
	}
}

func (p *VideoProcessor) Type() model.JobType { return model.JobTypeVideo }

func (p *VideoProcessor) Process(ctx context.Context, e *Execution) (any, error) {
	payload := e.Job().Payload.(*model.VideoPayload)
	ops := payload.Operations()
	if err := e.InitProgress(ctx, ops); err != nil {
		return nil, err
	}

	result := &model.VideoResult{}
	succeeded := 0
	var lastErr error

	for _, op := range ops {
		if err := e.CheckCancel(ctx); err != nil {
			return nil, err
		}
		if err := e.BeginOp(ctx, op); err != nil {
			return nil, err
		}

		var err error
		switch op {
		case model.OpTranscribe:
			err = p.transcribe(ctx, e, payload, result)
		case model.OpDetectLabels:
			err = p.detectLabels(ctx, e, payload, result)
		}
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

// errorAborts reports errors that must stop the job even under the
// partial-commit policy: a lost lease or an observed cancel.
func errorAborts(err error) bool {
	return errors.Is(err, domain.ErrLeaseLost) || errors.Is(err, domain.ErrJobCancelled)
}

func (p *VideoProcessor) transcribe(ctx context.Context, e *Execution, payload *model.VideoPayload, result *model.VideoResult) error {
	sctx, cancel := e.ProviderCtx(ctx)
	start := time.Now()
	handle, err := p.transcription.Start(sctx, adapter.TranscriptionInput{
		SourceURI:       payload.SourceURI,
		LanguageCode:    payload.LanguageCode,
		DurationSeconds: payload.DurationSeconds,
	})
	cancel()
	if err != nil {
		observeCall(serviceTranscribe, "start", start, 0, err)
		return err
	}
	observeCall(serviceTranscribe, "start", start, 0, nil)
	e.Logger().Debug().Str("handle", handle).Msg("transcription started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		// Keep the lease alive across the provider's processing time.
		if err := e.Heartbeat(ctx); err != nil {
			return err
		}
		if err := e.CheckCancel(ctx); err != nil {
			return err
		}

		pctx, cancel := e.ProviderCtx(ctx)
		pollStart := time.Now()
		job, err := p.transcription.Poll(pctx, handle)
		cancel()
		if err != nil {
			observeCall(serviceTranscribe, "poll", pollStart, 0, err)
			return err
		}
		observeCall(serviceTranscribe, "poll", pollStart, 0, nil)

		switch job.State {
		case adapter.TranscriptionRunning:
			e.Job().Progress.Message = "transcribing"
			if err := e.Flush(ctx); err != nil {
				return err
			}
		case adapter.TranscriptionFailed:
			return domain.Transient("transcription failed: %s", job.Error)
		case adapter.TranscriptionCompleted:
			result.Transcript = job.Transcript
			result.Segments = job.Segments
			result.Language = job.Language
			result.TotalCostMicros += job.CostMicros
			e.TrackCost(ctx, serviceTranscribe, model.OpTranscribe, job.CostMicros)
			return nil
		default:
			return domain.Transient("transcription returned unknown state %q", job.State)
		}
	}
}

func (p *VideoProcessor) detectLabels(ctx context.Context, e *Execution, payload *model.VideoPayload, result *model.VideoResult) error {
	cctx, cancel := e.ProviderCtx(ctx)
	defer cancel()
	start := time.Now()
	res, err := p.vision.DetectLabels(cctx, payload.SourceURI)
	observeCall(serviceVision, model.OpDetectLabels, start, cost(res), err)
	if err != nil {
		return err
	}
	result.Labels = res.Labels
	result.TotalCostMicros += res.CostMicros
	e.TrackCost(ctx, serviceVision, model.OpDetectLabels, res.CostMicros)
	return nil
}
