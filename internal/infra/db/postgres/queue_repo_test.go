//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"media-analysis-pipeline/internal/domain"
	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/repository"
)

func testBackoff() model.Backoff {
	return model.Backoff{Base: time.Millisecond, Max: 50 * time.Millisecond}
}

func imagePayload(mediaItemID string) *model.ImagePayload {
	return &model.ImagePayload{
		UserID:       "user-1",
		MediaItemID:  mediaItemID,
		SourceURI:    "s3://bucket/" + mediaItemID + ".jpg",
		DetectLabels: true,
		DetectText:   true,
	}
}

func mustEnqueue(t *testing.T, repo *QueueRepo, jt model.JobType, p model.Payload, opts model.EnqueueOptions) string {
	t.Helper()
	id, err := repo.Enqueue(context.Background(), jt, p, opts)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	return id
}

func TestQueueRepo_EnqueueAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cleanup(t)
	ctx := context.Background()
	repo := NewQueueRepo(testPool, testBackoff())

	id := mustEnqueue(t, repo, model.JobTypeImage, imagePayload("m-1"), model.EnqueueOptions{})

	job, err := repo.GetJob(ctx, model.JobTypeImage, id)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.State != model.JobStatePending {
		t.Errorf("state = %q, want pending", job.State)
	}
	if job.MaxAttempts != 3 {
		t.Errorf("maxAttempts = %d, want default 3", job.MaxAttempts)
	}
	p, ok := job.Payload.(*model.ImagePayload)
	if !ok {
		t.Fatalf("payload decoded as %T, want *model.ImagePayload", job.Payload)
	}
	if p.SourceURI != "s3://bucket/m-1.jpg" || !p.DetectText {
		t.Errorf("payload did not round-trip: %+v", p)
	}

	if _, err := repo.GetJob(ctx, model.JobTypeImage, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetJob(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetJob(ctx, model.JobTypeVideo, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetJob(wrong type) error = %v, want ErrNotFound", err)
	}
}

func TestQueueRepo_EnqueueRejectsInvalidPayload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cleanup(t)
	repo := NewQueueRepo(testPool, testBackoff())

	_, err := repo.Enqueue(context.Background(), model.JobTypeImage,
		&model.ImagePayload{UserID: "u", MediaItemID: "m", SourceURI: "s3://x"}, model.EnqueueOptions{})
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("Enqueue() error = %v, want ErrInvalidPayload", err)
	}
}

func TestQueueRepo_LeaseClaimsAtMostOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cleanup(t)
	ctx := context.Background()
	repo := NewQueueRepo(testPool, testBackoff())

	id := mustEnqueue(t, repo, model.JobTypeImage, imagePayload("m-1"), model.EnqueueOptions{})

	job, err := repo.Lease(ctx, model.JobTypeImage, "w-1", time.Minute)
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}
	if job.ID != id || job.State != model.JobStateActive || job.Attempts != 1 || job.WorkerID != "w-1" {
		t.Errorf("leased job = %+v", job)
	}

	if _, err := repo.Lease(ctx, model.JobTypeImage, "w-2", time.Minute); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Lease() error = %v, want ErrNotFound", err)
	}
}

func TestQueueRepo_LeaseOrderPriorityThenFIFO(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cleanup(t)
	ctx := context.Background()
	repo := NewQueueRepo(testPool, testBackoff())

	low1 := mustEnqueue(t, repo, model.JobTypeImage, imagePayload("m-1"), model.EnqueueOptions{Priority: 0})
	low2 := mustEnqueue(t, repo, model.JobTypeImage, imagePayload("m-2"), model.EnqueueOptions{Priority: 0})
	high := mustEnqueue(t, repo, model.JobTypeImage, imagePayload("m-3"), model.EnqueueOptions{Priority: 5})

	want := []string{high, low1, low2}
	for i, wantID := range want {
		job, err := repo.Lease(ctx, model.JobTypeImage, "w-1", time.Minute)
		if err != nil {
			t.Fatalf("Lease() #%d error = %v", i, err)
		}
		if job.ID != wantID {
			t.Errorf("Lease() #%d = %s, want %s", i, job.ID, wantID)
		}
	}
}

func TestQueueRepo_AckPersistsResult(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cleanup(t)
	ctx := context.Background()
	repo := NewQueueRepo(testPool, testBackoff())

	id := mustEnqueue(t, repo, model.JobTypeImage, imagePayload("m-1"), model.EnqueueOptions{})
	job, err := repo.Lease(ctx, model.JobTypeImage, "w-1", time.Minute)
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}

	progress := model.Progress{Current: 2, Total: 2, Message: "done"}
	progress.SetSubTask(model.OpDetectLabels, model.SubTaskCompleted, "")
	if err := repo.UpdateProgress(ctx, model.JobTypeImage, job.ID, "w-1", progress); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}

	result := &model.ImageResult{
		Labels:          []model.Label{{Name: "cat", Confidence: 0.97}},
		Text:            "hello",
		TotalCostMicros: 200,
	}
	if err := repo.Ack(ctx, model.JobTypeImage, job.ID, "w-1", result); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}

	got, err := repo.GetJob(ctx, model.JobTypeImage, id)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.State != model.JobStateCompleted {
		t.Errorf("state = %q, want completed", got.State)
	}
	if got.FinishedAt.IsZero() {
		t.Error("finishedAt not set")
	}
	if got.Progress.Current != 2 || got.Progress.SubTasks[model.OpDetectLabels].Status != model.SubTaskCompleted {
		t.Errorf("progress did not round-trip: %+v", got.Progress)
	}
	r, ok := got.Result.(*model.ImageResult)
	if !ok {
		t.Fatalf("result decoded as %T, want *model.ImageResult", got.Result)
	}
	if len(r.Labels) != 1 || r.Labels[0].Name != "cat" || r.TotalCostMicros != 200 {
		t.Errorf("result did not round-trip: %+v", r)
	}
}

func TestQueueRepo_WrongWorkerGetsLeaseLost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cleanup(t)
	ctx := context.Background()
	repo := NewQueueRepo(testPool, testBackoff())

	mustEnqueue(t, repo, model.JobTypeImage, imagePayload("m-1"), model.EnqueueOptions{})
	job, err := repo.Lease(ctx, model.JobTypeImage, "owner", time.Minute)
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}

	if err := repo.Ack(ctx, model.JobTypeImage, job.ID, "thief", nil); !errors.Is(err, domain.ErrLeaseLost) {
		t.Errorf("Ack(thief) error = %v, want ErrLeaseLost", err)
	}
	if err := repo.Heartbeat(ctx, model.JobTypeImage, job.ID, "thief", time.Minute); !errors.Is(err, domain.ErrLeaseLost) {
		t.Errorf("Heartbeat(thief) error = %v, want ErrLeaseLost", err)
	}
	if err := repo.UpdateProgress(ctx, model.JobTypeImage, job.ID, "thief", model.Progress{}); !errors.Is(err, domain.ErrLeaseLost) {
		t.Errorf("UpdateProgress(thief) error = %v, want ErrLeaseLost", err)
	}
	if err := repo.Nack(ctx, model.JobTypeImage, job.ID, "thief", "boom", false); !errors.Is(err, domain.ErrLeaseLost) {
		t.Errorf("Nack(thief) error = %v, want ErrLeaseLost", err)
	}
}

func TestQueueRepo_NackRetriesThenDeadLetters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cleanup(t)
	ctx := context.Background()
	repo := NewQueueRepo(testPool, testBackoff())

	id := mustEnqueue(t, repo, model.JobTypeImage, imagePayload("m-1"),
		model.EnqueueOptions{MaxAttempts: 2, Backoff: model.Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond}})

	job, err := repo.Lease(ctx, model.JobTypeImage, "w-1", time.Minute)
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}
	if err := repo.Nack(ctx, model.JobTypeImage, job.ID, "w-1", "boom", false); err != nil {
		t.Fatalf("Nack() error = %v", err)
	}

	got, err := repo.GetJob(ctx, model.JobTypeImage, id)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.State != model.JobStatePending {
		t.Fatalf("state after first nack = %q, want pending", got.State)
	}

	// Backoff is a few milliseconds at most; wait it out and lease again.
	time.Sleep(50 * time.Millisecond)
	job, err = repo.Lease(ctx, model.JobTypeImage, "w-1", time.Minute)
	if err != nil {
		t.Fatalf("second Lease() error = %v", err)
	}
	if job.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", job.Attempts)
	}
	if err := repo.Nack(ctx, model.JobTypeImage, job.ID, "w-1", "boom again", false); err != nil {
		t.Fatalf("second Nack() error = %v", err)
	}

	got, err = repo.GetJob(ctx, model.JobTypeImage, id)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.State != model.JobStateFailed {
		t.Errorf("state = %q, want failed", got.State)
	}
	if got.FailureReason != "boom again" {
		t.Errorf("failureReason = %q", got.FailureReason)
	}
}

func TestQueueRepo_PermanentNackDeadLettersImmediately(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cleanup(t)
	ctx := context.Background()
	repo := NewQueueRepo(testPool, testBackoff())

	id := mustEnqueue(t, repo, model.JobTypeImage, imagePayload("m-1"), model.EnqueueOptions{MaxAttempts: 5})
	job, err := repo.Lease(ctx, model.JobTypeImage, "w-1", time.Minute)
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}
	if err := repo.Nack(ctx, model.JobTypeImage, job.ID, "w-1", "unsupported format", true); err != nil {
		t.Fatalf("Nack() error = %v", err)
	}

	got, err := repo.GetJob(ctx, model.JobTypeImage, id)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.State != model.JobStateFailed || got.Attempts != 1 {
		t.Errorf("job = state %q attempts %d, want failed after 1 attempt", got.State, got.Attempts)
	}
}

func TestQueueRepo_RequestCancelSetsFlag(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cleanup(t)
	ctx := context.Background()
	repo := NewQueueRepo(testPool, testBackoff())

	id := mustEnqueue(t, repo, model.JobTypeImage, imagePayload("m-1"), model.EnqueueOptions{})
	if err := repo.RequestCancel(ctx, model.JobTypeImage, id); err != nil {
		t.Fatalf("RequestCancel() error = %v", err)
	}
	got, err := repo.GetJob(ctx, model.JobTypeImage, id)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if !got.CancelRequested {
		t.Error("cancelRequested not set")
	}

	if err := repo.RequestCancel(ctx, model.JobTypeImage, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("RequestCancel(missing) error = %v, want ErrNotFound", err)
	}
}

func TestQueueRepo_RequeueStalled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cleanup(t)
	ctx := context.Background()
	repo := NewQueueRepo(testPool, testBackoff())

	id := mustEnqueue(t, repo, model.JobTypeImage, imagePayload("m-1"), model.EnqueueOptions{})
	if _, err := repo.Lease(ctx, model.JobTypeImage, "crashed", 50*time.Millisecond); err != nil {
		t.Fatalf("Lease() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	n, err := repo.RequeueStalled(ctx, model.JobTypeImage)
	if err != nil {
		t.Fatalf("RequeueStalled() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("RequeueStalled() = %d, want 1", n)
	}

	got, err := repo.GetJob(ctx, model.JobTypeImage, id)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.State != model.JobStatePending {
		t.Errorf("state = %q, want pending", got.State)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (stall recovery must not double count)", got.Attempts)
	}

	n, err = repo.RequeueStalled(ctx, model.JobTypeImage)
	if err != nil {
		t.Fatalf("second RequeueStalled() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second RequeueStalled() = %d, want 0", n)
	}
}

func TestQueueRepo_PurgeExpiredHonorsRetention(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cleanup(t)
	ctx := context.Background()
	repo := NewQueueRepo(testPool, testBackoff())

	complete := func(mediaItemID string) string {
		id := mustEnqueue(t, repo, model.JobTypeImage, imagePayload(mediaItemID), model.EnqueueOptions{})
		job, err := repo.Lease(ctx, model.JobTypeImage, "w-1", time.Minute)
		if err != nil {
			t.Fatalf("Lease() error = %v", err)
		}
		if err := repo.Ack(ctx, model.JobTypeImage, job.ID, "w-1", &model.ImageResult{}); err != nil {
			t.Fatalf("Ack() error = %v", err)
		}
		return id
	}
	first := complete("m-1")
	time.Sleep(20 * time.Millisecond)
	second := complete("m-2")

	removed, err := repo.PurgeExpired(ctx, model.JobTypeImage, repository.RetentionPolicy{CompletedCount: 1})
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("PurgeExpired() = %d, want 1", removed)
	}
	if _, err := repo.GetJob(ctx, model.JobTypeImage, first); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("oldest completed job should be purged, got error %v", err)
	}
	if _, err := repo.GetJob(ctx, model.JobTypeImage, second); err != nil {
		t.Errorf("newest completed job should survive, got error %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	removed, err = repo.PurgeExpired(ctx, model.JobTypeImage, repository.RetentionPolicy{CompletedAge: time.Millisecond})
	if err != nil {
		t.Fatalf("PurgeExpired(age) error = %v", err)
	}
	if removed != 1 {
		t.Errorf("PurgeExpired(age) = %d, want 1", removed)
	}
}

func TestQueueRepo_Counts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cleanup(t)
	ctx := context.Background()
	repo := NewQueueRepo(testPool, testBackoff())

	mustEnqueue(t, repo, model.JobTypeImage, imagePayload("m-1"), model.EnqueueOptions{})
	mustEnqueue(t, repo, model.JobTypeImage, imagePayload("m-2"), model.EnqueueOptions{})
	job, err := repo.Lease(ctx, model.JobTypeImage, "w-1", time.Minute)
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}
	if err := repo.Ack(ctx, model.JobTypeImage, job.ID, "w-1", &model.ImageResult{}); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}
	mustEnqueue(t, repo, model.JobTypeText,
		&model.TextPayload{UserID: "u", MediaItemID: "m", RawText: "hi", DetectSentiment: true},
		model.EnqueueOptions{})

	c, err := repo.Counts(ctx, model.JobTypeImage)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if c.Pending != 1 || c.Active != 0 || c.Completed != 1 || c.Failed != 0 {
		t.Errorf("counts = %+v", c)
	}
}
