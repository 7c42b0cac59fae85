// Package colorize coordinates the lifecycle of colorization jobs: creation,
// the detached background driver that talks to the external provider, and
// status/result persistence.
package colorize

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"leopacolor/internal/catalog"
	"leopacolor/internal/domain"
	"leopacolor/internal/infra"
	"leopacolor/internal/providers/replicate"
	"leopacolor/internal/storage"
)

const (
	defaultPollInterval    = 5 * time.Second
	defaultMaxPollAttempts = 60

	defaultPrompt = "leopard gecko, detailed, realistic colors, natural lighting"
)

// Provider is the narrow surface of the external image-generation API the
// coordinator drives jobs through.
type Provider interface {
	Submit(ctx context.Context, infraredPath, referencePath, prompt string) (string, error)
	Poll(ctx context.Context, predictionID string) (replicate.Prediction, error)
	Download(ctx context.Context, resultURL string) ([]byte, error)
}

// Options tune the background driver's poll loop.
type Options struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	Prompt          string
}

// Coordinator creates jobs, persists every state transition and runs one
// detached driver per job.
type Coordinator struct {
	jobs     *storage.RecordStore[domain.ColorizeJob]
	catalog  *catalog.Catalog
	provider Provider
	registry *Registry
	logger   infra.Logger

	pollInterval time.Duration
	maxAttempts  int
	prompt       string
}

// NewCoordinator wires a Coordinator; zero option fields fall back to the
// 5s × 60 poll budget.
func NewCoordinator(jobs *storage.RecordStore[domain.ColorizeJob], cat *catalog.Catalog, provider Provider, logger infra.Logger, opts Options) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.MaxPollAttempts <= 0 {
		opts.MaxPollAttempts = defaultMaxPollAttempts
	}
	if opts.Prompt == "" {
		opts.Prompt = defaultPrompt
	}
	return &Coordinator{
		jobs:         jobs,
		catalog:      cat,
		provider:     provider,
		registry:     NewRegistry(),
		logger:       logger,
		pollInterval: opts.PollInterval,
		maxAttempts:  opts.MaxPollAttempts,
		prompt:       opts.Prompt,
	}
}

// Registry exposes the driver handle registry, used at shutdown to wait for
// in-flight jobs.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// CreateJob persists a new pending job and returns it. Callers are expected
// to have validated that every reference id exists.
func (c *Coordinator) CreateJob(ctx context.Context, infraredURL string, referenceIDs []string) (domain.ColorizeJob, error) {
	if len(referenceIDs) == 0 {
		return domain.ColorizeJob{}, errors.New("colorize: at least one reference id is required")
	}
	if err := ctx.Err(); err != nil {
		return domain.ColorizeJob{}, err
	}

	job := domain.ColorizeJob{
		ID:               uuid.NewString(),
		Status:           domain.JobStatusPending,
		CreatedAt:        time.Now().UTC(),
		InfraredImageURL: infraredURL,
		ReferenceIDs:     append([]string(nil), referenceIDs...),
	}

	jobs, err := c.jobs.Load()
	if err != nil {
		return domain.ColorizeJob{}, err
	}
	jobs[job.ID] = job
	if err := c.jobs.Save(jobs); err != nil {
		return domain.ColorizeJob{}, err
	}
	return job, nil
}

// GetJob returns the job for id, or domain.ErrNotFound.
func (c *Coordinator) GetJob(ctx context.Context, id string) (domain.ColorizeJob, error) {
	if err := ctx.Err(); err != nil {
		return domain.ColorizeJob{}, err
	}
	jobs, err := c.jobs.Load()
	if err != nil {
		return domain.ColorizeJob{}, err
	}
	job, ok := jobs[id]
	if !ok {
		return domain.ColorizeJob{}, domain.ErrNotFound
	}
	return job, nil
}

// JobUpdate carries the fields UpdateJob merges into a stored job; nil
// fields are left untouched.
type JobUpdate struct {
	Status       *domain.JobStatus
	ResultURL    *string
	ErrorMessage *string
	PredictionID *string
}

// UpdateJob merges the provided fields into the stored record and persists
// it. A status change out of a terminal state is dropped: transitions are
// monotonic and completed/failed are final.
func (c *Coordinator) UpdateJob(ctx context.Context, id string, u JobUpdate) (domain.ColorizeJob, error) {
	if err := ctx.Err(); err != nil {
		return domain.ColorizeJob{}, err
	}
	jobs, err := c.jobs.Load()
	if err != nil {
		return domain.ColorizeJob{}, err
	}
	job, ok := jobs[id]
	if !ok {
		return domain.ColorizeJob{}, domain.ErrNotFound
	}

	if u.Status != nil && !job.Status.Terminal() {
		job.Status = *u.Status
	}
	if u.ResultURL != nil {
		job.ResultURL = *u.ResultURL
	}
	if u.ErrorMessage != nil {
		job.ErrorMessage = *u.ErrorMessage
	}
	if u.PredictionID != nil {
		job.PredictionID = *u.PredictionID
	}

	jobs[id] = job
	if err := c.jobs.Save(jobs); err != nil {
		return domain.ColorizeJob{}, err
	}
	return job, nil
}

// Start launches the background driver for jobID. The caller does not await
// completion; the registry keeps the handle alive until the driver returns.
func (c *Coordinator) Start(jobID string) {
	c.registry.Go(jobID, func() {
		c.run(jobID)
	})
}

// run is the fault barrier around the driver: nothing escapes the goroutine,
// every failure becomes a terminal FAILED transition with a readable message.
func (c *Coordinator) run(jobID string) {
	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("job_id", jobID).Msgf("colorize: driver panic: %v", r)
			c.fail(ctx, jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := c.drive(ctx, jobID); err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("colorize: job failed")
		c.fail(ctx, jobID, err.Error())
	}
}

func (c *Coordinator) drive(ctx context.Context, jobID string) error {
	job, err := c.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.logger.Error().Str("job_id", jobID).Msg("colorize: job not found, aborting driver")
			return nil
		}
		return err
	}

	if _, err := c.UpdateJob(ctx, jobID, JobUpdate{Status: statusPtr(domain.JobStatusProcessing)}); err != nil {
		return err
	}

	// Only the first reference steers the colorization; additional ids are
	// recorded but unused. Documented product limitation.
	refPath, err := c.catalog.ResolveReferenceFile(ctx, job.ReferenceIDs[0])
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.fail(ctx, jobID, "Reference image file not found")
			return nil
		}
		return err
	}

	infraredPath := c.catalog.UploadPath(path.Base(job.InfraredImageURL))

	predictionID, err := c.provider.Submit(ctx, infraredPath, refPath, c.prompt)
	if err != nil {
		return err
	}
	if _, err := c.UpdateJob(ctx, jobID, JobUpdate{PredictionID: &predictionID}); err != nil {
		return err
	}

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		pred, err := c.provider.Poll(ctx, predictionID)
		if err != nil {
			return err
		}

		switch {
		case pred.State == replicate.StateSucceeded && pred.ResultURL != "":
			content, err := c.provider.Download(ctx, pred.ResultURL)
			if err != nil {
				return err
			}
			key, err := c.catalog.SaveResult(ctx, jobID, content, ".png")
			if err != nil {
				return err
			}
			resultURL := "/data/" + key
			_, err = c.UpdateJob(ctx, jobID, JobUpdate{
				Status:    statusPtr(domain.JobStatusCompleted),
				ResultURL: &resultURL,
			})
			return err

		case pred.State == replicate.StateFailed:
			msg := pred.Error
			if msg == "" {
				msg = "Colorization failed"
			}
			c.fail(ctx, jobID, msg)
			return nil

		case pred.State == replicate.StateCanceled:
			c.fail(ctx, jobID, "Colorization was canceled")
			return nil
		}

		time.Sleep(c.pollInterval)
	}

	c.fail(ctx, jobID, "Colorization timed out")
	return nil
}

func (c *Coordinator) fail(ctx context.Context, jobID, message string) {
	_, err := c.UpdateJob(ctx, jobID, JobUpdate{
		Status:       statusPtr(domain.JobStatusFailed),
		ErrorMessage: &message,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("colorize: failed to persist FAILED transition")
	}
}

func statusPtr(s domain.JobStatus) *domain.JobStatus {
	return &s
}
