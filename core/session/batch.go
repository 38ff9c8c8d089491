package session

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/attendance"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/cliff"
)

type Status string

const (
	StatusDetected Status = "detected"
	StatusNoCliff  Status = "no_cliff"
	StatusSkipped  Status = "skipped"
	StatusError    Status = "error"
)

type BatchItem struct {
	SessionID           int               `json:"session_id"`
	Title               string            `json:"title"`
	Status              Status            `json:"status"`
	Reason              string            `json:"reason,omitempty"`
	Confidence          *cliff.Confidence `json:"confidence,omitempty"`
	EffectiveEndMinutes *int              `json:"effective_end_minutes,omitempty"`
	StudentsImpacted    int               `json:"students_impacted"`
}

type BatchSummary struct {
	RunID            string                   `json:"run_id"`
	StartedAt        time.Time                `json:"started_at"`
	FinishedAt       time.Time                `json:"finished_at"`
	Total            int                      `json:"total"`
	Detected         int                      `json:"detected"`
	NoCliff          int                      `json:"no_cliff"`
	Skipped          int                      `json:"skipped"`
	Errors           int                      `json:"errors"`
	ByConfidence     map[cliff.Confidence]int `json:"by_confidence"`
	StudentsImpacted int                      `json:"students_impacted"`
	Items            []BatchItem              `json:"items"`
}

func (s *BatchSummary) add(item BatchItem) {
	s.Total++
	switch item.Status {
	case StatusDetected:
		s.Detected++
		if item.Confidence != nil {
			s.ByConfidence[*item.Confidence]++
		}
		s.StudentsImpacted += item.StudentsImpacted
	case StatusNoCliff:
		s.NoCliff++
	case StatusSkipped:
		s.Skipped++
	case StatusError:
		s.Errors++
	}
	s.Items = append(s.Items, item)
}

// BatchOptions bound the load put on the provider's rate-limited API.
type BatchOptions struct {
	// RequestDelay is the minimum delay between two participant fetches.
	RequestDelay time.Duration
	// MetadataConcurrency is the number of metadata look-ups issued together.
	MetadataConcurrency int
	// MetadataBatchDelay separates two batches of metadata look-ups.
	MetadataBatchDelay time.Duration
}

func BatchOptionsFromConfig(conf core.TelemetryConfig) BatchOptions {
	return BatchOptions{
		RequestDelay:        conf.RequestDelay,
		MetadataConcurrency: conf.MetadataConcurrency,
		MetadataBatchDelay:  conf.MetadataBatchDelay,
	}
}

// Orchestrator runs detection over every eligible session, isolating failures per session.
type Orchestrator struct {
	svc  *Service
	opts BatchOptions
}

func NewOrchestrator(svc *Service, opts BatchOptions) *Orchestrator {
	if opts.MetadataConcurrency < 1 {
		opts.MetadataConcurrency = 1
	}
	return &Orchestrator{svc: svc, opts: opts}
}

type batchJob struct {
	sess      Session
	meetingID string
	linkErr   error

	meeting    attendance.Window
	meetingErr error
}

// RunBatch detects cliffs for all candidate sessions, most recent first.
// One session's failure never aborts the batch; a cancelled context stops it between
// sessions and returns the partial summary along with the context's error.
func (o *Orchestrator) RunBatch(ctx context.Context) (BatchSummary, error) {
	summary := BatchSummary{
		RunID:        uuid.NewString(),
		StartedAt:    nowFunc().UTC(),
		ByConfidence: make(map[cliff.Confidence]int),
		Items:        make([]BatchItem, 0),
	}

	candidates, err := o.svc.repo.QueryDetectionCandidates(ctx)
	if err != nil {
		return summary, errors.Wrap(err, "querying detection candidates")
	}
	jobs := plan(candidates)
	o.svc.logger.Info("cliff detection batch started", core.Fields{"run_id": summary.RunID, "sessions": len(jobs)})

	o.prefetchMetadata(ctx, jobs)

	requests := rate.NewLimiter(every(o.opts.RequestDelay), 1)
	for _, job := range jobs {
		if job.linkErr == nil {
			if err = ctx.Err(); err == nil {
				err = requests.Wait(ctx)
			}
			if err != nil {
				break
			}
		}
		summary.add(o.process(ctx, job))
	}

	summary.FinishedAt = nowFunc().UTC()
	o.svc.logger.Info("cliff detection batch finished", core.Fields{
		"run_id":            summary.RunID,
		"total":             summary.Total,
		"detected":          summary.Detected,
		"no_cliff":          summary.NoCliff,
		"skipped":           summary.Skipped,
		"errors":            summary.Errors,
		"students_impacted": summary.StudentsImpacted,
	})
	if err != nil {
		return summary, errors.Wrap(err, "cliff detection batch interrupted")
	}
	return summary, nil
}

// plan keeps the eligible sessions in a stable most-recent-first order and resolves their meeting ids.
func plan(candidates []Session) []*batchJob {
	jobs := make([]*batchJob, 0, len(candidates))
	for _, sess := range candidates {
		if !sess.Detection.EligibleForBatch() || core.CleanString(sess.MeetingLink) == "" {
			continue
		}
		job := &batchJob{sess: sess}
		job.meetingID, job.linkErr = ResolveMeetingID(sess.MeetingLink)
		jobs = append(jobs, job)
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i].sess, jobs[j].sess
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.After(b.ScheduledAt)
		}
		return a.ID > b.ID
	})
	return jobs
}

// prefetchMetadata looks meeting metadata up in small concurrent batches.
// Failures are kept per job: detection then falls back to participant bounds.
func (o *Orchestrator) prefetchMetadata(ctx context.Context, jobs []*batchJob) {
	pending := make([]*batchJob, 0, len(jobs))
	for _, job := range jobs {
		if job.linkErr == nil {
			pending = append(pending, job)
		}
	}

	size := o.opts.MetadataConcurrency
	batches := rate.NewLimiter(every(o.opts.MetadataBatchDelay), 1)
	for start := 0; start < len(pending); start += size {
		end := start + size
		if end > len(pending) {
			end = len(pending)
		}
		if err := batches.Wait(ctx); err != nil {
			for _, job := range pending[start:] {
				job.meetingErr = err
			}
			return
		}

		g := new(errgroup.Group)
		g.SetLimit(size)
		for _, job := range pending[start:end] {
			job := job
			g.Go(func() error {
				job.meeting, job.meetingErr = o.svc.fetchMetadata(job.meetingID)(ctx)
				return nil
			})
		}
		_ = g.Wait()
	}
}

func (o *Orchestrator) process(ctx context.Context, job *batchJob) BatchItem {
	item := BatchItem{SessionID: job.sess.ID, Title: job.sess.Title}
	if job.linkErr != nil {
		item.Status = StatusSkipped
		item.Reason = job.linkErr.Error()
		return item
	}

	prefetched := func(context.Context) (attendance.Window, error) { return job.meeting, job.meetingErr }
	res, _, err := o.svc.detect(ctx, job.sess, job.meetingID, prefetched)
	switch {
	case errors.Is(err, ErrNoTelemetryData), errors.Is(err, attendance.ErrInvalidWindow):
		item.Status = StatusSkipped
		item.Reason = err.Error()
	case err != nil:
		item.Status = StatusError
		item.Reason = err.Error()
		o.svc.logger.Warn("cliff detection failed", err, core.Fields{"session_id": job.sess.ID})
	case res.Detected:
		item.Status = StatusDetected
		item.Confidence = res.Confidence
		item.EffectiveEndMinutes = res.EffectiveEndMinutes
		item.StudentsImpacted = res.StudentsImpacted
	default:
		item.Status = StatusNoCliff
	}
	return item
}

func every(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}
