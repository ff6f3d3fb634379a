package ingest

import (
	"context"
	"math"
	"time"

	"gorm.io/gorm"
)

// Store is the job table boundary the worker loop runs against. The gorm
// implementation below is the production one; tests drive the loop with an
// in-memory store carrying the same lease semantics.
type Store interface {
	Claim(ctx context.Context, workerID string) (*Job, error)
	RefreshLease(ctx context.Context, job *Job) error
	AdvanceStage(ctx context.Context, job *Job, stage Stage) error
	MarkReady(ctx context.Context, job *Job) error
	RetryOrFail(ctx context.Context, job *Job, perr *PipelineError) error
	RequeueStalled(ctx context.Context) (int64, error)
	Status(ctx context.Context, jobID uint64) (Status, error)
}

type GormStore struct {
	DB           *gorm.DB
	LeaseSeconds int
	MaxAttempts  int
}

func (s *GormStore) Enqueue(tx *gorm.DB, job *Job) error {
	job.Status = StatusQueued
	job.Stage = StageQueued
	job.AvailableAt = time.Now()
	return tx.Create(job).Error
}

// Claim picks the single oldest eligible row. FOR UPDATE SKIP LOCKED keeps
// concurrent workers off each other's rows without blocking; an expired
// lease makes a processing row eligible again.
func (s *GormStore) Claim(ctx context.Context, workerID string) (*Job, error) {
	var job Job
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Raw(`
with cte as (
  select id
  from processing_jobs
  where (status='queued' and available_at <= now())
     or (status='processing' and lease_expires_at < now())
  order by updated_at asc
  for update skip locked
  limit 1
)
update processing_jobs
set status='processing',
    stage='validating',
    worker_id=?,
    lease_expires_at=now() + make_interval(secs => ?),
    started_at=coalesce(started_at, now()),
    updated_at=now()
where id in (select id from cte)
returning *;
`, workerID, s.LeaseSeconds)

		return q.Scan(&job).Error
	})
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (s *GormStore) RefreshLease(ctx context.Context, job *Job) error {
	return s.DB.WithContext(ctx).Exec(`
update processing_jobs
set lease_expires_at=now() + make_interval(secs => ?)
where id=? and status='processing' and worker_id=?`,
		s.LeaseSeconds, job.ID, deref(job.WorkerID)).Error
}

// AdvanceStage writes the new stage immediately so progress is visible to
// any observer even if this process dies mid-stage, then renews the lease.
func (s *GormStore) AdvanceStage(ctx context.Context, job *Job, stage Stage) error {
	err := s.DB.WithContext(ctx).Exec(`
update processing_jobs
set stage=?, updated_at=now(), lease_expires_at=now() + make_interval(secs => ?)
where id=? and status='processing' and worker_id=?`,
		stage, s.LeaseSeconds, job.ID, deref(job.WorkerID)).Error
	if err != nil {
		return err
	}
	job.Stage = stage
	return nil
}

func (s *GormStore) MarkReady(ctx context.Context, job *Job) error {
	return s.DB.WithContext(ctx).Exec(`
update processing_jobs
set status='ready', stage='ready', finished_at=now(),
    worker_id=null, lease_expires_at=null, updated_at=now()
where id=? and status='processing' and worker_id=?`, job.ID, deref(job.WorkerID)).Error
}

// RetryOrFail records the error and either returns the job to the queue
// with an exponential availability delay or, once the attempt budget is
// spent or the error is not retryable, parks it in terminal failed. The
// worker_id guard makes it a no-op for a worker whose lease expired and
// whose job was since reclaimed.
func (s *GormStore) RetryOrFail(ctx context.Context, job *Job, perr *PipelineError) error {
	if !perr.Retryable {
		return s.DB.WithContext(ctx).Exec(`
update processing_jobs
set status='failed', stage='failed', error_code=?, error_message=?,
    finished_at=now(), worker_id=null, lease_expires_at=null, updated_at=now()
where id=? and status='processing' and worker_id=?`,
			perr.Code, perr.Message, job.ID, deref(job.WorkerID)).Error
	}

	attempts := job.Attempts + 1
	if attempts >= s.MaxAttempts {
		return s.DB.WithContext(ctx).Exec(`
update processing_jobs
set status='failed', stage='failed', attempts=?, error_code=?, error_message=?,
    finished_at=now(), worker_id=null, lease_expires_at=null, updated_at=now()
where id=? and status='processing' and worker_id=?`,
			attempts, perr.Code, perr.Message, job.ID, deref(job.WorkerID)).Error
	}

	return s.DB.WithContext(ctx).Exec(`
update processing_jobs
set status='queued', stage='queued', attempts=?, error_code=?, error_message=?,
    worker_id=null, lease_expires_at=null,
    available_at=now() + make_interval(secs => ?),
    updated_at=now()
where id=? and status='processing' and worker_id=?`,
		attempts, perr.Code, perr.Message, backoffSeconds(attempts), job.ID, deref(job.WorkerID)).Error
}

// RequeueStalled routes every processing row with an expired lease through
// the retry path with WORKER_STALLED. This is the sole liveness mechanism
// recovering jobs from a crashed or hung worker. The status/lease guards
// make back-to-back sweeps touch each stalled row once.
func (s *GormStore) RequeueStalled(ctx context.Context) (int64, error) {
	var total int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fail := tx.Exec(`
update processing_jobs
set status='failed', stage='failed', attempts=attempts+1,
    error_code=?, error_message='worker lease expired',
    finished_at=now(), worker_id=null, lease_expires_at=null, updated_at=now()
where status='processing' and lease_expires_at < now() and attempts+1 >= ?`,
			CodeWorkerStalled, s.MaxAttempts)
		if fail.Error != nil {
			return fail.Error
		}
		total += fail.RowsAffected

		requeue := tx.Exec(`
update processing_jobs
set status='queued', stage='queued', attempts=attempts+1,
    error_code=?, error_message='worker lease expired',
    worker_id=null, lease_expires_at=null,
    available_at=now() + make_interval(secs => least(power(2, attempts+1), 600)),
    updated_at=now()
where status='processing' and lease_expires_at < now()`,
			CodeWorkerStalled)
		if requeue.Error != nil {
			return requeue.Error
		}
		total += requeue.RowsAffected
		return nil
	})
	return total, err
}

func (s *GormStore) Status(ctx context.Context, jobID uint64) (Status, error) {
	var status string
	err := s.DB.WithContext(ctx).Raw(`select status from processing_jobs where id=?`, jobID).
		Scan(&status).Error
	return Status(status), err
}

// Pause flags a job so the worker stops at the next stage boundary. The
// in-flight stage still runs to completion.
func (s *GormStore) Pause(ctx context.Context, userID, jobID uint64) (bool, error) {
	res := s.DB.WithContext(ctx).Exec(`
update processing_jobs
set status='paused', updated_at=now()
where id=? and user_id=? and status in ('queued','processing')`, jobID, userID)
	return res.RowsAffected > 0, res.Error
}

// Resume returns a paused job to the queue. The stage walk restarts from
// the top; every stage is re-runnable so nothing is lost.
func (s *GormStore) Resume(ctx context.Context, userID, jobID uint64) (bool, error) {
	res := s.DB.WithContext(ctx).Exec(`
update processing_jobs
set status='queued', stage='queued', worker_id=null, lease_expires_at=null,
    available_at=now(), updated_at=now()
where id=? and user_id=? and status='paused'`, jobID, userID)
	return res.RowsAffected > 0, res.Error
}

func (s *GormStore) Cancel(ctx context.Context, userID, jobID uint64) (bool, error) {
	res := s.DB.WithContext(ctx).Exec(`
update processing_jobs
set status='canceled', finished_at=now(), worker_id=null, lease_expires_at=null,
    updated_at=now()
where id=? and user_id=? and status in ('queued','processing','paused')`, jobID, userID)
	return res.RowsAffected > 0, res.Error
}

func backoffSeconds(attempts int) float64 {
	return math.Min(math.Pow(2, float64(attempts)), 600)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
