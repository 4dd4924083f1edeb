package printer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thereceipt/thermal-bridge/internal/logger"
	"github.com/thereceipt/thermal-bridge/internal/renderer"
)

// JobStatus is where a print job is.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobPrinting  JobStatus = "printing"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// PrintJob is one asynchronous print request.
type PrintJob struct {
	ID         string     `json:"id"`
	PrinterID  string     `json:"printer_id"`
	Device     Descriptor `json:"device"`
	Image      []byte     `json:"-"`
	Status     JobStatus  `json:"status"`
	Result     Result     `json:"result"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
}

// Finished reports whether the job has a result.
func (j PrintJob) Finished() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// Jobs runs print jobs in the background and keeps their outcome until
// cleared. Jobs for one printer run in submission order through its
// session.
type Jobs struct {
	pool *SessionPool
	log  *zap.Logger

	mu     sync.Mutex
	jobs   map[string]*PrintJob
	order  []string
	onDone []func(PrintJob)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJobs creates a job runner printing through pool.
func NewJobs(pool *SessionPool, log *zap.Logger) *Jobs {
	ctx, cancel := context.WithCancel(context.Background())
	return &Jobs{
		pool:   pool,
		log:    logger.OrNop(log).Named("jobs"),
		jobs:   make(map[string]*PrintJob),
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnDone registers fn to be called with every finished job.
func (q *Jobs) OnDone(fn func(PrintJob)) {
	q.mu.Lock()
	q.onDone = append(q.onDone, fn)
	q.mu.Unlock()
}

// Submit queues base64Image for d and returns the job id. An undecodable
// payload fails the job without touching the printer.
func (q *Jobs) Submit(base64Image string, d Descriptor) string {
	job := &PrintJob{
		ID:        uuid.New().String(),
		Device:    d,
		Status:    JobQueued,
		CreatedAt: time.Now(),
	}
	if d != nil {
		job.PrinterID = d.ID()
	}

	data, decodeErr := renderer.DecodeBase64(base64Image)
	job.Image = data

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if decodeErr != nil {
			q.finish(job.ID, ErrorInvalidImage, decodeErr)
			return
		}
		q.run(job.ID, data, d)
	}()

	return job.ID
}

func (q *Jobs) run(id string, data []byte, d Descriptor) {
	q.mu.Lock()
	q.jobs[id].Status = JobPrinting
	q.mu.Unlock()

	res, err := q.pool.PrintData(q.ctx, data, d)
	q.finish(id, res, err)
}

func (q *Jobs) finish(id string, res Result, err error) {
	q.mu.Lock()
	job := q.jobs[id]
	job.Result = res
	job.Image = nil
	job.FinishedAt = time.Now()
	if res == Success {
		job.Status = JobCompleted
	} else {
		job.Status = JobFailed
		job.Error = res.Message()
	}
	done := *job
	callbacks := append([]func(PrintJob){}, q.onDone...)
	q.mu.Unlock()

	if err != nil {
		q.log.Warn("Print job failed", zap.String("job", id), zap.Stringer("result", res), zap.Error(err))
	} else {
		q.log.Info("Print job completed", zap.String("job", id), zap.String("printer", done.PrinterID))
	}
	for _, fn := range callbacks {
		fn(done)
	}
}

// Get returns a copy of the job with id.
func (q *Jobs) Get(id string) (PrintJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return PrintJob{}, false
	}
	return *job, true
}

// All returns copies of every job in submission order.
func (q *Jobs) All() []PrintJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]PrintJob, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.jobs[id])
	}
	return out
}

// ClearFinished forgets completed and failed jobs.
func (q *Jobs) ClearFinished() {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.order[:0]
	for _, id := range q.order {
		if q.jobs[id].Finished() {
			delete(q.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
}

// Wait blocks until every submitted job has finished.
func (q *Jobs) Wait() {
	q.wg.Wait()
}

// Stop cancels running jobs and waits for them to return.
func (q *Jobs) Stop() {
	q.cancel()
	q.wg.Wait()
}
