package scan

import (
	"context"

	"github.com/riverqueue/river"
)

// Worker drives one scan job. The service degrades vendor failures to a
// terminal verdict, so a returned error here means the verdict write itself
// failed and the job should retry.
type Worker struct {
	river.WorkerDefaults[ScanListingArgs]
	svc *Service
}

func NewWorker(svc *Service) *Worker {
	return &Worker{svc: svc}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[ScanListingArgs]) error {
	return w.svc.Scan(ctx, job.Args.ListingID)
}
