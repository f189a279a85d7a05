package worker

import (
	"context"
	"time"

	"github.com/memberhub/approval-workflow/internal/application/service"
)

const (
	BirthdayJobName       = "birthday-greetings"
	ReconciliationJobName = "member-reconciliation"
)

// NewBirthdayJob raises birthday events for the current UTC day
func NewBirthdayJob(svc service.BirthdayService, now func() time.Time) Job {
	if now == nil {
		now = time.Now
	}
	return JobFunc{
		JobName: BirthdayJobName,
		Fn: func(ctx context.Context) error {
			_, err := svc.NotifyBirthdays(ctx, now().UTC())
			return err
		},
	}
}

// NewReconciliationJob retries member creation for one batch of approved applications
func NewReconciliationJob(svc service.ReconciliationService, batch int) Job {
	return JobFunc{
		JobName: ReconciliationJobName,
		Fn: func(ctx context.Context) error {
			_, err := svc.RunOnce(ctx, batch)
			return err
		},
	}
}
