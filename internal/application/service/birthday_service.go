package service

import (
	"context"
	"time"

	"github.com/memberhub/approval-workflow/internal/application/dispatcher"
	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/application/workflow"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/event"
)

// BirthdayService raises member.birthday events for active members
type BirthdayService interface {
	NotifyBirthdays(ctx context.Context, day time.Time) (int, error)
}

type birthdayServiceImpl struct {
	members    port.MemberRepository
	dispatcher dispatcher.Dispatcher
	logger     Logger
}

// NewBirthdayService creates a new BirthdayService
func NewBirthdayService(members port.MemberRepository, d dispatcher.Dispatcher, logger Logger) BirthdayService {
	return &birthdayServiceImpl{
		members:    members,
		dispatcher: d,
		logger:     logger,
	}
}

// NotifyBirthdays dispatches one event per member born on the given calendar
// day. Members born on 29 February are included on 28 February of common years.
func (s *birthdayServiceImpl) NotifyBirthdays(ctx context.Context, day time.Time) (int, error) {
	members, err := s.members.ListByBirthday(ctx, day.Month(), day.Day())
	if err != nil {
		s.logger.Error("Failed to list birthdays", "date", day.Format("2006-01-02"), "error", err)
		return 0, workflow.ClassifyError(err)
	}

	if day.Month() == time.February && day.Day() == 28 && !isLeap(day.Year()) {
		leap, err := s.members.ListByBirthday(ctx, time.February, 29)
		if err != nil {
			s.logger.Error("Failed to list leap day birthdays", "error", err)
			return 0, workflow.ClassifyError(err)
		}
		members = append(members, leap...)
	}

	sent := 0
	for _, m := range members {
		if err := s.dispatcher.Dispatch(ctx, birthdayEvent(m, day)); err != nil {
			s.logger.Warn("Birthday notification failed", "member_id", m.ID, "error", err)
			continue
		}
		sent++
	}

	s.logger.Info("Birthday notifications dispatched", "date", day.Format("2006-01-02"), "count", sent)
	return sent, nil
}

func birthdayEvent(m *entity.Member, day time.Time) *event.Event {
	payload := map[string]interface{}{
		"member_id": m.ID,
		"full_name": m.FullName(),
	}
	if m.Email != "" {
		payload["email"] = m.Email
	}
	if m.CellNumber != "" {
		payload["cell_number"] = m.CellNumber
	}
	if m.DateOfBirth != nil {
		payload["age"] = day.Year() - m.DateOfBirth.Year()
	}
	return event.NewEvent(event.TypeMemberBirthday, "member", m.ID, payload)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
