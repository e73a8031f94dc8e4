package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/careslot/careslot-platform/pkg/logging"
)

// Service composes patient notifications on top of an EmailSender.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, logger: logger}
}

// AppointmentRescheduled tells the patient their consultation moved.
func (s *Service) AppointmentRescheduled(ctx context.Context, email, name string, oldTime, newTime time.Time) error {
	if s.email == nil || email == "" {
		return nil
	}

	msg := EmailMessage{
		To:      email,
		ToName:  name,
		Subject: "Your appointment has been rescheduled",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour consultation originally scheduled for %s has been moved to %s.\n\nIf the new time does not work for you, you can cancel or reschedule again from your appointments page.\n",
			name,
			oldTime.Format("Mon, 2 Jan 2006 at 15:04 MST"),
			newTime.Format("Mon, 2 Jan 2006 at 15:04 MST"),
		),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: reschedule email: %w", err)
	}
	return nil
}
