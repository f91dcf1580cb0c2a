package memory

import (
	"context"
	"strings"

	"github.com/riskibarqy/tm-alerts/internal/domain/subscriber"
)

// SubscriberRepository derives subscribers from users that own a mapper
// alert or an active driver notification.
type SubscriberRepository struct {
	users   []subscriber.Subscriber
	alerts  *MapperAlertRepository
	drivers *DriverNotificationRepository
}

func NewSubscriberRepository(users []subscriber.Subscriber, alerts *MapperAlertRepository, drivers *DriverNotificationRepository) *SubscriberRepository {
	return &SubscriberRepository{
		users:   append([]subscriber.Subscriber(nil), users...),
		alerts:  alerts,
		drivers: drivers,
	}
}

func (r *SubscriberRepository) FetchValidatedSubscribers(_ context.Context) ([]subscriber.Subscriber, error) {
	out := make([]subscriber.Subscriber, 0, len(r.users))
	for _, u := range r.users {
		if strings.TrimSpace(u.Email) == "" || strings.TrimSpace(u.Username) == "" {
			continue
		}
		if (r.alerts != nil && r.alerts.hasAlert(u.UserID)) || (r.drivers != nil && r.drivers.hasActive(u.UserID)) {
			out = append(out, u)
		}
	}
	return out, nil
}
