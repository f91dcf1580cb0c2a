package job

import (
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/domain/history"
)

type Type string

const (
	TypeMapAlertCheck           Type = "map_alert_check"
	TypeDriverNotificationCheck Type = "driver_notification_check"
)

type Phase int

const (
	PhaseMapperAlert        Phase = 1
	PhaseDriverNotification Phase = 2
)

// Phases lists phases in enqueue order.
var Phases = []Phase{PhaseMapperAlert, PhaseDriverNotification}

func (p Phase) Type() Type {
	if p == PhaseDriverNotification {
		return TypeDriverNotificationCheck
	}
	return TypeMapAlertCheck
}

func (p Phase) HistoryType() history.Type {
	if p == PhaseDriverNotification {
		return history.TypeDriverNotification
	}
	return history.TypeMapperAlert
}

// Message is the queue payload for one (user, phase, day).
type Message struct {
	UserID         string    `json:"user_id" validate:"required,max=128"`
	Username       string    `json:"username" validate:"required,max=128"`
	Email          string    `json:"email" validate:"required,email"`
	Type           Type      `json:"type" validate:"required,oneof=map_alert_check driver_notification_check"`
	Phase          Phase     `json:"phase" validate:"required,oneof=1 2"`
	Timestamp      time.Time `json:"timestamp"`
	ProcessingDate string    `json:"processing_date" validate:"required,datetime=2006-01-02"`
	DedupKey       string    `json:"dedup_key" validate:"required"`
	DispatchID     string    `json:"dispatch_id,omitempty"`
}

// CheckConsistency rejects messages whose type and phase disagree.
func (m Message) CheckConsistency() error {
	if m.Phase.Type() != m.Type {
		return fmt.Errorf("phase %d does not match type %s", m.Phase, m.Type)
	}
	return nil
}

func (m Message) HistoryKey() history.Key {
	return history.Key{
		UserID:         m.UserID,
		Type:           m.Phase.HistoryType(),
		ProcessingDate: m.ProcessingDate,
	}
}

// userSegment is lowercase base32hex without padding: one-to-one with the
// raw user id and limited to [0-9a-v], which queue dedup ids accept.
var userSegment = base32.HexEncoding.WithPadding(base32.NoPadding)

// DedupKey is the deterministic key for one user, phase and day. Distinct
// user ids always give distinct keys.
func DedupKey(userID string, phase Phase, processingDate string) string {
	return fmt.Sprintf("%s-%s-%s", phase.Type(), encodeUserID(userID), strings.ReplaceAll(processingDate, "-", ""))
}

func encodeUserID(userID string) string {
	if userID == "" {
		return "unknown"
	}
	return strings.ToLower(userSegment.EncodeToString([]byte(userID)))
}

// DeadLetter is a job that exhausted its delivery attempts.
type DeadLetter struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Body      []byte    `json:"body"`
	Message   *Message  `json:"message,omitempty"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	FailedAt  time.Time `json:"failed_at"`
}
