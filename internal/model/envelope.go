package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Channel 通知投递渠道（闭合枚举）
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

// Channels lists every supported channel. Provider registration is
// validated against this list at startup, so adding a channel here
// forces a deliberate registration step.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp}
}

// ParseChannel validates a channel string. Unknown values are rejected.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return Channel(s), nil
	}
	return "", fmt.Errorf("unknown channel: %q", s)
}

// Priority 队列排序优先级，数值越小越先出队
type Priority int

const (
	PriorityUrgent Priority = 0
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 2
	PriorityLow    Priority = 3
)

var priorityNames = map[Priority]string{
	PriorityUrgent: "URGENT",
	PriorityHigh:   "HIGH",
	PriorityMedium: "MEDIUM",
	PriorityLow:    "LOW",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

func (p *Priority) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePriority maps a priority name to its ordinal value.
// An empty string defaults to MEDIUM.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "URGENT":
		return PriorityUrgent, nil
	case "HIGH":
		return PriorityHigh, nil
	case "MEDIUM", "":
		return PriorityMedium, nil
	case "LOW":
		return PriorityLow, nil
	}
	return 0, fmt.Errorf("unknown priority: %q", s)
}

// Status 通知生命周期状态
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusInFlight       Status = "IN_FLIGHT"
	StatusDelivered      Status = "DELIVERED"
	StatusFailedTerminal Status = "FAILED_TERMINAL"
)

// Terminal reports whether the status can never leave the queue again.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailedTerminal
}

// Envelope is the unit of queued work: one notification delivery request.
// It is created once by the dispatch service and afterwards mutated only
// by the queue while a single worker holds the lease.
type Envelope struct {
	ID            uuid.UUID  `json:"id"`
	UserID        string     `json:"userId"`
	Channel       Channel    `json:"channel"`
	Title         string     `json:"title"`
	Body          string     `json:"message"`
	Priority      Priority   `json:"priority"`
	Status        Status     `json:"status"`
	AttemptCount  int        `json:"attemptCount"`
	FailureReason string     `json:"failureReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
}

// NewEnvelope builds a PENDING envelope with a fresh id.
func NewEnvelope(userID string, channel Channel, title, body string, priority Priority) *Envelope {
	return &Envelope{
		ID:        uuid.New(),
		UserID:    userID,
		Channel:   channel,
		Title:     title,
		Body:      body,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}
