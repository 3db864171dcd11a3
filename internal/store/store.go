package store

import (
	"context"
	"errors"
	"slices"
	"time"
)

// GreenlistState is the allow-list of chats permitted to use the bot, plus the
// set of chats that already received the one-time "not allowed" notice. It is
// persisted as a single versioned JSON blob.
type GreenlistState struct {
	AllowedChatIDs []int64 `json:"allowed_chat_ids"`
	InformedChats  []int64 `json:"informed_chats"`
}

// InitialGreenlistState returns the seed state written on first use.
func InitialGreenlistState() GreenlistState {
	return GreenlistState{
		AllowedChatIDs: []int64{
			1365395775,
			133399998,
			1158219931,
			207651612,
			620433944,
			-1001258801123,
			-1001525369518,
			-1001635506904,
			-1001349532682,
			-1001348149915,
		},
		InformedChats: []int64{},
	}
}

func (s *GreenlistState) IsAllowed(chatID int64) bool {
	return slices.Contains(s.AllowedChatIDs, chatID)
}

func (s *GreenlistState) IsInformed(chatID int64) bool {
	return slices.Contains(s.InformedChats, chatID)
}

// Allow adds the chat to the allowed set and drops it from the informed set.
func (s *GreenlistState) Allow(chatID int64) {
	if !slices.Contains(s.AllowedChatIDs, chatID) {
		s.AllowedChatIDs = append(s.AllowedChatIDs, chatID)
	}
	if i := slices.Index(s.InformedChats, chatID); i >= 0 {
		s.InformedChats = slices.Delete(s.InformedChats, i, i+1)
	}
}

// Deny removes the chat from the allowed set.
func (s *GreenlistState) Deny(chatID int64) {
	if i := slices.Index(s.AllowedChatIDs, chatID); i >= 0 {
		s.AllowedChatIDs = slices.Delete(s.AllowedChatIDs, i, i+1)
	}
}

// Informed records that the chat received the one-time notice.
func (s *GreenlistState) Informed(chatID int64) {
	if !slices.Contains(s.InformedChats, chatID) {
		s.InformedChats = append(s.InformedChats, chatID)
	}
}

// Usage is one recorded terminal processing attempt. ContextID scopes the
// usage to a rate limiting policy: "" for the daily quota, a composite retry
// id otherwise. Rows are append-only.
type Usage struct {
	ContextID   string    `json:"context_id"`
	UserID      int64     `json:"user_id"`
	AtTime      time.Time `json:"at_time"`
	ResponseID  string    `json:"response_id"`
	ReferenceID string    `json:"reference_id"`
}

// GreenlistStore persists the greenlist blob. Load seeds the initial state if
// none exists yet.
type GreenlistStore interface {
	Close() error
	LoadGreenlist(ctx context.Context) (GreenlistState, error)
	SaveGreenlist(ctx context.Context, state GreenlistState) error
}

// UsageStore is the append-only backing store shared by all rate limiting
// policies. It, not any in-memory cache, is authoritative.
type UsageStore interface {
	Close() error
	AddUsage(ctx context.Context, usage Usage) error
	// ListUsages returns the user's usages for the context within [from, to),
	// ordered by time.
	ListUsages(ctx context.Context, userID int64, contextID string, from, to time.Time) ([]Usage, error)
	// GetUsageByContext returns the newest usage for the exact context id, or
	// ErrNotFound.
	GetUsageByContext(ctx context.Context, userID int64, contextID string) (Usage, error)
	// DeleteUsagesBefore removes usages for the context older than cutoff and
	// reports how many rows were dropped.
	DeleteUsagesBefore(ctx context.Context, contextID string, cutoff time.Time) (int64, error)
}

var ErrNotFound = errors.New("not found")
