// Package greenlist gates chats against the persisted allow-list. Chats that
// are not allowed receive a single explanatory notice and are then ignored.
package greenlist

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/AlexYaroshenko/voicescribe/internal/store"
)

// Notifier delivers the one-time notice to a chat.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

const defaultNotice = "Dieser Bot steht nur ausgewählten Chats zur Verfügung. " +
	"Das hier ist keiner davon, daher werden Nachrichten aus diesem Chat nicht verarbeitet."

// noticeByChat overrides the notice wording for specific chats. The state
// transition is the same either way.
var noticeByChat = map[int64]string{
	-1001258801123: "Dieser Chat wurde von der Liste entfernt. Wende dich an den Betreiber, wenn das ein Fehler ist.",
}

type Service struct {
	store  store.GreenlistStore
	notify Notifier
	log    *zap.SugaredLogger
}

func NewService(s store.GreenlistStore, notify Notifier, log *zap.SugaredLogger) *Service {
	return &Service{store: s, notify: notify, log: log}
}

// Check reports whether the chat may use the bot. A chat that is neither
// allowed nor informed gets the notice exactly once; the informed set is
// persisted before returning.
//
// Load, mutate, store is last-write-wins. There is no optimistic versioning;
// at single-admin scale a lost informed-flag update only repeats the notice.
func (s *Service) Check(ctx context.Context, chatID int64) (bool, error) {
	state, err := s.store.LoadGreenlist(ctx)
	if err != nil {
		return false, fmt.Errorf("load greenlist: %w", err)
	}
	if state.IsAllowed(chatID) {
		return true, nil
	}
	if state.IsInformed(chatID) {
		return false, nil
	}

	notice, ok := noticeByChat[chatID]
	if !ok {
		notice = defaultNotice
	}
	if err := s.notify.SendText(ctx, chatID, notice); err != nil {
		s.log.Warnw("could not send greenlist notice", "chat_id", chatID, "error", err)
	}

	state.Informed(chatID)
	if err := s.store.SaveGreenlist(ctx, state); err != nil {
		return false, fmt.Errorf("save greenlist: %w", err)
	}
	return false, nil
}

// Allow adds the chat to the allow-list. Idempotent.
func (s *Service) Allow(ctx context.Context, chatID int64) error {
	state, err := s.store.LoadGreenlist(ctx)
	if err != nil {
		return fmt.Errorf("load greenlist: %w", err)
	}
	state.Allow(chatID)
	if err := s.store.SaveGreenlist(ctx, state); err != nil {
		return fmt.Errorf("save greenlist: %w", err)
	}
	s.log.Infow("chat allowed", "chat_id", chatID)
	return nil
}

// Deny removes the chat from the allow-list. Idempotent.
func (s *Service) Deny(ctx context.Context, chatID int64) error {
	state, err := s.store.LoadGreenlist(ctx)
	if err != nil {
		return fmt.Errorf("load greenlist: %w", err)
	}
	state.Deny(chatID)
	if err := s.store.SaveGreenlist(ctx, state); err != nil {
		return fmt.Errorf("save greenlist: %w", err)
	}
	s.log.Infow("chat denied", "chat_id", chatID)
	return nil
}
