package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/AlexYaroshenko/voicescribe/internal/localization"
	"github.com/AlexYaroshenko/voicescribe/internal/telegram"
)

// handleUpdate classifies one inbound update. Edited messages arrive under a
// separate update field and fall through the nil check.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		b.deps.Log.Debugw("ignoring update without message", "update_id", update.UpdateID)
		b.deps.Metrics.UpdatesIgnored.Inc()
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "retry":
			b.handleRetry(ctx, msg, update.UpdateID)
		case "allow":
			b.handleAdmin(ctx, msg, true)
		case "deny":
			b.handleAdmin(ctx, msg, false)
		default:
			b.deps.Log.Debugw("ignoring unknown command", "update_id", update.UpdateID, "command", msg.Command())
			b.deps.Metrics.UpdatesIgnored.Inc()
		}
		return
	}

	media, ok := telegram.MediaFrom(msg)
	if !ok {
		b.deps.Log.Debugw("ignoring message without media", "update_id", update.UpdateID)
		b.deps.Metrics.UpdatesIgnored.Inc()
		return
	}

	b.deps.Log.Infow("received message update", "update_id", update.UpdateID, "kind", media.Kind.String())
	b.process(ctx, msg, media, update.UpdateID, "")
}

// handleRetry re-runs transcription of a replied-to media message with an
// explicitly requested locale.
func (b *Bot) handleRetry(ctx context.Context, msg *tgbotapi.Message, updateID int) {
	log := b.deps.Log.With("update_id", updateID)
	log.Infow("received retry command")

	args := strings.Fields(msg.CommandArguments())
	if len(args) != 1 {
		b.reply(ctx, msg, msgRetryUsage)
		return
	}

	locale, ok := localization.Find(args[0])
	if !ok {
		log.Infow("unsupported locale", "query", args[0])
		supported := strings.Join(localization.Supported(), ", ")
		b.reply(ctx, msg, fmt.Sprintf("Konnte die angegebene Sprache nicht verstehen. Unterstützt werden: %s.", supported))
		return
	}

	replied := msg.ReplyToMessage
	var media telegram.Media
	if replied != nil {
		media, ok = telegram.MediaFrom(replied)
	} else {
		ok = false
	}
	if !ok {
		log.Infow("no suitable reply target")
		b.reply(ctx, msg, msgRetryTarget)
		return
	}

	b.process(ctx, msg, media, updateID, locale)
}

// handleAdmin mutates the greenlist. Only the configured admin may do so;
// anyone else gets a refusal reaction and no state change.
func (b *Bot) handleAdmin(ctx context.Context, msg *tgbotapi.Message, allow bool) {
	if b.deps.AdminUserID == 0 || msg.From == nil || msg.From.ID != b.deps.AdminUserID {
		if err := b.deps.Telegram.React(ctx, msg.Chat.ID, msg.MessageID, reactionRefuse); err != nil {
			b.deps.Log.Warnw("could not send refusal reaction", "error", err)
		}
		return
	}

	args := strings.Fields(msg.CommandArguments())
	var target int64
	switch {
	case len(args) == 0 && allow:
		target = msg.Chat.ID
	case len(args) == 0:
		b.reply(ctx, msg, msgDenyUsage)
		return
	default:
		var err error
		target, err = strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			b.reply(ctx, msg, msgBadChatID)
			return
		}
	}

	var err error
	if allow {
		err = b.deps.Greenlist.Allow(ctx, target)
	} else {
		err = b.deps.Greenlist.Deny(ctx, target)
	}
	if err != nil {
		b.deps.Log.Errorw("greenlist mutation failed", "target", target, "error", err)
		return
	}

	if allow {
		b.reply(ctx, msg, fmt.Sprintf("Chat %d freigeschaltet.", target))
	} else {
		b.reply(ctx, msg, fmt.Sprintf("Chat %d entfernt.", target))
	}
}

func (b *Bot) reply(ctx context.Context, msg *tgbotapi.Message, text string) {
	if _, err := b.deps.Telegram.ReplyText(ctx, msg.Chat.ID, msg.MessageID, text); err != nil {
		b.deps.Log.Warnw("could not send reply", "chat_id", msg.Chat.ID, "error", err)
	}
}
