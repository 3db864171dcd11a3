// Package bot contains the ingress dispatcher and the per-update processing
// pipeline: greenlist check, quota check, download, conversion, transcription,
// and the chunked reply.
package bot

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/AlexYaroshenko/voicescribe/internal/greenlist"
	"github.com/AlexYaroshenko/voicescribe/internal/metrics"
	"github.com/AlexYaroshenko/voicescribe/internal/usage"
)

// maxFileSize is the largest declared media size the bot will download.
const maxFileSize int64 = 20 * 1024 * 1024

const (
	reactionAcknowledge = "👍"
	reactionShrug       = "🤷"
	reactionRefuse      = "👎"
)

const (
	msgSizeLimit   = "Sorry, ich bearbeite nur Dateien bis zu 20 MB"
	msgRateLimited = "Sorry, du hast dein Limit erreicht."
	msgRetryTarget = "Das Command muss als Antwort auf eine Sprachnachricht, Videonachricht, oder Audiodatei verschickt werden."
	msgRetryUsage  = "Benutzung: /retry <sprache>"
	msgDenyUsage   = "Benutzung: /deny <chat_id>"
	msgBadChatID   = "Das ist keine gültige Chat-ID."
)

// Messenger is the outbound Telegram boundary.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	ReplyText(ctx context.Context, chatID int64, messageID int, text string) (int, error)
	React(ctx context.Context, chatID int64, messageID int, emoji string) error
	Download(ctx context.Context, fileID, dir string) (string, error)
}

// Converter normalizes downloaded media to wave format.
type Converter interface {
	ToWave(ctx context.Context, inputPath string) (string, error)
}

// Transcriber turns wave audio into text. An empty locale means auto-detect;
// an empty transcript is not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, locale string) (string, error)
}

// Deps wires the bot's collaborators.
type Deps struct {
	Telegram    Messenger
	Greenlist   *greenlist.Service
	Tracker     *usage.Tracker
	Converter   Converter
	Transcriber Transcriber
	Metrics     *metrics.Metrics
	Log         *zap.SugaredLogger

	AdminUserID       int64
	ScratchRoot       string
	TranscribeTimeout time.Duration
}

type Bot struct {
	deps Deps
	wg   sync.WaitGroup
}

func New(deps Deps) *Bot {
	return &Bot{deps: deps}
}

// Run dispatches updates until the channel closes, then waits for in-flight
// pipelines to finish. Each update runs in its own goroutine with panic
// recovery: one broken pipeline must never reach the dispatch loop or other
// in-flight updates.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		b.deps.Metrics.UpdatesReceived.Inc()
		b.wg.Add(1)
		go func(update tgbotapi.Update) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.deps.Log.Errorw("pipeline panicked", "update_id", update.UpdateID, "panic", r)
				}
			}()
			b.handleUpdate(ctx, update)
		}(update)
	}
	b.wg.Wait()
}
