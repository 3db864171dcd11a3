package bot

import (
	"context"
	"os"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/AlexYaroshenko/voicescribe/internal/chunker"
	"github.com/AlexYaroshenko/voicescribe/internal/metrics"
	"github.com/AlexYaroshenko/voicescribe/internal/telegram"
	"github.com/AlexYaroshenko/voicescribe/internal/usage"
)

// process runs one update through the pipeline, short-circuiting on the first
// rejection. Usage is tracked strictly after all replies have been sent, so a
// crash in between under-counts rather than over-counts.
func (b *Bot) process(ctx context.Context, msg *tgbotapi.Message, media telegram.Media, updateID int, locale string) {
	log := b.deps.Log.With("update_id", updateID)

	if msg.From == nil {
		log.Debugw("ignoring message without sender")
		return
	}

	allowed, err := b.deps.Greenlist.Check(ctx, msg.Chat.ID)
	if err != nil {
		log.Errorw("greenlist check failed", "error", err)
		b.deps.Metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeTransientError).Inc()
		return
	}
	if !allowed {
		log.Infow("chat not on greenlist", "chat_id", msg.Chat.ID)
		b.deps.Metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeDenied).Inc()
		return
	}

	if media.FileSize > maxFileSize {
		log.Infow("file size exceeds limit", "size", media.FileSize)
		b.reply(ctx, msg, msgSizeLimit)
		b.deps.Metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeOversized).Inc()
		return
	}

	conflict, err := b.deps.Tracker.GetConflict(ctx, msg.From.ID, msg.Time(), media.UniqueFileID, locale)
	if err != nil {
		log.Errorw("conflict check failed", "error", err)
		b.deps.Metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeTransientError).Inc()
		return
	}
	if conflict != nil {
		log.Infow("user exceeded rate limit", "user_id", msg.From.ID, "context_id", conflict.ContextID)
		if msg.Chat.IsPrivate() {
			b.reply(ctx, msg, msgRateLimited)
		} else if err := b.deps.Telegram.React(ctx, msg.Chat.ID, msg.MessageID, reactionAcknowledge); err != nil {
			log.Warnw("could not send rate limit reaction", "error", err)
		}
		b.deps.Metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		return
	}

	scratchDir, err := os.MkdirTemp(b.deps.ScratchRoot, "voicescribe-*")
	if err != nil {
		log.Errorw("could not create scratch dir", "error", err)
		b.deps.Metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeTransientError).Inc()
		return
	}
	defer func() {
		if err := os.RemoveAll(scratchDir); err != nil {
			log.Warnw("could not remove scratch dir", "path", scratchDir, "error", err)
		}
	}()

	log.Debugw("downloading file", "file_id", media.FileID)
	localPath, err := b.deps.Telegram.Download(ctx, media.FileID, scratchDir)
	if err != nil {
		log.Errorw("download failed", "error", err)
		b.deps.Metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeTransientError).Inc()
		return
	}

	log.Debugw("converting file", "path", localPath)
	wavPath, err := b.deps.Converter.ToWave(ctx, localPath)
	if err != nil {
		log.Errorw("conversion failed", "error", err)
		b.deps.Metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeTransientError).Inc()
		return
	}

	log.Debugw("transcribing audio", "locale", locale)
	transcribeCtx, cancel := context.WithTimeout(ctx, b.deps.TranscribeTimeout)
	defer cancel()
	start := time.Now()
	text, err := b.deps.Transcriber.Transcribe(transcribeCtx, wavPath, locale)
	b.deps.Metrics.TranscriptionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Errorw("transcription failed", "error", err)
		b.deps.Metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeTransientError).Inc()
		return
	}

	request := usage.Request{UserID: msg.From.ID, Date: msg.Time()}

	if text == "" {
		log.Infow("no transcription result")
		if media.Kind != telegram.KindVoice {
			return
		}
		// An empty voice transcript still counts toward the quota, so a /retry
		// of the same file stays limited.
		if err := b.deps.Telegram.React(ctx, msg.Chat.ID, msg.MessageID, reactionShrug); err != nil {
			log.Warnw("could not send shrug reaction", "error", err)
		}
		if err := b.deps.Tracker.Track(ctx, request, "", media.UniqueFileID, locale); err != nil {
			log.Errorw("usage tracking failed", "error", err)
		}
		b.deps.Metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeEmpty).Inc()
		return
	}

	text = censor(text)

	chunks := chunker.Split(text, chunker.MessageLimit)
	log.Infow("sending transcript", "length", len(text), "chunks", len(chunks))

	firstResponseID := 0
	for _, chunk := range chunks {
		responseID, err := b.deps.Telegram.ReplyText(ctx, msg.Chat.ID, msg.MessageID, chunk)
		if err != nil {
			log.Errorw("could not send transcript chunk", "error", err)
			b.deps.Metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeTransientError).Inc()
			return
		}
		if firstResponseID == 0 {
			firstResponseID = responseID
		}
		b.deps.Metrics.ChunksSent.Inc()
	}

	if err := b.deps.Tracker.Track(ctx, request, strconv.Itoa(firstResponseID), media.UniqueFileID, locale); err != nil {
		log.Errorw("usage tracking failed", "error", err)
	}
	b.deps.Metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeTranscribed).Inc()
}
