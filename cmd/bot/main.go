package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/AlexYaroshenko/voicescribe/internal/bot"
	"github.com/AlexYaroshenko/voicescribe/internal/config"
	"github.com/AlexYaroshenko/voicescribe/internal/convert"
	"github.com/AlexYaroshenko/voicescribe/internal/greenlist"
	"github.com/AlexYaroshenko/voicescribe/internal/localization"
	"github.com/AlexYaroshenko/voicescribe/internal/metrics"
	"github.com/AlexYaroshenko/voicescribe/internal/speech"
	"github.com/AlexYaroshenko/voicescribe/internal/store"
	"github.com/AlexYaroshenko/voicescribe/internal/telegram"
	"github.com/AlexYaroshenko/voicescribe/internal/usage"
	"github.com/AlexYaroshenko/voicescribe/internal/web"
)

func main() {
	_ = godotenv.Load()

	zl, err := zap.NewProduction()
	if err != nil {
		panic("cannot build logger: " + err.Error())
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	greenStore, err := store.OpenBolt(cfg.GreenlistPath)
	if err != nil {
		log.Fatalw("cannot open greenlist store", "path", cfg.GreenlistPath, "error", err)
	}
	defer greenStore.Close()

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	usageStore, err := store.OpenPostgres(pgCtx, cfg.DatabaseURL, cfg.TablePrefix)
	cancel()
	if err != nil {
		log.Fatalw("cannot open usage store", "error", err)
	}
	defer usageStore.Close()

	tg, err := telegram.NewClient(cfg.TelegramToken, log)
	if err != nil {
		log.Fatalw("cannot create telegram client", "error", err)
	}

	var autoDetect []string
	for _, lang := range cfg.AutoDetectLanguages {
		locale, ok := localization.ByLanguage(lang)
		if !ok {
			log.Fatalw("unsupported auto-detect language", "language", lang)
		}
		autoDetect = append(autoDetect, locale)
	}

	b := bot.New(bot.Deps{
		Telegram:  tg,
		Greenlist: greenlist.NewService(greenStore, tg, log),
		Tracker:   usage.NewTracker(usageStore, cfg.DailyLimit, log),
		Converter: convert.NewConverter(log),
		Transcriber: speech.NewTranscriber(speech.Config{
			Key:               cfg.SpeechKey,
			Region:            cfg.SpeechRegion,
			AutoDetectLocales: autoDetect,
			Timeout:           cfg.TranscribeTimeout,
		}, log),
		Metrics:           metrics.NewMetrics(prometheus.DefaultRegisterer),
		Log:               log,
		AdminUserID:       cfg.AdminUserID,
		ScratchRoot:       cfg.ScratchDir,
		TranscribeTimeout: cfg.TranscribeTimeout,
	})

	server := web.NewServer(cfg.Port)
	go func() {
		log.Infow("starting web server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("web server failed", "error", err)
		}
	}()

	// Stop polling on shutdown; Run drains the channel and waits for in-flight
	// pipelines before the deferred store closes run.
	go func() {
		<-ctx.Done()
		log.Info("shutting down, waiting for in-flight updates")
		tg.Stop()
	}()

	log.Info("handling updates")
	b.Run(ctx, tg.Updates())

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnw("web server shutdown failed", "error", err)
	}
	log.Info("bot has shut down")
}
