// Package speech transcribes wave audio through the Azure Cognitive Services
// speech-to-text REST API.
package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Key    string
	Region string
	// AutoDetectLocales is tried in order when no locale is requested.
	AutoDetectLocales []string
	// Timeout bounds a single Transcribe call end to end.
	Timeout time.Duration
}

type Transcriber struct {
	cfg     Config
	baseURL string
	client  *http.Client
	log     *zap.SugaredLogger
}

func NewTranscriber(cfg Config, log *zap.SugaredLogger) *Transcriber {
	return &Transcriber{
		cfg:     cfg,
		baseURL: fmt.Sprintf("https://%s.stt.speech.microsoft.com", cfg.Region),
		client:  &http.Client{},
		log:     log,
	}
}

type result struct {
	text string
	err  error
}

// Transcribe recognizes speech in the given wave file. An empty locale selects
// auto-detection over the configured locale set. An empty transcript is not an
// error. Recognition runs in its own goroutine and is awaited with a bound
// timeout; on timeout or caller cancellation the in-flight request is
// cancelled.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath, locale string) (string, error) {
	locales := t.cfg.AutoDetectLocales
	if locale != "" {
		locales = []string{locale}
	}

	inner, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		done <- t.recognize(inner, audioPath, locales)
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-time.After(t.cfg.Timeout):
		cancel()
		return "", fmt.Errorf("transcription timed out after %s", t.cfg.Timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// recognize tries each candidate locale until one yields text. The transcript
// buffer lives here, owned by the call.
func (t *Transcriber) recognize(ctx context.Context, audioPath string, locales []string) result {
	var transcript strings.Builder
	for _, locale := range locales {
		text, err := t.recognizeOnce(ctx, audioPath, locale)
		if err != nil {
			return result{err: err}
		}
		if text == "" {
			continue
		}
		if transcript.Len() > 0 {
			transcript.WriteString(" ")
		}
		transcript.WriteString(text)
		break
	}
	return result{text: transcript.String()}
}

type recognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
}

func (t *Transcriber) recognizeOnce(ctx context.Context, audioPath, locale string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	query := url.Values{}
	query.Set("language", locale)
	query.Set("profanity", "raw")
	endpoint := t.baseURL + "/speech/recognition/conversation/cognitiveservices/v1?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, f)
	if err != nil {
		return "", err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", t.cfg.Key)
	req.Header.Set("Content-Type", "audio/wav; codecs=audio/pcm; samplerate=16000")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read speech response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("speech service http %d: %s", resp.StatusCode, body)
	}

	var parsed recognitionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse speech response: %w", err)
	}

	switch parsed.RecognitionStatus {
	case "Success":
		return parsed.DisplayText, nil
	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		t.log.Debugw("no speech recognized", "locale", locale, "status", parsed.RecognitionStatus)
		return "", nil
	default:
		return "", fmt.Errorf("speech service status %q", parsed.RecognitionStatus)
	}
}
