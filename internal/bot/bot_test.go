package bot

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/AlexYaroshenko/voicescribe/internal/greenlist"
	"github.com/AlexYaroshenko/voicescribe/internal/metrics"
	"github.com/AlexYaroshenko/voicescribe/internal/store"
	"github.com/AlexYaroshenko/voicescribe/internal/usage"
)

const (
	testAdminID  = int64(99)
	testUserID   = int64(42)
	testChatID   = int64(100)
	dailyLimit   = 10
	uniqueFileID = "F"
)

type sentReply struct {
	chatID    int64
	messageID int
	text      string
}

type fakeTelegram struct {
	mu        sync.Mutex
	replies   []sentReply
	reactions []string
	notices   []string
	downloads int
	nextID    int
}

func (f *fakeTelegram) SendText(_ context.Context, _ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, text)
	return nil
}

func (f *fakeTelegram) ReplyText(_ context.Context, chatID int64, messageID int, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.replies = append(f.replies, sentReply{chatID, messageID, text})
	return 1000 + f.nextID, nil
}

func (f *fakeTelegram) React(_ context.Context, _ int64, _ int, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, emoji)
	return nil
}

func (f *fakeTelegram) Download(_ context.Context, _ string, dir string) (string, error) {
	f.mu.Lock()
	f.downloads++
	f.mu.Unlock()
	path := filepath.Join(dir, "audio.wav")
	return path, os.WriteFile(path, []byte("RIFF"), 0644)
}

func (f *fakeTelegram) replyTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := make([]string, len(f.replies))
	for i, r := range f.replies {
		texts[i] = r.text
	}
	return texts
}

type fakeConverter struct{ err error }

func (f *fakeConverter) ToWave(_ context.Context, inputPath string) (string, error) {
	return inputPath, f.err
}

type fakeTranscriber struct {
	mu      sync.Mutex
	text    string
	err     error
	locales []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string, locale string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locales = append(f.locales, locale)
	return f.text, f.err
}

type memGreenlist struct {
	mu    sync.Mutex
	state store.GreenlistState
}

func (m *memGreenlist) Close() error { return nil }

func (m *memGreenlist) LoadGreenlist(_ context.Context) (store.GreenlistState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return store.GreenlistState{
		AllowedChatIDs: append([]int64(nil), m.state.AllowedChatIDs...),
		InformedChats:  append([]int64(nil), m.state.InformedChats...),
	}, nil
}

func (m *memGreenlist) SaveGreenlist(_ context.Context, state store.GreenlistState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}

type memUsage struct {
	mu     sync.Mutex
	usages []store.Usage
}

func (m *memUsage) Close() error { return nil }

func (m *memUsage) AddUsage(_ context.Context, u store.Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usages = append(m.usages, u)
	return nil
}

func (m *memUsage) ListUsages(_ context.Context, userID int64, contextID string, from, to time.Time) ([]store.Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []store.Usage
	for _, u := range m.usages {
		if u.UserID == userID && u.ContextID == contextID && !u.AtTime.Before(from) && u.AtTime.Before(to) {
			result = append(result, u)
		}
	}
	return result, nil
}

func (m *memUsage) GetUsageByContext(_ context.Context, userID int64, contextID string) (store.Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.usages) - 1; i >= 0; i-- {
		if m.usages[i].UserID == userID && m.usages[i].ContextID == contextID {
			return m.usages[i], nil
		}
	}
	return store.Usage{}, store.ErrNotFound
}

func (m *memUsage) DeleteUsagesBefore(_ context.Context, contextID string, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []store.Usage
	var dropped int64
	for _, u := range m.usages {
		if u.ContextID == contextID && u.AtTime.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, u)
	}
	m.usages = kept
	return dropped, nil
}

func (m *memUsage) all() []store.Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Usage(nil), m.usages...)
}

type harness struct {
	bot         *Bot
	tg          *fakeTelegram
	transcriber *fakeTranscriber
	greenStore  *memGreenlist
	usageStore  *memUsage
}

func newHarness(t *testing.T, transcript string) *harness {
	t.Helper()
	log := zap.NewNop().Sugar()
	tg := &fakeTelegram{}
	green := &memGreenlist{state: store.GreenlistState{AllowedChatIDs: []int64{testChatID}}}
	usageStore := &memUsage{}
	transcriber := &fakeTranscriber{text: transcript}

	b := New(Deps{
		Telegram:          tg,
		Greenlist:         greenlist.NewService(green, tg, log),
		Tracker:           usage.NewTracker(usageStore, dailyLimit, log),
		Converter:         &fakeConverter{},
		Transcriber:       transcriber,
		Metrics:           metrics.NewMetrics(prometheus.NewRegistry()),
		Log:               log,
		AdminUserID:       testAdminID,
		ScratchRoot:       t.TempDir(),
		TranscribeTimeout: time.Second,
	})
	return &harness{bot: b, tg: tg, transcriber: transcriber, greenStore: green, usageStore: usageStore}
}

func voiceMessage(size int) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: testUserID},
		Date:      int(time.Now().Unix()),
		Chat:      &tgbotapi.Chat{ID: testChatID, Type: "private"},
		Voice:     &tgbotapi.Voice{FileID: "file-1", FileUniqueID: uniqueFileID, Duration: 3, FileSize: size},
	}
}

func commandMessage(text string, replyTo *tgbotapi.Message, userID int64) *tgbotapi.Message {
	command := strings.Fields(text)[0]
	return &tgbotapi.Message{
		MessageID:      2,
		From:           &tgbotapi.User{ID: userID},
		Date:           int(time.Now().Unix()),
		Chat:           &tgbotapi.Chat{ID: testChatID, Type: "private"},
		Text:           text,
		Entities:       []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}},
		ReplyToMessage: replyTo,
	}
}

func handle(h *harness, msg *tgbotapi.Message) {
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{UpdateID: 1, Message: msg})
}

func TestPipelineTranscribesAndTracks(t *testing.T) {
	h := newHarness(t, "Hallo Welt")

	handle(h, voiceMessage(1000))

	replies := h.tg.replyTexts()
	if len(replies) != 1 || replies[0] != "Hallo Welt" {
		t.Fatalf("expected single transcript reply, got %v", replies)
	}

	usages := h.usageStore.all()
	if len(usages) != 1 {
		t.Fatalf("expected one usage, got %d", len(usages))
	}
	u := usages[0]
	if u.ContextID != "" || u.UserID != testUserID || u.ReferenceID != uniqueFileID {
		t.Errorf("unexpected usage: %+v", u)
	}
	if _, err := strconv.Atoi(u.ResponseID); err != nil || u.ResponseID == "" {
		t.Errorf("expected response id to be the first reply's message id, got %q", u.ResponseID)
	}
}

func TestPipelineEmptyVoiceTranscript(t *testing.T) {
	h := newHarness(t, "")

	handle(h, voiceMessage(1000))

	if replies := h.tg.replyTexts(); len(replies) != 0 {
		t.Errorf("expected no replies, got %v", replies)
	}
	if len(h.tg.reactions) != 1 || h.tg.reactions[0] != reactionShrug {
		t.Errorf("expected one shrug reaction, got %v", h.tg.reactions)
	}

	usages := h.usageStore.all()
	if len(usages) != 1 {
		t.Fatalf("expected empty transcript to still be tracked, got %d usages", len(usages))
	}
	if usages[0].ResponseID != "" {
		t.Errorf("expected empty response id, got %q", usages[0].ResponseID)
	}
}

func TestPipelineEmptyAudioTranscriptNotTracked(t *testing.T) {
	h := newHarness(t, "")
	msg := voiceMessage(1000)
	msg.Voice = nil
	msg.Audio = &tgbotapi.Audio{FileID: "file-1", FileUniqueID: uniqueFileID, FileSize: 1000}

	handle(h, msg)

	if len(h.tg.reactions) != 0 {
		t.Errorf("expected no reaction for empty audio transcript, got %v", h.tg.reactions)
	}
	if usages := h.usageStore.all(); len(usages) != 0 {
		t.Errorf("expected no usage for empty audio transcript, got %v", usages)
	}
}

func TestPipelineOversizedFile(t *testing.T) {
	h := newHarness(t, "should never be reached")
	msg := voiceMessage(0)
	msg.Voice = nil
	msg.Audio = &tgbotapi.Audio{FileID: "file-1", FileUniqueID: uniqueFileID, FileSize: 25 * 1024 * 1024}

	handle(h, msg)

	replies := h.tg.replyTexts()
	if len(replies) != 1 || replies[0] != msgSizeLimit {
		t.Fatalf("expected exactly the size limit reply, got %v", replies)
	}
	if h.tg.downloads != 0 {
		t.Errorf("expected no download attempt, got %d", h.tg.downloads)
	}
	if usages := h.usageStore.all(); len(usages) != 0 {
		t.Errorf("expected no usage tracked, got %v", usages)
	}
}

func TestPipelineDeniedChat(t *testing.T) {
	h := newHarness(t, "nope")
	msg := voiceMessage(1000)
	msg.Chat = &tgbotapi.Chat{ID: 555, Type: "private"}

	handle(h, msg)
	handle(h, msg)

	if len(h.tg.notices) != 1 {
		t.Errorf("expected exactly one greenlist notice, got %d", len(h.tg.notices))
	}
	if len(h.tg.replyTexts()) != 0 || h.tg.downloads != 0 {
		t.Error("denied chat must not get replies or downloads")
	}
	if usages := h.usageStore.all(); len(usages) != 0 {
		t.Errorf("expected no usage tracked, got %v", usages)
	}
}

func TestPipelineRateLimitedPrivateChat(t *testing.T) {
	h := newHarness(t, "text")
	now := time.Now()
	for i := 0; i < dailyLimit; i++ {
		_ = h.usageStore.AddUsage(context.Background(), store.Usage{UserID: testUserID, AtTime: now})
	}

	handle(h, voiceMessage(1000))

	replies := h.tg.replyTexts()
	if len(replies) != 1 || replies[0] != msgRateLimited {
		t.Fatalf("expected rate limit reply, got %v", replies)
	}
	if h.tg.downloads != 0 {
		t.Error("rate limited update must not be downloaded")
	}
	if len(h.usageStore.all()) != dailyLimit {
		t.Error("rate limited update must not be tracked")
	}
}

func TestPipelineRateLimitedGroupChatReactsSilently(t *testing.T) {
	h := newHarness(t, "text")
	h.greenStore.state.AllowedChatIDs = append(h.greenStore.state.AllowedChatIDs, -200)
	now := time.Now()
	for i := 0; i < dailyLimit; i++ {
		_ = h.usageStore.AddUsage(context.Background(), store.Usage{UserID: testUserID, AtTime: now})
	}
	msg := voiceMessage(1000)
	msg.Chat = &tgbotapi.Chat{ID: -200, Type: "group"}

	handle(h, msg)

	if len(h.tg.replyTexts()) != 0 {
		t.Errorf("group chat rate limit must be silent, got replies %v", h.tg.replyTexts())
	}
	if len(h.tg.reactions) != 1 || h.tg.reactions[0] != reactionAcknowledge {
		t.Errorf("expected acknowledge reaction, got %v", h.tg.reactions)
	}
}

func TestPipelineChunksLongTranscript(t *testing.T) {
	h := newHarness(t, strings.TrimSpace(strings.Repeat("wort ", 1000)))

	handle(h, voiceMessage(1000))

	replies := h.tg.replyTexts()
	if len(replies) < 2 {
		t.Fatalf("expected chunked replies, got %d", len(replies))
	}
	if !strings.HasPrefix(replies[0], "[1/") {
		t.Errorf("first chunk not prefixed: %q", replies[0][:10])
	}

	usages := h.usageStore.all()
	if len(usages) != 1 {
		t.Fatalf("expected one usage after all chunks, got %d", len(usages))
	}
}

func TestRetryUsesResolvedLocale(t *testing.T) {
	h := newHarness(t, "hola")

	handle(h, commandMessage("/retry es", voiceMessage(1000), testUserID))

	h.transcriber.mu.Lock()
	locales := append([]string(nil), h.transcriber.locales...)
	h.transcriber.mu.Unlock()
	if len(locales) != 1 || locales[0] != "es-ES" {
		t.Fatalf("expected transcription with es-ES, got %v", locales)
	}

	usages := h.usageStore.all()
	if len(usages) != 1 {
		t.Fatalf("expected one usage, got %d", len(usages))
	}
	if want := usage.RetryContextID(uniqueFileID, "es-ES"); usages[0].ContextID != want {
		t.Errorf("usage context = %q, want %q", usages[0].ContextID, want)
	}
}

func TestRetrySecondAttemptRejectedBeforeDownload(t *testing.T) {
	h := newHarness(t, "hola")
	cmd := commandMessage("/retry es", voiceMessage(1000), testUserID)

	handle(h, cmd)
	downloadsAfterFirst := h.tg.downloads

	handle(h, cmd)

	if h.tg.downloads != downloadsAfterFirst {
		t.Errorf("second retry must be rejected before download, downloads went %d -> %d",
			downloadsAfterFirst, h.tg.downloads)
	}
	replies := h.tg.replyTexts()
	if replies[len(replies)-1] != msgRateLimited {
		t.Errorf("expected rate limit reply, got %q", replies[len(replies)-1])
	}
	if len(h.usageStore.all()) != 1 {
		t.Error("second retry must not be tracked")
	}
}

func TestRetryUnknownLocale(t *testing.T) {
	h := newHarness(t, "unused")

	handle(h, commandMessage("/retry xx", voiceMessage(1000), testUserID))

	replies := h.tg.replyTexts()
	if len(replies) != 1 || !strings.Contains(replies[0], "Unterstützt werden") {
		t.Fatalf("expected supported languages reply, got %v", replies)
	}
	if h.tg.downloads != 0 {
		t.Error("unknown locale must not start the pipeline")
	}
}

func TestRetryWithoutReplyTarget(t *testing.T) {
	h := newHarness(t, "unused")

	handle(h, commandMessage("/retry es", nil, testUserID))

	replies := h.tg.replyTexts()
	if len(replies) != 1 || replies[0] != msgRetryTarget {
		t.Fatalf("expected retry target instructions, got %v", replies)
	}
}

func TestRetryOnTextReply(t *testing.T) {
	h := newHarness(t, "unused")
	target := &tgbotapi.Message{
		MessageID: 5,
		From:      &tgbotapi.User{ID: testUserID},
		Chat:      &tgbotapi.Chat{ID: testChatID, Type: "private"},
		Text:      "just text",
	}

	handle(h, commandMessage("/retry es", target, testUserID))

	replies := h.tg.replyTexts()
	if len(replies) != 1 || replies[0] != msgRetryTarget {
		t.Fatalf("expected retry target instructions, got %v", replies)
	}
}

func TestAdminCommandRejectedForNonAdmin(t *testing.T) {
	h := newHarness(t, "unused")

	handle(h, commandMessage("/allow 555", nil, testUserID))

	if len(h.tg.reactions) != 1 || h.tg.reactions[0] != reactionRefuse {
		t.Fatalf("expected refusal reaction, got %v", h.tg.reactions)
	}
	if h.greenStore.state.IsAllowed(555) {
		t.Error("non-admin must not change the greenlist")
	}
}

func TestAdminAllowAndDeny(t *testing.T) {
	h := newHarness(t, "unused")

	handle(h, commandMessage("/allow 555", nil, testAdminID))
	if !h.greenStore.state.IsAllowed(555) {
		t.Fatal("expected 555 allowed after admin /allow")
	}

	handle(h, commandMessage("/deny 555", nil, testAdminID))
	if h.greenStore.state.IsAllowed(555) {
		t.Fatal("expected 555 removed after admin /deny")
	}
}

func TestAdminAllowDefaultsToCurrentChat(t *testing.T) {
	h := newHarness(t, "unused")
	h.greenStore.state = store.GreenlistState{}

	handle(h, commandMessage("/allow", nil, testAdminID))

	if !h.greenStore.state.IsAllowed(testChatID) {
		t.Error("expected /allow without argument to target the current chat")
	}
}

func TestUpdateWithoutMessageIgnored(t *testing.T) {
	h := newHarness(t, "unused")

	h.bot.handleUpdate(context.Background(), tgbotapi.Update{
		UpdateID:      1,
		EditedMessage: voiceMessage(1000),
	})

	if h.tg.downloads != 0 || len(h.tg.replyTexts()) != 0 {
		t.Error("edited messages must be ignored")
	}
}

func TestTransientConversionErrorDropsSilently(t *testing.T) {
	h := newHarness(t, "unused")
	h.bot.deps.Converter = &fakeConverter{err: context.DeadlineExceeded}

	handle(h, voiceMessage(1000))

	if len(h.tg.replyTexts()) != 0 {
		t.Errorf("conversion failure must not produce a reply, got %v", h.tg.replyTexts())
	}
	if usages := h.usageStore.all(); len(usages) != 0 {
		t.Errorf("conversion failure must not be tracked, got %v", usages)
	}
}
