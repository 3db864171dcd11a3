package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

type MediaKind int

const (
	KindVoice MediaKind = iota
	KindAudio
	KindVideoNote
)

func (k MediaKind) String() string {
	switch k {
	case KindVoice:
		return "voice"
	case KindAudio:
		return "audio"
	case KindVideoNote:
		return "video_note"
	}
	return "unknown"
}

// Media is the closed set of audio-like payloads the bot processes, resolved
// once at ingress instead of probing message fields ad hoc.
type Media struct {
	Kind         MediaKind
	FileID       string
	UniqueFileID string
	FileSize     int64
	Duration     int
}

// MediaFrom extracts the audio-like payload from a message, if any.
func MediaFrom(msg *tgbotapi.Message) (Media, bool) {
	switch {
	case msg.Voice != nil:
		v := msg.Voice
		return Media{KindVoice, v.FileID, v.FileUniqueID, int64(v.FileSize), v.Duration}, true
	case msg.Audio != nil:
		a := msg.Audio
		return Media{KindAudio, a.FileID, a.FileUniqueID, int64(a.FileSize), a.Duration}, true
	case msg.VideoNote != nil:
		n := msg.VideoNote
		return Media{KindVideoNote, n.FileID, n.FileUniqueID, int64(n.FileSize), n.Duration}, true
	}
	return Media{}, false
}
