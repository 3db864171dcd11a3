// Package telegram wraps the Bot API client: update polling, replies,
// reactions, and media downloads.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const pollTimeoutSeconds = 30

type Client struct {
	api        *tgbotapi.BotAPI
	downloader *http.Client
	log        *zap.SugaredLogger
}

func NewClient(token string, log *zap.SugaredLogger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram client: %w", err)
	}
	log.Infow("authorized on telegram", "username", api.Self.UserName)
	return &Client{
		api:        api,
		downloader: &http.Client{},
		log:        log,
	}, nil
}

// Updates returns the long-polling update channel.
func (c *Client) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds
	return c.api.GetUpdatesChan(u)
}

// Stop makes the update channel drain and close; in-flight handlers are not
// affected.
func (c *Client) Stop() {
	c.api.StopReceivingUpdates()
}

// SendText sends a plain message to a chat.
func (c *Client) SendText(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := c.api.Send(msg)
	return err
}

// ReplyText sends a non-notifying reply and returns the sent message id.
func (c *Client) ReplyText(_ context.Context, chatID int64, messageID int, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = messageID
	msg.DisableNotification = true
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// React sets a single emoji reaction on a message. The client library predates
// the reactions API, so this goes through a raw request.
func (c *Client) React(_ context.Context, chatID int64, messageID int, emoji string) error {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("message_id", messageID)
	if err := params.AddInterface("reaction", []map[string]string{{"type": "emoji", "emoji": emoji}}); err != nil {
		return err
	}
	_, err := c.api.MakeRequest("setMessageReaction", params)
	return err
}

// Download fetches the file behind fileID into dir and returns the local path.
// The local name is the basename of the remote path, or the opaque file id
// when the API returns no path.
func (c *Client) Download(ctx context.Context, fileID, dir string) (string, error) {
	file, err := c.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file %s: %w", fileID, err)
	}

	name := fileID
	if file.FilePath != "" {
		name = path.Base(file.FilePath)
	}
	localPath := filepath.Join(dir, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(c.api.Token), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.downloader.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: http %d", fileID, resp.StatusCode)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("write %s: %w", localPath, err)
	}
	return localPath, nil
}
