package relay

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the subset of *tgbotapi.BotAPI the relay uses.
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Replier produces the text sent back for a chat message.
type Replier interface {
	Reply(ctx context.Context, sessionID, text string) string
}

// Bot relays Telegram text messages to the chat API.  The chat id is used
// as the session id so every Telegram conversation keeps its own memory.
type Bot struct {
	api     BotAPI
	replier Replier
	logger  *slog.Logger
}

// NewTelegramAPI connects to Telegram with token.
func NewTelegramAPI(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

// NewBot constructs a relay bot.
func NewBot(api BotAPI, replier Replier, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{api: api, replier: replier, logger: logger}
}

// Run long-polls for updates until ctx is cancelled.  Each message is
// handled in its own goroutine; Run waits for in-flight messages before
// returning.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("bot is polling for updates")

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if !relayable(update) {
				continue
			}
			wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer wg.Done()
				b.handle(ctx, msg)
			}(update.Message)
		}
	}
}

// relayable reports whether update carries plain text that is not a command.
func relayable(update tgbotapi.Update) bool {
	msg := update.Message
	return msg != nil && msg.Text != "" && !msg.IsCommand()
}

func (b *Bot) handle(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	b.logger.Info("received message", "chat_id", chatID)

	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Warn("send typing action", "chat_id", chatID, "error", err)
	}
	reply := b.replier.Reply(ctx, strconv.FormatInt(chatID, 10), msg.Text)
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, reply)); err != nil {
		b.logger.Error("send reply", "chat_id", chatID, "error", err)
	}
}
