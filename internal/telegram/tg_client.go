package telegram

import (
	"strconv"
	"strings"
	"sync"

	"randomchat/backend/internal/localization"
	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	userIDPrefix = "tg:"
	sendBuffer   = 32
)

// UserID is the hub identity of a Telegram chat.
func UserID(chatID int64) string {
	return userIDPrefix + strconv.FormatInt(chatID, 10)
}

// ChatID parses a hub identity produced by UserID.
func ChatID(userID string) (int64, bool) {
	if !strings.HasPrefix(userID, userIDPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(userID, userIDPrefix), 10, 64)
	return id, err == nil
}

// Messenger delivers rendered output to a Telegram chat.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendTyping(chatID int64) error
}

type botMessenger struct {
	api *tgbotapi.BotAPI
}

func (m botMessenger) SendText(chatID int64, text string) error {
	_, err := m.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (m botMessenger) SendTyping(chatID int64) error {
	_, err := m.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

// Client реалізує інтерфейс chathub.Client
type Client struct {
	UserID    string
	ChatID    int64
	Send      chan models.Event
	Messenger Messenger
	Localizer *localization.Localizer

	mu   sync.Mutex
	lang string

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(chatID int64, lang string, m Messenger, loc *localization.Localizer) *Client {
	return &Client{
		UserID:    UserID(chatID),
		ChatID:    chatID,
		Send:      make(chan models.Event, sendBuffer),
		Messenger: m,
		Localizer: loc,
		lang:      lang,
		done:      make(chan struct{}),
	}
}

func (c *Client) GetUserID() string                   { return c.UserID }
func (c *Client) GetSendChannel() chan<- models.Event { return c.Send }

// Run запускає 'write pump'. 'Read pump' обробляється централізовано.
func (c *Client) Run() {
	go c.writePump()
}

// Close закриває Send канал
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// Done is closed when the write pump has exited.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) setLang(lang string) {
	if lang == "" {
		return
	}
	c.mu.Lock()
	c.lang = lang
	c.mu.Unlock()
}

func (c *Client) text(key string) string {
	c.mu.Lock()
	lang := c.lang
	c.mu.Unlock()
	return c.Localizer.GetString(lang, key)
}

func (c *Client) reply(key string) {
	c.deliver(c.text(key))
}

func (c *Client) deliver(text string) {
	if err := c.Messenger.SendText(c.ChatID, text); err != nil {
		logger.Warnf("telegram: send to %d: %v", c.ChatID, err)
	}
}

// writePump слухає канал Send і надсилає повідомлення в Telegram
func (c *Client) writePump() {
	defer close(c.done)
	for ev := range c.Send {
		switch ev.Type {
		case models.EventSearchStarted:
			c.reply("tg.searching")
		case models.EventMatchFound:
			c.reply("tg.match_found")
		case models.EventNoMatch:
			c.reply("tg.no_match")
		case models.EventSearchCanceled:
			c.reply("tg.search_canceled")
		case models.EventSessionEnded:
			c.reply("tg.partner_left")
		case models.EventMessage:
			if ev.Message != nil {
				c.deliver(ev.Message.Text)
			}
		case models.EventTyping:
			if ev.Typing != nil && *ev.Typing {
				if err := c.Messenger.SendTyping(c.ChatID); err != nil {
					logger.Debugf("telegram: typing to %d: %v", c.ChatID, err)
				}
			}
		case models.EventError:
			c.deliver(ev.Content)
		default:
			logger.Debugf("telegram: unhandled event %s for %d", ev.Type, c.ChatID)
		}
	}
	logger.Debugf("telegram: write pump for %d stopped", c.ChatID)
}
