// Package telegram handles the integration with the Telegram Bot API.
// It is responsible for receiving updates from Telegram, processing them,
// and communicating with the central chat hub. Telegram chats only take
// part in text sessions.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	"randomchat/backend/internal/chathub"
	"randomchat/backend/internal/localization"
	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"
	"randomchat/backend/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const hubTimeout = 5 * time.Second

// BotService is responsible for receiving Telegram updates and routing them to the hub.
type BotService struct {
	BotAPI    *tgbotapi.BotAPI
	Hub       *chathub.ManagerService
	Localizer *localization.Localizer
	Messenger Messenger
}

// NewBotService creates a new BotService instance.
func NewBotService(token string, hub *chathub.ManagerService, loc *localization.Localizer) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	logger.Infof("telegram: authorized on account %s", bot.Self.UserName)

	s := newService(hub, loc, botMessenger{api: bot})
	s.BotAPI = bot
	return s, nil
}

func newService(hub *chathub.ManagerService, loc *localization.Localizer, m Messenger) *BotService {
	if loc == nil {
		loc = localization.Bundled()
	}
	return &BotService{Hub: hub, Localizer: loc, Messenger: m}
}

// Run polls Telegram until ctx is done.
func (s *BotService) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)
	logger.Infof("telegram: polling for updates")

	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			s.handle(fromMessage(update.Message))
		case <-ctx.Done():
			s.BotAPI.StopReceivingUpdates()
			return
		}
	}
}

// incoming is the part of a Telegram message the bot acts on.
type incoming struct {
	ChatID  int64
	Lang    string
	Command string
	Text    string
}

func fromMessage(msg *tgbotapi.Message) incoming {
	in := incoming{ChatID: msg.Chat.ID, Text: msg.Text}
	if msg.From != nil {
		in.Lang = localization.Normalize(msg.From.LanguageCode)
	}
	if msg.IsCommand() {
		in.Command = msg.Command()
	}
	return in
}

// client returns the hub client of chatID, registering it on first contact.
// Telegram has no connection to lose, so these clients stay registered.
func (s *BotService) client(chatID int64, lang string) *Client {
	if existing, ok := s.Hub.Client(UserID(chatID)); ok {
		if c, ok := existing.(*Client); ok {
			c.setLang(lang)
			return c
		}
	}
	c := newClient(chatID, lang, s.Messenger, s.Localizer)
	c.Run()
	if !s.Hub.Register(c) {
		logger.Warnf("telegram: hub stopped, %s not registered", c.UserID)
	}
	return c
}

func (s *BotService) handle(in incoming) {
	c := s.client(in.ChatID, in.Lang)
	ctx, cancel := context.WithTimeout(context.Background(), hubTimeout)
	defer cancel()

	if s.Hub.Presence != nil {
		if err := s.Hub.Presence.Heartbeat(ctx, c.UserID); err != nil {
			logger.Debugf("telegram: heartbeat %s: %v", c.UserID, err)
		}
	}

	switch in.Command {
	case "start":
		c.reply("tg.welcome")
	case "help":
		c.reply("tg.help")
	case "find", "next":
		if err := s.Hub.FindStranger(ctx, c.UserID, models.ModeText); err != nil {
			c.reply(errorKey(err))
		}
	case "cancel":
		if !s.Hub.CancelSearch(c.UserID) {
			c.reply("tg.nothing_to_cancel")
		}
	case "stop":
		if _, err := s.Hub.EndSession(c.UserID); err != nil {
			c.reply("tg.not_in_session")
			return
		}
		c.reply("tg.you_left")
	case "":
		s.relay(c, in.Text)
	default:
		c.reply("tg.help")
	}
}

func (s *BotService) relay(c *Client, text string) {
	if strings.TrimSpace(text) == "" {
		c.reply("tg.unsupported")
		return
	}
	sess, ok := s.Hub.CurrentSession(c.UserID)
	if !ok || sess.Mode != models.ModeText {
		c.reply("tg.not_in_session")
		return
	}
	if _, err := s.Hub.SendMessage(sess.ID, c.UserID, text); err != nil {
		c.reply(errorKey(err))
	}
}

func errorKey(err error) string {
	switch {
	case errors.Is(err, session.ErrMessageTooLong):
		return "error.message_too_long"
	case errors.Is(err, session.ErrEmptyMessage):
		return "error.empty_message"
	case errors.Is(err, session.ErrNotFound), errors.Is(err, chathub.ErrNoSession):
		return "tg.not_in_session"
	case errors.Is(err, chathub.ErrMatcherStopped):
		return "error.unavailable"
	}
	logger.Errorf("telegram: %v", err)
	return "error.internal"
}
