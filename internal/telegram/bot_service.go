// Package telegram handles the integration with the Telegram Bot API.
// It is responsible for receiving updates from Telegram, processing them,
// and communicating with the central chat hub.
package telegram

import (
	"context"
	"encoding/json"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/localization"
	"strangerchat/backend/internal/models"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// messenger sends plain text to a Telegram chat.
type messenger interface {
	SendText(chatID int64, text string) error
}

type botMessenger struct {
	api *tgbotapi.BotAPI
}

func (b botMessenger) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}

// BotService is responsible for receiving Telegram updates and routing them to the hub.
// Every Telegram chat becomes one hub connection.
type BotService struct {
	BotAPI    *tgbotapi.BotAPI
	Hub       *chathub.ManagerService
	Localizer *localization.Localizer

	out        messenger
	sendBuffer int
	log        *zap.Logger

	// clients is touched only by the update loop.
	clients map[int64]*Client
}

// NewBotService creates a new BotService instance.
func NewBotService(token string, hub *chathub.ManagerService, loc *localization.Localizer, sendBuffer int, log *zap.Logger) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Info("telegram bot authorized", zap.String("account", bot.Self.UserName))

	s := newBotService(botMessenger{api: bot}, hub, loc, sendBuffer, log)
	s.BotAPI = bot
	return s, nil
}

func newBotService(out messenger, hub *chathub.ManagerService, loc *localization.Localizer, sendBuffer int, log *zap.Logger) *BotService {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &BotService{
		Hub:        hub,
		Localizer:  loc,
		out:        out,
		sendBuffer: sendBuffer,
		log:        log.Named("telegram"),
		clients:    make(map[int64]*Client),
	}
}

// Run is the main loop for receiving Telegram updates. It returns when ctx is done.
func (s *BotService) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)
	defer s.BotAPI.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			msg := update.Message
			lang := ""
			if msg.From != nil {
				lang = msg.From.LanguageCode
			}
			if msg.Text == "" {
				s.reply(msg.Chat.ID, lang, "unsupported_message_type")
				continue
			}
			s.handleText(msg.Chat.ID, lang, msg.Text)
		}
	}
}

// getOrCreateClient retrieves the live client for chatID or registers a new one.
func (s *BotService) getOrCreateClient(chatID int64, lang string) *Client {
	if c, ok := s.clients[chatID]; ok && !c.Closed() {
		return c
	}

	c := newClient(chatID, s.pickLanguage(lang), s.sendBuffer, s.out, s.Localizer, s.log)
	if !s.Hub.Register(c) {
		return nil
	}
	c.Run()
	s.clients[chatID] = c
	return c
}

func (s *BotService) pickLanguage(code string) string {
	code = strings.ToLower(code)
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if s.Localizer.Has(code) {
		return code
	}
	return localization.DefaultLanguage
}

// handleText processes commands and plain messages from one chat.
func (s *BotService) handleText(chatID int64, lang, text string) {
	c := s.getOrCreateClient(chatID, lang)
	if c == nil {
		return
	}

	if !strings.HasPrefix(text, "/") {
		partner := c.Partner()
		if partner == "" {
			s.reply(chatID, c.Language(), "not_in_chat")
			return
		}
		s.dispatch(c, models.EventMessage, models.MessageRequest{To: partner, Text: text})
		return
	}

	command, args := splitCommand(text)
	switch command {
	case "start", "help":
		s.reply(chatID, c.Language(), "start")
	case "search", "next":
		s.dispatch(c, models.EventSearch, models.SearchRequest{Mode: models.ModeText, Language: c.Language()})
	case "interests":
		interests := models.NormalizeInterests(strings.Split(args, ","))
		if len(interests) == 0 {
			s.reply(chatID, c.Language(), "interests_usage")
			return
		}
		s.dispatch(c, models.EventSearch, models.SearchRequest{Mode: models.ModeInterests, Language: c.Language(), Interests: interests})
	case "stop":
		wasChatting := c.Partner() != ""
		s.dispatch(c, models.EventEndChat, nil)
		if !wasChatting {
			s.reply(chatID, c.Language(), "search_cancelled")
		}
	case "lang", "language":
		code := strings.TrimSpace(strings.ToLower(args))
		if !s.Localizer.Has(code) {
			s.reply(chatID, c.Language(), "language_usage")
			return
		}
		c.SetLanguage(code)
		s.reply(chatID, code, "language_changed")
	default:
		s.reply(chatID, c.Language(), "unknown_command")
	}
}

func (s *BotService) dispatch(c *Client, typ string, data any) {
	ev := models.InboundEvent{Type: typ, SenderID: c.ID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			s.log.Error("encode inbound event", zap.String("event", typ), zap.Error(err))
			return
		}
		ev.Data = raw
	}
	s.Hub.Dispatch(ev)
}

func (s *BotService) reply(chatID int64, lang, key string) {
	if err := s.out.SendText(chatID, s.Localizer.GetString(s.pickLanguage(lang), key)); err != nil {
		s.log.Warn("failed to send telegram reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// splitCommand turns "/interests@MyBot a, b" into ("interests", "a, b").
func splitCommand(text string) (string, string) {
	parts := strings.SplitN(strings.TrimPrefix(text, "/"), " ", 2)
	command := parts[0]
	if i := strings.IndexByte(command, '@'); i >= 0 {
		command = command[:i]
	}
	args := ""
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}
	return strings.ToLower(command), args
}
