package telegram

import (
	"strangerchat/backend/internal/localization"
	"strangerchat/backend/internal/models"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// IDPrefix marks hub connection ids that belong to Telegram chats.
const IDPrefix = "tg:"

// Client реалізує інтерфейс chathub.Client для одного Telegram-чату
type Client struct {
	ChatID int64
	ID     string
	Send   chan models.Event

	out       messenger
	localizer *localization.Localizer
	log       *zap.Logger

	mu      sync.Mutex
	lang    string
	partner string
	closed  bool
	once    sync.Once
}

func newClient(chatID int64, lang string, buf int, out messenger, loc *localization.Localizer, log *zap.Logger) *Client {
	id := IDPrefix + strconv.FormatInt(chatID, 10)
	return &Client{
		ChatID:    chatID,
		ID:        id,
		Send:      make(chan models.Event, buf),
		out:       out,
		localizer: loc,
		lang:      lang,
		log:       log.With(zap.String("conn_id", id)),
	}
}

// --- Реалізація методів інтерфейсу ---

func (c *Client) GetUserID() string                   { return c.ID }
func (c *Client) GetSendChannel() chan<- models.Event { return c.Send }

// Run запускає 'write pump'. 'Read pump' обробляється централізовано в BotService.
func (c *Client) Run() {
	go c.writePump()
}

// Close закриває Send канал
func (c *Client) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.Send)
	})
}

// Partner returns the id plain-text messages are relayed to.
func (c *Client) Partner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partner
}

func (c *Client) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lang
}

func (c *Client) SetLanguage(lang string) {
	c.mu.Lock()
	c.lang = lang
	c.mu.Unlock()
}

// Closed reports whether the hub has let go of this client.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// writePump слухає канал Send і надсилає повідомлення в Telegram
func (c *Client) writePump() {
	defer c.log.Debug("telegram write pump stopped")

	for ev := range c.Send {
		text, ok := c.render(ev)
		if !ok {
			continue
		}
		if err := c.out.SendText(c.ChatID, text); err != nil {
			c.log.Warn("failed to send telegram message", zap.String("event", ev.Type), zap.Error(err))
		}
	}
}

// render turns a hub event into chat text and tracks the partner. It returns
// false for events that have no Telegram representation.
func (c *Client) render(ev models.Event) (string, bool) {
	lang := c.Language()

	switch data := ev.Data.(type) {
	case models.Searching:
		return c.localizer.GetString(lang, "searching"), true
	case models.SearchRejected:
		return c.localizer.Format(lang, "search_rejected", data.Reason), true
	case models.SearchTimeout:
		return c.localizer.GetString(lang, "search_timeout"), true
	case models.Matched:
		c.setPartner(data.PartnerID)
		return c.localizer.GetString(lang, "match_found"), true
	case models.InterestsMatched:
		c.setPartner(data.PartnerID)
		common := strings.Join(data.CommonInterests, ", ")
		if common == "" {
			common = c.localizer.GetString(lang, "no_common_interests")
		}
		return c.localizer.Format(lang, "interests_match_found", common), true
	case models.RelayedMessage:
		return c.localizer.Format(lang, "partner_message", data.Text), true
	}

	switch ev.Type {
	case models.EventPartnerDisconnected:
		c.setPartner("")
		return c.localizer.GetString(lang, "partner_left"), true
	case models.EventChatEnded:
		c.setPartner("")
		return c.localizer.GetString(lang, "chat_ended"), true
	case models.EventWelcome, models.EventTyping, models.EventSignal:
		return "", false
	}

	c.log.Debug("unhandled event for telegram client", zap.String("event", ev.Type))
	return "", false
}

func (c *Client) setPartner(id string) {
	c.mu.Lock()
	c.partner = id
	c.mu.Unlock()
}
