package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"sunbird-adapter/pkg/channel"
	"sunbird-adapter/pkg/channel/sunbird"
	"sunbird-adapter/pkg/config"
	"sunbird-adapter/pkg/message"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/samber/lo"
)

const channelName = "telegram"
const messagePreviewLimit = 240
const typingRefreshInterval = 4 * time.Second

// botAPI is the subset of *telego.Bot the adapter sends through.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
}

// Adapter bridges Telegram updates and canonical messages.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	admin     string
	bot       botAPI
	poller    *telego.Bot
	now       func() time.Time
	log       *slog.Logger
}

var (
	_ channel.Sender                    = (*Adapter)(nil)
	_ channel.Runner                    = (*Adapter)(nil)
	_ channel.Converter[*telego.Message] = (*Adapter)(nil)
)

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, adminUserID string, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	adapter := newAdapter(cfg, adminUserID, bot, log)
	adapter.poller = bot
	return adapter, nil
}

func newAdapter(cfg config.TelegramConfig, adminUserID string, bot botAPI, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(adminUserID) == "" {
		adminUserID = sunbird.DefaultAdminUserID
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		admin:     adminUserID,
		bot:       bot,
		now:       time.Now,
		log:       log.With("component", "channel.telegram"),
	}
}

// Name returns the channel identifier used in canonical messages and logs.
func (a *Adapter) Name() string {
	return channelName
}

// ConvertInbound maps one Telegram text message onto a canonical message.
// The chat id becomes the reply id so answers land in the same chat.
func (a *Adapter) ConvertInbound(raw *telego.Message) (message.Message, error) {
	if raw == nil {
		return message.Message{}, channel.Validation("convert telegram message", "message is required")
	}

	content := strings.TrimSpace(raw.Text)
	var missing []string
	if content == "" {
		missing = append(missing, "text")
	}
	if raw.From == nil {
		missing = append(missing, "from")
	}
	if len(missing) > 0 {
		return message.Message{}, channel.Validation("convert telegram message", "missing required fields: "+strings.Join(missing, ", "))
	}

	return message.Message{
		From: message.Address{UserID: strconv.FormatInt(raw.From.ID, 10)},
		To:   message.Address{UserID: a.admin},
		MessageID: message.MessageID{
			ChannelMessageID: strconv.Itoa(raw.MessageID),
			ReplyID:          strconv.FormatInt(raw.Chat.ID, 10),
		},
		State:     message.StateReplied,
		Type:      message.TypeText,
		Channel:   channelName,
		Provider:  channelName,
		Timestamp: a.now(),
		Payload:   message.Payload{Text: content},
	}, nil
}

// ConvertCallback maps an inline keyboard tap onto a canonical message. The
// callback data is the chosen key, so the handler sees it as the user's answer.
func (a *Adapter) ConvertCallback(query *telego.CallbackQuery) (message.Message, error) {
	if query == nil {
		return message.Message{}, channel.Validation("convert telegram callback", "callback query is required")
	}

	data := strings.TrimSpace(query.Data)
	var missing []string
	if data == "" {
		missing = append(missing, "data")
	}
	if query.Message == nil {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return message.Message{}, channel.Validation("convert telegram callback", "missing required fields: "+strings.Join(missing, ", "))
	}

	return message.Message{
		From: message.Address{UserID: strconv.FormatInt(query.From.ID, 10)},
		To:   message.Address{UserID: a.admin},
		MessageID: message.MessageID{
			ChannelMessageID: query.ID,
			ReplyID:          strconv.FormatInt(query.Message.GetChat().ID, 10),
		},
		State:     message.StateReplied,
		Type:      message.TypeText,
		Channel:   channelName,
		Provider:  channelName,
		Timestamp: a.now(),
		Payload:   message.Payload{Text: data},
	}, nil
}

// SendOutbound sends msg to the chat named by its reply id. Choices are shown
// as an inline keyboard whose callback data is the choice key.
func (a *Adapter) SendOutbound(ctx context.Context, msg message.Message) (message.Message, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.MessageID.ReplyID), 10, 64)
	if err != nil {
		return message.Message{}, channel.Serialization("build telegram message", fmt.Errorf("reply id %q is not a chat id: %w", msg.MessageID.ReplyID, err))
	}

	params, payload := buildSendParams(chatID, msg)
	if strings.TrimSpace(params.Text) == "" {
		return message.Message{}, channel.Serialization("build telegram message", errors.New("message has no text"))
	}

	a.log.Info("Sending message", "chat_id", chatID, "content", previewText(params.Text))

	sent, err := a.bot.SendMessage(ctx, params)
	if err != nil {
		a.log.Debug("Failed to send telegram message", "error", err)
		return message.Message{}, fmt.Errorf("send %s message: %w", channelName, channel.Transport("send message", err))
	}
	if sent == nil {
		return message.Message{}, channel.Transportf("send message", "telegram returned no message")
	}

	acked := msg.Clone()
	acked.Payload = payload
	return acked.Acknowledge(strconv.Itoa(sent.MessageID)), nil
}

// SendOutboundAsync sends msg on its own goroutine; see channel.SendAsync.
func (a *Adapter) SendOutboundAsync(ctx context.Context, msg message.Message) <-chan channel.Result {
	return channel.SendAsync(ctx, msg.Clone(), a.SendOutbound)
}

// Run starts Telegram long polling and hands canonical messages to handler.
// A reply returned by the handler is sent back to the originating chat.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	if a.poller == nil {
		return errors.New("long polling requires a telegram bot client")
	}

	updates, err := a.poller.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			switch {
			case update.Message != nil:
				a.handleMessage(ctx, update.Message, handler)
			case update.CallbackQuery != nil:
				a.handleCallback(ctx, update.CallbackQuery, handler)
			}
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, raw *telego.Message, handler channel.Handler) {
	inbound, err := a.ConvertInbound(raw)
	if err != nil {
		a.log.Debug("Ignoring telegram message", "error", err)
		return
	}

	a.dispatch(ctx, inbound, raw.Chat.ID, handler)
}

// handleCallback answers the query first so the client stops its spinner,
// then routes the chosen key like a typed reply.
func (a *Adapter) handleCallback(ctx context.Context, query *telego.CallbackQuery, handler channel.Handler) {
	if err := a.bot.AnswerCallbackQuery(ctx, tu.CallbackQuery(query.ID)); err != nil {
		a.log.Debug("Failed to answer callback query", "query_id", query.ID, "error", err)
	}

	inbound, err := a.ConvertCallback(query)
	if err != nil {
		a.log.Debug("Ignoring telegram callback", "error", err)
		return
	}

	a.dispatch(ctx, inbound, query.Message.GetChat().ID, handler)
}

func (a *Adapter) dispatch(ctx context.Context, inbound message.Message, chatID int64, handler channel.Handler) {
	if !a.senderAllowed(inbound.From.UserID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", inbound.From.UserID)
		return
	}

	a.log.Info("Received message", "chat_id", inbound.MessageID.ReplyID, "sender_id", inbound.From.UserID, "content", previewText(inbound.Payload.Text))

	stopTyping := a.startTypingIndicator(ctx, chatID)
	reply, err := handler(ctx, inbound)
	stopTyping()
	if err != nil {
		a.log.Error("Failed to process inbound message", "error", err)
		return
	}
	if reply == nil {
		return
	}

	if reply.MessageID.ReplyID == "" {
		reply.MessageID.ReplyID = inbound.MessageID.ReplyID
	}
	if _, err := a.SendOutbound(ctx, *reply); err != nil {
		a.log.Error("Failed to send reply", "error", err)
	}
}

func buildSendParams(chatID int64, msg message.Message) (*telego.SendMessageParams, message.Payload) {
	payload := message.Payload{
		Text:          sunbird.CleanText(msg.Payload.Text),
		ButtonChoices: sunbird.EncodeUnkeyed(msg.Payload.ButtonChoices),
	}

	params := tu.Message(tu.ID(chatID), payload.Text)

	buttons := lo.FilterMap(payload.ButtonChoices, func(choice message.ButtonChoice, _ int) ([]telego.InlineKeyboardButton, bool) {
		label := strings.TrimSpace(choice.Key + " " + choice.Text)
		if label == "" {
			return nil, false
		}
		data := choice.Key
		if data == "" {
			data = label
		}
		return tu.InlineKeyboardRow(tu.InlineKeyboardButton(label).WithCallbackData(data)), true
	})
	if len(buttons) == 0 {
		return params, payload
	}

	return params.WithReplyMarkup(tu.InlineKeyboard(buttons...)), payload
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	runes := []rune(trimmed)
	if len(runes) <= messagePreviewLimit {
		return trimmed
	}
	return string(runes[:messagePreviewLimit]) + "..."
}

// startTypingIndicator sends an initial typing action and refreshes it periodically
// until the returned cancel function is called.
func (a *Adapter) startTypingIndicator(ctx context.Context, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := a.bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
