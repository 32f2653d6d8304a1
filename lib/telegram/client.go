package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("telegram")

type Options struct {
	Token string
	// BaseUrl overrides the production api server, used in tests.
	BaseUrl string
}

// Client is a minimal Bot API client covering the methods this service
// needs. Safe for concurrent use.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	token   string
}

func NewClient(opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("a bot token is required")
	}
	base := opts.BaseUrl
	if base == "" {
		base = "https://api.telegram.org"
	}

	http := resty.New()
	http.SetBaseURL(fmt.Sprintf("%s/bot%s", base, opts.Token))
	// the client timeout must outlive a full getUpdates long poll
	http.SetTimeout(time.Second * 60)

	c := &Client{
		http: http,
		// telegram caps bots at roughly 30 outbound messages per
		// second across all chats
		limiter: rate.NewLimiter(25, 5),
		token:   opts.Token,
	}
	http.OnBeforeRequest(func(cli *resty.Client, req *resty.Request) error {
		return c.limiter.Wait(req.Context())
	})
	return c, nil
}

type apiResponse struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// invoke posts one api method. Spans carry the method name only, the
// url and payloads stay out: the bot token lives in the request path
// and message bodies belong to users.
func (c *Client) invoke(ctx context.Context, method string, payload any, out any) error {
	ctx, span := tracer.Start(ctx, method)
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(payload).
		Post("/" + method)
	if err != nil {
		err = c.redact(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	var envelope apiResponse
	err = json.Unmarshal(res.Body(), &envelope)
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse api response")
		return fmt.Errorf("%s: parse response: %w", method, err)
	}
	if !envelope.Ok {
		err = fmt.Errorf("%s: api error %d: %s", method, envelope.ErrorCode, envelope.Description)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if out != nil && len(envelope.Result) > 0 {
		err = json.Unmarshal(envelope.Result, out)
		if err != nil {
			return fmt.Errorf("%s: parse result: %w", method, err)
		}
	}
	return nil
}

// redact keeps the bot token out of transport errors, they embed the
// request url.
func (c *Client) redact(err error) error {
	return fmt.Errorf("telegram: %s", strings.ReplaceAll(err.Error(), c.token, "<token>"))
}

func (c *Client) GetMe(ctx context.Context) (User, error) {
	var me User
	err := c.invoke(ctx, "getMe", struct{}{}, &me)
	return me, err
}

func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := c.invoke(ctx, "getUpdates", struct {
		Offset         int64    `json:"offset,omitempty"`
		Timeout        int      `json:"timeout"`
		AllowedUpdates []string `json:"allowed_updates"`
	}{
		Offset:         offset,
		Timeout:        int(timeout.Seconds()),
		AllowedUpdates: []string{"message", "callback_query", "my_chat_member"},
	}, &updates)
	return updates, err
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (Message, error) {
	return c.sendMessage(ctx, chatID, text, nil)
}

func (c *Client) SendMessageWithKeyboard(ctx context.Context, chatID int64, text string, keyboard InlineKeyboardMarkup) (Message, error) {
	return c.sendMessage(ctx, chatID, text, &keyboard)
}

func (c *Client) sendMessage(ctx context.Context, chatID int64, text string, keyboard *InlineKeyboardMarkup) (Message, error) {
	var sent Message
	err := c.invoke(ctx, "sendMessage", struct {
		ChatID      int64                 `json:"chat_id"`
		Text        string                `json:"text"`
		ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	}{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: keyboard,
	}, &sent)
	return sent, err
}

func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int64, text string) error {
	return c.invoke(ctx, "editMessageText", struct {
		ChatID    int64  `json:"chat_id"`
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
	}{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	}, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int64) error {
	return c.invoke(ctx, "deleteMessage", struct {
		ChatID    int64 `json:"chat_id"`
		MessageID int64 `json:"message_id"`
	}{
		ChatID:    chatID,
		MessageID: messageID,
	}, nil)
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error {
	return c.invoke(ctx, "answerCallbackQuery", struct {
		CallbackQueryID string `json:"callback_query_id"`
	}{
		CallbackQueryID: callbackQueryID,
	}, nil)
}
