// Package slackclient wraps the Slack Web API calls the bot needs: channel
// lookup, history paging, user lookup and posting. Every call waits on a
// shared rate limiter first. Failures are logged and reported as "no data"
// where callers are expected to degrade rather than abort.
package slackclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/purchasebot/internal/conversation"
	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

// Defaults.
const (
	HistoryPageSize  = 1000
	ChannelPageSize  = 1000
	DefaultRateLimit = 1.0
	DefaultBurst     = 5
)

var channelIDPattern = regexp.MustCompile(`^[CG][A-Z0-9]{6,}$`)

// Config configures a Client.
type Config struct {
	Token string

	// APIURL overrides the Web API base URL. Must end with a slash.
	APIURL string

	// RateLimit is the sustained requests per second; Burst the bucket size.
	RateLimit float64
	Burst     int

	HTTPClient *http.Client
}

// Client is a rate-limited Slack Web API client.
type Client struct {
	api     *slack.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("slack bot token is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	var opts []slack.Option
	if cfg.APIURL != "" {
		u := cfg.APIURL
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		opts = append(opts, slack.OptionAPIURL(u))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, slack.OptionHTTPClient(cfg.HTTPClient))
	}

	return &Client{
		api:     slack.New(cfg.Token, opts...),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:  logger,
	}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// ChannelID resolves a channel name to its id by paging conversations.list.
// A leading '#' is ignored. When nothing matches and name already looks
// like a channel id, name is returned as is.
func (c *Client) ChannelID(ctx context.Context, name string) (string, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "#")
	if name == "" {
		return "", fmt.Errorf("%w: empty name", conversation.ErrChannelNotFound)
	}

	params := &slack.GetConversationsParameters{
		Limit: ChannelPageSize,
		Types: []string{"public_channel", "private_channel"},
	}
	var lookupErr error
	for {
		if err := c.wait(ctx); err != nil {
			return "", err
		}
		channels, next, err := c.api.GetConversationsContext(ctx, params)
		if err != nil {
			c.logger.Warn("listing channels failed", zap.Error(err))
			lookupErr = err
			break
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		if next == "" {
			break
		}
		params.Cursor = next
	}

	if channelIDPattern.MatchString(name) {
		return name, nil
	}
	if lookupErr != nil {
		return "", fmt.Errorf("%w: %q: %w", conversation.ErrChannelNotFound, name, lookupErr)
	}
	return "", fmt.Errorf("%w: %q", conversation.ErrChannelNotFound, name)
}

// History returns every message of a channel, paging until the API reports
// no more pages or returns an empty cursor. If a page fails, the messages
// gathered so far are returned together with the error.
func (c *Client) History(ctx context.Context, channelID string) ([]purchase.ChatMessage, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     HistoryPageSize,
	}

	var msgs []purchase.ChatMessage
	for page := 1; ; page++ {
		if err := c.wait(ctx); err != nil {
			return msgs, err
		}
		resp, err := c.api.GetConversationHistoryContext(ctx, params)
		if err != nil {
			c.logger.Warn("fetching channel history failed",
				zap.String("channel_id", channelID),
				zap.Int("page", page),
				zap.Error(err),
			)
			return msgs, fmt.Errorf("fetching history page %d: %w", page, err)
		}
		for _, m := range resp.Messages {
			msgs = append(msgs, purchase.ChatMessage{
				Sender:    m.User,
				Text:      m.Text,
				Timestamp: m.Timestamp,
			})
		}
		c.logger.Debug("fetched history page",
			zap.Int("page", page),
			zap.Int("messages", len(resp.Messages)),
			zap.Int("total", len(msgs)),
		)

		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			break
		}
		params.Cursor = resp.ResponseMetaData.NextCursor
	}
	c.logger.Info("fetched channel history",
		zap.String("channel_id", channelID),
		zap.Int("messages", len(msgs)),
	)
	return msgs, nil
}

// DisplayName looks up a user's display name, falling back to the real name
// and then the username. It returns false when the lookup fails or all
// three are empty.
func (c *Client) DisplayName(ctx context.Context, userID string) (string, bool) {
	if userID == "" {
		return "", false
	}
	if err := c.wait(ctx); err != nil {
		return "", false
	}
	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		c.logger.Warn("user lookup failed", zap.String("user_id", userID), zap.Error(err))
		return "", false
	}
	for _, name := range []string{user.Profile.DisplayName, user.Profile.RealName, user.Name} {
		if name != "" {
			return name, true
		}
	}
	return "", false
}

// Post sends text to channel and reports whether the API accepted it.
func (c *Client) Post(ctx context.Context, channel, text string) bool {
	if err := c.wait(ctx); err != nil {
		c.logger.Warn("post skipped", zap.Error(err))
		return false
	}
	_, ts, err := c.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err != nil {
		c.logger.Error("posting message failed", zap.String("channel", channel), zap.Error(err))
		return false
	}
	c.logger.Debug("posted message", zap.String("channel", channel), zap.String("ts", ts))
	return true
}

var _ conversation.History = (*Client)(nil)
