package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/slack-go/slack"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/purchasebot/internal/events"
	"github.com/fyrsmithlabs/purchasebot/internal/logging"
	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

// UnknownUser is the requester name when neither the directory nor the
// command payload names the submitter.
const UnknownUser = "unknown user"

// maxCommandBody caps the slash-command form body.
const maxCommandBody = 64 << 10

// ErrSignature is returned for a request failing Slack signature checks.
var ErrSignature = errors.New("slack signature verification failed")

// Submitted is the event payload for an accepted submission.
type Submitted struct {
	Bucket string          `json:"bucket"`
	Record purchase.Record `json:"record"`
	Posted bool            `json:"posted"`
	Count  int             `json:"count"`
}

// handleCommand runs one slash-command submission. Any failure past request
// verification is answered with HTTP 200 and a message for the submitter.
func (s *Server) handleCommand(c echo.Context) (err error) {
	req := c.Request()
	ctx, span := s.deps.Tracer.Start(req.Context(), "slack.command")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("slash command panicked",
				zap.Any("panic", r),
				zap.String("request.id", logging.RequestIDFromContext(ctx)),
			)
			span.SetStatus(codes.Error, "panic")
			s.metrics.Submissions.WithLabelValues(OutcomeError).Inc()
			err = reply(c, slack.ResponseTypeInChannel, purchase.TextUnexpected)
		}
	}()

	cmd, err := s.parseCommand(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrSignature) {
			s.metrics.Submissions.WithLabelValues(OutcomeUnauthorized).Inc()
			s.logger.Warn("rejected slash command", zap.Error(err))
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid request signature")
		}
		s.metrics.Submissions.WithLabelValues(OutcomeError).Inc()
		s.logger.Warn("unreadable slash command", zap.Error(err))
		return reply(c, slack.ResponseTypeInChannel, purchase.TextUnexpected)
	}

	outcome, respType, text := s.submit(ctx, cmd)
	span.SetAttributes(attribute.String("purchase.outcome", outcome))
	s.metrics.Submissions.WithLabelValues(outcome).Inc()
	return reply(c, respType, text)
}

// parseCommand verifies (when a signing secret is configured) and decodes
// the form body.
func (s *Server) parseCommand(req *http.Request) (slack.SlashCommand, error) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxCommandBody))
	if err != nil {
		return slack.SlashCommand{}, fmt.Errorf("reading body: %w", err)
	}
	if s.config.SigningSecret != "" {
		if err := verify(req.Header, body, s.config.SigningSecret); err != nil {
			return slack.SlashCommand{}, err
		}
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	return slack.SlashCommandParse(req)
}

func verify(header http.Header, body []byte, secret string) error {
	sv, err := slack.NewSecretsVerifier(header, secret)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignature, err)
	}
	if _, err := sv.Write(body); err != nil {
		return fmt.Errorf("%w: %w", ErrSignature, err)
	}
	if err := sv.Ensure(); err != nil {
		return fmt.Errorf("%w: %w", ErrSignature, err)
	}
	return nil
}

// submit validates, saves, notifies and acknowledges. It returns the
// outcome label and the reply to send.
func (s *Server) submit(ctx context.Context, cmd slack.SlashCommand) (outcome, respType, text string) {
	sub, err := purchase.ParseSubmission(cmd.Text)
	if err != nil {
		s.logger.Info("invalid submission", zap.Error(err), zap.String("user_id", cmd.UserID))
		return OutcomeInvalid, slack.ResponseTypeInChannel, purchase.ValidationText(err)
	}

	name := s.requesterName(ctx, cmd)
	now := s.deps.Now()
	bucket := purchase.CurrentBucket(now)
	rec := sub.Record(name, cmd.UserID, now.Format(time.RFC3339))

	count, err := s.deps.Store.Append(bucket, rec)
	if err != nil {
		s.logger.Error("saving submission failed", zap.Error(err), zap.String("bucket", bucket))
		return OutcomeSaveFailed, slack.ResponseTypeInChannel, purchase.TextUnexpected
	}
	s.logger.Info("submission saved",
		zap.String("bucket", bucket),
		zap.Int("count", count),
		zap.String("requester", name),
		zap.String("item", sub.Item),
	)

	posted := s.deps.Notifier.Post(ctx, s.config.Channel, purchase.NotificationText(name, sub))
	if posted {
		s.metrics.Notifications.WithLabelValues("posted").Inc()
	} else {
		s.metrics.Notifications.WithLabelValues("failed").Inc()
	}
	s.announce(ctx, Submitted{Bucket: bucket, Record: rec, Posted: posted, Count: count})

	if !posted {
		return OutcomePostFailed, slack.ResponseTypeEphemeral, purchase.TextPostFailed
	}
	return OutcomeAccepted, slack.ResponseTypeEphemeral, purchase.AckText(sub, s.config.Channel)
}

// requesterName prefers the directory's display name, then the user_name
// sent with the command.
func (s *Server) requesterName(ctx context.Context, cmd slack.SlashCommand) string {
	if cmd.UserID != "" {
		if name, ok := s.deps.Directory.DisplayName(ctx, cmd.UserID); ok && name != "" {
			return name
		}
	}
	if cmd.UserName != "" {
		return cmd.UserName
	}
	return UnknownUser
}

func (s *Server) announce(ctx context.Context, ev Submitted) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.Publish(ctx, events.SubjectRequestSubmitted, ev); err != nil {
		s.logger.Warn("publishing submission failed", zap.Error(err))
	}
}

func reply(c echo.Context, responseType, text string) error {
	return c.JSON(http.StatusOK, slack.Msg{ResponseType: responseType, Text: text})
}
