package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quickhelp/quickhelp/internal/consts"
	"github.com/quickhelp/quickhelp/internal/dispatch"
	"github.com/quickhelp/quickhelp/internal/logger"
	"github.com/quickhelp/quickhelp/internal/metrics"
	"github.com/quickhelp/quickhelp/internal/ocr"
	"github.com/quickhelp/quickhelp/internal/quota"
)

// errNoPhoto is returned when an image question carries no usable photo.
var errNoPhoto = errors.New("message has no photo")

// admit runs the quota check. When the user is over the limit it sends the
// denial and the upgrade flow and reports false.
func (b *Bot) admit(ctx context.Context, in dispatch.Inbound) (quota.Ticket, bool) {
	ticket, err := b.tracker.Check(ctx, in.UserID)
	if err != nil {
		logger.Error("Quota check failed", logger.Fields{
			"user_id": in.UserID,
			"error":   err.Error(),
		})
		b.sendReply(in.ChatID, in.MessageID, consts.ErrorQuotaUnavailable)
		return ticket, false
	}

	decision := ticket.Decision.String()
	if ticket.Premium {
		decision = "premium"
	}
	b.metrics.RecordQuotaDecision(decision)

	if !ticket.Allowed() {
		logger.Info("Daily free limit reached", logger.Fields{
			"user_id": in.UserID,
			"day":     string(ticket.Day),
			"limit":   b.tracker.Limit(),
		})
		b.sendReply(in.ChatID, in.MessageID, fmt.Sprintf(consts.LimitReachedFormat, b.tracker.Limit()))
		if err := b.sendUpgrade(in.ChatID); err != nil {
			logger.Error("Failed to send upgrade flow", logger.Fields{
				"chat_id": in.ChatID,
				"error":   err.Error(),
			})
		}
		return ticket, false
	}

	return ticket, true
}

func (b *Bot) handleTextQuestion(ctx context.Context, in dispatch.Inbound) error {
	ticket, ok := b.admit(ctx, in)
	if !ok {
		return nil
	}
	defer b.releaseOnPanic(ctx, ticket)

	b.sendReply(in.ChatID, in.MessageID, consts.ProgressThinking)
	b.answer(ctx, in, ticket, in.Text)
	return nil
}

func (b *Bot) handleImageQuestion(ctx context.Context, in dispatch.Inbound, fileID string) error {
	ticket, ok := b.admit(ctx, in)
	if !ok {
		return nil
	}
	defer b.releaseOnPanic(ctx, ticket)

	b.sendReply(in.ChatID, in.MessageID, consts.ProgressProcessingImage)

	text, err := b.extractText(ctx, fileID)
	if err != nil {
		logger.Warn("Text extraction failed", logger.Fields{
			"user_id": in.UserID,
			"chat_id": in.ChatID,
			"error":   err.Error(),
		})
		b.sendReply(in.ChatID, in.MessageID, fmt.Sprintf(consts.OCRFailedFormat, err))
		b.release(ctx, ticket)
		return nil
	}

	if text == "" {
		b.sendReply(in.ChatID, in.MessageID, consts.NoTextFound)
		b.release(ctx, ticket)
		return nil
	}

	b.sendReply(in.ChatID, in.MessageID, fmt.Sprintf(consts.ExtractedTextFormat, dispatch.Preview(text)))
	b.answer(ctx, in, ticket, text)
	return nil
}

// extractText downloads the photo into a temp file, runs the extractor on
// it and removes the file again.
func (b *Bot) extractText(ctx context.Context, fileID string) (string, error) {
	if fileID == "" {
		return "", errNoPhoto
	}

	data, ext, err := b.downloadPhoto(ctx, fileID)
	if err != nil {
		return "", err
	}

	path, cleanup, err := b.files.WriteTemp(data, ext)
	if err != nil {
		return "", err
	}
	defer cleanup()

	start := time.Now()
	fragments, err := b.extractor.Extract(ctx, path)
	b.metrics.RecordRemoteCall(metrics.ServiceOCR, err, time.Since(start))
	if err != nil {
		return "", err
	}

	return ocr.Join(fragments), nil
}

// answer forwards question to the Answerer, replies with whatever it
// returns and settles the ticket.
func (b *Bot) answer(ctx context.Context, in dispatch.Inbound, ticket quota.Ticket, question string) {
	start := time.Now()
	reply, err := b.answerer.Answer(ctx, question)
	b.metrics.RecordRemoteCall(metrics.ServiceLLM, err, time.Since(start))

	if err != nil {
		logger.Warn("Answerer failed", logger.Fields{
			"user_id":  in.UserID,
			"chat_id":  in.ChatID,
			"error":    err.Error(),
			"duration": time.Since(start).String(),
		})
	}

	if sendErr := b.sendReply(in.ChatID, in.MessageID, reply); sendErr != nil {
		// The student never saw the answer
		b.release(ctx, ticket)
		return
	}

	if err != nil && !b.config.CountFailedAnswers {
		b.release(ctx, ticket)
		return
	}
	b.consume(ctx, ticket)
}

func (b *Bot) consume(ctx context.Context, ticket quota.Ticket) {
	// Settle even when the request context was cancelled mid-answer
	if err := b.tracker.Consume(context.WithoutCancel(ctx), ticket); err != nil {
		logger.Error("Failed to record usage", logger.Fields{
			"user_id": ticket.UserID,
			"day":     string(ticket.Day),
			"error":   err.Error(),
		})
	}
}

// releaseOnPanic gives the slot back when a handler panics after admit and
// lets the panic continue to the worker.
func (b *Bot) releaseOnPanic(ctx context.Context, ticket quota.Ticket) {
	if r := recover(); r != nil {
		b.release(ctx, ticket)
		panic(r)
	}
}

func (b *Bot) release(ctx context.Context, ticket quota.Ticket) {
	if err := b.tracker.Release(context.WithoutCancel(ctx), ticket); err != nil {
		logger.Error("Failed to release usage slot", logger.Fields{
			"user_id": ticket.UserID,
			"day":     string(ticket.Day),
			"error":   err.Error(),
		})
	}
}
