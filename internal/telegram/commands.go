package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/quickhelp/quickhelp/internal/consts"
	"github.com/quickhelp/quickhelp/internal/dispatch"
	"github.com/quickhelp/quickhelp/internal/logger"
)

// botCommands turns the "/name - description" command list into the menu
// Telegram shows next to the input field.
func botCommands() []tgbotapi.BotCommand {
	var commands []tgbotapi.BotCommand
	for _, line := range []string{consts.CmdStart, consts.CmdHelp, consts.CmdUpgrade} {
		name, description, _ := strings.Cut(line, " - ")
		commands = append(commands, tgbotapi.BotCommand{
			Command:     strings.TrimPrefix(name, "/"),
			Description: description,
		})
	}
	return commands
}

func (b *Bot) registerCommands() error {
	if _, err := b.sender.Request(tgbotapi.NewSetMyCommands(botCommands()...)); err != nil {
		return fmt.Errorf("set bot commands: %w", err)
	}
	return nil
}

// handleWelcome answers /start and /help.
func (b *Bot) handleWelcome(ctx context.Context, in dispatch.Inbound) error {
	text := fmt.Sprintf(consts.WelcomeFormat, b.tracker.Limit())

	if status := b.usageStatus(ctx, in.UserID); status != "" {
		text += "\n" + status
	}

	msg := tgbotapi.NewMessage(in.ChatID, text)
	msg.ReplyToMessageID = in.MessageID
	msg.ReplyMarkup = upgradeKeyboard(b.config.UpgradeURL)
	if _, err := b.rateLimitedSend(in.ChatID, msg); err != nil {
		return fmt.Errorf("failed to send welcome message: %w", err)
	}
	return nil
}

// usageStatus describes what is left today, or "" when it cannot be read.
func (b *Bot) usageStatus(ctx context.Context, userID int64) string {
	remaining, err := b.tracker.Remaining(ctx, userID)
	if err != nil {
		logger.Warn("Failed to read remaining questions", logger.Fields{
			"user_id": userID,
			"error":   err.Error(),
		})
		return ""
	}
	if remaining < 0 {
		return consts.UnlimitedAccess
	}
	return fmt.Sprintf(consts.RemainingFormat, remaining)
}

// sendUpgrade sends the upgrade instructions, the payment link and, when
// the file exists, the payment QR code.
func (b *Bot) sendUpgrade(chatID int64) error {
	b.sendResponse(chatID, consts.UpgradeIntro)

	link := tgbotapi.NewMessage(chatID, fmt.Sprintf(consts.UpgradeLinkFmt, b.config.UpgradeURL))
	link.DisableWebPagePreview = true
	if _, err := b.rateLimitedSend(chatID, link); err != nil {
		return fmt.Errorf("failed to send upgrade link: %w", err)
	}

	b.sendQRCode(chatID)
	b.sendResponse(chatID, consts.UpgradeProofTip)
	return nil
}

func (b *Bot) sendQRCode(chatID int64) {
	path := b.config.UpgradeQRPath
	if path == "" {
		return
	}

	if _, err := os.Stat(path); err != nil {
		fields := logger.Fields{"path": path, "error": err.Error()}
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("Upgrade QR code not found, skipping", fields)
		} else {
			logger.Error("Failed to read upgrade QR code", fields)
		}
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	if _, err := b.rateLimitedSend(chatID, photo); err != nil {
		logger.Error("Failed to send upgrade QR code", logger.Fields{
			"error":   err.Error(),
			"chat_id": chatID,
		})
	}
}

// handlePaymentProof trusts the caption and grants unlimited access.
func (b *Bot) handlePaymentProof(ctx context.Context, in dispatch.Inbound) error {
	if err := b.tracker.Upgrade(ctx, in.UserID); err != nil {
		return fmt.Errorf("failed to upgrade user: %w", err)
	}
	b.metrics.RecordPremiumUpgrade()

	logger.Info("User upgraded to premium", logger.Fields{
		"user_id": in.UserID,
		"chat_id": in.ChatID,
	})

	b.sendReply(in.ChatID, in.MessageID, consts.PaymentReceived)
	return nil
}
