package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/quickhelp/quickhelp/internal/consts"
	"github.com/quickhelp/quickhelp/internal/dispatch"
	"github.com/quickhelp/quickhelp/internal/logger"
)

// callbackChatID is the chat replies to a callback go to: the user's
// private chat, which also works for inline messages without a Message.
func callbackChatID(callback *tgbotapi.CallbackQuery) int64 {
	if callback.From != nil {
		return callback.From.ID
	}
	if callback.Message != nil && callback.Message.Chat != nil {
		return callback.Message.Chat.ID
	}
	return 0
}

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	chatID := callbackChatID(callback)

	logger.Debug("Handling callback query", logger.Fields{
		"callback_data": callback.Data,
		"chat_id":       chatID,
		"callback_id":   callback.ID,
	})

	kind := dispatch.ClassifyCallback(callback.Data)

	// Every callback is answered so the client stops its spinner
	answerText := ""
	if kind == dispatch.KindIgnore {
		answerText = consts.ErrorUnknownCallback
	}
	if _, err := b.rateLimitedRequest(chatID, tgbotapi.NewCallback(callback.ID, answerText)); err != nil {
		logger.Error("Failed to answer callback query", logger.Fields{
			"error": err.Error(),
		})
	}

	if b.isDuplicateCallback(callback.ID) {
		logger.Debug("Duplicate callback detected, skipping", logger.Fields{
			"callback_id":   callback.ID,
			"callback_data": callback.Data,
		})
		return nil
	}

	if callback.From != nil {
		b.metrics.RecordUpdate(callback.From.ID, "callback_"+kind.String())
	}

	switch kind {
	case dispatch.KindUpgrade:
		return b.sendUpgrade(chatID)
	default:
		logger.Warn("Unknown callback data", logger.Fields{
			"callback_data": callback.Data,
			"chat_id":       chatID,
		})
		return nil
	}
}
