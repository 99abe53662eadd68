package telegram

import (
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/quickhelp/quickhelp/internal/consts"
	"github.com/quickhelp/quickhelp/internal/dispatch"
)

// maxMessageLength is the Bot API limit on message text. Telegram counts
// UTF-16 code units, so characters outside the BMP take two.
const maxMessageLength = 4096

// upgradeKeyboard links to the payment page and offers the in-chat
// upgrade instructions.
func upgradeKeyboard(upgradeURL string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(consts.ButtonUpgrade, upgradeURL),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(consts.ButtonHowTo, dispatch.CallbackUpgrade),
		),
	)
}

// splitMessage cuts text into chunks of at most limit UTF-16 code units,
// preferring to break after a newline. Chunks that would be empty once
// trailing newlines are trimmed are dropped.
func splitMessage(text string, limit int) []string {
	if utf16Len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		cut, units, lastNewline := 0, 0, -1
		for cut < len(runes) {
			n := utf16.RuneLen(runes[cut])
			if n < 0 {
				n = 1
			}
			if units+n > limit {
				break
			}
			units += n
			if runes[cut] == '\n' {
				lastNewline = cut
			}
			cut++
		}

		switch {
		case cut == 0:
			// limit is smaller than a single character
			cut = 1
		case cut < len(runes) && lastNewline > cut/2:
			cut = lastNewline + 1
		}

		if chunk := strings.TrimRight(string(runes[:cut]), "\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
	}
	return chunks
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}
