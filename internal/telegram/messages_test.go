package telegram

import (
	"strings"
	"testing"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/quickhelp/quickhelp/internal/consts"
	"github.com/quickhelp/quickhelp/internal/dispatch"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{
			name:  "fits",
			text:  "short answer",
			limit: 20,
			want:  []string{"short answer"},
		},
		{
			name:  "exactly limit",
			text:  "abcde",
			limit: 5,
			want:  []string{"abcde"},
		},
		{
			name:  "hard cut",
			text:  "abcdefghij",
			limit: 4,
			want:  []string{"abcd", "efgh", "ij"},
		},
		{
			name:  "breaks after newline past half",
			text:  "line one\nline two",
			limit: 12,
			want:  []string{"line one", "line two"},
		},
		{
			name:  "ignores early newline",
			text:  "a\nbcdefghij",
			limit: 6,
			want:  []string{"a\nbcde", "fghij"},
		},
		{
			name:  "counts runes not bytes",
			text:  "ééééé",
			limit: 5,
			want:  []string{"ééééé"},
		},
		{
			name:  "emoji take two units",
			text:  "😀😀😀",
			limit: 4,
			want:  []string{"😀😀", "😀"},
		},
		{
			name:  "drops newline-only chunks",
			text:  "ab\n\n\n\ncd",
			limit: 2,
			want:  []string{"ab", "cd"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitMessage(tt.text, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("splitMessage() = %q, want %q", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitMessage_LongAnswer(t *testing.T) {
	paragraph := strings.Repeat("word ", 200) + "\n"
	text := strings.Repeat(paragraph, 10)

	chunks := splitMessage(text, maxMessageLength)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	total := 0
	for i, chunk := range chunks {
		if n := utf8.RuneCountInString(chunk); n > maxMessageLength {
			t.Errorf("chunk %d has %d runes", i, n)
		}
		total += len(strings.ReplaceAll(chunk, "\n", ""))
	}
	if total != len(strings.ReplaceAll(text, "\n", "")) {
		t.Error("splitting lost text")
	}
}

func TestSplitMessage_EmojiAnswerFitsTelegramLimit(t *testing.T) {
	text := strings.Repeat("😀", 3000)

	chunks := splitMessage(text, maxMessageLength)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	for i, chunk := range chunks {
		if n := len(utf16.Encode([]rune(chunk))); n > maxMessageLength {
			t.Errorf("chunk %d has %d UTF-16 units", i, n)
		}
	}
	if utf8.RuneCountInString(chunks[0]) != 2048 || utf8.RuneCountInString(chunks[1]) != 952 {
		t.Errorf("chunk sizes = %d, %d", utf8.RuneCountInString(chunks[0]), utf8.RuneCountInString(chunks[1]))
	}
}

func TestUpgradeKeyboard(t *testing.T) {
	keyboard := upgradeKeyboard("https://example.com/pay")

	if len(keyboard.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(keyboard.InlineKeyboard))
	}

	link := keyboard.InlineKeyboard[0][0]
	if link.Text != consts.ButtonUpgrade || link.URL == nil || *link.URL != "https://example.com/pay" {
		t.Errorf("link button = %+v", link)
	}

	howTo := keyboard.InlineKeyboard[1][0]
	if howTo.CallbackData == nil || *howTo.CallbackData != dispatch.CallbackUpgrade {
		t.Errorf("how-to button = %+v", howTo)
	}
}
