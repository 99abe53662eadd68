// Package dispatch classifies inbound bot traffic without touching the
// network, so routing can be tested on its own.
package dispatch

import (
	"strings"
	"unicode/utf8"
)

// Kind is the handler category of an inbound update.
type Kind int

const (
	KindIgnore Kind = iota
	KindWelcome
	KindUpgrade
	KindPaymentProof
	KindImageQuestion
	KindTextQuestion
)

var kindNames = map[Kind]string{
	KindIgnore:        "ignore",
	KindWelcome:       "welcome",
	KindUpgrade:       "upgrade",
	KindPaymentProof:  "payment_proof",
	KindImageQuestion: "image_question",
	KindTextQuestion:  "text_question",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// QuotaGated reports whether the kind consumes free-tier allowance.
func (k Kind) QuotaGated() bool {
	return k == KindImageQuestion || k == KindTextQuestion
}

// Inbound is the transport-independent view of a message.
type Inbound struct {
	UserID    int64
	ChatID    int64
	MessageID int
	Command   string // without the leading slash or @botname
	Text      string
	HasPhoto  bool
	Caption   string
}

// Route is the classification result.
type Route struct {
	Kind    Kind
	Inbound Inbound
}

const (
	CommandStart   = "start"
	CommandHelp    = "help"
	CommandUpgrade = "upgrade"

	// CallbackUpgrade is the callback data of the inline upgrade button.
	CallbackUpgrade = "upgrade"

	paymentMarker = "paid"
)

var commandKinds = map[string]Kind{
	CommandStart:   KindWelcome,
	CommandHelp:    KindWelcome,
	CommandUpgrade: KindUpgrade,
}

// Classify assigns exactly one Kind, in priority order: known command,
// payment proof, image question, text question.
func Classify(in Inbound) Route {
	if kind, ok := commandKinds[strings.ToLower(in.Command)]; ok {
		return Route{Kind: kind, Inbound: in}
	}

	if in.HasPhoto {
		if IsPaymentCaption(in.Caption) {
			return Route{Kind: KindPaymentProof, Inbound: in}
		}
		return Route{Kind: KindImageQuestion, Inbound: in}
	}

	if strings.TrimSpace(in.Text) != "" {
		return Route{Kind: KindTextQuestion, Inbound: in}
	}

	return Route{Kind: KindIgnore, Inbound: in}
}

// ClassifyCallback maps inline button data to a Kind.
func ClassifyCallback(data string) Kind {
	if data == CallbackUpgrade {
		return KindUpgrade
	}
	return KindIgnore
}

// IsPaymentCaption reports whether caption contains "paid" in any case.
func IsPaymentCaption(caption string) bool {
	return strings.Contains(strings.ToLower(caption), paymentMarker)
}

// PreviewLimit is the number of characters shown of extracted text.
const PreviewLimit = 500

// Preview returns text unchanged when it has at most PreviewLimit
// characters, otherwise its first PreviewLimit characters followed by "...".
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:PreviewLimit]) + "..."
}
