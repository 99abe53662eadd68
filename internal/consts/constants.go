package consts

// Commands
const (
	CmdStart   = "/start - Show the welcome message"
	CmdHelp    = "/help - Show the welcome message"
	CmdUpgrade = "/upgrade - Get unlimited questions"
)

// Button Labels with Emojis
const (
	ButtonUpgrade = EmojiPremium + " Upgrade Now"
	ButtonHowTo   = "📋 How to pay"
)

// Welcome and Upgrade Messages
const (
	// WelcomeFormat takes the daily free limit.
	WelcomeFormat = "👋 Welcome to QuickHelp AI!\nJust send your homework question as text or photo.\n\n💡 You can ask up to %d free questions daily."

	UpgradeIntro    = "💰 You can upgrade via Ko-fi for unlimited access:"
	UpgradeLinkFmt  = "🔗 %s"
	UpgradeProofTip = "📸 After paying, send a screenshot of the receipt with the caption \"paid\"."

	// LimitReachedFormat takes the daily free limit.
	LimitReachedFormat = EmojiWarning + " You've used your %d free questions for today."

	// RemainingFormat takes the number of free questions left today.
	RemainingFormat = "📊 Free questions left today: %d"
	UnlimitedAccess = EmojiPremium + " You have unlimited access."

	PaymentReceived = EmojiSuccess + " Payment received! You've been upgraded to unlimited access. Thank you!"
)

// Progress Messages
const (
	ProgressThinking        = "🔍 Thinking..."
	ProgressProcessingImage = EmojiPhoto + " Received image. Processing..."
)

// Question Replies
const (
	// ExtractedTextFormat takes the preview of the recognised text.
	ExtractedTextFormat = "📝 Extracted text:\n%s"
	NoTextFound         = "🤷 No text found in the image. Please send a clearer photo or type the question."

	// OCRFailedFormat takes the extraction or download error.
	OCRFailedFormat = EmojiError + " OCR failed: %v"
)

// Common Error Messages
const (
	ErrorFormat           = EmojiError + " Error: %v"
	ErrorUnknownCallback  = EmojiError + " Unknown action"
	ErrorQuotaUnavailable = EmojiError + " Usage tracking is unavailable right now, please try again later."
)

// Status Emojis
const (
	EmojiSuccess = "✅"
	EmojiError   = "❌"
	EmojiWarning = "⚠️"
	EmojiPremium = "💎"
	EmojiPhoto   = "📷"
)

// Default Links
const (
	DefaultUpgradeURL    = "https://ko-fi.com/homeworkhelperAI"
	DefaultUpgradeQRPath = "upi_qr.png"
)
