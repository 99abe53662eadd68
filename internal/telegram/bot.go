package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/quickhelp/quickhelp/internal/config"
	"github.com/quickhelp/quickhelp/internal/consts"
	"github.com/quickhelp/quickhelp/internal/dispatch"
	"github.com/quickhelp/quickhelp/internal/file"
	"github.com/quickhelp/quickhelp/internal/logger"
	"github.com/quickhelp/quickhelp/internal/metrics"
	"github.com/quickhelp/quickhelp/internal/ocr"
	"github.com/quickhelp/quickhelp/internal/quota"
	"golang.org/x/time/rate"
)

// maxPhotoBytes caps a single downloaded image. The Bot API itself refuses
// to serve files above 20 MB.
const maxPhotoBytes = 20 << 20

// Sender is the part of the Bot API used to talk back to users.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Answerer turns a question into reply text. On failure the returned text
// is still sent to the user.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Deps are the collaborators a Bot routes work to.
type Deps struct {
	Tracker   *quota.Tracker
	Answerer  Answerer
	Extractor ocr.Extractor
	Files     *file.Manager
	Metrics   *metrics.Collector
}

type Bot struct {
	api        *tgbotapi.BotAPI // nil when constructed with a custom Sender
	sender     Sender
	config     *config.Config
	tracker    *quota.Tracker
	answerer   Answerer
	extractor  ocr.Extractor
	files      *file.Manager
	metrics    *metrics.Collector
	httpClient *http.Client

	// Rate limiting
	globalLimiter  *rate.Limiter
	userLimit      rate.Limit
	userBurst      int
	userLimiters   map[int64]*userLimiter
	userLimitersMu sync.Mutex

	// Callback deduplication
	processedCallbacks map[string]time.Time
	callbacksMu        sync.Mutex

	workerPool *WorkerPool
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Option customises a Bot.
type Option func(*Bot)

// WithSender replaces the Bot API client used for outgoing calls.
func WithSender(s Sender) Option {
	return func(b *Bot) { b.sender = s }
}

// WithHTTPClient replaces the client used to download photos from Telegram.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bot) { b.httpClient = c }
}

// WithRateLimits sets the global and per-chat send rates.
func WithRateLimits(global rate.Limit, globalBurst int, perChat rate.Limit, perChatBurst int) Option {
	return func(b *Bot) {
		b.globalLimiter = rate.NewLimiter(global, globalBurst)
		b.userLimit = perChat
		b.userBurst = perChatBurst
	}
}

// NewBot authorises against the Telegram Bot API and wires deps.
func NewBot(cfg *config.Config, deps Deps, opts ...Option) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	b, err := newBot(cfg, deps, append([]Option{WithSender(api)}, opts...)...)
	if err != nil {
		return nil, err
	}
	b.api = api
	return b, nil
}

func newBot(cfg *config.Config, deps Deps, opts ...Option) (*Bot, error) {
	if deps.Tracker == nil {
		return nil, errors.New("usage tracker is required")
	}
	if deps.Answerer == nil {
		return nil, errors.New("answerer is required")
	}
	if deps.Extractor == nil {
		return nil, errors.New("text extractor is required")
	}
	if deps.Files == nil {
		deps.Files = file.NewManager(cfg.TempDir)
	}

	b := &Bot{
		config:     cfg,
		tracker:    deps.Tracker,
		answerer:   deps.Answerer,
		extractor:  deps.Extractor,
		files:      deps.Files,
		metrics:    deps.Metrics,
		httpClient: &http.Client{Timeout: cfg.LLMTimeout},

		// Bot API limits: about 30 messages per second overall, 1 per second per chat
		// with short bursts tolerated.
		globalLimiter: rate.NewLimiter(rate.Limit(30), 30),
		userLimit:     rate.Limit(1),
		userBurst:     5,
		userLimiters:  make(map[int64]*userLimiter),

		processedCallbacks: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.sender == nil {
		return nil, errors.New("telegram sender is required")
	}
	return b, nil
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot was built without a Telegram API client")
	}

	logger.Info("Bot authorized and starting", logger.Fields{
		"username":   b.api.Self.UserName,
		"free_limit": b.tracker.Limit(),
	})

	// Questions sent while the bot was offline are dropped, not answered late
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		logger.Warn("Failed to drop pending updates", logger.Fields{"error": err.Error()})
	}

	b.workerPool = NewWorkerPool(b, DefaultWorkerPoolConfig())
	if err := b.workerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		logger.Warn("Failed to register bot commands", logger.Fields{"error": err.Error()})
	}

	go b.cleanupUserLimiters(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatchUpdate(update)
		}
	}
}

// Stop gracefully shuts down the worker pool.
func (b *Bot) Stop() error {
	logger.InfoMsg("Stopping bot...")

	if b.workerPool != nil {
		if err := b.workerPool.Stop(); err != nil {
			logger.Error("Error stopping worker pool", logger.Fields{
				"error": err.Error(),
			})
			return err
		}
	}

	logger.InfoMsg("Bot stopped successfully")
	return nil
}

// GetWorkerPoolStats returns current worker pool statistics
func (b *Bot) GetWorkerPoolStats() map[string]interface{} {
	if b.workerPool == nil {
		return map[string]interface{}{
			"worker_pool": "not initialized",
		}
	}

	return b.workerPool.GetStats()
}

func (b *Bot) dispatchUpdate(update tgbotapi.Update) {
	logger.Debug("Received update", logger.Fields{
		"update_id":    update.UpdateID,
		"has_message":  update.Message != nil,
		"has_callback": update.CallbackQuery != nil,
	})

	if update.CallbackQuery != nil {
		if err := b.workerPool.SubmitCallback(update.CallbackQuery); err != nil {
			logger.Error("Failed to submit callback to worker pool", logger.Fields{
				"error":       err.Error(),
				"callback_id": update.CallbackQuery.ID,
			})
		}
		return
	}

	if update.Message == nil || update.Message.From == nil {
		logger.Debug("Update has no user message, skipping", nil)
		return
	}

	if err := b.workerPool.SubmitMessage(update.Message); err != nil {
		logger.Error("Failed to submit message to worker pool", logger.Fields{
			"error":   err.Error(),
			"user_id": update.Message.From.ID,
			"chat_id": update.Message.Chat.ID,
		})
	}
}

// inboundFromMessage strips a Bot API message down to what routing needs.
func inboundFromMessage(message *tgbotapi.Message) dispatch.Inbound {
	in := dispatch.Inbound{
		MessageID: message.MessageID,
		Text:      message.Text,
		HasPhoto:  len(message.Photo) > 0,
		Caption:   message.Caption,
		Command:   message.Command(),
	}
	if message.From != nil {
		in.UserID = message.From.ID
	}
	if message.Chat != nil {
		in.ChatID = message.Chat.ID
	}
	return in
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil || message.Chat == nil {
		return nil
	}

	in := inboundFromMessage(message)
	route := dispatch.Classify(in)
	b.metrics.RecordUpdate(in.UserID, route.Kind.String())

	logger.Debug("Routing message", logger.Fields{
		"user_id": in.UserID,
		"chat_id": in.ChatID,
		"kind":    route.Kind.String(),
	})

	switch route.Kind {
	case dispatch.KindWelcome:
		return b.handleWelcome(ctx, in)
	case dispatch.KindUpgrade:
		return b.sendUpgrade(in.ChatID)
	case dispatch.KindPaymentProof:
		return b.handlePaymentProof(ctx, in)
	case dispatch.KindImageQuestion:
		return b.handleImageQuestion(ctx, in, largestPhotoID(message))
	case dispatch.KindTextQuestion:
		return b.handleTextQuestion(ctx, in)
	default:
		return nil
	}
}

func largestPhotoID(message *tgbotapi.Message) string {
	if len(message.Photo) == 0 {
		return ""
	}
	return message.Photo[len(message.Photo)-1].FileID
}

// downloadPhoto fetches a file through its Bot API URL and returns its
// bytes and extension.
func (b *Bot) downloadPhoto(ctx context.Context, fileID string) ([]byte, string, error) {
	fileURL, err := b.sender.GetFileDirectURL(fileID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get file info: %w", err)
	}

	logger.Debug("Downloading photo from Telegram", logger.Fields{
		"file_id": fileID,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of user-visible errors
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, "", fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download file: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file data: %w", err)
	}
	if len(data) > maxPhotoBytes {
		return nil, "", fmt.Errorf("file is larger than %d bytes", maxPhotoBytes)
	}

	ext := file.ExtFromPath(fileURL)

	logger.Debug("Photo downloaded successfully", logger.Fields{
		"ext":  ext,
		"size": len(data),
	})

	return data, ext, nil
}

func (b *Bot) sendResponse(chatID int64, text string) {
	b.sendReply(chatID, 0, text)
}

// sendReply sends text, split into as many messages as needed, quoting
// replyTo when it is set. It stops at and returns the first failed send.
func (b *Bot) sendReply(chatID int64, replyTo int, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLength) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ReplyToMessageID = replyTo
		if _, err := b.rateLimitedSend(chatID, msg); err != nil {
			logger.Error("Failed to send message", logger.Fields{
				"error":   err.Error(),
				"chat_id": chatID,
			})
			return err
		}
	}
	logger.Debug("Message sent successfully", logger.Fields{
		"chat_id": chatID,
	})
	return nil
}

func (b *Bot) sendErrorResponse(chatID int64, err error) {
	b.sendResponse(chatID, fmt.Sprintf(consts.ErrorFormat, err))
}

// Rate limiting methods

// getUserRateLimiter gets or creates a rate limiter for a specific chat
func (b *Bot) getUserRateLimiter(chatID int64) *rate.Limiter {
	b.userLimitersMu.Lock()
	defer b.userLimitersMu.Unlock()

	entry, exists := b.userLimiters[chatID]
	if !exists {
		entry = &userLimiter{limiter: rate.NewLimiter(b.userLimit, b.userBurst)}
		b.userLimiters[chatID] = entry
	}
	entry.lastUsed = time.Now()
	return entry.limiter
}

// cleanupUserLimiters drops limiters of chats idle for ten minutes.
func (b *Bot) cleanupUserLimiters(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.DebugMsg("User limiter cleanup stopped")
			return
		case <-ticker.C:
			b.pruneUserLimiters(time.Now().Add(-10 * time.Minute))
		}
	}
}

func (b *Bot) pruneUserLimiters(cutoff time.Time) {
	b.userLimitersMu.Lock()
	defer b.userLimitersMu.Unlock()

	before := len(b.userLimiters)
	for chatID, entry := range b.userLimiters {
		if entry.lastUsed.Before(cutoff) {
			delete(b.userLimiters, chatID)
		}
	}

	if removed := before - len(b.userLimiters); removed > 0 {
		logger.Debug("Cleaned up user rate limiters", logger.Fields{
			"removed":   removed,
			"remaining": len(b.userLimiters),
		})
	}
}

func (b *Bot) waitForSlot(chatID int64) error {
	if err := b.globalLimiter.Wait(context.Background()); err != nil {
		return fmt.Errorf("global rate limiter error: %w", err)
	}
	if err := b.getUserRateLimiter(chatID).Wait(context.Background()); err != nil {
		return fmt.Errorf("user rate limiter error: %w", err)
	}
	return nil
}

// rateLimitedSend sends a message with rate limiting
func (b *Bot) rateLimitedSend(chatID int64, msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := b.waitForSlot(chatID); err != nil {
		return tgbotapi.Message{}, err
	}

	start := time.Now()
	sent, err := b.sender.Send(msg)
	b.metrics.RecordRemoteCall(metrics.ServiceTelegram, err, time.Since(start))
	return sent, err
}

// rateLimitedRequest sends a request with rate limiting
func (b *Bot) rateLimitedRequest(chatID int64, req tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if err := b.waitForSlot(chatID); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := b.sender.Request(req)
	b.metrics.RecordRemoteCall(metrics.ServiceTelegram, err, time.Since(start))
	return resp, err
}

// isDuplicateCallback records callbackID and reports whether it was
// already seen in the last 30 seconds.
func (b *Bot) isDuplicateCallback(callbackID string) bool {
	b.callbacksMu.Lock()
	defer b.callbacksMu.Unlock()

	now := time.Now()
	for id, seen := range b.processedCallbacks {
		if now.Sub(seen) > 30*time.Second {
			delete(b.processedCallbacks, id)
		}
	}

	if _, exists := b.processedCallbacks[callbackID]; exists {
		return true
	}
	b.processedCallbacks[callbackID] = now
	return false
}
