package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/quickhelp/quickhelp/internal/logger"
)

var (
	errInternal         = errors.New("internal error, please try again")
	errPoolNotStarted   = errors.New("worker pool not started")
	errPoolShuttingDown = errors.New("worker pool is shutting down")
)

const defaultShutdownTimeout = 30 * time.Second

// WorkerPool fans updates out to a fixed set of goroutines so one slow
// LLM or OCR call does not hold up other students.
type WorkerPool struct {
	bot                 *Bot
	messageQueue        chan *tgbotapi.Message
	callbackQueue       chan *tgbotapi.CallbackQuery
	messageWorkerCount  int
	callbackWorkerCount int

	// Bounds in-flight questions across both queues
	maxConcurrentOps int
	opSemaphore      chan struct{}

	shutdownTimeout time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.RWMutex
}

// WorkerPoolConfig holds configuration for the worker pool
type WorkerPoolConfig struct {
	MessageWorkers    int           // Number of workers processing messages
	CallbackWorkers   int           // Number of workers processing callbacks
	MessageQueueSize  int           // Size of message queue buffer
	CallbackQueueSize int           // Size of callback queue buffer
	MaxConcurrentOps  int           // Maximum questions answered at once (OCR/LLM calls)
	ShutdownTimeout   time.Duration // How long Stop waits for in-flight work (default 30s)
}

// DefaultWorkerPoolConfig returns the pool size used in production.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		MessageWorkers:    32,
		CallbackWorkers:   8,
		MessageQueueSize:  256,
		CallbackQueueSize: 64,
		MaxConcurrentOps:  20,
		ShutdownTimeout:   defaultShutdownTimeout,
	}
}

// NewWorkerPool creates a pool that dispatches to bot once started.
func NewWorkerPool(bot *Bot, config WorkerPoolConfig) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	shutdownTimeout := config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	return &WorkerPool{
		bot:                 bot,
		messageQueue:        make(chan *tgbotapi.Message, config.MessageQueueSize),
		callbackQueue:       make(chan *tgbotapi.CallbackQuery, config.CallbackQueueSize),
		messageWorkerCount:  config.MessageWorkers,
		callbackWorkerCount: config.CallbackWorkers,
		maxConcurrentOps:    config.MaxConcurrentOps,
		opSemaphore:         make(chan struct{}, config.MaxConcurrentOps),
		shutdownTimeout:     shutdownTimeout,
		ctx:                 ctx,
		cancel:              cancel,
	}
}

// Start launches the message and callback workers.
func (wp *WorkerPool) Start() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return fmt.Errorf("worker pool already started")
	}

	logger.Info("Starting worker pool", logger.Fields{
		"message_workers":     wp.messageWorkerCount,
		"callback_workers":    wp.callbackWorkerCount,
		"max_concurrent_ops":  wp.maxConcurrentOps,
		"message_queue_size":  cap(wp.messageQueue),
		"callback_queue_size": cap(wp.callbackQueue),
	})

	for i := 0; i < wp.messageWorkerCount; i++ {
		wp.wg.Add(1)
		go runWorker(wp, "message", i, wp.messageQueue, wp.processMessage)
	}
	for i := 0; i < wp.callbackWorkerCount; i++ {
		wp.wg.Add(1)
		go runWorker(wp, "callback", i, wp.callbackQueue, wp.processCallback)
	}

	wp.started = true
	logger.InfoMsg("Worker pool started successfully")
	return nil
}

// Stop closes the queues and waits up to the shutdown timeout for in-flight
// questions. The pool refuses new work from the moment Stop is called, even
// when the wait times out.
func (wp *WorkerPool) Stop() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if !wp.started {
		return errPoolNotStarted
	}
	wp.started = false

	logger.InfoMsg("Stopping worker pool...")

	close(wp.messageQueue)
	close(wp.callbackQueue)
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoMsg("Worker pool stopped gracefully")
		return nil
	case <-time.After(wp.shutdownTimeout):
		logger.Warn("Worker pool shutdown timed out", logger.Fields{
			"timeout":           wp.shutdownTimeout.String(),
			"active_operations": len(wp.opSemaphore),
		})
		return fmt.Errorf("worker pool shutdown timed out after %s", wp.shutdownTimeout)
	}
}

// SubmitMessage queues a message without blocking. A full queue drops it.
func (wp *WorkerPool) SubmitMessage(message *tgbotapi.Message) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.started {
		return errPoolNotStarted
	}

	select {
	case wp.messageQueue <- message:
		wp.bot.metrics.UpdateQueueDepth("messages", len(wp.messageQueue))
		logger.Debug("Message queued for processing", logger.Fields{
			"chat_id":    message.Chat.ID,
			"user_id":    message.From.ID,
			"queue_size": len(wp.messageQueue),
		})
		return nil
	case <-wp.ctx.Done():
		return errPoolShuttingDown
	default:
		logger.Warn("Message queue full, dropping message", logger.Fields{
			"chat_id": message.Chat.ID,
			"user_id": message.From.ID,
		})
		return fmt.Errorf("message queue full")
	}
}

// SubmitCallback queues a button press without blocking.
func (wp *WorkerPool) SubmitCallback(callback *tgbotapi.CallbackQuery) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.started {
		return errPoolNotStarted
	}

	select {
	case wp.callbackQueue <- callback:
		wp.bot.metrics.UpdateQueueDepth("callbacks", len(wp.callbackQueue))
		logger.Debug("Callback queued for processing", logger.Fields{
			"chat_id":       callbackChatID(callback),
			"callback_id":   callback.ID,
			"callback_data": callback.Data,
			"queue_size":    len(wp.callbackQueue),
		})
		return nil
	case <-wp.ctx.Done():
		return errPoolShuttingDown
	default:
		logger.Warn("Callback queue full, dropping callback", logger.Fields{
			"chat_id":     callbackChatID(callback),
			"callback_id": callback.ID,
		})
		return fmt.Errorf("callback queue full")
	}
}

// runWorker drains queue until it is closed or the pool is cancelled.
func runWorker[T any](wp *WorkerPool, kind string, workerID int, queue chan T, process func(T, int)) {
	defer wp.wg.Done()

	fields := logger.Fields{"worker": kind, "worker_id": workerID}
	logger.Debug("Worker started", fields)

	for {
		select {
		case item, ok := <-queue:
			if !ok {
				logger.Debug("Worker stopping", fields)
				return
			}
			if !wp.acquire() {
				return
			}
			process(item, workerID)
			wp.releaseOp()
		case <-wp.ctx.Done():
			logger.Debug("Worker cancelled", fields)
			return
		}
	}
}

func (wp *WorkerPool) acquire() bool {
	select {
	case wp.opSemaphore <- struct{}{}:
		return true
	case <-wp.ctx.Done():
		return false
	}
}

func (wp *WorkerPool) releaseOp() {
	<-wp.opSemaphore
}

func (wp *WorkerPool) processMessage(message *tgbotapi.Message, workerID int) {
	// A panicking handler must not take the worker down with it
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Message handler panic recovered", logger.Fields{
				"worker_id": workerID,
				"chat_id":   message.Chat.ID,
				"panic":     r,
			})
			wp.bot.sendErrorResponse(message.Chat.ID, errInternal)
		}
	}()

	start := time.Now()
	if err := wp.bot.handleMessage(wp.ctx, message); err != nil {
		logger.Error("Error processing message", logger.Fields{
			"worker_id": workerID,
			"error":     err.Error(),
			"chat_id":   message.Chat.ID,
		})
		wp.bot.sendErrorResponse(message.Chat.ID, err)
	}

	logger.Debug("Message processed", logger.Fields{
		"worker_id": workerID,
		"chat_id":   message.Chat.ID,
		"duration":  time.Since(start).String(),
	})
}

func (wp *WorkerPool) processCallback(callback *tgbotapi.CallbackQuery, workerID int) {
	chatID := callbackChatID(callback)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Callback handler panic recovered", logger.Fields{
				"worker_id":   workerID,
				"callback_id": callback.ID,
				"panic":       r,
			})
		}
	}()

	start := time.Now()
	if err := wp.bot.handleCallbackQuery(wp.ctx, callback); err != nil {
		logger.Error("Error processing callback", logger.Fields{
			"worker_id":   workerID,
			"error":       err.Error(),
			"chat_id":     chatID,
			"callback_id": callback.ID,
		})
		wp.bot.sendErrorResponse(chatID, err)
	}

	logger.Debug("Callback processed", logger.Fields{
		"worker_id":   workerID,
		"callback_id": callback.ID,
		"duration":    time.Since(start).String(),
	})
}

// GetStats returns current worker pool statistics
func (wp *WorkerPool) GetStats() map[string]interface{} {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	return logger.Fields{
		"started":                 wp.started,
		"message_queue_size":      len(wp.messageQueue),
		"callback_queue_size":     len(wp.callbackQueue),
		"message_queue_capacity":  cap(wp.messageQueue),
		"callback_queue_capacity": cap(wp.callbackQueue),
		"active_operations":       len(wp.opSemaphore),
		"max_concurrent_ops":      wp.maxConcurrentOps,
		"message_workers":         wp.messageWorkerCount,
		"callback_workers":        wp.callbackWorkerCount,
	}
}
