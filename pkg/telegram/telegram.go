package telegram

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"

	"portfolio-advisor/config"
	"portfolio-advisor/pkg/logger"
	"portfolio-advisor/pkg/utils"
)

type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Notifier forwards operator alerts to a single chat. It satisfies logger.AlertSink.
type Notifier struct {
	cfg           *config.TelegramConfig
	log           *logger.Logger
	bot           sender
	chat          *telebot.Chat
	globalLimiter *rate.Limiter
	queue         chan string
	wg            sync.WaitGroup
}

const alertQueueSize = 64

// NewBot builds an offline bot: the notifier only sends, it never polls for updates.
func NewBot(cfg *config.TelegramConfig) (*telebot.Bot, error) {
	return telebot.NewBot(telebot.Settings{
		Token:   cfg.BotToken,
		Offline: true,
	})
}

func NewNotifier(cfg *config.TelegramConfig, log *logger.Logger, bot sender) *Notifier {
	perSecond := cfg.MaxGlobalRequestPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Notifier{
		cfg:           cfg,
		log:           log,
		bot:           bot,
		chat:          &telebot.Chat{ID: cfg.ChatID},
		globalLimiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		queue:         make(chan string, alertQueueSize),
	}
}

// SendAlert enqueues message. When the queue is full the alert is dropped.
func (n *Notifier) SendAlert(message string) {
	select {
	case n.queue <- message:
	default:
		n.log.Warn("Telegram alert queue full, dropping alert")
	}
}

// Start drains the queue until ctx is cancelled.
func (n *Notifier) Start(ctx context.Context) {
	n.wg.Add(1)
	utils.GoSafe(func() {
		defer n.wg.Done()
		for {
			select {
			case <-ctx.Done():
				n.log.Info("Received signal to stop Telegram notifier")
				return
			case msg := <-n.queue:
				n.send(ctx, msg)
			}
		}
	})
}

func (n *Notifier) Stop() {
	n.wg.Wait()
	n.log.Info("Telegram notifier stopped")
}

func (n *Notifier) send(ctx context.Context, msg string) {
	if err := n.globalLimiter.Wait(ctx); err != nil {
		return
	}

	timeout := n.cfg.TimeoutDuration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	done := make(chan error, 1)
	go func() {
		_, err := n.bot.Send(n.chat, msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			n.log.Error("Failed to send telegram alert", logger.ErrorField(err))
		}
	case <-time.After(timeout):
		n.log.Warn("Timeout sending telegram alert")
	}
}
