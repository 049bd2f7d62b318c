package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Dispatcher queues messages and delivers them from background workers, so
// callers can notify after committing without waiting on SMTP.
type Dispatcher struct {
	engine  *TemplateEngine
	sender  EmailSender
	logger  zerolog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	wg     sync.WaitGroup
}

type DispatcherOptions struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

func NewDispatcher(engine *TemplateEngine, sender EmailSender, logger zerolog.Logger, opts DispatcherOptions) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	d := &Dispatcher{
		engine:  engine,
		sender:  sender,
		logger:  logger.With().Str("component", "notification").Logger(),
		timeout: opts.SendTimeout,
		queue:   make(chan Message, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Notify enqueues msg. It never blocks: when the queue is full the message
// is dropped and logged.
func (d *Dispatcher) Notify(msg Message) {
	if msg.To == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn().Str("template", msg.TemplateID).Msg("dispatcher closed, dropping message")
		return
	}
	select {
	case d.queue <- msg:
	default:
		d.logger.Warn().Str("template", msg.TemplateID).Str("to", msg.To).Msg("notification queue full, dropping message")
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	email, err := d.engine.Build(msg)
	if err != nil {
		d.logger.Error().Err(err).Str("template", msg.TemplateID).Msg("render notification")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.sender.SendEmail(ctx, email); err != nil {
		d.logger.Error().Err(err).Str("template", msg.TemplateID).Str("to", msg.To).Msg("deliver notification")
		return
	}
	d.logger.Debug().Str("template", msg.TemplateID).Str("to", msg.To).Msg("notification sent")
}

// Close stops accepting messages and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
