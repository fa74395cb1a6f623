package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mmeshcher/bookstore/internal/model"
)

// NotificationsExchange задаёт topic exchange, в который публикуются уведомления.
// Ключ маршрутизации: member.<id>.
const NotificationsExchange = "notifications_topic"

// AMQPPublisher публикует уведомления в RabbitMQ и переподключается при обрыве соединения.
type AMQPPublisher struct {
	url    string
	logger *zap.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	returns chan amqp.Return

	// publishMu держит не больше одной неподтверждённой публикации на канале,
	// чтобы возврат брокера относился к текущему сообщению.
	publishMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	reconnect chan struct{}
}

// ConnectAMQP устанавливает соединение с RabbitMQ и запускает фоновое переподключение.
func ConnectAMQP(ctx context.Context, url string, logger *zap.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		url:       url,
		logger:    logger,
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}

	if err := p.connectOnce(ctx); err != nil {
		return nil, err
	}

	go p.watch()

	return p, nil
}

// RoutingKey возвращает ключ маршрутизации для уведомлений участника.
func RoutingKey(memberID int64) string {
	return "member." + strconv.FormatInt(memberID, 10)
}

// Push публикует уведомление с флагом mandatory и ждёт подтверждения брокера.
// Если ни одна очередь участника не привязана, брокер возвращает сообщение и Push
// отдаёт ErrNoConnection: запись остаётся недоставленной в БД до повторной отправки.
func (p *AMQPPublisher) Push(ctx context.Context, n model.Notification) error {
	p.mu.RLock()
	conn, ch, returns := p.conn, p.ch, p.returns
	p.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq: connection is not open")
	}
	if ch == nil || ch.IsClosed() {
		return errors.New("rabbitmq: publish channel is not open")
	}

	body, err := json.Marshal(NewEvent(n))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	drainReturns(returns)

	messageID := n.ID.String()
	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, NotificationsExchange, RoutingKey(n.MemberID), true, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			MessageId:    messageID,
			Timestamp:    n.CreatedAt,
			Type:         string(n.Type),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	if confirm == nil {
		return errors.New("rabbitmq: publish channel is not in confirm mode")
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait publish confirm: %w", err)
	}

	return publishOutcome(messageID, acked, returns)
}

// publishOutcome разбирает результат подтверждённой публикации. Брокер присылает
// basic.return раньше basic.ack, поэтому к моменту подтверждения возврат уже в канале.
func publishOutcome(messageID string, acked bool, returns <-chan amqp.Return) error {
	for {
		select {
		case ret, ok := <-returns:
			if !ok {
				return errors.New("rabbitmq: publish channel closed")
			}
			if ret.MessageId == messageID {
				return fmt.Errorf("%w: %s", ErrNoConnection, ret.ReplyText)
			}
		default:
			if !acked {
				return errors.New("rabbitmq: publish nacked by broker")
			}
			return nil
		}
	}
}

// drainReturns выбрасывает возвраты публикаций, чьё подтверждение уже не ждут.
func drainReturns(returns <-chan amqp.Return) {
	for {
		select {
		case _, ok := <-returns:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Close останавливает переподключение и закрывает соединение.
func (p *AMQPPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

func (p *AMQPPublisher) connectOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(NotificationsExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("enable publisher confirms: %w", err)
	}
	returns := ch.NotifyReturn(make(chan amqp.Return, 16))

	p.mu.Lock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	p.conn, p.ch, p.returns = conn, ch, returns
	p.mu.Unlock()

	go func() {
		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-p.closed:
			return
		case <-connClosed:
		case <-chClosed:
		}

		select {
		case p.reconnect <- struct{}{}:
		default:
		}
	}()

	p.logger.Info("connected to rabbitmq", zap.String("exchange", NotificationsExchange))
	return nil
}

func (p *AMQPPublisher) watch() {
	backoff := time.Second
	for {
		select {
		case <-p.closed:
			return
		case <-p.reconnect:
		}

		for {
			select {
			case <-p.closed:
				return
			default:
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := p.connectOnce(ctx)
			cancel()
			if err == nil {
				backoff = time.Second
				break
			}

			p.logger.Warn("rabbitmq reconnect failed", zap.Error(err), zap.Duration("backoff", backoff))

			timer := time.NewTimer(backoff)
			select {
			case <-p.closed:
				timer.Stop()
				return
			case <-timer.C:
			}
			if backoff < 30*time.Second {
				backoff = min(backoff*2, 30*time.Second)
			}
		}
	}
}
