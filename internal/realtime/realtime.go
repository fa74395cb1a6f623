// Package realtime доставляет уведомления в живые соединения участников.
package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/mmeshcher/bookstore/internal/model"
)

// ErrNoConnection возвращается, если у участника нет активного соединения.
var ErrNoConnection = errors.New("member has no live connection")

// Event описывает сообщение, отправляемое в живое соединение участника.
type Event struct {
	ID        string `json:"id"`
	MemberID  int64  `json:"memberId"`
	OrderID   string `json:"orderId,omitempty"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
}

// NewEvent формирует событие из уведомления.
func NewEvent(n model.Notification) Event {
	e := Event{
		ID:        n.ID.String(),
		MemberID:  n.MemberID,
		Type:      string(n.Type),
		Message:   n.Message,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	}
	if n.OrderID != nil {
		e.OrderID = n.OrderID.String()
	}
	return e
}

// Pusher отправляет уведомление в живое соединение участника.
type Pusher interface {
	Push(ctx context.Context, n model.Notification) error
}

// Fanout отправляет уведомление через все транспорты и считает доставку успешной,
// если хотя бы один из них принял сообщение.
type Fanout []Pusher

// Push реализует Pusher.
func (f Fanout) Push(ctx context.Context, n model.Notification) error {
	if len(f) == 0 {
		return ErrNoConnection
	}

	var errs []error
	for _, p := range f {
		err := p.Push(ctx, n)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
