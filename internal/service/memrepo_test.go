package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bookstore/internal/model"
	"github.com/mmeshcher/bookstore/internal/repository"
)

// memRepo хранит данные в памяти, мьютекс заменяет блокировки строк.
type memRepo struct {
	mu sync.Mutex

	nextUserID int64
	users      map[string]*model.User

	nextBookID int64
	books      map[int64]*model.Book

	orders  map[uuid.UUID]*model.Order
	history map[uuid.UUID][]model.StatusLogEntry

	discounts     []model.MilestoneDiscount
	notifications []model.Notification

	discountErr     error
	notificationErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:   make(map[string]*model.User),
		books:   make(map[int64]*model.Book),
		orders:  make(map[uuid.UUID]*model.Order),
		history: make(map[uuid.UUID][]model.StatusLogEntry),
	}
}

func cloneOrder(o *model.Order) *model.Order {
	c := *o
	c.Items = append([]model.OrderItem(nil), o.Items...)
	if o.ProcessedBy != nil {
		v := *o.ProcessedBy
		c.ProcessedBy = &v
	}
	return &c
}

// addOrder кладёт заказ напрямую, минуя оформление.
func (m *memRepo) addOrder(memberID int64, code string, status model.OrderStatus) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New()
	m.orders[id] = &model.Order{
		ID:        id,
		MemberID:  memberID,
		ClaimCode: code,
		Status:    status,
		OrderedAt: time.Now(),
		UpdatedAt: time.Now(),
		Subtotal:  decimal.Zero,
	}
	return id
}

func (m *memRepo) order(id uuid.UUID) *model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneOrder(m.orders[id])
}

func (m *memRepo) discountsOf(memberID int64) []model.MilestoneDiscount {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.MilestoneDiscount
	for _, d := range m.discounts {
		if d.MemberID == memberID {
			res = append(res, d)
		}
	}
	return res
}

func (m *memRepo) notificationsOf(memberID int64, typ model.NotificationType) []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Notification
	for _, n := range m.notifications {
		if n.MemberID == memberID && (typ == "" || n.Type == typ) {
			res = append(res, n)
		}
	}
	return res
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[login]; ok {
		return 0, repository.ErrUserExists
	}
	m.nextUserID++
	m.users[login] = &model.User{ID: m.nextUserID, Login: login, PasswordHash: passwordHash, Role: role}
	return m.nextUserID, nil
}

func (m *memRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[login]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (m *memRepo) SetUserRole(ctx context.Context, userID int64, role model.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.ID == userID {
			u.Role = role
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func (m *memRepo) CreateBook(ctx context.Context, b model.Book) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextBookID++
	b.ID = m.nextBookID
	m.books[b.ID] = &b
	return b.ID, nil
}

func (m *memRepo) ListBooks(ctx context.Context) ([]model.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]model.Book, 0, len(m.books))
	for _, b := range m.books {
		res = append(res, *b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *memRepo) CreateOrder(ctx context.Context, memberID int64, lines []model.CartLine, claimCode string, price repository.PriceFunc) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]model.OrderItem, 0, len(lines))
	for _, l := range lines {
		b, ok := m.books[l.BookID]
		if !ok {
			return nil, repository.ErrBookNotFound
		}
		if b.Stock < l.Quantity {
			return nil, repository.ErrInsufficientStock
		}
		items = append(items, model.OrderItem{BookID: b.ID, Title: b.Title, Quantity: l.Quantity, UnitPrice: b.Price})
	}

	pct := 0
	for _, d := range m.discounts {
		if d.MemberID == memberID && d.Active && d.Stackable {
			pct += d.Percentage
		}
	}

	subtotal, discount, total := price(items, pct)
	for _, it := range items {
		m.books[it.BookID].Stock -= it.Quantity
	}

	o := &model.Order{
		ID:             uuid.New(),
		MemberID:       memberID,
		Items:          items,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TotalAmount:    total,
		ClaimCode:      claimCode,
		Status:         model.OrderStatusPending,
		OrderedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	m.orders[o.ID] = o
	m.history[o.ID] = append(m.history[o.ID], model.StatusLogEntry{Status: model.OrderStatusPending, ChangedBy: memberID, ChangedAt: time.Now(), Note: "checkout"})
	return cloneOrder(o), nil
}

func (m *memRepo) GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *memRepo) ListOrdersByMember(ctx context.Context, memberID int64) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Order
	for _, o := range m.orders {
		if o.MemberID == memberID {
			res = append(res, *cloneOrder(o))
		}
	}
	return res, nil
}

func (m *memRepo) ListOrdersByStatus(ctx context.Context, status model.OrderStatus, limit int) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Order
	for _, o := range m.orders {
		if status == "" || o.Status == status {
			res = append(res, *cloneOrder(o))
		}
	}
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *memRepo) GetOrderHistory(ctx context.Context, orderID uuid.UUID) ([]model.StatusLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[orderID]; !ok {
		return nil, repository.ErrOrderNotFound
	}
	return append([]model.StatusLogEntry(nil), m.history[orderID]...), nil
}

func (m *memRepo) setStatus(o *model.Order, status model.OrderStatus, staffID int64, note string) {
	o.Status = status
	if o.ProcessedBy == nil {
		id := staffID
		o.ProcessedBy = &id
	}
	o.UpdatedAt = time.Now()
	m.history[o.ID] = append(m.history[o.ID], model.StatusLogEntry{Status: status, ChangedBy: staffID, ChangedAt: time.Now(), Note: note})
}

func (m *memRepo) ConfirmOrder(ctx context.Context, orderID uuid.UUID, staffID int64, check repository.OrderCheck) (*model.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, 0, repository.ErrOrderNotFound
	}

	locked := cloneOrder(o)
	if err := check(locked); err != nil {
		return nil, 0, err
	}

	m.setStatus(o, model.OrderStatusConfirmed, staffID, "claim code verified")

	count := 0
	for _, other := range m.orders {
		if other.MemberID == o.MemberID && other.Status == model.OrderStatusConfirmed {
			count++
		}
	}
	return cloneOrder(o), count, nil
}

func (m *memRepo) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus, staffID int64, check repository.OrderCheck) (*model.Order, model.OrderStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, "", repository.ErrOrderNotFound
	}

	if err := check(cloneOrder(o)); err != nil {
		return nil, "", err
	}

	prev := o.Status
	if prev == status {
		if o.ProcessedBy == nil {
			id := staffID
			o.ProcessedBy = &id
		}
		return cloneOrder(o), prev, nil
	}
	m.setStatus(o, status, staffID, "status override")
	return cloneOrder(o), prev, nil
}

func (m *memRepo) CreateMilestoneDiscount(ctx context.Context, d *model.MilestoneDiscount) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.discountErr != nil {
		return false, m.discountErr
	}
	for _, existing := range m.discounts {
		if existing.MemberID == d.MemberID && existing.Milestone == d.Milestone {
			return false, nil
		}
	}
	d.ID = uuid.New()
	d.AppliedAt = time.Now()
	m.discounts = append(m.discounts, *d)
	return true, nil
}

func (m *memRepo) ListDiscountsByMember(ctx context.Context, memberID int64) ([]model.MilestoneDiscount, error) {
	return m.discountsOf(memberID), nil
}

func (m *memRepo) CreateNotification(ctx context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.notificationErr != nil {
		return m.notificationErr
	}
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *memRepo) MarkNotificationDelivered(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.notifications {
		if m.notifications[i].ID == id && m.notifications[i].DeliveredAt == nil {
			now := time.Now()
			m.notifications[i].DeliveredAt = &now
		}
	}
	return nil
}

func (m *memRepo) MarkNotificationRead(ctx context.Context, memberID int64, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.notifications {
		if m.notifications[i].ID == id && m.notifications[i].MemberID == memberID {
			m.notifications[i].IsRead = true
			return nil
		}
	}
	return repository.ErrNotificationNotFound
}

func (m *memRepo) ListNotificationsByMember(ctx context.Context, memberID int64) ([]model.Notification, error) {
	return m.notificationsOf(memberID, ""), nil
}

func (m *memRepo) ListUndeliveredNotifications(ctx context.Context, since, before time.Time, limit int) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Notification
	for _, n := range m.notifications {
		if n.DeliveredAt == nil && !n.CreatedAt.Before(since) && !n.CreatedAt.After(before) {
			res = append(res, n)
		}
	}
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

type recordingPusher struct {
	mu     sync.Mutex
	err    error
	pushed []model.Notification
}

func (p *recordingPusher) Push(ctx context.Context, n model.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pushed = append(p.pushed, n)
	return p.err
}

func (p *recordingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushed)
}
