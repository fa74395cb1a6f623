package repository

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bookstore/internal/model"
)

// newIntegrationRepository подключается к DATABASE_URI и пропускает тест, если БД не задана.
func newIntegrationRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("DATABASE_URI")
	if dsn == "" {
		t.Skip("DATABASE_URI is not set")
	}

	repo, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func flatPrice(items []model.OrderItem, pct int) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return subtotal, decimal.Zero, subtotal
}

func acceptPending(o *model.Order) error {
	if o.Status != model.OrderStatusPending {
		return ErrOrderNotFound
	}
	return nil
}

func TestConfirmOrder_ConcurrentConfirmationsCountSerially(t *testing.T) {
	repo := newIntegrationRepository(t)
	ctx := context.Background()

	suffix := uuid.NewString()
	memberID, err := repo.CreateUser(ctx, "member-"+suffix, []byte("hash"), model.RoleMember)
	require.NoError(t, err)
	staffID, err := repo.CreateUser(ctx, "staff-"+suffix, []byte("hash"), model.RoleStaff)
	require.NoError(t, err)

	const orders = 12
	bookID, err := repo.CreateBook(ctx, model.Book{
		Title:  "Dune " + suffix,
		Author: "Frank Herbert",
		Price:  decimal.NewFromInt(20),
		Stock:  orders,
	})
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, orders)
	for i := 0; i < orders; i++ {
		o, err := repo.CreateOrder(ctx, memberID, []model.CartLine{{BookID: bookID, Quantity: 1}}, "ABCD12", flatPrice)
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}

	var (
		mu     sync.Mutex
		counts []int
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, confirmed, err := repo.ConfirmOrder(gctx, id, staffID, acceptPending)
			if err != nil {
				return err
			}
			mu.Lock()
			counts = append(counts, confirmed)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sort.Ints(counts)
	want := make([]int, orders)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, counts)

	milestones := 0
	for _, c := range counts {
		if c == 10 {
			milestones++
		}
	}
	assert.Equal(t, 1, milestones)
}

func TestCreateMilestoneDiscount_OncePerMilestone(t *testing.T) {
	repo := newIntegrationRepository(t)
	ctx := context.Background()

	memberID, err := repo.CreateUser(ctx, "member-"+uuid.NewString(), []byte("hash"), model.RoleMember)
	require.NoError(t, err)

	var created []bool
	for i := 0; i < 2; i++ {
		ok, err := repo.CreateMilestoneDiscount(ctx, &model.MilestoneDiscount{
			MemberID:   memberID,
			Milestone:  10,
			Percentage: 10,
			Stackable:  true,
			Active:     true,
		})
		require.NoError(t, err)
		created = append(created, ok)
	}
	assert.Equal(t, []bool{true, false}, created)

	list, err := repo.ListDiscountsByMember(ctx, memberID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
