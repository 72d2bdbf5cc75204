package repository

import (
	"context"
	"testing"
	"time"

	"github.com/example/posbackoffice/pkg/models"
	"github.com/example/posbackoffice/pkg/store/storetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) *RestaurantRepository {
	t.Helper()
	return NewRestaurantRepository(storetest.Open(t))
}

func sampleOrder(id string, number int, items ...models.OrderItem) models.Order {
	return models.Order{
		ID:          id,
		OrderNumber: number,
		TableNumber: 4,
		WaiterName:  "Ana",
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Items:       items,
	}
}

func item(productID string, qty int) models.OrderItem {
	return models.OrderItem{ProductID: productID, Quantity: qty}
}

func TestRestaurantRepository_ReplaceTables(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	tables := []models.OrderTable{{ID: 2, Name: "Terrace"}, {ID: 1, Name: "Window"}}
	require.NoError(t, repo.ReplaceTables(ctx, tables))
	require.NoError(t, repo.ReplaceTables(ctx, tables))

	got, err := repo.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.OrderTable{{ID: 1, Name: "Window"}, {ID: 2, Name: "Terrace"}}, got)

	t.Run("replace drops missing rows", func(t *testing.T) {
		require.NoError(t, repo.ReplaceTables(ctx, []models.OrderTable{{ID: 3, Name: "Bar"}}))

		got, err := repo.ListTables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.OrderTable{{ID: 3, Name: "Bar"}}, got)
	})

	t.Run("empty list clears", func(t *testing.T) {
		require.NoError(t, repo.ReplaceTables(ctx, nil))

		got, err := repo.ListTables(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("duplicate ids abort the replace", func(t *testing.T) {
		require.NoError(t, repo.ReplaceTables(ctx, []models.OrderTable{{ID: 9, Name: "Patio"}}))

		err := repo.ReplaceTables(ctx, []models.OrderTable{{ID: 1, Name: "A"}, {ID: 1, Name: "B"}})
		require.Error(t, err)

		got, err := repo.ListTables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.OrderTable{{ID: 9, Name: "Patio"}}, got)
	})
}

func TestRestaurantRepository_ReplaceMenu(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	image := "https://cdn.example.com/latte.png"

	products := []models.Product{
		{ID: "p-c", Name: "Cake", Price: decimal.RequireFromString("6.00"), SortOrder: 2},
		{ID: "p-a", Name: "Espresso", Price: decimal.RequireFromString("2.50"), SortOrder: 0},
		{ID: "p-b", Name: "Latte", Price: decimal.RequireFromString("3.755"), SortOrder: 1, Image: &image},
	}
	require.NoError(t, repo.ReplaceMenu(ctx, products))
	require.NoError(t, repo.ReplaceMenu(ctx, products))

	got, err := repo.ListMenu(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "p-a", got[0].ID)
	assert.Equal(t, "p-b", got[1].ID)
	assert.Equal(t, "p-c", got[2].ID)

	assert.True(t, got[0].Price.Equal(decimal.RequireFromString("2.5")), "got %s", got[0].Price)
	assert.True(t, got[1].Price.Equal(decimal.RequireFromString("3.76")), "got %s", got[1].Price)
	require.NotNil(t, got[1].Image)
	assert.Equal(t, image, *got[1].Image)
	assert.Nil(t, got[0].Image)

	// the caller's slice is not modified by rounding
	assert.Equal(t, "3.755", products[2].Price.String())
}

func TestRestaurantRepository_ReplaceMenu_ReferencedProduct(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceMenu(ctx, []models.Product{{ID: "p-1", Name: "Tea", Price: decimal.NewFromInt(2)}}))
	_, err := repo.ReconcileOrders(ctx, []models.Order{sampleOrder("o-1", 1, item("p-1", 1))})
	require.NoError(t, err)

	require.NoError(t, repo.ReplaceMenu(ctx, []models.Product{{ID: "p-2", Name: "Coffee", Price: decimal.NewFromInt(3)}}))

	orders, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, "p-1", orders[0].Items[0].ProductID)
	assert.Nil(t, orders[0].Items[0].Product)
}

func TestRestaurantRepository_ReconcileOrders_Upsert(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	res, err := repo.ReconcileOrders(ctx, []models.Order{sampleOrder("o-1", 1, item("p-1", 1), item("p-2", 2))})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, []string{"o-1"}, res.InsertedIDs)

	orders, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Len(t, orders[0].Items, 2)
	for _, it := range orders[0].Items {
		assert.Equal(t, "o-1", it.OrderID)
	}

	client := "Bruno"
	update := sampleOrder("o-1", 1, models.OrderItem{ProductID: "p-3", Quantity: 5, Note: "extra hot"})
	update.WaiterName = "Carla"
	update.ClientName = &client
	update.IsCompleted = true

	res, err = repo.ReconcileOrders(ctx, []models.Order{update})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, res.Updated)

	orders, err = repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	got := orders[0]
	assert.Equal(t, "Carla", got.WaiterName)
	require.NotNil(t, got.ClientName)
	assert.Equal(t, "Bruno", *got.ClientName)
	assert.True(t, got.IsCompleted)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "p-3", got.Items[0].ProductID)
	assert.Equal(t, 5, got.Items[0].Quantity)
	assert.Equal(t, "extra hot", got.Items[0].Note)

	var stored int64
	require.NoError(t, repo.db.Model(&models.OrderItem{}).Count(&stored).Error)
	assert.Equal(t, int64(1), stored, "old items must be removed from the store")
}

func TestRestaurantRepository_ReconcileOrders_OverwritesWithZeroValues(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	client := "Bruno"
	first := sampleOrder("o-1", 7, item("p-1", 1))
	first.ClientName = &client
	first.IsCompleted = true
	_, err := repo.ReconcileOrders(ctx, []models.Order{first})
	require.NoError(t, err)

	second := models.Order{ID: "o-1", WaiterName: "Ana", Timestamp: first.Timestamp}
	_, err = repo.ReconcileOrders(ctx, []models.Order{second})
	require.NoError(t, err)

	orders, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 0, orders[0].OrderNumber)
	assert.Equal(t, 0, orders[0].TableNumber)
	assert.Nil(t, orders[0].ClientName)
	assert.False(t, orders[0].IsCompleted)
	assert.Empty(t, orders[0].Items)
}

func TestRestaurantRepository_ReconcileOrders_EmptyItems(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.ReconcileOrders(ctx, []models.Order{sampleOrder("o-1", 1, item("p-1", 1), item("p-2", 1))})
	require.NoError(t, err)

	_, err = repo.ReconcileOrders(ctx, []models.Order{sampleOrder("o-1", 1)})
	require.NoError(t, err)

	orders, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Empty(t, orders[0].Items)
}

func TestRestaurantRepository_ReconcileOrders_KeepsSubmittedItemIDs(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.ReconcileOrders(ctx, []models.Order{sampleOrder("o-1", 1, item("p-1", 1))})
	require.NoError(t, err)

	orders, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	kept := orders[0].Items[0]

	// a client resubmits what it read, plus one new line
	resubmit := sampleOrder("o-1", 1, kept, item("p-2", 3))
	_, err = repo.ReconcileOrders(ctx, []models.Order{resubmit})
	require.NoError(t, err)

	orders, err = repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders[0].Items, 2)
	assert.Equal(t, kept.ID, orders[0].Items[0].ID)
	assert.NotEqual(t, kept.ID, orders[0].Items[1].ID)
	assert.Equal(t, "p-2", orders[0].Items[1].ProductID)
}

func TestRestaurantRepository_ReconcileOrders_DuplicateIDsLastWins(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	first := sampleOrder("o-1", 1, item("p-1", 1))
	second := sampleOrder("o-1", 2, item("p-2", 2), item("p-3", 3))
	second.WaiterName = "Carla"

	res, err := repo.ReconcileOrders(ctx, []models.Order{first, second})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Updated)

	orders, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 2, orders[0].OrderNumber)
	assert.Equal(t, "Carla", orders[0].WaiterName)
	require.Len(t, orders[0].Items, 2)
	assert.Equal(t, "p-2", orders[0].Items[0].ProductID)
}

func TestRestaurantRepository_ReconcileOrders_Atomic(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.ReconcileOrders(ctx, []models.Order{sampleOrder("o-0", 1, item("p-1", 1))})
	require.NoError(t, err)

	// both orders claim item id 500; the second insert violates the primary key
	a := sampleOrder("o-1", 2, models.OrderItem{ID: 500, ProductID: "p-1", Quantity: 1})
	b := sampleOrder("o-2", 3, models.OrderItem{ID: 500, ProductID: "p-2", Quantity: 1})
	update := sampleOrder("o-0", 1)

	_, err = repo.ReconcileOrders(ctx, []models.Order{update, a, b})
	require.Error(t, err)

	orders, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o-0", orders[0].ID)
	assert.Len(t, orders[0].Items, 1, "the update earlier in the failed batch must be rolled back")
}

func TestRestaurantRepository_ListOrders_JoinsProduct(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceMenu(ctx, []models.Product{
		{ID: "p-1", Name: "Espresso", Price: decimal.RequireFromString("2.50"), SortOrder: 0},
	}))
	_, err := repo.ReconcileOrders(ctx, []models.Order{sampleOrder("o-1", 1, item("p-1", 2))})
	require.NoError(t, err)

	orders, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Len(t, orders[0].Items, 1)

	product := orders[0].Items[0].Product
	require.NotNil(t, product)
	assert.Equal(t, "Espresso", product.Name)
	assert.True(t, product.Price.Equal(decimal.RequireFromString("2.50")))
}

func TestRestaurantRepository_MaxOrderNumber(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	highest, err := repo.MaxOrderNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, highest)

	_, err = repo.ReconcileOrders(ctx, []models.Order{
		sampleOrder("o-1", 3),
		sampleOrder("o-2", 7),
		sampleOrder("o-3", 2),
	})
	require.NoError(t, err)

	highest, err = repo.MaxOrderNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, highest)
}
