package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pizzeria-system/internal/apperror"
	"pizzeria-system/internal/cache"
	"pizzeria-system/internal/database/models"
	"pizzeria-system/internal/repository"
)

func TestListDishesIsCachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	dough := store.AddIngredient(models.Ingredient{Name: "dough", Unit: "g", OnHand: decimal.NewFromInt(1000)})
	pizza := store.AddDish(models.Dish{Name: "Margherita", UnitPrice: decimal.RequireFromString("8.50"), PreparedStock: 2})
	store.AddRecipe(pizza.ID, models.RecipeLine{IngredientID: dough.ID, QtyPerUnit: decimal.NewFromInt(200)})
	store.AddDish(models.Dish{Name: "Soda", UnitPrice: decimal.RequireFromString("1.25"), PreparedStock: 12})

	mem := cache.NewMemory()
	svc := NewService(store, mem, zap.NewNop())

	views, err := svc.ListDishes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 || views[0].Name != "Margherita" || !views[0].HasRecipe || views[1].HasRecipe {
		t.Fatalf("views = %+v", views)
	}
	if _, err := mem.Get(ctx, CATALOG_DISHES_CACHE_KEY); err != nil {
		t.Fatalf("dish list not cached: %v", err)
	}

	_ = store.WithinTx(ctx, func(tx repository.Tx) error { return tx.AdjustDishStock(pizza.ID, 3) })

	views, _ = svc.ListDishes(ctx)
	if views[0].PreparedStock != 2 {
		t.Errorf("expected cached stock 2, got %d", views[0].PreparedStock)
	}

	svc.InvalidateDishes(ctx)
	views, _ = svc.ListDishes(ctx)
	if views[0].PreparedStock != 5 {
		t.Errorf("expected fresh stock 5, got %d", views[0].PreparedStock)
	}
}

func TestListDishesWithoutCache(t *testing.T) {
	store := repository.NewMemoryStore()
	store.AddDish(models.Dish{Name: "Soda", UnitPrice: decimal.RequireFromString("1.25")})
	svc := NewService(store, nil, zap.NewNop())

	views, err := svc.ListDishes(context.Background())
	if err != nil || len(views) != 1 {
		t.Fatalf("views = %+v, err = %v", views, err)
	}
	svc.InvalidateDishes(context.Background())
}

func TestListLowStock(t *testing.T) {
	store := repository.NewMemoryStore()
	reorder := decimal.NewFromInt(500)
	store.AddIngredient(models.Ingredient{Name: "mozzarella", Unit: "g", OnHand: decimal.NewFromInt(400), ReorderPoint: &reorder})
	store.AddIngredient(models.Ingredient{Name: "flour", Unit: "g", OnHand: decimal.NewFromInt(9000), ReorderPoint: &reorder})
	store.AddIngredient(models.Ingredient{Name: "salt", Unit: "g"})
	svc := NewService(store, nil, zap.NewNop())

	all, err := svc.ListIngredients(context.Background())
	if err != nil || len(all) != 3 {
		t.Fatalf("ingredients = %+v, err = %v", all, err)
	}
	low, err := svc.ListLowStock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(low) != 1 || low[0].Name != "mozzarella" {
		t.Errorf("low stock = %+v", low)
	}
}

func TestGetOrder(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	pizza := store.AddDish(models.Dish{Name: "Margherita", UnitPrice: decimal.RequireFromString("8.50")})
	soda := store.AddDish(models.Dish{Name: "Soda", UnitPrice: decimal.RequireFromString("1.25")})
	order := &models.Order{
		Status:   models.OrderOpen,
		OpenedAt: time.Now(),
		Lines: []models.OrderLine{
			{DishID: pizza.ID, Quantity: 2},
			{Position: 1, DishID: soda.ID, Quantity: 3},
		},
	}
	if err := store.WithinTx(ctx, func(tx repository.Tx) error { return tx.CreateOrder(order) }); err != nil {
		t.Fatal(err)
	}
	svc := NewService(store, nil, zap.NewNop())

	view, err := svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(view.Lines) != 2 || view.Lines[1].Dish != "Soda" {
		t.Errorf("lines = %+v", view.Lines)
	}
	if !view.Total.Equal(decimal.RequireFromString("20.75")) {
		t.Errorf("total = %s, want 20.75", view.Total)
	}

	if _, err := svc.GetOrder(ctx, 4242); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("missing order: %v", err)
	}
}
