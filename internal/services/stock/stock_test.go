package stock

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pizzeria-system/internal/apperror"
	"pizzeria-system/internal/database/models"
	"pizzeria-system/internal/events"
	"pizzeria-system/internal/repository"
)

type fakeGate struct {
	err   error
	calls int
}

func (g *fakeGate) EnsureOpen(context.Context, repository.Tx) error {
	g.calls++
	return g.err
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type countingCache struct{ n int }

func (c *countingCache) InvalidateDishes(context.Context) { c.n++ }

type fixture struct {
	store     *repository.MemoryStore
	gate      *fakeGate
	publisher *recordingPublisher
	cache     *countingCache
	guard     *Guard
	executor  *Executor

	dough     models.Ingredient
	margarita models.Dish
	focaccia  models.Dish
}

// newFixture seeds a Margherita made of 200 g of dough per unit and a
// focaccia using the same dough.
func newFixture(t *testing.T, doughOnHand int64, preparedPizzas int64) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	f := &fixture{
		store:     store,
		gate:      &fakeGate{},
		publisher: &recordingPublisher{},
		cache:     &countingCache{},
	}
	f.dough = store.AddIngredient(models.Ingredient{Name: "dough", Unit: "g", OnHand: decimal.NewFromInt(doughOnHand)})
	f.margarita = store.AddDish(models.Dish{Name: "Margherita", UnitPrice: decimal.RequireFromString("8.50"), PreparedStock: preparedPizzas})
	store.AddRecipe(f.margarita.ID, models.RecipeLine{IngredientID: f.dough.ID, QtyPerUnit: decimal.NewFromInt(200)})
	f.focaccia = store.AddDish(models.Dish{Name: "Focaccia", UnitPrice: decimal.RequireFromString("4.00")})
	store.AddRecipe(f.focaccia.ID, models.RecipeLine{IngredientID: f.dough.ID, QtyPerUnit: decimal.NewFromInt(200)})

	log := zap.NewNop()
	f.executor = NewExecutor(store, f.gate, f.publisher, log).WithDishCache(f.cache)
	f.guard = NewGuard(store, f.gate, f.executor, f.publisher, log)
	return f
}

func (f *fixture) createPizzas(t *testing.T, qty int64) *models.Order {
	t.Helper()
	order, err := f.guard.CreateOrder(context.Background(), CreateOrderInput{
		Lines: []Line{{DishID: f.margarita.ID, Quantity: qty}},
	})
	if err != nil {
		t.Fatalf("create order of %d: %v", qty, err)
	}
	return order
}

func (f *fixture) doughOnHand() decimal.Decimal {
	return f.store.Ingredient(f.dough.ID).OnHand
}

func TestMargheritaScenario(t *testing.T) {
	f := newFixture(t, 500, 2)
	order := f.createPizzas(t, 3)

	trail, err := f.executor.DispatchOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if got := f.doughOnHand(); !got.Equal(decimal.NewFromInt(300)) {
		t.Errorf("dough on hand = %s, want 300", got)
	}
	if got := f.store.Dish(f.margarita.ID).PreparedStock; got != 0 {
		t.Errorf("prepared stock = %d, want 0", got)
	}
	stored, _ := f.store.Order(order.ID)
	if stored.Status != models.OrderDelivered {
		t.Errorf("status = %s, want DELIVERED", stored.Status)
	}

	want := []struct {
		kind  models.MovementKind
		delta int64
	}{
		{models.MovementDispatch, -2},
		{models.MovementConsumption, -200},
		{models.MovementProduction, 1},
		{models.MovementDispatch, -1},
	}
	if len(trail.Movements) != len(want) {
		t.Fatalf("got %d movements, want %d: %+v", len(trail.Movements), len(want), trail.Movements)
	}
	for i, w := range want {
		m := trail.Movements[i]
		if m.Kind != w.kind || !m.Delta.Equal(decimal.NewFromInt(w.delta)) {
			t.Errorf("movement %d = %s %s, want %s %d", i, m.Kind, m.Delta, w.kind, w.delta)
		}
		if m.ReferenceType != models.ReferenceOrder || m.ReferenceID != order.ID {
			t.Errorf("movement %d references %s/%d", i, m.ReferenceType, m.ReferenceID)
		}
	}
	if got := len(f.store.StockMovements()); got != 4 {
		t.Errorf("stored %d movements, want 4", got)
	}
	if f.cache.n != 1 {
		t.Errorf("dish cache invalidated %d times, want 1", f.cache.n)
	}
}

func TestReservationFairness(t *testing.T) {
	f := newFixture(t, 500, 0)
	f.createPizzas(t, 2)

	_, err := f.guard.CreateOrder(context.Background(), CreateOrderInput{
		Lines: []Line{{DishID: f.margarita.ID, Quantity: 2}},
	})
	var stockErr *apperror.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %v", err)
	}
	if stockErr.IngredientID != f.dough.ID || stockErr.Unit != "g" {
		t.Errorf("unexpected ingredient in %+v", stockErr)
	}
	if !stockErr.Required.Equal(decimal.NewFromInt(800)) {
		t.Errorf("required = %s, want 800", stockErr.Required)
	}
	if !stockErr.Shortfall.Equal(decimal.NewFromInt(300)) {
		t.Errorf("shortfall = %s, want 300", stockErr.Shortfall)
	}
	if !errors.Is(err, apperror.ErrStock) {
		t.Error("StockError should match ErrStock")
	}
	if got := f.doughOnHand(); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("reservation must not move stock, dough = %s", got)
	}
}

func TestCancelReleasesReservation(t *testing.T) {
	f := newFixture(t, 500, 0)
	a := f.createPizzas(t, 2)

	if _, err := f.guard.CancelOrder(context.Background(), a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	f.createPizzas(t, 2)

	stored, _ := f.store.Order(a.ID)
	if stored.Status != models.OrderCancelled || stored.ClosedAt == nil {
		t.Errorf("cancelled order = %+v", stored)
	}
}

func TestEditChecksOnlyIncrements(t *testing.T) {
	f := newFixture(t, 1000, 0)
	ctx := context.Background()
	order := f.createPizzas(t, 3)

	// Kitchen work outside the order drains the dough to 600.
	if _, err := f.executor.ProduceDish(ctx, f.focaccia.ID, 2); err != nil {
		t.Fatalf("produce: %v", err)
	}

	// 3 -> 4 needs only 200 g more.
	if _, err := f.guard.EditOrder(ctx, order.ID, []Line{{DishID: f.margarita.ID, Quantity: 4}}); err != nil {
		t.Fatalf("increment edit: %v", err)
	}

	if _, err := f.executor.ProduceDish(ctx, f.focaccia.ID, 2); err != nil {
		t.Fatalf("produce: %v", err)
	}
	movements := len(f.store.StockMovements())

	// Decreasing never checks stock.
	res, err := f.guard.EditOrder(ctx, order.ID, []Line{{DishID: f.margarita.ID, Quantity: 1}})
	if err != nil {
		t.Fatalf("decrease edit: %v", err)
	}
	if res.Trail != nil || len(f.store.StockMovements()) != movements {
		t.Error("decrease must not write stock movements")
	}
	if res.Order.Lines[0].Quantity != 1 {
		t.Errorf("quantity = %d, want 1", res.Order.Lines[0].Quantity)
	}

	// 1 -> 3 needs 400 g, only 200 g are left.
	_, err = f.guard.EditOrder(ctx, order.ID, []Line{{DishID: f.margarita.ID, Quantity: 3}})
	if !errors.Is(err, apperror.ErrStock) {
		t.Fatalf("expected stock error, got %v", err)
	}
	stored, _ := f.store.Order(order.ID)
	if stored.Lines[0].Quantity != 1 {
		t.Errorf("rejected edit changed quantity to %d", stored.Lines[0].Quantity)
	}
}

func TestEditDeliveredDispatchesIncrement(t *testing.T) {
	f := newFixture(t, 1000, 0)
	ctx := context.Background()
	order := f.createPizzas(t, 2)
	if _, err := f.executor.DispatchOrder(ctx, order.ID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	res, err := f.guard.EditOrder(ctx, order.ID, []Line{{DishID: f.margarita.ID, Quantity: 3}})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if res.Trail == nil || len(res.Trail.Movements) != 3 {
		t.Fatalf("expected consumption, production and dispatch of the increment, got %+v", res.Trail)
	}
	if got := f.doughOnHand(); !got.Equal(decimal.NewFromInt(400)) {
		t.Errorf("dough = %s, want 400", got)
	}
	if res.Order.Status != models.OrderDelivered {
		t.Errorf("status = %s", res.Order.Status)
	}
}

func TestEditRejectsClosedOrders(t *testing.T) {
	f := newFixture(t, 1000, 0)
	ctx := context.Background()
	order := f.createPizzas(t, 1)
	if _, err := f.guard.CancelOrder(ctx, order.ID); err != nil {
		t.Fatal(err)
	}
	_, err := f.guard.EditOrder(ctx, order.ID, []Line{{DishID: f.margarita.ID, Quantity: 2}})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRedispatchIsRejected(t *testing.T) {
	f := newFixture(t, 1000, 0)
	ctx := context.Background()
	order := f.createPizzas(t, 2)
	if _, err := f.executor.DispatchOrder(ctx, order.ID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	dough := f.doughOnHand()
	movements := len(f.store.StockMovements())

	_, err := f.executor.DispatchOrder(ctx, order.ID)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !f.doughOnHand().Equal(dough) || len(f.store.StockMovements()) != movements {
		t.Error("second dispatch changed stock")
	}
}

func TestDispatchNeverGoesNegative(t *testing.T) {
	f := newFixture(t, 500, 0)
	ctx := context.Background()
	order := f.createPizzas(t, 2)

	if _, err := f.executor.ProduceDish(ctx, f.focaccia.ID, 2); err != nil {
		t.Fatalf("produce: %v", err)
	}
	movements := len(f.store.StockMovements())

	_, err := f.executor.DispatchOrder(ctx, order.ID)
	var stockErr *apperror.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %v", err)
	}
	if !stockErr.Available.Equal(decimal.NewFromInt(100)) {
		t.Errorf("available = %s, want 100", stockErr.Available)
	}
	if got := f.doughOnHand(); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("dough = %s, want 100", got)
	}
	stored, _ := f.store.Order(order.ID)
	if stored.Status != models.OrderOpen {
		t.Errorf("status = %s, want OPEN", stored.Status)
	}
	if len(f.store.StockMovements()) != movements {
		t.Error("rejected dispatch wrote movements")
	}
}

func TestRecipeErrors(t *testing.T) {
	f := newFixture(t, 1000, 0)
	ctx := context.Background()
	bare := f.store.AddDish(models.Dish{Name: "Tiramisu", PreparedStock: 5})
	empty := f.store.AddDish(models.Dish{Name: "Calzone"})
	f.store.AddRecipe(empty.ID)

	// Prepared stock covers the whole line, no recipe needed.
	if _, err := f.guard.CreateOrder(ctx, CreateOrderInput{Lines: []Line{{DishID: bare.ID, Quantity: 5}}}); err != nil {
		t.Fatalf("covered by stock: %v", err)
	}

	tests := []struct {
		name   string
		dishID int64
		qty    int64
		reason apperror.StockReason
	}{
		{"missing recipe", bare.ID, 6, apperror.StockMissingRecipe},
		{"empty recipe", empty.ID, 1, apperror.StockEmptyRecipe},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.guard.CreateOrder(ctx, CreateOrderInput{Lines: []Line{{DishID: tt.dishID, Quantity: tt.qty}}})
			var stockErr *apperror.StockError
			if !errors.As(err, &stockErr) {
				t.Fatalf("expected StockError, got %v", err)
			}
			if stockErr.Reason != tt.reason {
				t.Errorf("reason = %s, want %s", stockErr.Reason, tt.reason)
			}
		})
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t, 1000, 0)
	tests := []struct {
		name  string
		lines []Line
	}{
		{"no lines", nil},
		{"zero quantity", []Line{{DishID: f.margarita.ID, Quantity: 0}}},
		{"unknown dish", []Line{{DishID: 9999, Quantity: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.guard.CreateOrder(context.Background(), CreateOrderInput{Lines: tt.lines})
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestMutationsRequireOpenRegister(t *testing.T) {
	f := newFixture(t, 1000, 0)
	ctx := context.Background()
	order := f.createPizzas(t, 1)
	f.gate.err = &apperror.CycleError{Kind: apperror.CycleRegisterClosed}

	if _, err := f.guard.CreateOrder(ctx, CreateOrderInput{Lines: []Line{{DishID: f.margarita.ID, Quantity: 1}}}); !errors.Is(err, apperror.ErrRegisterClosed) {
		t.Errorf("create: %v", err)
	}
	if _, err := f.guard.EditOrder(ctx, order.ID, []Line{{DishID: f.margarita.ID, Quantity: 2}}); !errors.Is(err, apperror.ErrRegisterClosed) {
		t.Errorf("edit: %v", err)
	}
	if _, err := f.executor.DispatchOrder(ctx, order.ID); !errors.Is(err, apperror.ErrRegisterClosed) {
		t.Errorf("dispatch: %v", err)
	}
	if err := f.guard.DeleteOrder(ctx, order.ID); !errors.Is(err, apperror.ErrRegisterClosed) {
		t.Errorf("delete: %v", err)
	}

	// Production moves no money.
	if _, err := f.executor.ProduceDish(ctx, f.margarita.ID, 1); err != nil {
		t.Errorf("produce with closed register: %v", err)
	}
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture(t, 1000, 0)
	ctx := context.Background()
	open := f.createPizzas(t, 1)
	delivered := f.createPizzas(t, 1)
	if _, err := f.executor.DispatchOrder(ctx, delivered.ID); err != nil {
		t.Fatal(err)
	}

	if err := f.guard.DeleteOrder(ctx, open.ID); err != nil {
		t.Fatalf("delete open order: %v", err)
	}
	if _, ok := f.store.Order(open.ID); ok {
		t.Error("order still stored")
	}
	if err := f.guard.DeleteOrder(ctx, delivered.ID); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("delete delivered order: %v", err)
	}
	if err := f.guard.DeleteOrder(ctx, 4242); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("delete missing order: %v", err)
	}
}

func TestCreateOrderRetriesConflict(t *testing.T) {
	f := newFixture(t, 1000, 0)
	f.store.InjectTxErrors(&apperror.ConcurrencyError{Op: "test", Err: errors.New("deadlock")})

	order := f.createPizzas(t, 1)
	if order.ID == 0 {
		t.Fatal("order not persisted")
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != events.OrderCreated {
		t.Errorf("events = %+v", f.publisher.events)
	}
}

func TestProduceDish(t *testing.T) {
	f := newFixture(t, 500, 0)
	ctx := context.Background()

	if _, err := f.executor.ProduceDish(ctx, f.margarita.ID, 0); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("zero quantity: %v", err)
	}
	if _, err := f.executor.ProduceDish(ctx, f.margarita.ID, 3); !errors.Is(err, apperror.ErrStock) {
		t.Errorf("over capacity: %v", err)
	}

	trail, err := f.executor.ProduceDish(ctx, f.margarita.ID, 2)
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if trail.ReferenceType != models.ReferenceProduction || len(trail.Movements) != 2 {
		t.Errorf("trail = %+v", trail)
	}
	if got := f.store.Dish(f.margarita.ID).PreparedStock; got != 2 {
		t.Errorf("prepared stock = %d, want 2", got)
	}
	if got := f.doughOnHand(); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("dough = %s, want 100", got)
	}
}

func TestCalculatorStockIsStatic(t *testing.T) {
	f := newFixture(t, 1000, 2)
	var demand Demand
	err := f.store.WithinTx(context.Background(), func(tx repository.Tx) error {
		a := []Line{{DishID: f.margarita.ID, Quantity: 2}}
		b := []Line{{DishID: f.margarita.ID, Quantity: 1}, {DishID: f.margarita.ID, Quantity: 2}}
		calc, err := LoadCalculator(tx, a, b)
		if err != nil {
			return err
		}
		demand = Demand{}
		if err := calc.Accumulate(demand, a); err != nil {
			return err
		}
		return calc.Accumulate(demand, b)
	})
	if err != nil {
		t.Fatal(err)
	}
	// a is fully covered by the two prepared pizzas; b merges to 3 and is
	// covered for 2 of them again.
	if got := demand[f.dough.ID]; !got.Equal(decimal.NewFromInt(200)) {
		t.Errorf("demand = %s, want 200", got)
	}
}

func TestShortfall(t *testing.T) {
	tests := []struct {
		stock, qty, from, short int64
	}{
		{2, 3, 2, 1},
		{5, 3, 3, 0},
		{0, 4, 0, 4},
	}
	for _, tt := range tests {
		from, short := Shortfall(tt.stock, tt.qty)
		if from != tt.from || short != tt.short {
			t.Errorf("Shortfall(%d, %d) = %d, %d; want %d, %d", tt.stock, tt.qty, from, short, tt.from, tt.short)
		}
	}
}
