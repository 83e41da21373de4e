package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pizzeria-system/internal/apperror"
	"pizzeria-system/internal/database/models"
)

// MemoryStore keeps everything in process. A unit of work holds a global lock
// and restores a snapshot when fn fails, which gives the same all-or-nothing
// and serialization guarantees as the postgres store.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState

	injected []error
}

type memState struct {
	nextID int64

	ingredients    map[int64]models.Ingredient
	dishes         map[int64]models.Dish
	recipes        map[int64]models.Recipe
	orders         map[int64]models.Order
	stockMovements []models.StockMovement
	cashMovements  []models.CashMovement
	methods        map[int64]models.PaymentMethod
	sales          map[int64]models.Sale
	purchases      map[int64]models.Purchase
	employees      map[int64]models.Employee
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{state: &memState{
		ingredients: map[int64]models.Ingredient{},
		dishes:      map[int64]models.Dish{},
		recipes:     map[int64]models.Recipe{},
		orders:      map[int64]models.Order{},
		methods:     map[int64]models.PaymentMethod{},
		sales:       map[int64]models.Sale{},
		purchases:   map[int64]models.Purchase{},
		employees:   map[int64]models.Employee{},
	}}
	for _, code := range []string{models.PaymentCash, models.PaymentCard, models.PaymentTransfer} {
		id := s.state.id()
		s.state.methods[id] = models.PaymentMethod{ID: id, Code: code, Name: code, IsActive: true}
	}
	return s
}

func (st *memState) id() int64 {
	st.nextID++
	return st.nextID
}

func (st *memState) clone() *memState {
	c := &memState{
		nextID:         st.nextID,
		ingredients:    make(map[int64]models.Ingredient, len(st.ingredients)),
		dishes:         make(map[int64]models.Dish, len(st.dishes)),
		recipes:        make(map[int64]models.Recipe, len(st.recipes)),
		orders:         make(map[int64]models.Order, len(st.orders)),
		stockMovements: append([]models.StockMovement(nil), st.stockMovements...),
		cashMovements:  append([]models.CashMovement(nil), st.cashMovements...),
		methods:        make(map[int64]models.PaymentMethod, len(st.methods)),
		sales:          make(map[int64]models.Sale, len(st.sales)),
		purchases:      make(map[int64]models.Purchase, len(st.purchases)),
		employees:      make(map[int64]models.Employee, len(st.employees)),
	}
	for k, v := range st.ingredients {
		c.ingredients[k] = v
	}
	for k, v := range st.dishes {
		c.dishes[k] = v
	}
	for k, v := range st.recipes {
		v.Lines = append([]models.RecipeLine(nil), v.Lines...)
		c.recipes[k] = v
	}
	for k, v := range st.orders {
		v.Lines = append([]models.OrderLine(nil), v.Lines...)
		c.orders[k] = v
	}
	for k, v := range st.methods {
		c.methods[k] = v
	}
	for k, v := range st.sales {
		v.Lines = append([]models.SaleLine(nil), v.Lines...)
		c.sales[k] = v
	}
	for k, v := range st.purchases {
		v.Lines = append([]models.PurchaseLine(nil), v.Lines...)
		c.purchases[k] = v
	}
	for k, v := range st.employees {
		c.employees[k] = v
	}
	return c
}

// InjectTxErrors makes the next units of work fail with errs, in order,
// before fn runs.
func (s *MemoryStore) InjectTxErrors(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injected = append(s.injected, errs...)
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.injected) > 0 {
		err := s.injected[0]
		s.injected = s.injected[1:]
		return err
	}

	snapshot := s.state.clone()
	if err := fn(&memTx{st: s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// --- fixtures and inspection ---

func (s *MemoryStore) AddIngredient(in models.Ingredient) models.Ingredient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.ID == 0 {
		in.ID = s.state.id()
	}
	in.IsActive = true
	s.state.ingredients[in.ID] = in
	return in
}

func (s *MemoryStore) AddDish(d models.Dish) models.Dish {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.state.id()
	}
	d.IsActive = true
	s.state.dishes[d.ID] = d
	return d
}

// AddRecipe stores an active recipe for dishID with the given ingredient
// quantities per unit, in order.
func (s *MemoryStore) AddRecipe(dishID int64, lines ...models.RecipeLine) models.Recipe {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := models.Recipe{ID: s.state.id(), DishID: dishID, IsActive: true}
	for i, l := range lines {
		l.ID = s.state.id()
		l.RecipeID = r.ID
		l.Position = int32(i)
		r.Lines = append(r.Lines, l)
	}
	s.state.recipes[dishID] = r
	return r
}

func (s *MemoryStore) AddEmployee(e models.Employee) models.Employee {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		e.ID = s.state.id()
	}
	s.state.employees[e.ID] = e
	return e
}

func (s *MemoryStore) Ingredient(id int64) models.Ingredient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ingredients[id]
}

func (s *MemoryStore) Dish(id int64) models.Dish {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.dishes[id]
}

func (s *MemoryStore) Order(id int64) (models.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	return o, ok
}

func (s *MemoryStore) CashMovements() []models.CashMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CashMovement(nil), s.state.cashMovements...)
}

func (s *MemoryStore) StockMovements() []models.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StockMovement(nil), s.state.stockMovements...)
}

func (s *MemoryStore) Sales() []models.Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Sale, 0, len(s.state.sales))
	for _, v := range s.state.sales {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) Purchase(id int64) (models.Purchase, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.purchases[id]
	return p, ok
}

// --- Tx ---

type memTx struct {
	st *memState
}

func (t *memTx) LockReservations() error { return nil }

func (t *memTx) LockRegister() error { return nil }

func (t *memTx) LockIngredients(ids []int64) (map[int64]models.Ingredient, error) {
	out := make(map[int64]models.Ingredient, len(ids))
	for _, id := range sortedIDs(ids) {
		if in, ok := t.st.ingredients[id]; ok {
			out[id] = in
		}
	}
	return out, nil
}

func (t *memTx) ListIngredients() ([]models.Ingredient, error) {
	out := make([]models.Ingredient, 0, len(t.st.ingredients))
	for _, in := range t.st.ingredients {
		if in.IsActive {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memTx) AdjustIngredient(id int64, delta decimal.Decimal) error {
	in, ok := t.st.ingredients[id]
	if !ok {
		return apperror.ErrNotFound
	}
	next := in.OnHand.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("check constraint violated: ingredient %d on_hand would be %s", id, next)
	}
	in.OnHand = next
	t.st.ingredients[id] = in
	return nil
}

func (t *memTx) GetDishes(ids []int64) (map[int64]models.Dish, error) {
	out := make(map[int64]models.Dish, len(ids))
	for _, id := range ids {
		if d, ok := t.st.dishes[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (t *memTx) LockDishes(ids []int64) (map[int64]models.Dish, error) {
	return t.GetDishes(sortedIDs(ids))
}

func (t *memTx) ListDishes() ([]models.Dish, error) {
	out := make([]models.Dish, 0, len(t.st.dishes))
	for _, d := range t.st.dishes {
		if d.IsActive {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memTx) AdjustDishStock(id int64, delta int64) error {
	d, ok := t.st.dishes[id]
	if !ok {
		return apperror.ErrNotFound
	}
	if d.PreparedStock+delta < 0 {
		return fmt.Errorf("check constraint violated: dish %d prepared_stock would be %d", id, d.PreparedStock+delta)
	}
	d.PreparedStock += delta
	t.st.dishes[id] = d
	return nil
}

func (t *memTx) ActiveRecipes(dishIDs []int64) (map[int64]models.Recipe, error) {
	out := make(map[int64]models.Recipe, len(dishIDs))
	for _, id := range dishIDs {
		r, ok := t.st.recipes[id]
		if !ok || !r.IsActive {
			continue
		}
		r.Lines = append([]models.RecipeLine(nil), r.Lines...)
		for i := range r.Lines {
			if in, ok := t.st.ingredients[r.Lines[i].IngredientID]; ok {
				in := in
				r.Lines[i].Ingredient = &in
			}
		}
		out[id] = r
	}
	return out, nil
}

func (t *memTx) GetOrder(id int64, _ bool) (*models.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	o.Lines = append([]models.OrderLine(nil), o.Lines...)
	return &o, nil
}

func (t *memTx) ListOpenOrders(excludeID int64) ([]models.Order, error) {
	var out []models.Order
	for _, o := range t.st.orders {
		if o.Status == models.OrderOpen && o.ID != excludeID {
			o.Lines = append([]models.OrderLine(nil), o.Lines...)
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CreateOrder(order *models.Order) error {
	order.ID = t.st.id()
	order.UpdatedAt = order.OpenedAt
	for i := range order.Lines {
		order.Lines[i].ID = t.st.id()
		order.Lines[i].OrderID = order.ID
	}
	stored := *order
	stored.Lines = append([]models.OrderLine(nil), order.Lines...)
	t.st.orders[order.ID] = stored
	return nil
}

func (t *memTx) ReplaceOrderLines(orderID int64, lines []models.OrderLine) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return apperror.ErrNotFound
	}
	o.Lines = nil
	for i := range lines {
		lines[i].ID = t.st.id()
		lines[i].OrderID = orderID
		o.Lines = append(o.Lines, lines[i])
	}
	o.UpdatedAt = time.Now()
	t.st.orders[orderID] = o
	return nil
}

func (t *memTx) UpdateOrderStatus(id int64, status models.OrderStatus, closedAt *time.Time) error {
	o, ok := t.st.orders[id]
	if !ok {
		return apperror.ErrNotFound
	}
	o.Status = status
	if closedAt != nil {
		c := *closedAt
		o.ClosedAt = &c
	}
	o.UpdatedAt = time.Now()
	t.st.orders[id] = o
	return nil
}

func (t *memTx) DeleteOrder(id int64) error {
	if _, ok := t.st.orders[id]; !ok {
		return apperror.ErrNotFound
	}
	delete(t.st.orders, id)
	return nil
}

func (t *memTx) AddStockMovements(movements []models.StockMovement) error {
	for _, m := range movements {
		m.ID = t.st.id()
		t.st.stockMovements = append(t.st.stockMovements, m)
	}
	return nil
}

func (t *memTx) CashMovementsBetween(from, to time.Time) ([]models.CashMovement, error) {
	var out []models.CashMovement
	for _, m := range t.st.cashMovements {
		if !m.OccurredAt.Before(from) && m.OccurredAt.Before(to) {
			if m.PaymentMethodID != nil {
				if pm, ok := t.st.methods[*m.PaymentMethodID]; ok {
					pm := pm
					m.PaymentMethod = &pm
				}
			}
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out, nil
}

func (t *memTx) AddCashMovement(m *models.CashMovement) error {
	if m.Amount.IsNegative() {
		return fmt.Errorf("check constraint violated: cash movement amount %s", m.Amount)
	}
	m.ID = t.st.id()
	stored := *m
	stored.PaymentMethod = nil
	t.st.cashMovements = append(t.st.cashMovements, stored)
	return nil
}

func (t *memTx) PaymentMethods() ([]models.PaymentMethod, error) {
	out := make([]models.PaymentMethod, 0, len(t.st.methods))
	for _, m := range t.st.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CreateSale(sale *models.Sale) error {
	for _, existing := range t.st.sales {
		if existing.OrderID == sale.OrderID {
			return fmt.Errorf("unique constraint violated: sale for order %d exists", sale.OrderID)
		}
	}
	sale.ID = t.st.id()
	for i := range sale.Lines {
		sale.Lines[i].ID = t.st.id()
		sale.Lines[i].SaleID = sale.ID
	}
	stored := *sale
	stored.Lines = append([]models.SaleLine(nil), sale.Lines...)
	t.st.sales[sale.ID] = stored
	return nil
}

func (t *memTx) CreatePurchase(p *models.Purchase) error {
	p.ID = t.st.id()
	for i := range p.Lines {
		p.Lines[i].ID = t.st.id()
		p.Lines[i].PurchaseID = p.ID
	}
	stored := *p
	stored.Lines = append([]models.PurchaseLine(nil), p.Lines...)
	t.st.purchases[p.ID] = stored
	return nil
}

func (t *memTx) GetSale(id int64) (*models.Sale, error) {
	sale, ok := t.st.sales[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	sale.Lines = append([]models.SaleLine(nil), sale.Lines...)
	return &sale, nil
}

func (t *memTx) GetPurchase(id int64, _ bool) (*models.Purchase, error) {
	p, ok := t.st.purchases[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	p.Lines = append([]models.PurchaseLine(nil), p.Lines...)
	return &p, nil
}

func (t *memTx) ListInProcessPurchaseLines(excludeID int64) ([]models.PurchaseLine, error) {
	ids := make([]int64, 0, len(t.st.purchases))
	for id, p := range t.st.purchases {
		if p.Status == models.PurchaseInProcess && id != excludeID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []models.PurchaseLine
	for _, id := range ids {
		out = append(out, t.st.purchases[id].Lines...)
	}
	return out, nil
}

func (t *memTx) UpdatePurchaseStatus(id int64, status models.PurchaseStatus, receivedAt *time.Time) error {
	p, ok := t.st.purchases[id]
	if !ok {
		return apperror.ErrNotFound
	}
	p.Status = status
	if receivedAt != nil {
		r := *receivedAt
		p.ReceivedAt = &r
	}
	t.st.purchases[id] = p
	return nil
}

func (t *memTx) GetEmployee(id int64) (*models.Employee, error) {
	e, ok := t.st.employees[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	return &e, nil
}
