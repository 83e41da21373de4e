package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pizzeria-system/internal/cache"
	"pizzeria-system/internal/database/models"
	"pizzeria-system/internal/repository"
)

const (
	CATALOG_DISHES_CACHE_KEY = "catalog:dishes"
	CACHE_TTL_MEDIUM         = 30 * time.Minute
)

// -- READ MODELS --

type DishView struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	PreparedStock int64           `json:"prepared_stock"`
	HasRecipe     bool            `json:"has_recipe"`
}

type IngredientView struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	Unit         string           `json:"unit"`
	OnHand       decimal.Decimal  `json:"on_hand"`
	MaxStock     *decimal.Decimal `json:"max_stock,omitempty"`
	ReorderPoint *decimal.Decimal `json:"reorder_point,omitempty"`
	LowStock     bool             `json:"low_stock"`
}

type OrderLineView struct {
	DishID    int64           `json:"dish_id"`
	Dish      string          `json:"dish"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type OrderView struct {
	ID         int64              `json:"id"`
	Status     models.OrderStatus `json:"status"`
	TableID    *int64             `json:"table_id,omitempty"`
	CustomerID *int64             `json:"customer_id,omitempty"`
	EmployeeID *int64             `json:"employee_id,omitempty"`
	Notes      *string            `json:"notes,omitempty"`
	OpenedAt   time.Time          `json:"opened_at"`
	ClosedAt   *time.Time         `json:"closed_at,omitempty"`
	Lines      []OrderLineView    `json:"lines"`
	Total      decimal.Decimal    `json:"total"`
}

func ingredientView(in models.Ingredient) IngredientView {
	return IngredientView{
		ID:           in.ID,
		Name:         in.Name,
		Unit:         in.Unit,
		OnHand:       in.OnHand,
		MaxStock:     in.MaxStock,
		ReorderPoint: in.ReorderPoint,
		LowStock:     in.ReorderPoint != nil && in.OnHand.LessThanOrEqual(*in.ReorderPoint),
	}
}

type Service struct {
	store repository.Store
	cache cache.Cache
	log   *zap.Logger
}

// NewService builds the read side. c may be nil, which disables caching.
func NewService(store repository.Store, c cache.Cache, log *zap.Logger) *Service {
	return &Service{store: store, cache: c, log: log}
}

// InvalidateDishes drops the cached dish list. Failures only cost a stale
// read until the TTL expires, so they are logged.
func (s *Service) InvalidateDishes(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, CATALOG_DISHES_CACHE_KEY); err != nil {
		s.log.Warn("failed to invalidate dish cache", zap.Error(err))
	}
}

func (s *Service) ListDishes(ctx context.Context) ([]DishView, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, CATALOG_DISHES_CACHE_KEY)
		switch {
		case err == nil:
			var views []DishView
			if err := json.Unmarshal(raw, &views); err == nil {
				return views, nil
			}
		case !errors.Is(err, cache.ErrMiss):
			s.log.Warn("dish cache read failed", zap.Error(err))
		}
	}

	var views []DishView
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		dishes, err := tx.ListDishes()
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(dishes))
		for _, d := range dishes {
			ids = append(ids, d.ID)
		}
		recipes, err := tx.ActiveRecipes(ids)
		if err != nil {
			return err
		}
		views = make([]DishView, 0, len(dishes))
		for _, d := range dishes {
			r, ok := recipes[d.ID]
			views = append(views, DishView{
				ID:            d.ID,
				Name:          d.Name,
				UnitPrice:     d.UnitPrice,
				PreparedStock: d.PreparedStock,
				HasRecipe:     ok && len(r.Lines) > 0,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(views); err == nil {
			if err := s.cache.Set(ctx, CATALOG_DISHES_CACHE_KEY, raw, CACHE_TTL_MEDIUM); err != nil {
				s.log.Warn("dish cache write failed", zap.Error(err))
			}
		}
	}
	return views, nil
}

func (s *Service) ListIngredients(ctx context.Context) ([]IngredientView, error) {
	var views []IngredientView
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		rows, err := tx.ListIngredients()
		if err != nil {
			return err
		}
		views = make([]IngredientView, 0, len(rows))
		for _, in := range rows {
			views = append(views, ingredientView(in))
		}
		return nil
	})
	return views, err
}

// ListLowStock returns the ingredients at or below their reorder point.
func (s *Service) ListLowStock(ctx context.Context) ([]IngredientView, error) {
	all, err := s.ListIngredients(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]IngredientView, 0)
	for _, v := range all {
		if v.LowStock {
			low = append(low, v)
		}
	}
	return low, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*OrderView, error) {
	var view *OrderView
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		o, err := tx.GetOrder(id, false)
		if err != nil {
			return fmt.Errorf("order %d: %w", id, err)
		}
		ids := make([]int64, 0, len(o.Lines))
		for _, l := range o.Lines {
			ids = append(ids, l.DishID)
		}
		dishes, err := tx.GetDishes(ids)
		if err != nil {
			return err
		}

		view = &OrderView{
			ID:         o.ID,
			Status:     o.Status,
			TableID:    o.TableID,
			CustomerID: o.CustomerID,
			EmployeeID: o.EmployeeID,
			Notes:      o.Notes,
			OpenedAt:   o.OpenedAt,
			ClosedAt:   o.ClosedAt,
			Lines:      make([]OrderLineView, 0, len(o.Lines)),
		}
		for _, l := range o.Lines {
			d := dishes[l.DishID]
			sub := d.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)).Round(2)
			view.Lines = append(view.Lines, OrderLineView{
				DishID:    l.DishID,
				Dish:      d.Name,
				Quantity:  l.Quantity,
				UnitPrice: d.UnitPrice,
				Subtotal:  sub,
			})
			view.Total = view.Total.Add(sub)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}
