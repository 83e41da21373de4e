package stock

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"pizzeria-system/internal/apperror"
	"pizzeria-system/internal/database/models"
	"pizzeria-system/internal/repository"
)

// Line is a requested quantity of one dish.
type Line struct {
	DishID   int64 `json:"dish_id"`
	Quantity int64 `json:"quantity"`
}

// Demand maps ingredient id to the total quantity required.
type Demand map[int64]decimal.Decimal

func (d Demand) add(ingredientID int64, qty decimal.Decimal) {
	d[ingredientID] = d[ingredientID].Add(qty)
}

// IngredientIDs returns the ingredients in ascending id order, the order in
// which their rows are locked and checked.
func (d Demand) IngredientIDs() []int64 {
	ids := make([]int64, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// mergeLines folds repeated dishes into one line, keeping first-seen order.
func mergeLines(lines []Line) []Line {
	idx := make(map[int64]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if i, ok := idx[l.DishID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.DishID] = len(out)
		out = append(out, l)
	}
	return out
}

func orderLines(o models.Order) []Line {
	lines := make([]Line, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, Line{DishID: l.DishID, Quantity: l.Quantity})
	}
	return lines
}

// Calculator turns dish lines into ingredient demand. Each line is served
// first from the dish's prepared stock and only the shortfall is exploded
// through the active recipe. Prepared stock is read as a static figure: it is
// not consumed by earlier reservations.
type Calculator struct {
	dishes  map[int64]models.Dish
	recipes map[int64]models.Recipe
}

// LoadCalculator reads the dishes and active recipes needed to evaluate every
// line in groups.
func LoadCalculator(tx repository.Tx, groups ...[]Line) (*Calculator, error) {
	var ids []int64
	seen := map[int64]bool{}
	for _, g := range groups {
		for _, l := range g {
			if !seen[l.DishID] {
				seen[l.DishID] = true
				ids = append(ids, l.DishID)
			}
		}
	}
	dishes, err := tx.GetDishes(ids)
	if err != nil {
		return nil, err
	}
	recipes, err := tx.ActiveRecipes(ids)
	if err != nil {
		return nil, err
	}
	return &Calculator{dishes: dishes, recipes: recipes}, nil
}

// Shortfall splits qty into the part covered by prepared stock and the part
// that has to be produced.
func Shortfall(preparedStock, qty int64) (fromStock, shortfall int64) {
	fromStock = qty
	if preparedStock < fromStock {
		fromStock = preparedStock
	}
	if fromStock < 0 {
		fromStock = 0
	}
	return fromStock, qty - fromStock
}

// Accumulate adds the ingredient demand of one order's lines to demand.
func (c *Calculator) Accumulate(demand Demand, lines []Line) error {
	for _, l := range mergeLines(lines) {
		if l.Quantity <= 0 {
			continue
		}
		dish := c.dishes[l.DishID]
		_, short := Shortfall(dish.PreparedStock, l.Quantity)
		if short == 0 {
			continue
		}
		recipe, err := c.recipeFor(l.DishID, short)
		if err != nil {
			return err
		}
		units := decimal.NewFromInt(short)
		for _, rl := range recipe.Lines {
			if !rl.QtyPerUnit.IsPositive() {
				continue
			}
			demand.add(rl.IngredientID, rl.QtyPerUnit.Mul(units))
		}
	}
	return nil
}

func (c *Calculator) recipeFor(dishID, shortfall int64) (models.Recipe, error) {
	dish := c.dishes[dishID]
	recipe, ok := c.recipes[dishID]
	if !ok {
		return models.Recipe{}, apperror.MissingRecipe(dishID, dish.Name, decimal.NewFromInt(shortfall))
	}
	if len(recipe.Lines) == 0 {
		return models.Recipe{}, apperror.EmptyRecipe(dishID, dish.Name)
	}
	return recipe, nil
}

// Dish returns the loaded dish, if any.
func (c *Calculator) Dish(id int64) (models.Dish, bool) {
	d, ok := c.dishes[id]
	return d, ok
}

// CheckAvailability locks every ingredient in demand (ascending id) and fails
// on the first one whose on-hand quantity does not cover the total.
func CheckAvailability(tx repository.Tx, demand Demand) (map[int64]models.Ingredient, error) {
	ids := demand.IngredientIDs()
	locked, err := tx.LockIngredients(ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		required := demand[id]
		in, ok := locked[id]
		if !ok {
			return nil, apperror.Insufficient(id, fmt.Sprintf("ingredient #%d", id), "", required, decimal.Zero)
		}
		if in.OnHand.LessThan(required) {
			return nil, apperror.Insufficient(id, in.Name, in.Unit, required, in.OnHand)
		}
	}
	return locked, nil
}
