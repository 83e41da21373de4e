package apperror

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("record not found")

	ErrValidation  = errors.New("validation failed")
	ErrStock       = errors.New("insufficient stock")
	ErrCycle       = errors.New("register cycle violation")
	ErrConcurrency = errors.New("concurrent modification")

	// ErrRegisterClosed lets callers branch on the closed register separately
	// from other cycle violations (e.g. to keep read-only operations available).
	ErrRegisterClosed = errors.New("register is closed")
)

type ValidationError struct {
	Field   string
	Message string
}

func NewValidation(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Details() map[string]interface{} {
	return map[string]interface{}{"field": e.Field}
}

type StockReason string

const (
	StockInsufficient  StockReason = "insufficient"
	StockMissingRecipe StockReason = "missing_recipe"
	StockEmptyRecipe   StockReason = "empty_recipe"
)

type StockError struct {
	Reason StockReason

	IngredientID int64
	Ingredient   string
	Unit         string
	Required     decimal.Decimal
	Available    decimal.Decimal
	Shortfall    decimal.Decimal

	DishID int64
	Dish   string
}

func Insufficient(id int64, name, unit string, required, available decimal.Decimal) *StockError {
	short := required.Sub(available)
	if short.IsNegative() {
		short = decimal.Zero
	}
	return &StockError{
		Reason:       StockInsufficient,
		IngredientID: id,
		Ingredient:   name,
		Unit:         unit,
		Required:     required,
		Available:    available,
		Shortfall:    short,
	}
}

func MissingRecipe(dishID int64, dish string, shortfall decimal.Decimal) *StockError {
	return &StockError{Reason: StockMissingRecipe, DishID: dishID, Dish: dish, Shortfall: shortfall}
}

func EmptyRecipe(dishID int64, dish string) *StockError {
	return &StockError{Reason: StockEmptyRecipe, DishID: dishID, Dish: dish}
}

func (e *StockError) Error() string {
	switch e.Reason {
	case StockMissingRecipe:
		return fmt.Sprintf("dish %q has no recipe to produce %s unit(s)", e.Dish, e.Shortfall.String())
	case StockEmptyRecipe:
		return fmt.Sprintf("recipe of dish %q has no ingredients", e.Dish)
	default:
		return fmt.Sprintf("insufficient stock: missing %s %s of %s (required %s, available %s)",
			e.Shortfall.StringFixed(3), e.Unit, e.Ingredient, e.Required.String(), e.Available.String())
	}
}

func (e *StockError) Is(target error) bool { return target == ErrStock }

func (e *StockError) Details() map[string]interface{} {
	d := map[string]interface{}{"reason": e.Reason}
	if e.IngredientID != 0 {
		d["ingredient_id"] = e.IngredientID
		d["ingredient"] = e.Ingredient
		d["unit"] = e.Unit
		d["required"] = e.Required.String()
		d["available"] = e.Available.String()
		d["shortfall"] = e.Shortfall.String()
	}
	if e.DishID != 0 {
		d["dish_id"] = e.DishID
		d["dish"] = e.Dish
	}
	return d
}

type CycleKind string

const (
	CycleAlreadyOpen    CycleKind = "already_open"
	CycleAlreadyClosed  CycleKind = "already_closed"
	CycleRegisterClosed CycleKind = "register_closed"
	CycleNoOpening      CycleKind = "no_opening"
)

type CycleError struct {
	Kind CycleKind
}

func (e *CycleError) Error() string {
	switch e.Kind {
	case CycleAlreadyOpen:
		return "register is already open"
	case CycleAlreadyClosed:
		return "register is already closed"
	case CycleNoOpening:
		return "no register opening recorded today"
	default:
		return "register is closed: only read operations are allowed"
	}
}

func (e *CycleError) Is(target error) bool {
	if target == ErrCycle {
		return true
	}
	return target == ErrRegisterClosed && e.Kind == CycleRegisterClosed
}

func (e *CycleError) Details() map[string]interface{} {
	return map[string]interface{}{"kind": e.Kind}
}

type ConcurrencyError struct {
	Op  string
	Err error
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("%s: concurrent modification: %v", e.Op, e.Err)
}

func (e *ConcurrencyError) Unwrap() error { return e.Err }

func (e *ConcurrencyError) Is(target error) bool { return target == ErrConcurrency }

// Detailed is implemented by every business error carrying structured data
// for the API envelope.
type Detailed interface {
	error
	Details() map[string]interface{}
}
