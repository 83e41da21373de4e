package cash

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"pizzeria-system/internal/database/models"
)

// MethodTotal is one payment method's bucket of a reconciliation. Display
// folds the opening float into the cash bucket only; Net never includes it.
type MethodTotal struct {
	MethodID int64           `json:"payment_method_id"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	In       decimal.Decimal `json:"in"`
	Out      decimal.Decimal `json:"out"`
	Net      decimal.Decimal `json:"net"`
	Display  decimal.Decimal `json:"display"`
}

type ReconciliationReport struct {
	Open         bool             `json:"open"`
	OpenedAt     time.Time        `json:"opened_at"`
	OpenedBy     *int64           `json:"opened_by,omitempty"`
	OpeningFloat decimal.Decimal  `json:"opening_float"`
	TotalIn      decimal.Decimal  `json:"total_in"`
	TotalOut     decimal.Decimal  `json:"total_out"`
	Expected     decimal.Decimal  `json:"expected"`
	Closing      *decimal.Decimal `json:"closing,omitempty"`
	ClosedAt     *time.Time       `json:"closed_at,omitempty"`
	Anomaly      bool             `json:"anomaly"`
	Methods      []MethodTotal    `json:"methods"`
}

type RegisterStatus struct {
	Open          bool            `json:"open"`
	OpeningFloat  decimal.Decimal `json:"opening_float"`
	OpenedAt      *time.Time      `json:"opened_at,omitempty"`
	OpenedBy      *int64          `json:"opened_by,omitempty"`
	TodayBalance  decimal.Decimal `json:"today_balance"`
	CashAvailable decimal.Decimal `json:"cash_available"`
	Methods       []MethodTotal   `json:"methods"`
}

// bucketer groups CASH_IN and CASH_OUT by payment method.
type bucketer struct {
	methods map[int64]models.PaymentMethod
	buckets map[int64]*MethodTotal
}

func newBucketer(methods []models.PaymentMethod) *bucketer {
	b := &bucketer{
		methods: make(map[int64]models.PaymentMethod, len(methods)),
		buckets: map[int64]*MethodTotal{},
	}
	for _, m := range methods {
		b.methods[m.ID] = m
	}
	return b
}

func (b *bucketer) bucket(methodID int64) *MethodTotal {
	if t, ok := b.buckets[methodID]; ok {
		return t
	}
	m := b.methods[methodID]
	t := &MethodTotal{MethodID: methodID, Code: m.Code, Name: m.Name}
	b.buckets[methodID] = t
	return t
}

func (b *bucketer) add(m models.CashMovement) {
	var id int64
	if m.PaymentMethodID != nil {
		id = *m.PaymentMethodID
	}
	switch m.Type {
	case models.CashIn:
		t := b.bucket(id)
		t.In = t.In.Add(m.Amount)
	case models.CashOut:
		t := b.bucket(id)
		t.Out = t.Out.Add(m.Amount)
	}
}

func (b *bucketer) totals(cashCode string, float decimal.Decimal) []MethodTotal {
	if !float.IsZero() {
		for id, m := range b.methods {
			if m.Code == cashCode {
				b.bucket(id)
				break
			}
		}
	}
	out := make([]MethodTotal, 0, len(b.buckets))
	for _, t := range b.buckets {
		t.Net = t.In.Sub(t.Out)
		t.Display = t.Net
		if t.Code == cashCode {
			t.Display = t.Net.Add(float)
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MethodID < out[j].MethodID })
	return out
}

func (b *bucketer) sum() (in, out decimal.Decimal) {
	for _, t := range b.buckets {
		in = in.Add(t.In)
		out = out.Add(t.Out)
	}
	return in, out
}

// cycle is the slice of today's movements starting at the last OPEN.
type cycle struct {
	open      bool
	movements []models.CashMovement
}

func (c cycle) opening() models.CashMovement {
	return c.movements[0]
}

func (c cycle) closing() *models.CashMovement {
	last := c.movements[len(c.movements)-1]
	if last.Type != models.CashClose {
		return nil
	}
	return &last
}

func reconcile(c cycle, methods []models.PaymentMethod, cashCode string) *ReconciliationReport {
	opening := c.opening()
	b := newBucketer(methods)
	for _, m := range c.movements {
		b.add(m)
	}
	in, out := b.sum()
	r := &ReconciliationReport{
		Open:         c.open,
		OpenedAt:     opening.OccurredAt,
		OpenedBy:     opening.EmployeeID,
		OpeningFloat: opening.Amount,
		TotalIn:      in,
		TotalOut:     out,
		Expected:     opening.Amount.Add(in).Sub(out),
		Methods:      b.totals(cashCode, opening.Amount),
	}
	if cl := c.closing(); cl != nil {
		amount, at := cl.Amount, cl.OccurredAt
		r.Closing = &amount
		r.ClosedAt = &at
		r.Anomaly = !amount.Equal(r.Expected)
	}
	return r
}
