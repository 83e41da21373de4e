package utils

import "context"

type employeeKey struct{}

func WithEmployeeID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, employeeKey{}, id)
}

// EmployeeIDFrom returns the authenticated employee attached to ctx.
func EmployeeIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(employeeKey{}).(int64)
	return id, ok && id != 0
}

// EmployeeRef is EmployeeIDFrom as a nullable column value.
func EmployeeRef(ctx context.Context) *int64 {
	id, ok := EmployeeIDFrom(ctx)
	if !ok {
		return nil
	}
	return &id
}
