// ABOUTME: Operator identity carried through request handlers
// ABOUTME: Provides WithOperator/OperatorFromContext for propagating auth info via context

package auth

import "context"

// Operator is the authenticated caller of an operator route.
type Operator struct {
	Subject string
}

type operatorContextKey struct{}

// WithOperator returns a new context with the operator attached.
func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, op)
}

// OperatorFromContext returns the operator, or nil when the request was not
// authenticated (including when auth is disabled).
func OperatorFromContext(ctx context.Context) *Operator {
	op, _ := ctx.Value(operatorContextKey{}).(*Operator)
	return op
}
