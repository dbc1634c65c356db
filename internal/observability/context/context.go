// Package context carries request scoped observability identifiers.
package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type printerIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithPrinterID tags the context with the printer a request or poll acts on.
func WithPrinterID(ctx context.Context, printerID string) context.Context {
	printerID = strings.TrimSpace(printerID)
	if printerID == "" {
		return ctx
	}
	return context.WithValue(ctx, printerIDKey{}, printerID)
}

func PrinterIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(printerIDKey{}).(string)
	return value
}
