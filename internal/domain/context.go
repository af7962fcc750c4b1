package domain

import "context"

// ContextKey is a type for context keys to avoid magic strings
type ContextKey string

const (
	// ContextKeyAccessToken is the key for the verified access token in the context
	ContextKeyAccessToken ContextKey = "access_token"
	// ContextKeyBearerToken is the key for the raw bearer token in the context
	ContextKeyBearerToken ContextKey = "bearer_token"
	// ContextKeyRequestID is the key for the request ID in the context
	ContextKeyRequestID ContextKey = "request_id"
)

// WithAccessToken adds the verified access token to the context
func WithAccessToken(ctx context.Context, token *AccessToken) context.Context {
	return context.WithValue(ctx, ContextKeyAccessToken, token)
}

// WithBearerToken adds the raw bearer token to the context
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ContextKeyBearerToken, token)
}

// WithRequestID adds the request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// GetAccessToken retrieves the verified access token from the context
func GetAccessToken(ctx context.Context) (*AccessToken, bool) {
	token, ok := ctx.Value(ContextKeyAccessToken).(*AccessToken)
	return token, ok && token != nil
}

// GetBearerToken retrieves the raw bearer token from the context
func GetBearerToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(ContextKeyBearerToken).(string)
	return token, ok
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(ContextKeyRequestID).(string)
	return requestID, ok
}
