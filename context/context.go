package context

import (
	"context"

	"github.com/resourcedb/resourcedb"
	"github.com/resourcedb/resourcedb/kit/platform/errors"
)

type contextKey string

const (
	authorizerCtxKey = contextKey("resourcedb/authorizer/v1")
)

// SetAuthorizer sets an authorizer on context.
func SetAuthorizer(ctx context.Context, a resourcedb.Authorizer) context.Context {
	return context.WithValue(ctx, authorizerCtxKey, a)
}

// GetAuthorizer retrieves an authorizer from context.
func GetAuthorizer(ctx context.Context) (resourcedb.Authorizer, error) {
	a, ok := ctx.Value(authorizerCtxKey).(resourcedb.Authorizer)
	if !ok {
		return nil, &errors.Error{
			Msg:  "authorizer not found on context",
			Code: errors.EInternal,
		}
	}

	return a, nil
}
