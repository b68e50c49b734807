package bridge

import (
	"context"

	"github.com/fastly/fetch-bridge-go/platform"
)

type (
	platformRequestContextKey        struct{}
	platformResponseWriterContextKey struct{}
)

// PlatformRequestFromContext returns the platform.Request behind the
// standardized request whose context is ctx, if any.
func PlatformRequestFromContext(ctx context.Context) platform.Request {
	r, _ := ctx.Value(platformRequestContextKey{}).(platform.Request)
	return r
}

// PlatformResponseWriterFromContext returns the platform.ResponseWriter the
// response for ctx will be projected onto, if any.
func PlatformResponseWriterFromContext(ctx context.Context) platform.ResponseWriter {
	w, _ := ctx.Value(platformResponseWriterContextKey{}).(platform.ResponseWriter)
	return w
}

func contextWithPlatform(ctx context.Context, r platform.Request, w platform.ResponseWriter) context.Context {
	ctx = context.WithValue(ctx, platformRequestContextKey{}, r)
	return context.WithValue(ctx, platformResponseWriterContextKey{}, w)
}
