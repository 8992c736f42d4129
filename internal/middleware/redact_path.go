package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/xxxsen/likegate/internal/model"
)

type verifyCodeKey struct{}

// RedactVerifyCode sits in front of the gin engine. For requests under prefix
// it moves the code out of the URL into the request context, so request logs
// only ever see the redacted form. Handlers read it back with VerifyCodeFrom.
func RedactVerifyCode(prefix string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code, ok := strings.CutPrefix(r.URL.Path, prefix)
		if !ok || code == "" || strings.Contains(code, "/") {
			next.ServeHTTP(w, r)
			return
		}
		redacted := r.Clone(context.WithValue(r.Context(), verifyCodeKey{}, code))
		redacted.URL.Path = prefix + model.VerificationCode(code).String()
		redacted.URL.RawPath = ""
		redacted.RequestURI = redacted.URL.RequestURI()
		next.ServeHTTP(w, redacted)
	})
}

func VerifyCodeFrom(ctx context.Context) (string, bool) {
	code, ok := ctx.Value(verifyCodeKey{}).(string)
	return code, ok
}
