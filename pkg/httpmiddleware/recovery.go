package httpmiddleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/lewisedginton/financial_qa/pkg/logger"
)

const panicBody = `{"error":"internal server error"}`

// Recovery turns a handler panic into a JSON 500 and logs it with the
// request correlation id and stack trace. http.ErrAbortHandler is re-raised
// so the server can drop the connection.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.GetLoggerFromContext(r.Context(), log).Error("Panic recovered in HTTP handler",
					logger.StringField("method", r.Method),
					logger.StringField("path", r.URL.Path),
					logger.StringField("panic", fmt.Sprint(rec)),
					logger.StringField("stack", string(debug.Stack())),
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Connection", "close")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(panicBody))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
