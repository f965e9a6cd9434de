package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/GauntletMC/Graphite/internal/logging"
)

// RequestIDHeader заголовок с идентификатором запроса; входящее значение сохраняется
const RequestIDHeader = "X-Request-ID"

// Ключи gin.Context, которые выставляют обработчики admin API
const (
	KeyRequestID = "request_id"
	KeyOperator  = "operator"
)

// RequestLogger пишет журнал admin API. Чтение идёт в Debug, изменения
// состояния в Info с именем оператора, ответы 5xx в Error.
type RequestLogger struct {
	log *logging.Logger
}

// NewRequestLogger пишет в l; nil - логгер сервера
func NewRequestLogger(l *logging.Logger) *RequestLogger {
	if l == nil {
		l = logging.GetServerLogger()
	}
	return &RequestLogger{log: l}
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := requestID(c)
		c.Set(KeyRequestID, id)
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()

		route := routeOf(c)
		status := c.Writer.Status()
		elapsed := time.Since(start)
		switch {
		case status >= http.StatusInternalServerError:
			rl.log.Error("[HTTP] %s %s %d %s id=%s err=%s", c.Request.Method, route, status, elapsed, id, c.Errors.String())
		case isMutation(c.Request.Method):
			rl.log.Info("[HTTP] %s %s %d %s world=%q operator=%q id=%s",
				c.Request.Method, route, status, elapsed, c.Param("world"), c.GetString(KeyOperator), id)
		default:
			rl.log.Debug("[HTTP] %s %s %d %s id=%s", c.Request.Method, route, status, elapsed, id)
		}
	}
}

// requestID берёт заголовок клиента, затем trace-id OpenTelemetry, затем новый UUID
func requestID(c *gin.Context) string {
	if id := c.GetHeader(RequestIDHeader); id != "" && len(id) <= 64 {
		return id
	}
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.IsValid() {
		return sc.TraceID().String()
	}
	return uuid.NewString()
}

// routeOf шаблон маршрута вместо пути, чтобы не раздувать логи и метки
func routeOf(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}

func isMutation(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
