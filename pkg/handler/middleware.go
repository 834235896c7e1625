package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	ginmiddleware "github.com/deepmap/oapi-codegen/pkg/gin-middleware"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/gin-gonic/gin"
	"github.com/imthegoodboy/AI-Oracle/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
)

var httpDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "oracle",
		Name:      "http_request_duration_seconds",
		Help:      "Latency of the API by route and status code.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "code"},
)

// Collectors the handler metrics, registered by the server
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{httpDuration}
}

// Authenticator resolves an API key secret to its owner
type Authenticator interface {
	Authenticate(ctx context.Context, secret string) (string, error)
}

// Stat observes every request
func Stat() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Identity resolves the caller from the gateway headers or from an API key
// bearer token. The headers count only on requests carrying the gateway
// token. Anonymous requests pass through, handlers that need an identity
// reject them.
func Identity(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := c.GetHeader(config.ConfigGlobal.UserIdHeader); user != "" && fromGateway(c) {
			c.Set(userKey, user)
			c.Set(userNameKey, c.GetHeader(config.ConfigGlobal.UserNameHeader))
			c.Next()
			return
		}
		if header := c.GetHeader(authHeader); strings.HasPrefix(header, bearerPrefix) {
			owner, err := auth.Authenticate(c.Request.Context(), strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
			if err != nil {
				handleModuleError(c, err)
				return
			}
			c.Set(userKey, owner)
		}
		c.Next()
	}
}

// fromGateway the request went through the identity provider gateway
func fromGateway(c *gin.Context) bool {
	if !config.ConfigGlobal.TrustGateway() {
		return false
	}
	token := c.GetHeader(gatewayHeader)
	return subtle.ConstantTimeCompare([]byte(token), []byte(config.ConfigGlobal.GatewayToken)) == 1
}

// servingAuthorized checks the shared serving token, only the serving
// system may move requests along
func servingAuthorized(c *gin.Context) bool {
	if !config.ConfigGlobal.EnableServing() {
		handleError(c, http.StatusForbidden, "serving endpoint disabled")
		return false
	}
	token := c.GetHeader(servingHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(config.ConfigGlobal.ServingToken)) != 1 {
		handleError(c, http.StatusUnauthorized, "invalid serving token")
		return false
	}
	return true
}

// RequestValidator checks parameters and bodies against the OpenAPI document
func RequestValidator(swagger *openapi3.T) gin.HandlerFunc {
	return ginmiddleware.OapiRequestValidatorWithOptions(swagger, &ginmiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
		ErrorHandler: func(c *gin.Context, message string, statusCode int) {
			handleError(c, statusCode, message)
		},
	})
}
