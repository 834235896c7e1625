package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/imthegoodboy/AI-Oracle/pkg/config"
	"github.com/imthegoodboy/AI-Oracle/pkg/module"
	"github.com/sirupsen/logrus"
)

const (
	userKey       = "userId"
	userNameKey   = "userName"
	authHeader    = "Authorization"
	bearerPrefix  = "Bearer "
	servingHeader = "X-Serving-Token"
	gatewayHeader = "X-Gateway-Token"
)

func getBindResult(c *gin.Context, in interface{}) error {
	if err := binding.JSON.Bind(c.Request, in); err != nil {
		return err
	}
	return nil
}

func handleError(c *gin.Context, code int, err string) {
	c.AbortWithStatusJSON(code, module.Error{Code: int32(code), Message: err})
}

// statusOf maps the module error kinds onto http status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, module.ErrQuotaExceeded),
		errors.Is(err, module.ErrInvalidTransition),
		errors.Is(err, module.ErrDuplicateListing):
		return http.StatusConflict
	case errors.Is(err, module.ErrUnknownModel),
		errors.Is(err, module.ErrUnknownRequest),
		errors.Is(err, module.ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, module.ErrInvalidName),
		errors.Is(err, module.ErrInvalidListing),
		errors.Is(err, module.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, module.ErrInvalidIdentity),
		errors.Is(err, module.ErrUnknownKey):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func handleModuleError(c *gin.Context, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		logrus.WithField("path", c.FullPath()).Errorf("request failed: %v", err)
		handleError(c, code, config.INTERNALERROR)
		return
	}
	handleError(c, code, err.Error())
}

// currentUser the identity set by Identity, aborts with 401 when absent
func currentUser(c *gin.Context) (string, bool) {
	if user := c.GetString(userKey); user != "" {
		return user, true
	}
	handleError(c, http.StatusUnauthorized, config.UNAUTHORIZED)
	return "", false
}
