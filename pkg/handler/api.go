package handler

import (
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openapiSpec []byte

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// ListModels merged catalog
	// (GET /v1/models)
	ListModels(c *gin.Context)
	// RegisterModel register a listing for the calling provider
	// (POST /v1/models)
	RegisterModel(c *gin.Context)
	// GetModel listing detail
	// (GET /v1/models/{id})
	GetModel(c *gin.Context, id string)
	// DeactivateModel soft remove a registered listing
	// (DELETE /v1/models/{id})
	DeactivateModel(c *gin.Context, id string)
	// RegisterProvider
	// (POST /v1/providers)
	RegisterProvider(c *gin.Context)
	// GetProvider
	// (GET /v1/providers/me)
	GetProvider(c *gin.Context)
	// UpdateProvider profile and stake
	// (PUT /v1/providers/me)
	UpdateProvider(c *gin.Context)
	// ListKeys
	// (GET /v1/keys)
	ListKeys(c *gin.Context)
	// CreateKey
	// (POST /v1/keys)
	CreateKey(c *gin.Context)
	// RevokeKey
	// (DELETE /v1/keys/{id})
	RevokeKey(c *gin.Context, id string)
	// SubmitRequest
	// (POST /v1/requests)
	SubmitRequest(c *gin.Context)
	// ListRequests
	// (GET /v1/requests)
	ListRequests(c *gin.Context)
	// RequestStats
	// (GET /v1/requests/stats)
	RequestStats(c *gin.Context)
	// GetRequest
	// (GET /v1/requests/{id})
	GetRequest(c *gin.Context, id string)
	// AdvanceRequest serving system only
	// (POST /v1/requests/{id}/status)
	AdvanceRequest(c *gin.Context, id string)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []gin.HandlerFunc
	ErrorHandler       func(*gin.Context, error, int)
}

func (siw *ServerInterfaceWrapper) runMiddlewares(c *gin.Context) bool {
	for _, middleware := range siw.HandlerMiddlewares {
		middleware(c)
		if c.IsAborted() {
			return false
		}
	}
	return true
}

func (siw *ServerInterfaceWrapper) pathParam(c *gin.Context, name string) (string, bool) {
	value := c.Param(name)
	if value == "" {
		siw.ErrorHandler(c, fmt.Errorf("path parameter %s is required", name), http.StatusBadRequest)
		return "", false
	}
	return value, true
}

func (siw *ServerInterfaceWrapper) ListModels(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.ListModels(c)
	}
}

func (siw *ServerInterfaceWrapper) RegisterModel(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.RegisterModel(c)
	}
}

func (siw *ServerInterfaceWrapper) GetModel(c *gin.Context) {
	id, ok := siw.pathParam(c, "id")
	if ok && siw.runMiddlewares(c) {
		siw.Handler.GetModel(c, id)
	}
}

func (siw *ServerInterfaceWrapper) DeactivateModel(c *gin.Context) {
	id, ok := siw.pathParam(c, "id")
	if ok && siw.runMiddlewares(c) {
		siw.Handler.DeactivateModel(c, id)
	}
}

func (siw *ServerInterfaceWrapper) RegisterProvider(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.RegisterProvider(c)
	}
}

func (siw *ServerInterfaceWrapper) GetProvider(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.GetProvider(c)
	}
}

func (siw *ServerInterfaceWrapper) UpdateProvider(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.UpdateProvider(c)
	}
}

func (siw *ServerInterfaceWrapper) ListKeys(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.ListKeys(c)
	}
}

func (siw *ServerInterfaceWrapper) CreateKey(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.CreateKey(c)
	}
}

func (siw *ServerInterfaceWrapper) RevokeKey(c *gin.Context) {
	id, ok := siw.pathParam(c, "id")
	if ok && siw.runMiddlewares(c) {
		siw.Handler.RevokeKey(c, id)
	}
}

func (siw *ServerInterfaceWrapper) SubmitRequest(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.SubmitRequest(c)
	}
}

func (siw *ServerInterfaceWrapper) ListRequests(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.ListRequests(c)
	}
}

func (siw *ServerInterfaceWrapper) RequestStats(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.RequestStats(c)
	}
}

func (siw *ServerInterfaceWrapper) GetRequest(c *gin.Context) {
	id, ok := siw.pathParam(c, "id")
	if ok && siw.runMiddlewares(c) {
		siw.Handler.GetRequest(c, id)
	}
}

func (siw *ServerInterfaceWrapper) AdvanceRequest(c *gin.Context) {
	id, ok := siw.pathParam(c, "id")
	if ok && siw.runMiddlewares(c) {
		siw.Handler.AdvanceRequest(c, id)
	}
}

// GinServerOptions provides options for the Gin server.
type GinServerOptions struct {
	BaseURL      string
	Middlewares  []gin.HandlerFunc
	ErrorHandler func(*gin.Context, error, int)
}

// RegisterHandlers creates http.Handler with routing matching OpenAPI spec.
func RegisterHandlers(router gin.IRouter, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, GinServerOptions{})
}

// RegisterHandlersWithOptions creates http.Handler with additional options
func RegisterHandlersWithOptions(router gin.IRouter, si ServerInterface, options GinServerOptions) {
	errorHandler := options.ErrorHandler
	if errorHandler == nil {
		errorHandler = func(c *gin.Context, err error, statusCode int) {
			handleError(c, statusCode, err.Error())
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandler:       errorHandler,
	}

	router.GET(options.BaseURL+"/v1/models", wrapper.ListModels)
	router.POST(options.BaseURL+"/v1/models", wrapper.RegisterModel)
	router.GET(options.BaseURL+"/v1/models/:id", wrapper.GetModel)
	router.DELETE(options.BaseURL+"/v1/models/:id", wrapper.DeactivateModel)
	router.POST(options.BaseURL+"/v1/providers", wrapper.RegisterProvider)
	router.GET(options.BaseURL+"/v1/providers/me", wrapper.GetProvider)
	router.PUT(options.BaseURL+"/v1/providers/me", wrapper.UpdateProvider)
	router.GET(options.BaseURL+"/v1/keys", wrapper.ListKeys)
	router.POST(options.BaseURL+"/v1/keys", wrapper.CreateKey)
	router.DELETE(options.BaseURL+"/v1/keys/:id", wrapper.RevokeKey)
	router.POST(options.BaseURL+"/v1/requests", wrapper.SubmitRequest)
	router.GET(options.BaseURL+"/v1/requests", wrapper.ListRequests)
	router.GET(options.BaseURL+"/v1/requests/stats", wrapper.RequestStats)
	router.GET(options.BaseURL+"/v1/requests/:id", wrapper.GetRequest)
	router.POST(options.BaseURL+"/v1/requests/:id/status", wrapper.AdvanceRequest)
}

// GetSwagger returns the embedded OpenAPI document. Servers are dropped so
// request validation matches whatever host the server is reached on.
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	swagger, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("error loading openapi document: %w", err)
	}
	swagger.Servers = nil
	return swagger, nil
}
