package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imthegoodboy/AI-Oracle/pkg/config"
	"github.com/imthegoodboy/AI-Oracle/pkg/module"
)

type keyRequest struct {
	Name string `json:"name"`
}

type providerRequest struct {
	Name string `json:"providerName"`
}

type submitRequest struct {
	ModelId string `json:"modelId"`
}

type advanceRequest struct {
	Status           string `json:"status"`
	ProcessingTimeMs *int64 `json:"processingTimeMs"`
}

type OracleHandler struct {
	catalog   *module.CatalogManager
	keys      *module.KeyManager
	ledger    *module.Ledger
	providers *module.ProviderManager
}

func NewOracleHandler(catalog *module.CatalogManager, keys *module.KeyManager, ledger *module.Ledger,
	providers *module.ProviderManager) *OracleHandler {
	return &OracleHandler{
		catalog:   catalog,
		keys:      keys,
		ledger:    ledger,
		providers: providers,
	}
}

// ListModels merged catalog
// (GET /v1/models)
func (o *OracleHandler) ListModels(c *gin.Context) {
	listings, err := o.catalog.List(c.Request.Context(), c.Query("type"))
	if err != nil {
		handleModuleError(c, err)
		return
	}
	c.JSON(http.StatusOK, listings)
}

// RegisterModel register a listing for the calling provider
// (POST /v1/models)
func (o *OracleHandler) RegisterModel(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	request := new(module.ListingInput)
	if err := getBindResult(c, request); err != nil {
		handleError(c, http.StatusBadRequest, config.BADREQUEST)
		return
	}
	listing, err := o.catalog.Register(c.Request.Context(), user, request)
	if err != nil {
		handleModuleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

// GetModel listing detail, deactivated listings included
// (GET /v1/models/{id})
func (o *OracleHandler) GetModel(c *gin.Context, id string) {
	listing, err := o.catalog.Get(c.Request.Context(), id)
	if err != nil {
		handleModuleError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// DeactivateModel soft remove a registered listing
// (DELETE /v1/models/{id})
func (o *OracleHandler) DeactivateModel(c *gin.Context, id string) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := o.catalog.Deactivate(c.Request.Context(), user, id); err != nil {
		handleModuleError(c, err)
		return
	}
	c.String(http.StatusOK, "success")
}

// RegisterProvider
// (POST /v1/providers)
func (o *OracleHandler) RegisterProvider(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	// the body is optional, chunked requests carry no length to check
	request := new(providerRequest)
	if c.Request.Body != nil {
		if err := getBindResult(c, request); err != nil && !errors.Is(err, io.EOF) {
			handleError(c, http.StatusBadRequest, config.BADREQUEST)
			return
		}
	}
	name := request.Name
	if name == "" {
		name = c.GetString(userNameKey)
	}
	provider, created, err := o.providers.Register(c.Request.Context(), user, name)
	if err != nil {
		handleModuleError(c, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	c.JSON(code, provider)
}

// GetProvider
// (GET /v1/providers/me)
func (o *OracleHandler) GetProvider(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	provider, err := o.providers.Get(c.Request.Context(), user)
	if err != nil {
		handleModuleError(c, err)
		return
	}
	c.JSON(http.StatusOK, provider)
}

// UpdateProvider profile and stake
// (PUT /v1/providers/me)
func (o *OracleHandler) UpdateProvider(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	request := new(module.ProfileInput)
	if err := getBindResult(c, request); err != nil {
		handleError(c, http.StatusBadRequest, config.BADREQUEST)
		return
	}
	provider, err := o.providers.UpdateProfile(c.Request.Context(), user, request)
	if err != nil {
		handleModuleError(c, err)
		return
	}
	c.JSON(http.StatusOK, provider)
}

// ListKeys
// (GET /v1/keys)
func (o *OracleHandler) ListKeys(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	keys, err := o.keys.ListKeys(c.Request.Context(), user)
	if err != nil {
		handleModuleError(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

// CreateKey
// (POST /v1/keys)
func (o *OracleHandler) CreateKey(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	request := new(keyRequest)
	if err := getBindResult(c, request); err != nil {
		handleError(c, http.StatusBadRequest, config.BADREQUEST)
		return
	}
	key, err := o.keys.CreateKey(c.Request.Context(), user, request.Name)
	if err != nil {
		handleModuleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, key)
}

// RevokeKey
// (DELETE /v1/keys/{id})
func (o *OracleHandler) RevokeKey(c *gin.Context, id string) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := o.keys.RevokeKey(c.Request.Context(), user, id); err != nil {
		handleModuleError(c, err)
		return
	}
	c.String(http.StatusOK, "success")
}

// SubmitRequest
// (POST /v1/requests)
func (o *OracleHandler) SubmitRequest(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	request := new(submitRequest)
	if err := getBindResult(c, request); err != nil {
		handleError(c, http.StatusBadRequest, config.BADREQUEST)
		return
	}
	listing, err := o.catalog.Resolve(c.Request.Context(), request.ModelId)
	if err != nil {
		handleModuleError(c, err)
		return
	}
	req, err := o.ledger.Submit(c.Request.Context(), user, request.ModelId, listing)
	if err != nil {
		handleModuleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// ListRequests newest first
// (GET /v1/requests)
func (o *OracleHandler) ListRequests(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	reqs, err := o.ledger.ListFor(c.Request.Context(), user)
	if err != nil {
		handleModuleError(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

// RequestStats
// (GET /v1/requests/stats)
func (o *OracleHandler) RequestStats(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	stats, err := o.ledger.StatsFor(c.Request.Context(), user)
	if err != nil {
		handleModuleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetRequest only the developer who submitted it may read it
// (GET /v1/requests/{id})
func (o *OracleHandler) GetRequest(c *gin.Context, id string) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	req, err := o.ledger.Get(c.Request.Context(), id)
	if err != nil {
		handleModuleError(c, err)
		return
	}
	if req.DeveloperIdentity != user {
		handleError(c, http.StatusNotFound, config.NOTFOUND)
		return
	}
	c.JSON(http.StatusOK, req)
}

// AdvanceRequest serving system only
// (POST /v1/requests/{id}/status)
func (o *OracleHandler) AdvanceRequest(c *gin.Context, id string) {
	if !servingAuthorized(c) {
		return
	}
	request := new(advanceRequest)
	if err := getBindResult(c, request); err != nil {
		handleError(c, http.StatusBadRequest, config.BADREQUEST)
		return
	}
	req, err := o.ledger.Advance(c.Request.Context(), id, request.Status, request.ProcessingTimeMs)
	if err != nil {
		handleModuleError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Health liveness probe
func (o *OracleHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// NoRouterHandler unknown path
func (o *OracleHandler) NoRouterHandler(c *gin.Context) {
	handleError(c, http.StatusNotFound, config.NOTFOUND)
}
