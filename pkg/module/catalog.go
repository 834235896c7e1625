package module

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imthegoodboy/AI-Oracle/pkg/config"
	"github.com/imthegoodboy/AI-Oracle/pkg/datastore"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var modelTypes = map[string]struct{}{
	config.TEXT_MODEL:       {},
	config.IMAGE_MODEL:      {},
	config.AUDIO_MODEL:      {},
	config.MULTIMODAL_MODEL: {},
}

var modelColumns = []string{
	datastore.KModelId, datastore.KModelType, datastore.KModelName, datastore.KModelDesc, datastore.KModelPrice,
	datastore.KModelResponseMs, datastore.KModelAccuracy, datastore.KModelCapabilities, datastore.KModelProvider,
	datastore.KModelOwner, datastore.KModelActive, datastore.KModelCreateTime,
}

// CatalogManager the two source catalog: curated listings fixed at build
// time and registered listings kept in the models table.
type CatalogManager struct {
	curated    []ModelListing
	modelStore datastore.Datastore
	providers  *ProviderManager
	group      singleflight.Group
}

func NewCatalogManager(curated []ModelListing, modelStore datastore.Datastore,
	providers *ProviderManager) *CatalogManager {
	return &CatalogManager{
		curated:    curated,
		modelStore: modelStore,
		providers:  providers,
	}
}

// List the merged catalog, optionally only one model type
func (c *CatalogManager) List(ctx context.Context, modelType string) ([]ModelListing, error) {
	registered, err := c.activeRegistered()
	if err != nil {
		return nil, err
	}
	merged := MergeCatalog(c.curated, registered)
	if modelType == "" {
		return merged, nil
	}
	ret := make([]ModelListing, 0, len(merged))
	for _, listing := range merged {
		if listing.ModelType == modelType {
			ret = append(ret, listing)
		}
	}
	return ret, nil
}

// Resolve a listing that can take new requests
func (c *CatalogManager) Resolve(ctx context.Context, id string) (*ModelListing, error) {
	listing, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !listing.Active {
		return nil, fmt.Errorf("%w: %s is deactivated", ErrUnknownModel, id)
	}
	return listing, nil
}

// Get a listing by id, deactivated registered listings included
func (c *CatalogManager) Get(ctx context.Context, id string) (*ModelListing, error) {
	for i := range c.curated {
		if c.curated[i].Id == id {
			listing := c.curated[i]
			return &listing, nil
		}
	}
	data, err := c.modelStore.Get(id, modelColumns)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", id, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return listingFromRow(id, data)
}

func (c *CatalogManager) isCurated(id string) bool {
	for i := range c.curated {
		if c.curated[i].Id == id {
			return true
		}
	}
	return false
}

// Register a listing for the provider owned by owner. Ids are unique across
// both partitions, a curated id can not be taken.
func (c *CatalogManager) Register(ctx context.Context, owner string, in *ListingInput) (*ModelListing, error) {
	provider, err := c.providers.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(in.Id)
	if id == "" {
		id = uuid.NewString()
	}
	if c.isCurated(id) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateListing, id)
	}
	listing := &ModelListing{
		Id:                id,
		ModelType:         strings.TrimSpace(in.ModelType),
		Name:              strings.TrimSpace(in.Name),
		Description:       strings.TrimSpace(in.Description),
		PricePerInference: in.PricePerInference,
		ResponseTimeMs:    in.ResponseTimeMs,
		AccuracyRate:      in.AccuracyRate,
		Origin:            config.ORIGIN_REGISTERED,
		ProviderId:        provider.Id,
		ProviderOwner:     owner,
		Capabilities:      in.Capabilities,
		Active:            true,
		CreatedAt:         time.Now().UnixMilli(),
	}
	if err := validateListing(listing); err != nil {
		return nil, err
	}
	capabilities, err := json.Marshal(listing.Capabilities)
	if err != nil {
		return nil, err
	}
	values := map[string]interface{}{
		datastore.KModelType:         listing.ModelType,
		datastore.KModelName:         listing.Name,
		datastore.KModelDesc:         listing.Description,
		datastore.KModelPrice:        listing.PricePerInference.String(),
		datastore.KModelCapabilities: string(capabilities),
		datastore.KModelProvider:     provider.Id,
		datastore.KModelOwner:        owner,
		datastore.KModelActive:       int64(1),
		datastore.KModelCreateTime:   listing.CreatedAt,
		datastore.KModelModifyTime:   listing.CreatedAt,
	}
	if listing.ResponseTimeMs != nil {
		values[datastore.KModelResponseMs] = *listing.ResponseTimeMs
	}
	if listing.AccuracyRate != nil {
		values[datastore.KModelAccuracy] = *listing.AccuracyRate
	}
	ok, err := c.modelStore.PutIfAbsent(id, values)
	if err != nil {
		return nil, fmt.Errorf("register model %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateListing, id)
	}
	logrus.WithFields(logrus.Fields{"modelId": id, "providerId": provider.Id}).Info("model registered")
	return listing, nil
}

// Deactivate soft removes a registered listing. Only the owning provider may
// do it, repeating it is a no-op.
func (c *CatalogManager) Deactivate(ctx context.Context, owner, id string) error {
	provider, err := c.providers.Get(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownModel, id)
		}
		return err
	}
	data, err := c.modelStore.Get(id, []string{datastore.KModelProvider, datastore.KModelActive})
	if err != nil {
		return fmt.Errorf("read model %s: %w", id, err)
	}
	if data == nil || stringOf(data[datastore.KModelProvider], "") != provider.Id {
		return fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	if int64Of(data[datastore.KModelActive]) == 0 {
		return nil
	}
	if err := c.modelStore.Update(id, map[string]interface{}{
		datastore.KModelActive:     int64(0),
		datastore.KModelModifyTime: time.Now().UnixMilli(),
	}); err != nil {
		return fmt.Errorf("deactivate model %s: %w", id, err)
	}
	logrus.WithFields(logrus.Fields{"modelId": id, "providerId": provider.Id}).Info("model deactivated")
	return nil
}

// activeRegistered reads the registered partition newest first, concurrent
// callers share one read
func (c *CatalogManager) activeRegistered() ([]ModelListing, error) {
	v, err, _ := c.group.Do("registered", func() (interface{}, error) {
		rows, err := c.modelStore.ListBy(datastore.KModelActive, int64(1), modelColumns)
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		ret := make([]ModelListing, 0, len(rows))
		for id, row := range rows {
			listing, err := listingFromRow(id, row)
			if err != nil {
				// a broken row must not hide the rest of the catalog
				logrus.WithField("modelId", id).Warnf("skip model row: %v", err)
				continue
			}
			ret = append(ret, *listing)
		}
		sort.Slice(ret, func(i, j int) bool {
			if ret[i].CreatedAt != ret[j].CreatedAt {
				return ret[i].CreatedAt > ret[j].CreatedAt
			}
			return ret[i].Id < ret[j].Id
		})
		return ret, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ModelListing), nil
}

func validateListing(listing *ModelListing) error {
	if listing.Name == "" {
		return ErrInvalidName
	}
	if _, ok := modelTypes[listing.ModelType]; !ok {
		return fmt.Errorf("%w: model type %q", ErrInvalidListing, listing.ModelType)
	}
	if listing.PricePerInference.IsNegative() {
		return fmt.Errorf("%w: negative price", ErrInvalidListing)
	}
	if listing.ResponseTimeMs != nil && *listing.ResponseTimeMs < 0 {
		return fmt.Errorf("%w: negative responseTimeMs", ErrInvalidListing)
	}
	if listing.AccuracyRate != nil && (*listing.AccuracyRate < 0 || *listing.AccuracyRate > 100) {
		return fmt.Errorf("%w: accuracyRate out of [0,100]", ErrInvalidListing)
	}
	return nil
}

func listingFromRow(id string, data map[string]interface{}) (*ModelListing, error) {
	price, err := decimal.NewFromString(stringOf(data[datastore.KModelPrice], "0"))
	if err != nil {
		return nil, fmt.Errorf("model %s price: %w", id, err)
	}
	var capabilities []string
	if raw := stringOf(data[datastore.KModelCapabilities], ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &capabilities); err != nil {
			return nil, fmt.Errorf("model %s capabilities: %w", id, err)
		}
	}
	return &ModelListing{
		Id:                id,
		ModelType:         stringOf(data[datastore.KModelType], ""),
		Name:              stringOf(data[datastore.KModelName], ""),
		Description:       stringOf(data[datastore.KModelDesc], ""),
		PricePerInference: price,
		ResponseTimeMs:    optInt64(data[datastore.KModelResponseMs]),
		AccuracyRate:      optFloat64(data[datastore.KModelAccuracy]),
		Origin:            config.ORIGIN_REGISTERED,
		ProviderId:        stringOf(data[datastore.KModelProvider], ""),
		ProviderOwner:     stringOf(data[datastore.KModelOwner], ""),
		Capabilities:      capabilities,
		Active:            int64Of(data[datastore.KModelActive]) == 1,
		CreatedAt:         int64Of(data[datastore.KModelCreateTime]),
	}, nil
}
