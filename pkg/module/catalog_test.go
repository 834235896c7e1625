package module

import (
	"context"
	"testing"

	"github.com/imthegoodboy/AI-Oracle/pkg/config"
	"github.com/imthegoodboy/AI-Oracle/pkg/datastore"
	"github.com/imthegoodboy/AI-Oracle/pkg/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T, curated []ModelListing) (*CatalogManager, *ProviderManager) {
	pm := newTestProviderManager(t)
	return NewCatalogManager(curated, newTestTable(t, datastore.KModelTableName), pm), pm
}

func TestLoadCurated(t *testing.T) {
	curated, err := LoadCurated()
	require.NoError(t, err)
	require.NotEmpty(t, curated)

	seen := map[string]struct{}{}
	for _, l := range curated {
		_, dup := seen[l.Id]
		assert.False(t, dup, l.Id)
		seen[l.Id] = struct{}{}
		assert.Equal(t, config.ORIGIN_CURATED, l.Origin)
		assert.True(t, l.Active)
		assert.NotNil(t, l.Docs, l.Id)
	}
	assert.Equal(t, "gpt-4o-mini", curated[0].Id)
	assert.True(t, curated[0].PricePerInference.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, int64(450), *curated[0].ResponseTimeMs)
	assert.Len(t, curated[0].Examples, 2)
}

func TestParseCuratedRejectsBadEntries(t *testing.T) {
	_, err := parseCurated([]byte("models:\n  - id: x\n    name: X\n    modelType: video\n    pricePerInference: \"1\"\n"))
	assert.ErrorIs(t, err, ErrInvalidListing)
	_, err = parseCurated([]byte("models:\n  - id: x\n    name: X\n    modelType: text\n    pricePerInference: abc\n"))
	assert.Error(t, err)
}

func TestRegisterListing(t *testing.T) {
	c, pm := newTestCatalog(t, nil)
	ctx := context.Background()

	in := &ListingInput{Name: "Mine", ModelType: config.TEXT_MODEL, PricePerInference: decimal.RequireFromString("0.3")}
	_, err := c.Register(ctx, "alice", in)
	assert.ErrorIs(t, err, ErrProviderNotFound)

	p, _, err := pm.Register(ctx, "alice", "Alice")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   ListingInput
		want error
	}{
		{"empty name", ListingInput{Name: " ", ModelType: config.TEXT_MODEL}, ErrInvalidName},
		{"bad type", ListingInput{Name: "x", ModelType: "video"}, ErrInvalidListing},
		{"negative price", ListingInput{Name: "x", ModelType: config.TEXT_MODEL,
			PricePerInference: decimal.RequireFromString("-0.1")}, ErrInvalidListing},
		{"accuracy over 100", ListingInput{Name: "x", ModelType: config.TEXT_MODEL,
			AccuracyRate: utils.Float64(101)}, ErrInvalidListing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Register(ctx, "alice", &tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	in.Id = "mine"
	in.Capabilities = []string{"a", "b"}
	in.ResponseTimeMs = utils.Int64(120)
	listing, err := c.Register(ctx, "alice", in)
	require.NoError(t, err)
	assert.Equal(t, p.Id, listing.ProviderId)
	assert.Equal(t, config.ORIGIN_REGISTERED, listing.Origin)

	_, err = c.Register(ctx, "alice", in)
	assert.ErrorIs(t, err, ErrDuplicateListing)

	got, err := c.Get(ctx, "mine")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ProviderOwner)
	assert.Equal(t, []string{"a", "b"}, got.Capabilities)
	assert.Equal(t, int64(120), *got.ResponseTimeMs)
	assert.Nil(t, got.AccuracyRate)
	assert.True(t, got.PricePerInference.Equal(decimal.RequireFromString("0.3")))
}

func TestRegisterListingCuratedIdTaken(t *testing.T) {
	c, pm := newTestCatalog(t, []ModelListing{listing("fixed", config.ORIGIN_CURATED, "0.05")})
	ctx := context.Background()

	_, _, err := pm.Register(ctx, "alice", "Alice")
	require.NoError(t, err)
	_, err = c.Register(ctx, "alice", &ListingInput{Id: " fixed ", Name: "mine", ModelType: config.TEXT_MODEL})
	assert.ErrorIs(t, err, ErrDuplicateListing)

	data, err := c.modelStore.Get("fixed", modelColumns)
	require.NoError(t, err)
	assert.Nil(t, data)
	got, err := c.Resolve(ctx, "fixed")
	require.NoError(t, err)
	assert.Equal(t, config.ORIGIN_CURATED, got.Origin)
}

func TestCatalogListMergesPartitions(t *testing.T) {
	curated := []ModelListing{listing("shared", config.ORIGIN_CURATED, "0.05")}
	curated[0].ModelType = config.IMAGE_MODEL
	c, pm := newTestCatalog(t, curated)
	ctx := context.Background()

	_, _, err := pm.Register(ctx, "alice", "Alice")
	require.NoError(t, err)
	for _, id := range []string{"older", "newer"} {
		_, err := c.Register(ctx, "alice", &ListingInput{Id: id, Name: id, ModelType: config.TEXT_MODEL,
			PricePerInference: decimal.RequireFromString("1")})
		require.NoError(t, err)
		require.NoError(t, c.modelStore.Update(id, map[string]interface{}{
			datastore.KModelCreateTime: map[string]int64{"older": 1, "newer": 3}[id],
		}))
	}
	// a registered row colliding with a curated id, left over from an older store
	require.NoError(t, c.modelStore.Put("shared", map[string]interface{}{
		datastore.KModelType:       config.TEXT_MODEL,
		datastore.KModelName:       "shared",
		datastore.KModelPrice:      "1",
		datastore.KModelActive:     int64(1),
		datastore.KModelCreateTime: int64(2),
	}))

	all, err := c.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"shared", "newer", "older"}, ids(all))
	assert.Equal(t, config.ORIGIN_CURATED, all[0].Origin)

	images, err := c.List(ctx, config.IMAGE_MODEL)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared"}, ids(images))

	// the curated entry shadows the registered one on lookup as well
	got, err := c.Resolve(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, config.ORIGIN_CURATED, got.Origin)
}

func TestDeactivateListing(t *testing.T) {
	c, pm := newTestCatalog(t, []ModelListing{listing("fixed", config.ORIGIN_CURATED, "0.05")})
	ctx := context.Background()

	_, _, err := pm.Register(ctx, "alice", "Alice")
	require.NoError(t, err)
	_, _, err = pm.Register(ctx, "bob", "Bob")
	require.NoError(t, err)
	_, err = c.Register(ctx, "alice", &ListingInput{Id: "m", Name: "m", ModelType: config.AUDIO_MODEL})
	require.NoError(t, err)

	assert.ErrorIs(t, c.Deactivate(ctx, "bob", "m"), ErrUnknownModel)
	assert.ErrorIs(t, c.Deactivate(ctx, "carol", "m"), ErrUnknownModel)
	assert.ErrorIs(t, c.Deactivate(ctx, "alice", "fixed"), ErrUnknownModel)
	assert.ErrorIs(t, c.Deactivate(ctx, "alice", "missing"), ErrUnknownModel)

	require.NoError(t, c.Deactivate(ctx, "alice", "m"))
	require.NoError(t, c.Deactivate(ctx, "alice", "m"))

	all, err := c.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"fixed"}, ids(all))

	_, err = c.Resolve(ctx, "m")
	assert.ErrorIs(t, err, ErrUnknownModel)
	// still resolvable for attribution
	got, err := c.Get(ctx, "m")
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownModel)
}
