package module

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imthegoodboy/AI-Oracle/pkg/concurrency"
	"github.com/imthegoodboy/AI-Oracle/pkg/config"
	"github.com/imthegoodboy/AI-Oracle/pkg/datastore"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultProviderName = "New Provider"

var providerColumns = []string{
	datastore.KProviderOwner, datastore.KProviderId, datastore.KProviderName, datastore.KProviderDesc,
	datastore.KProviderWebsite, datastore.KProviderStake, datastore.KProviderTotal, datastore.KProviderSuccess,
	datastore.KProviderCreateTime,
}

// ReputationScore successful/total, 0 when nothing was counted yet
func ReputationScore(total, successful int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(successful) / float64(total)
}

// ProviderManager owns provider rows. Profile edits come from the owner,
// the counters only move through RecordOutcome.
type ProviderManager struct {
	providerStore datastore.Datastore
	locks         *concurrency.KeyLock
	retry         int
}

func NewProviderManager(providerStore datastore.Datastore) *ProviderManager {
	return &ProviderManager{
		providerStore: providerStore,
		locks:         concurrency.NewKeyLock(),
		retry:         config.ConfigGlobal.CasRetry,
	}
}

// Register creates the provider for owner once. A repeated call returns the
// existing provider and created=false.
func (p *ProviderManager) Register(ctx context.Context, owner, displayName string) (*Provider, bool, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, false, ErrInvalidIdentity
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = defaultProviderName
	}
	now := time.Now()
	ok, err := p.providerStore.PutIfAbsent(owner, map[string]interface{}{
		datastore.KProviderId:         uuid.NewString(),
		datastore.KProviderName:       name,
		datastore.KProviderDesc:       "",
		datastore.KProviderWebsite:    "",
		datastore.KProviderStake:      decimal.Zero.String(),
		datastore.KProviderTotal:      int64(0),
		datastore.KProviderSuccess:    int64(0),
		datastore.KProviderCreateTime: now.UnixMilli(),
		datastore.KProviderModifyTime: now.UnixMilli(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("register provider: %w", err)
	}
	provider, err := p.Get(ctx, owner)
	if err != nil {
		return nil, false, err
	}
	if ok {
		logrus.WithFields(logrus.Fields{"owner": owner, "providerId": provider.Id}).Info("provider registered")
	}
	return provider, ok, nil
}

// Get the provider owned by owner, ErrProviderNotFound when absent
func (p *ProviderManager) Get(ctx context.Context, owner string) (*Provider, error) {
	data, err := p.providerStore.Get(owner, providerColumns)
	if err != nil {
		return nil, fmt.Errorf("read provider: %w", err)
	}
	if data == nil {
		return nil, ErrProviderNotFound
	}
	return providerFromRow(owner, data)
}

// UpdateProfile applies the non-nil fields of in
func (p *ProviderManager) UpdateProfile(ctx context.Context, owner string, in *ProfileInput) (*Provider, error) {
	values := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, ErrInvalidName
		}
		values[datastore.KProviderName] = name
	}
	if in.Description != nil {
		values[datastore.KProviderDesc] = strings.TrimSpace(*in.Description)
	}
	if in.Website != nil {
		values[datastore.KProviderWebsite] = strings.TrimSpace(*in.Website)
	}
	if in.StakeAmount != nil {
		if in.StakeAmount.IsNegative() {
			return nil, ErrInvalidAmount
		}
		values[datastore.KProviderStake] = in.StakeAmount.String()
	}
	if _, err := p.Get(ctx, owner); err != nil {
		return nil, err
	}
	if len(values) > 0 {
		values[datastore.KProviderModifyTime] = time.Now().UnixMilli()
		if err := p.providerStore.Update(owner, values); err != nil {
			return nil, fmt.Errorf("update provider: %w", err)
		}
	}
	return p.Get(ctx, owner)
}

// RecordOutcome counts one terminal request for the provider owned by owner,
// success increments both counters, failure only the total.
func (p *ProviderManager) RecordOutcome(ctx context.Context, owner string, success bool) error {
	if owner == "" {
		return nil
	}
	unlock := p.locks.Lock(owner)
	defer unlock()

	for i := 0; i < p.retry; i++ {
		provider, err := p.Get(ctx, owner)
		if err != nil {
			return err
		}
		values := map[string]interface{}{
			datastore.KProviderTotal:      provider.TotalRequests + 1,
			datastore.KProviderModifyTime: time.Now().UnixMilli(),
		}
		if success {
			values[datastore.KProviderSuccess] = provider.SuccessfulRequests + 1
		}
		ok, err := p.providerStore.UpdateIf(owner, datastore.KProviderTotal, provider.TotalRequests, values)
		if err != nil {
			return fmt.Errorf("update provider counters: %w", err)
		}
		if ok {
			return nil
		}
		casConflicts.WithLabelValues(datastore.KProviderTableName).Inc()
	}
	return fmt.Errorf("update provider counters: retry limit reached for %s", owner)
}

func providerFromRow(owner string, data map[string]interface{}) (*Provider, error) {
	stake, err := decimal.NewFromString(stringOf(data[datastore.KProviderStake], "0"))
	if err != nil {
		return nil, fmt.Errorf("provider %s stake: %w", owner, err)
	}
	return &Provider{
		Id:                 stringOf(data[datastore.KProviderId], ""),
		OwnerIdentity:      owner,
		Name:               stringOf(data[datastore.KProviderName], ""),
		Description:        stringOf(data[datastore.KProviderDesc], ""),
		Website:            stringOf(data[datastore.KProviderWebsite], ""),
		StakeAmount:        stake,
		TotalRequests:      int64Of(data[datastore.KProviderTotal]),
		SuccessfulRequests: int64Of(data[datastore.KProviderSuccess]),
		CreatedAt:          time.UnixMilli(int64Of(data[datastore.KProviderCreateTime])),
	}, nil
}
