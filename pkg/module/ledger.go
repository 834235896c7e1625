package module

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/imthegoodboy/AI-Oracle/pkg/concurrency"
	"github.com/imthegoodboy/AI-Oracle/pkg/config"
	"github.com/imthegoodboy/AI-Oracle/pkg/datastore"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// allowed status edges, completed and failed are terminal
var transitions = map[string]map[string]struct{}{
	config.REQUEST_PENDING: {
		config.REQUEST_PROCESSING: {},
		config.REQUEST_FAILED:     {},
	},
	config.REQUEST_PROCESSING: {
		config.REQUEST_COMPLETED: {},
		config.REQUEST_FAILED:    {},
	},
}

var requestColumns = []string{
	datastore.KRequestId, datastore.KRequestDeveloper, datastore.KRequestModel, datastore.KRequestProvider,
	datastore.KRequestProviderOwner, datastore.KRequestStatus, datastore.KRequestPrice, datastore.KRequestProcessingMs,
	datastore.KRequestCounted, datastore.KRequestCreateTime,
}

// CanTransition reports whether from -> to is an edge of the request lifecycle
func CanTransition(from, to string) bool {
	_, ok := transitions[from][to]
	return ok
}

func IsTerminal(status string) bool {
	return status == config.REQUEST_COMPLETED || status == config.REQUEST_FAILED
}

// OutcomeTracker is told about every terminal transition of a request that
// belongs to a provider, owner is the provider's owner identity
type OutcomeTracker interface {
	RecordOutcome(ctx context.Context, owner string, success bool) error
}

// Ledger records inference requests and enforces their lifecycle
type Ledger struct {
	requestStore datastore.Datastore
	tracker      OutcomeTracker
	locks        *concurrency.KeyLock
	retry        int
	recorder     EventRecorder
	now          func() time.Time
}

func NewLedger(requestStore datastore.Datastore, tracker OutcomeTracker, recorder EventRecorder) *Ledger {
	return &Ledger{
		requestStore: requestStore,
		tracker:      tracker,
		locks:        concurrency.NewKeyLock(),
		retry:        config.ConfigGlobal.CasRetry,
		recorder:     recorder,
		now:          time.Now,
	}
}

// Submit records a pending request, the price is taken from listing and
// never recomputed
func (l *Ledger) Submit(ctx context.Context, developer, modelId string, listing *ModelListing) (*InferenceRequest, error) {
	if developer == "" {
		return nil, ErrInvalidIdentity
	}
	if listing == nil || listing.Id != modelId {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelId)
	}
	req := &InferenceRequest{
		Id:                uuid.NewString(),
		DeveloperIdentity: developer,
		ModelId:           modelId,
		ProviderId:        listing.ProviderId,
		ProviderOwner:     listing.ProviderOwner,
		Status:            config.REQUEST_PENDING,
		Price:             listing.PricePerInference,
		CreatedAt:         l.now(),
	}
	ok, err := l.requestStore.PutIfAbsent(req.Id, map[string]interface{}{
		datastore.KRequestDeveloper:     developer,
		datastore.KRequestModel:         modelId,
		datastore.KRequestProvider:      req.ProviderId,
		datastore.KRequestProviderOwner: req.ProviderOwner,
		datastore.KRequestStatus:        req.Status,
		datastore.KRequestPrice:         req.Price.String(),
		datastore.KRequestCreateTime:    req.CreatedAt.UnixMilli(),
		datastore.KRequestModifyTime:    req.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("submit request: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("submit request: duplicate id %s", req.Id)
	}
	requestsTotal.WithLabelValues(req.Status).Inc()
	logrus.WithFields(logrus.Fields{"owner": developer, "requestId": req.Id, "modelId": modelId}).Info("request submitted")
	record(l.recorder, "request.submitted", developer, map[string]string{
		"requestId": req.Id, "modelId": modelId, "price": req.Price.String()})
	return req, nil
}

// Advance moves a request along the lifecycle. processingTimeMs is required
// when newStatus is terminal and ignored otherwise. A terminal transition is
// committed before its outcome reaches the provider counters; when that fails
// the error is returned and redelivering the same transition finishes the
// count.
func (l *Ledger) Advance(ctx context.Context, requestId, newStatus string, processingTimeMs *int64) (*InferenceRequest, error) {
	terminal := IsTerminal(newStatus)
	if terminal {
		if processingTimeMs == nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTransition, ErrMissingProcessingTime)
		}
		if *processingTimeMs < 0 {
			return nil, fmt.Errorf("%w: negative processingTimeMs", ErrInvalidTransition)
		}
	}
	unlock := l.locks.Lock(requestId)
	defer unlock()

	for i := 0; i < l.retry; i++ {
		req, err := l.Get(ctx, requestId)
		if err != nil {
			return nil, err
		}
		if req.Status == newStatus && l.uncounted(req) {
			if err := l.settle(ctx, req); err != nil {
				return nil, err
			}
			return req, nil
		}
		if !CanTransition(req.Status, newStatus) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, newStatus)
		}
		values := map[string]interface{}{
			datastore.KRequestStatus:     newStatus,
			datastore.KRequestModifyTime: l.now().UnixMilli(),
		}
		if terminal {
			values[datastore.KRequestProcessingMs] = *processingTimeMs
			counted := int64(0)
			if req.ProviderOwner == "" {
				counted = 1
			}
			values[datastore.KRequestCounted] = counted
		}
		ok, err := l.requestStore.UpdateIf(requestId, datastore.KRequestStatus, req.Status, values)
		if err != nil {
			return nil, fmt.Errorf("advance request: %w", err)
		}
		if !ok {
			// moved by another instance, check the edge again from the new status
			casConflicts.WithLabelValues(datastore.KRequestTableName).Inc()
			continue
		}
		from := req.Status
		req.Status = newStatus
		if terminal {
			ms := *processingTimeMs
			req.ProcessingTimeMs = &ms
			req.OutcomeCounted = req.ProviderOwner == ""
		}
		requestsTotal.WithLabelValues(newStatus).Inc()
		logrus.WithFields(logrus.Fields{"requestId": requestId, "from": from, "to": newStatus}).Info("request advanced")
		record(l.recorder, "request.advanced", req.DeveloperIdentity, map[string]string{
			"requestId": requestId, "from": from, "to": newStatus})
		if l.uncounted(req) {
			if err := l.settle(ctx, req); err != nil {
				return nil, err
			}
		}
		return req, nil
	}
	return nil, fmt.Errorf("advance request: retry limit reached for %s", requestId)
}

// Reconcile counts the outcomes of terminal requests that never reached the
// provider counters and returns how many it counted. Rows that fail again
// stay uncounted for the next pass.
func (l *Ledger) Reconcile(ctx context.Context) (int, error) {
	if l.tracker == nil {
		return 0, nil
	}
	rows, err := l.requestStore.ListBy(datastore.KRequestCounted, int64(0), []string{datastore.KRequestStatus})
	if err != nil {
		return 0, fmt.Errorf("list uncounted requests: %w", err)
	}
	counted := 0
	var firstErr error
	for id := range rows {
		ok, err := l.settleById(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			counted++
		}
	}
	return counted, firstErr
}

func (l *Ledger) settleById(ctx context.Context, requestId string) (bool, error) {
	unlock := l.locks.Lock(requestId)
	defer unlock()
	req, err := l.Get(ctx, requestId)
	if err != nil {
		return false, err
	}
	if !l.uncounted(req) {
		return false, nil
	}
	return true, l.settle(ctx, req)
}

// uncounted a terminal request whose outcome the provider has not seen
func (l *Ledger) uncounted(req *InferenceRequest) bool {
	return l.tracker != nil && IsTerminal(req.Status) && req.ProviderOwner != "" && !req.OutcomeCounted
}

// settle reports the outcome then marks the row counted. Caller holds the
// request lock.
func (l *Ledger) settle(ctx context.Context, req *InferenceRequest) error {
	if err := l.tracker.RecordOutcome(ctx, req.ProviderOwner, req.Status == config.REQUEST_COMPLETED); err != nil {
		reputationErrors.Inc()
		logrus.WithFields(logrus.Fields{"requestId": req.Id, "providerId": req.ProviderId}).
			Errorf("record provider outcome: %v", err)
		return fmt.Errorf("record provider outcome: %w", err)
	}
	if err := l.requestStore.Update(req.Id, map[string]interface{}{
		datastore.KRequestCounted: int64(1),
	}); err != nil {
		return fmt.Errorf("mark request %s counted: %w", req.Id, err)
	}
	req.OutcomeCounted = true
	return nil
}

// Get a request by id, ErrUnknownRequest when absent
func (l *Ledger) Get(ctx context.Context, requestId string) (*InferenceRequest, error) {
	data, err := l.requestStore.Get(requestId, requestColumns)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, requestId)
	}
	return requestFromRow(requestId, data)
}

// ListFor the developer's requests, newest first
func (l *Ledger) ListFor(ctx context.Context, developer string) ([]InferenceRequest, error) {
	rows, err := l.requestStore.ListBy(datastore.KRequestDeveloper, developer, requestColumns)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	ret := make([]InferenceRequest, 0, len(rows))
	for id, row := range rows {
		req, err := requestFromRow(id, row)
		if err != nil {
			return nil, err
		}
		ret = append(ret, *req)
	}
	sort.Slice(ret, func(i, j int) bool {
		if !ret[i].CreatedAt.Equal(ret[j].CreatedAt) {
			return ret[i].CreatedAt.After(ret[j].CreatedAt)
		}
		return ret[i].Id > ret[j].Id
	})
	return ret, nil
}

// StatsFor aggregates spend over all requests, pending ones included since
// the price is charged at submission. The average only covers requests with
// a recorded processing time; 0 ms counts as not recorded.
func (l *Ledger) StatsFor(ctx context.Context, developer string) (*RequestStats, error) {
	reqs, err := l.ListFor(ctx, developer)
	if err != nil {
		return nil, err
	}
	stats := &RequestStats{TotalSpent: decimal.Zero}
	var timed, timeSum int64
	for _, req := range reqs {
		stats.TotalRequests++
		stats.TotalSpent = stats.TotalSpent.Add(req.Price)
		if req.Status == config.REQUEST_COMPLETED {
			stats.CompletedCount++
		}
		if req.ProcessingTimeMs != nil && *req.ProcessingTimeMs > 0 {
			timed++
			timeSum += *req.ProcessingTimeMs
		}
	}
	if timed > 0 {
		stats.AverageProcessingTimeMs = float64(timeSum) / float64(timed)
	}
	return stats, nil
}

func requestFromRow(id string, data map[string]interface{}) (*InferenceRequest, error) {
	price, err := decimal.NewFromString(stringOf(data[datastore.KRequestPrice], "0"))
	if err != nil {
		return nil, fmt.Errorf("request %s price: %w", id, err)
	}
	return &InferenceRequest{
		Id:                id,
		DeveloperIdentity: stringOf(data[datastore.KRequestDeveloper], ""),
		ModelId:           stringOf(data[datastore.KRequestModel], ""),
		ProviderId:        stringOf(data[datastore.KRequestProvider], ""),
		ProviderOwner:     stringOf(data[datastore.KRequestProviderOwner], ""),
		Status:            stringOf(data[datastore.KRequestStatus], ""),
		Price:             price,
		ProcessingTimeMs:  optInt64(data[datastore.KRequestProcessingMs]),
		OutcomeCounted:    int64Of(data[datastore.KRequestCounted]) == 1,
		CreatedAt:         time.UnixMilli(int64Of(data[datastore.KRequestCreateTime])),
	}, nil
}
