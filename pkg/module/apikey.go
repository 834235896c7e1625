package module

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imthegoodboy/AI-Oracle/pkg/concurrency"
	"github.com/imthegoodboy/AI-Oracle/pkg/config"
	"github.com/imthegoodboy/AI-Oracle/pkg/datastore"
	"github.com/imthegoodboy/AI-Oracle/pkg/utils"
	"github.com/sirupsen/logrus"
)

// secret body segments, joined by "-" after "<prefix>_"
var secretSegments = []int{6, 6, 6, 8}

// storedKey one entry of the per owner key set
type storedKey struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	Secret    string `json:"secret"`
	CreatedAt int64  `json:"createdAt"`
}

// keySet the owner row, Version guards every read-modify-write
type keySet struct {
	keys    []storedKey
	version int64
	exists  bool
}

// KeyManager issues, lists and revokes API keys. Every owner has one row in
// the key table holding the whole set; the index table maps the secret hash
// back to its owner.
type KeyManager struct {
	keyStore    datastore.Datastore
	indexStore  datastore.Datastore
	locks       *concurrency.KeyLock
	maxPerOwner int
	prefix      string
	retry       int
	recorder    EventRecorder
}

func NewKeyManager(keyStore, indexStore datastore.Datastore, recorder EventRecorder) *KeyManager {
	return &KeyManager{
		keyStore:    keyStore,
		indexStore:  indexStore,
		locks:       concurrency.NewKeyLock(),
		maxPerOwner: config.ConfigGlobal.MaxKeysPerOwner,
		prefix:      config.ConfigGlobal.KeyPrefix,
		retry:       config.ConfigGlobal.CasRetry,
		recorder:    recorder,
	}
}

// CreateKey issues a new key while the owner is under quota
func (k *KeyManager) CreateKey(ctx context.Context, owner, name string) (*ApiKey, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, ErrInvalidIdentity
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	unlock := k.locks.Lock(owner)
	defer unlock()

	for i := 0; i < k.retry; i++ {
		set, err := k.load(owner)
		if err != nil {
			return nil, err
		}
		if len(set.keys) >= k.maxPerOwner {
			quotaRejections.Inc()
			return nil, ErrQuotaExceeded
		}
		key := storedKey{
			Id:        uuid.NewString(),
			Name:      name,
			CreatedAt: time.Now().UnixMilli(),
		}
		if key.Secret, err = k.reserveSecret(owner, key.Id); err != nil {
			return nil, err
		}
		keys := append([]storedKey{key}, set.keys...)
		ok, err := k.save(owner, set, keys)
		if err != nil {
			k.releaseSecret(key.Secret)
			return nil, err
		}
		if !ok {
			// another instance wrote the set in between, start over from its version
			k.releaseSecret(key.Secret)
			casConflicts.WithLabelValues(datastore.KKeyTableName).Inc()
			continue
		}
		keysIssued.Inc()
		logrus.WithFields(logrus.Fields{"owner": owner, "keyId": key.Id}).Info("api key created")
		record(k.recorder, "key.created", owner, map[string]string{"keyId": key.Id, "name": name})
		return key.toApiKey(owner), nil
	}
	return nil, fmt.Errorf("create key: retry limit reached for %s", owner)
}

// ListKeys newest first
func (k *KeyManager) ListKeys(ctx context.Context, owner string) ([]ApiKey, error) {
	set, err := k.load(owner)
	if err != nil {
		return nil, err
	}
	ret := make([]ApiKey, 0, len(set.keys))
	for _, key := range set.keys {
		ret = append(ret, *key.toApiKey(owner))
	}
	return ret, nil
}

// RevokeKey removes the key, unknown or already revoked keys are a no-op
func (k *KeyManager) RevokeKey(ctx context.Context, owner, keyId string) error {
	unlock := k.locks.Lock(owner)
	defer unlock()

	for i := 0; i < k.retry; i++ {
		set, err := k.load(owner)
		if err != nil {
			return err
		}
		found := false
		keys := make([]storedKey, 0, len(set.keys))
		for _, key := range set.keys {
			if key.Id == keyId {
				found = true
				continue
			}
			keys = append(keys, key)
		}
		if !found {
			return nil
		}
		ok, err := k.save(owner, set, keys)
		if err != nil {
			return err
		}
		if !ok {
			casConflicts.WithLabelValues(datastore.KKeyTableName).Inc()
			continue
		}
		// the index entry stays so the secret is never handed out again,
		// Authenticate rejects it because the set no longer holds the key
		keysRevoked.Inc()
		logrus.WithFields(logrus.Fields{"owner": owner, "keyId": keyId}).Info("api key revoked")
		record(k.recorder, "key.revoked", owner, map[string]string{"keyId": keyId})
		return nil
	}
	return fmt.Errorf("revoke key: retry limit reached for %s", owner)
}

// Authenticate resolve a secret to the owner of a live key
func (k *KeyManager) Authenticate(ctx context.Context, secret string) (string, error) {
	if !strings.HasPrefix(secret, k.prefix+"_") {
		return "", ErrUnknownKey
	}
	data, err := k.indexStore.Get(utils.Hash(secret), []string{datastore.KKeyIndexOwner, datastore.KKeyIndexId})
	if err != nil {
		return "", fmt.Errorf("read key index: %w", err)
	}
	if data == nil {
		return "", ErrUnknownKey
	}
	owner := stringOf(data[datastore.KKeyIndexOwner], "")
	keyId := stringOf(data[datastore.KKeyIndexId], "")
	// the index entry is written before the set, so the set is the authority
	set, err := k.load(owner)
	if err != nil {
		return "", err
	}
	for _, key := range set.keys {
		if key.Id == keyId && key.Secret == secret {
			return owner, nil
		}
	}
	return "", ErrUnknownKey
}

func (k *KeyManager) load(owner string) (*keySet, error) {
	data, err := k.keyStore.Get(owner, []string{datastore.KKeySet, datastore.KKeyVersion})
	if err != nil {
		return nil, fmt.Errorf("read key set: %w", err)
	}
	set := new(keySet)
	if data == nil {
		return set, nil
	}
	set.exists = true
	set.version = int64Of(data[datastore.KKeyVersion])
	if raw := stringOf(data[datastore.KKeySet], ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &set.keys); err != nil {
			return nil, fmt.Errorf("decode key set of %s: %w", owner, err)
		}
	}
	return set, nil
}

// save writes keys if nobody changed the set since it was loaded
func (k *KeyManager) save(owner string, prev *keySet, keys []storedKey) (bool, error) {
	body, err := json.Marshal(keys)
	if err != nil {
		return false, err
	}
	values := map[string]interface{}{
		datastore.KKeySet:        string(body),
		datastore.KKeyVersion:    prev.version + 1,
		datastore.KKeyModifyTime: utils.TimestampMS(),
	}
	if !prev.exists {
		ok, err := k.keyStore.PutIfAbsent(owner, values)
		if err != nil {
			return false, fmt.Errorf("write key set: %w", err)
		}
		return ok, nil
	}
	ok, err := k.keyStore.UpdateIf(owner, datastore.KKeyVersion, prev.version, values)
	if err != nil {
		return false, fmt.Errorf("write key set: %w", err)
	}
	return ok, nil
}

// reserveSecret generates a secret and claims its hash in the index, a
// collision with any earlier secret just draws again
func (k *KeyManager) reserveSecret(owner, keyId string) (string, error) {
	for i := 0; i < k.retry; i++ {
		secret, err := k.newSecret()
		if err != nil {
			return "", err
		}
		ok, err := k.indexStore.PutIfAbsent(utils.Hash(secret), map[string]interface{}{
			datastore.KKeyIndexOwner: owner,
			datastore.KKeyIndexId:    keyId,
		})
		if err != nil {
			return "", fmt.Errorf("write key index: %w", err)
		}
		if ok {
			return secret, nil
		}
	}
	return "", fmt.Errorf("create key: no free secret after %d draws", k.retry)
}

func (k *KeyManager) releaseSecret(secret string) {
	if err := k.indexStore.Delete(utils.Hash(secret)); err != nil {
		logrus.Warnf("delete key index entry: %v", err)
	}
}

func (k *KeyManager) newSecret() (string, error) {
	parts := make([]string, 0, len(secretSegments))
	for _, n := range secretSegments {
		part, err := utils.RandStr(n)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return k.prefix + "_" + strings.Join(parts, "-"), nil
}

func (s *storedKey) toApiKey(owner string) *ApiKey {
	return &ApiKey{
		Id:            s.Id,
		OwnerIdentity: owner,
		DisplayName:   s.Name,
		Secret:        s.Secret,
		CreatedAt:     time.UnixMilli(s.CreatedAt),
	}
}
