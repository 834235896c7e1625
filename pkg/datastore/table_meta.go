package datastore

// models table, registered partition of the catalog
const (
	KModelTableName    = "models"
	KModelId           = "MODEL_ID"
	KModelType         = "MODEL_TYPE"
	KModelName         = "MODEL_NAME"
	KModelDesc         = "MODEL_DESC"
	KModelPrice        = "MODEL_PRICE"
	KModelResponseMs   = "MODEL_RESPONSE_MS"
	KModelAccuracy     = "MODEL_ACCURACY"
	KModelCapabilities = "MODEL_CAPABILITIES"
	KModelProvider     = "MODEL_PROVIDER"
	KModelOwner        = "MODEL_OWNER"
	KModelActive       = "MODEL_ACTIVE"
	KModelCreateTime   = "MODEL_CREATE_TIME"
	KModelModifyTime   = "MODEL_MODIFY_TIME"
)

// providers table, keyed by owner identity
const (
	KProviderTableName  = "providers"
	KProviderOwner      = "PROVIDER_OWNER"
	KProviderId         = "PROVIDER_ID"
	KProviderName       = "PROVIDER_NAME"
	KProviderDesc       = "PROVIDER_DESC"
	KProviderWebsite    = "PROVIDER_WEBSITE"
	KProviderStake      = "PROVIDER_STAKE"
	KProviderTotal      = "PROVIDER_TOTAL"
	KProviderSuccess    = "PROVIDER_SUCCESS"
	KProviderCreateTime = "PROVIDER_CREATE_TIME"
	KProviderModifyTime = "PROVIDER_MODIFY_TIME"
)

// api key table, one row per owner holding the whole key set
const (
	KKeyTableName  = "api_keys"
	KKeyOwner      = "KEY_OWNER"
	KKeySet        = "KEY_SET"
	KKeyVersion    = "KEY_VERSION"
	KKeyModifyTime = "KEY_MODIFY_TIME"
)

// api key index table, secret hash to owner
const (
	KKeyIndexTableName = "api_key_index"
	KKeyIndexHash      = "KEY_HASH"
	KKeyIndexOwner     = "KEY_INDEX_OWNER"
	KKeyIndexId        = "KEY_INDEX_ID"
)

// inference request table. REQUEST_COUNTED is 0 while a terminal outcome
// still has to reach the provider counters.
const (
	KRequestTableName     = "inference_requests"
	KRequestId            = "REQUEST_ID"
	KRequestDeveloper     = "REQUEST_DEVELOPER"
	KRequestModel         = "REQUEST_MODEL"
	KRequestProvider      = "REQUEST_PROVIDER"
	KRequestProviderOwner = "REQUEST_PROVIDER_OWNER"
	KRequestStatus        = "REQUEST_STATUS"
	KRequestPrice         = "REQUEST_PRICE"
	KRequestProcessingMs  = "REQUEST_PROCESSING_MS"
	KRequestCounted       = "REQUEST_COUNTED"
	KRequestCreateTime    = "REQUEST_CREATE_TIME"
	KRequestModifyTime    = "REQUEST_MODIFY_TIME"
)

// column types, understood by sqlite, postgres and tablestore
const (
	colText   = "TEXT"
	colInt    = "BIGINT"
	colFloat  = "DOUBLE PRECISION"
	colTextPK = "TEXT PRIMARY KEY NOT NULL"
)

type tableMeta struct {
	primaryKey string
	columns    map[string]string
	maxVersion int
}

var tableMetas = map[string]tableMeta{
	KModelTableName: {
		primaryKey: KModelId,
		columns: map[string]string{
			KModelId:           colTextPK,
			KModelType:         colText,
			KModelName:         colText,
			KModelDesc:         colText,
			KModelPrice:        colText,
			KModelResponseMs:   colInt,
			KModelAccuracy:     colFloat,
			KModelCapabilities: colText,
			KModelProvider:     colText,
			KModelOwner:        colText,
			KModelActive:       colInt,
			KModelCreateTime:   colInt,
			KModelModifyTime:   colInt,
		},
	},
	KProviderTableName: {
		primaryKey: KProviderOwner,
		columns: map[string]string{
			KProviderOwner:      colTextPK,
			KProviderId:         colText,
			KProviderName:       colText,
			KProviderDesc:       colText,
			KProviderWebsite:    colText,
			KProviderStake:      colText,
			KProviderTotal:      colInt,
			KProviderSuccess:    colInt,
			KProviderCreateTime: colInt,
			KProviderModifyTime: colInt,
		},
	},
	KKeyTableName: {
		primaryKey: KKeyOwner,
		columns: map[string]string{
			KKeyOwner:      colTextPK,
			KKeySet:        colText,
			KKeyVersion:    colInt,
			KKeyModifyTime: colInt,
		},
	},
	KKeyIndexTableName: {
		primaryKey: KKeyIndexHash,
		columns: map[string]string{
			KKeyIndexHash:  colTextPK,
			KKeyIndexOwner: colText,
			KKeyIndexId:    colText,
		},
	},
	KRequestTableName: {
		primaryKey: KRequestId,
		columns: map[string]string{
			KRequestId:            colTextPK,
			KRequestDeveloper:     colText,
			KRequestModel:         colText,
			KRequestProvider:      colText,
			KRequestProviderOwner: colText,
			KRequestStatus:        colText,
			KRequestPrice:         colText,
			KRequestProcessingMs:  colInt,
			KRequestCounted:       colInt,
			KRequestCreateTime:    colInt,
			KRequestModifyTime:    colInt,
		},
	},
}
