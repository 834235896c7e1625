package config

import "time"

// env
const (
	DB_PATH           = "ORACLE_DB_PATH"
	PG_DSN            = "ORACLE_PG_DSN"
	ACCESS_KEY_ID     = "ACCESS_KEY_ID"
	ACCESS_KEY_SECRET = "ACCESS_KEY_SECRET"
	OTS_ENDPOINT      = "OTS_ENDPOINT"
	OTS_INSTANCE      = "OTS_INSTANCE"
	SERVING_TOKEN     = "ORACLE_SERVING_TOKEN"
	GATEWAY_TOKEN     = "ORACLE_GATEWAY_TOKEN"
	LOG_REMOTE        = "ORACLE_LOG_REMOTE"
	MAX_KEYS          = "ORACLE_MAX_KEYS"
)

const (
	// request status
	REQUEST_PENDING    = "pending"
	REQUEST_PROCESSING = "processing"
	REQUEST_COMPLETED  = "completed"
	REQUEST_FAILED     = "failed"

	// listing origin
	ORIGIN_CURATED    = "curated"
	ORIGIN_REGISTERED = "registered"

	HTTPTIMEOUT = 10 * time.Second
)

// model type
const (
	TEXT_MODEL       = "text"
	IMAGE_MODEL      = "image"
	AUDIO_MODEL      = "audio"
	MULTIMODAL_MODEL = "multimodal"
)

// credential issuer
const (
	DefaultMaxKeys   = 3
	DefaultKeyPrefix = "aio"
)

// ERROR message
const (
	INTERNALERROR = "an internal error"
	BADREQUEST    = "bad request body"
	NOTFOUND      = "not found"
	UNAUTHORIZED  = "missing identity"
)

// COLPK tablestore primary key column
const COLPK = "key"
