package datastore

import (
	"fmt"

	config2 "github.com/imthegoodboy/AI-Oracle/pkg/config"
)

type DatastoreFactory struct{}

// New open a datastore from an explicit config
func (f *DatastoreFactory) New(config *Config) (Datastore, error) {
	switch config.Type {
	case SQLite, Postgres:
		return NewSQLDatastore(config)
	case TableStore:
		return NewOtsDatastore(config)
	default:
		return nil, fmt.Errorf("not support db type=%s", config.Type)
	}
}

// NewTable open one of the known tables on the given backend
func (f *DatastoreFactory) NewTable(dbType DatastoreType, tableName string) (Datastore, error) {
	meta, ok := tableMetas[tableName]
	if !ok {
		return nil, fmt.Errorf("unknown table=%s", tableName)
	}
	var config *Config
	switch dbType {
	case SQLite:
		config = NewSQLiteConfig(tableName, meta)
	case Postgres:
		config = NewPostgresConfig(tableName, meta)
	case TableStore:
		config = NewOtsConfig(tableName, meta)
	default:
		return nil, fmt.Errorf("not support db type=%s", dbType)
	}
	return f.New(config)
}

func NewSQLiteConfig(tableName string, meta tableMeta) *Config {
	return &Config{
		Type:                 SQLite,
		DBName:               config2.ConfigGlobal.DbSqlite,
		TableName:            tableName,
		ColumnConfig:         meta.columns,
		PrimaryKeyColumnName: meta.primaryKey,
	}
}

func NewPostgresConfig(tableName string, meta tableMeta) *Config {
	return &Config{
		Type:                 Postgres,
		DBName:               config2.ConfigGlobal.PgDsn,
		TableName:            tableName,
		ColumnConfig:         meta.columns,
		PrimaryKeyColumnName: meta.primaryKey,
	}
}

func NewOtsConfig(tableName string, meta tableMeta) *Config {
	// the primary key lives in COLPK, not in the defined columns
	columns := make(map[string]string, len(meta.columns))
	for name, typ := range meta.columns {
		if name == meta.primaryKey {
			continue
		}
		columns[name] = typ
	}
	maxVersion := config2.ConfigGlobal.OtsMaxVersion
	if meta.maxVersion > 0 {
		maxVersion = meta.maxVersion
	}
	return &Config{
		Type:                 TableStore,
		TableName:            tableName,
		ColumnConfig:         columns,
		PrimaryKeyColumnName: meta.primaryKey,
		TimeToAlive:          config2.ConfigGlobal.OtsTimeToAlive,
		MaxVersion:           maxVersion,
	}
}
