package datastore

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// SQLDatastore one table on sqlite or postgres. Both understand
// "ON CONFLICT ... DO UPDATE/NOTHING", only the placeholders differ.
type SQLDatastore struct {
	db     *sql.DB
	config *Config
}

func NewSQLDatastore(config *Config) (*SQLDatastore, error) {
	driver := "sqlite3"
	if config.Type == Postgres {
		driver = "pgx"
	}
	db, err := sql.Open(driver, config.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	if config.Type == SQLite {
		// :memory: databases live per connection
		db.SetMaxOpenConns(1)
	}

	// Create table if it doesn't exist.
	names := sortedKeys(config.ColumnConfig)
	columnDefs := make([]string, 0, len(names))
	for _, name := range names {
		columnDefs = append(columnDefs, fmt.Sprintf("%s %s", name, config.ColumnConfig[name]))
	}
	query := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s)",
		config.TableName,
		strings.Join(columnDefs, ", "),
	)
	if _, err = db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table %s: %v", config.TableName, err)
	}
	return &SQLDatastore{
		db:     db,
		config: config,
	}, nil
}

func NewSQLiteDatastore(config *Config) (*SQLDatastore, error) {
	config.Type = SQLite
	return NewSQLDatastore(config)
}

func (ds *SQLDatastore) Close() error {
	return ds.db.Close()
}

func (ds *SQLDatastore) placeholder(i int) string {
	if ds.config.Type == Postgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// insertParts returns the column list, placeholders and args with the primary key first.
func (ds *SQLDatastore) insertParts(key string, values map[string]interface{}) ([]string, []string, []interface{}) {
	columns := []string{ds.config.PrimaryKeyColumnName}
	placeholders := []string{ds.placeholder(1)}
	args := []interface{}{key}
	for _, column := range sortedKeys(values) {
		if column == ds.config.PrimaryKeyColumnName {
			continue
		}
		columns = append(columns, column)
		args = append(args, values[column])
		placeholders = append(placeholders, ds.placeholder(len(args)))
	}
	return columns, placeholders, args
}

func (ds *SQLDatastore) Put(key string, values map[string]interface{}) error {
	columns, placeholders, args := ds.insertParts(key, values)
	conflict := "DO NOTHING"
	if len(columns) > 1 {
		sets := make([]string, 0, len(columns)-1)
		for _, column := range columns[1:] {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", column, column))
		}
		conflict = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		ds.config.TableName,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		ds.config.PrimaryKeyColumnName,
		conflict,
	)
	_, err := ds.db.Exec(query, args...)
	return err
}

func (ds *SQLDatastore) PutIfAbsent(key string, values map[string]interface{}) (bool, error) {
	columns, placeholders, args := ds.insertParts(key, values)
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		ds.config.TableName,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		ds.config.PrimaryKeyColumnName,
	)
	res, err := ds.db.Exec(query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (ds *SQLDatastore) updateQuery(key string, values map[string]interface{}, cond string) (string, []interface{}) {
	sets := make([]string, 0, len(values))
	args := make([]interface{}, 0, len(values)+2)
	for _, column := range sortedKeys(values) {
		args = append(args, values[column])
		sets = append(sets, fmt.Sprintf("%s = %s", column, ds.placeholder(len(args))))
	}
	args = append(args, key)
	where := fmt.Sprintf("%s = %s", ds.config.PrimaryKeyColumnName, ds.placeholder(len(args)))
	if cond != "" {
		where = fmt.Sprintf("%s AND %s = %s", where, cond, ds.placeholder(len(args)+1))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s", ds.config.TableName, strings.Join(sets, ", "), where), args
}

func (ds *SQLDatastore) Update(key string, values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}
	query, args := ds.updateQuery(key, values, "")
	_, err := ds.db.Exec(query, args...)
	return err
}

func (ds *SQLDatastore) UpdateIf(key string, column string, expected interface{},
	values map[string]interface{}) (bool, error) {
	if len(values) == 0 {
		return false, fmt.Errorf("no column to update")
	}
	if _, ok := ds.config.ColumnConfig[column]; !ok {
		return false, fmt.Errorf("unknown condition column: %s", column)
	}
	query, args := ds.updateQuery(key, values, column)
	res, err := ds.db.Exec(query, append(args, expected)...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (ds *SQLDatastore) Get(key string, columns []string) (map[string]interface{}, error) {
	holders, err := ds.holders(columns)
	if err != nil {
		return nil, err
	}
	row := ds.db.QueryRow(
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
			strings.Join(columns, ", "), ds.config.TableName, ds.config.PrimaryKeyColumnName, ds.placeholder(1)),
		key,
	)
	if err := row.Scan(holders...); err != nil {
		if err == sql.ErrNoRows {
			// There is no row with the given key.
			return nil, nil
		}
		return nil, err
	}
	return toRow(columns, holders), nil
}

func (ds *SQLDatastore) Delete(key string) error {
	_, err := ds.db.Exec(
		fmt.Sprintf(
			"DELETE FROM %s WHERE %s = %s", ds.config.TableName, ds.config.PrimaryKeyColumnName, ds.placeholder(1)),
		key)
	return err
}

func (ds *SQLDatastore) ListAll(columns []string) (map[string]map[string]interface{}, error) {
	return ds.list(columns, "", nil)
}

func (ds *SQLDatastore) ListBy(column string, value interface{},
	columns []string) (map[string]map[string]interface{}, error) {
	if _, ok := ds.config.ColumnConfig[column]; !ok {
		return nil, fmt.Errorf("unknown filter column: %s", column)
	}
	return ds.list(columns, column, value)
}

func (ds *SQLDatastore) list(columns []string, filter string,
	value interface{}) (map[string]map[string]interface{}, error) {
	pk := ds.config.PrimaryKeyColumnName
	selected := []string{pk}
	for _, column := range columns {
		if column != pk {
			selected = append(selected, column)
		}
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selected, ", "), ds.config.TableName)
	var args []interface{}
	if filter != "" {
		query = fmt.Sprintf("%s WHERE %s = %s", query, filter, ds.placeholder(1))
		args = append(args, value)
	}
	rows, err := ds.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make(map[string]map[string]interface{})
	for rows.Next() {
		holders, err := ds.holders(selected)
		if err != nil {
			return nil, err
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, err
		}
		m := toRow(selected, holders)
		key, _ := m[pk].(string)
		results[key] = m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// holders create scan destinations from the column types in the Config.
func (ds *SQLDatastore) holders(columns []string) ([]interface{}, error) {
	values := make([]interface{}, len(columns))
	for i, column := range columns {
		typ := strings.ToLower(ds.config.ColumnConfig[column])
		switch {
		case strings.HasPrefix(typ, "text"):
			values[i] = new(sql.NullString)
		case strings.HasPrefix(typ, "int"), strings.HasPrefix(typ, "bigint"):
			values[i] = new(sql.NullInt64)
		case strings.HasPrefix(typ, "float"), strings.HasPrefix(typ, "double"), strings.HasPrefix(typ, "real"):
			values[i] = new(sql.NullFloat64)
		default:
			// If the column type is not supported, we return an error.
			return nil, fmt.Errorf("unsupported column type: %q for column %s", typ, column)
		}
	}
	return values, nil
}

func toRow(columns []string, holders []interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(columns))
	for i, column := range columns {
		switch v := holders[i].(type) {
		case *sql.NullString:
			if v.Valid {
				result[column] = v.String
			}
		case *sql.NullInt64:
			if v.Valid {
				result[column] = v.Int64
			}
		case *sql.NullFloat64:
			if v.Valid {
				result[column] = v.Float64
			}
		}
	}
	return result
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
