package datastore

import (
	"strings"
	"sync"

	"github.com/aliyun/aliyun-tablestore-go-sdk/tablestore"
	conf "github.com/imthegoodboy/AI-Oracle/pkg/config"
)

const (
	otsConditionCheckFail = "OTSConditionCheckFail"
	otsRangeLimit         = 1000
)

var (
	otsClient    *tablestore.TableStoreClient
	once         sync.Once
	strToOtsType = map[string]tablestore.DefinedColumnType{
		colText:  tablestore.DefinedColumn_STRING,
		colInt:   tablestore.DefinedColumn_INTEGER,
		colFloat: tablestore.DefinedColumn_DOUBLE,
	}
)

// example: "TEXT" to tablestore.DefinedColumn_STRING
func getOtsType(s string) tablestore.DefinedColumnType {
	if t, ok := strToOtsType[s]; ok {
		return t
	}
	return tablestore.DefinedColumn_STRING
}

// InitOtsClient init ots client
func InitOtsClient() {
	otsClient = tablestore.NewClient(conf.ConfigGlobal.OtsEndpoint, conf.ConfigGlobal.OtsInstanceName,
		conf.ConfigGlobal.AccessKeyId, conf.ConfigGlobal.AccessKeySecret)
}

type OtsStore struct {
	config *Config
}

func NewOtsDatastore(config *Config) (*OtsStore, error) {
	// init otsClient, only first call valid
	once.Do(InitOtsClient)

	// check table is exist; if not create
	describeTableRequest := &tablestore.DescribeTableRequest{
		TableName: config.TableName,
	}
	if tableInfo, err := otsClient.DescribeTable(describeTableRequest); err == nil && tableInfo.TableMeta != nil {
		return &OtsStore{config: config}, nil
	}
	// create table
	createTableRequest := new(tablestore.CreateTableRequest)
	tableMeta := new(tablestore.TableMeta)
	tableMeta.TableName = config.TableName
	tableMeta.AddPrimaryKeyColumn(conf.COLPK, tablestore.PrimaryKeyType_STRING)
	for _, field := range sortedKeys(config.ColumnConfig) {
		tableMeta.AddDefinedColumn(field, getOtsType(config.ColumnConfig[field]))
	}
	tableOption := new(tablestore.TableOption)
	tableOption.TimeToAlive = config.TimeToAlive
	tableOption.MaxVersion = config.MaxVersion
	reservedThroughput := new(tablestore.ReservedThroughput)
	reservedThroughput.Readcap = 0
	reservedThroughput.Writecap = 0
	createTableRequest.TableMeta = tableMeta
	createTableRequest.TableOption = tableOption
	createTableRequest.ReservedThroughput = reservedThroughput

	if _, err := otsClient.CreateTable(createTableRequest); err != nil {
		return nil, err
	}
	return &OtsStore{config: config}, nil
}

func (o *OtsStore) primaryKey(key string) *tablestore.PrimaryKey {
	pk := new(tablestore.PrimaryKey)
	pk.AddPrimaryKeyColumn(conf.COLPK, key)
	return pk
}

// attributes drop the primary key name, it is stored in COLPK
func (o *OtsStore) attributes(columns []string) []string {
	ret := make([]string, 0, len(columns))
	for _, col := range columns {
		if col != o.config.PrimaryKeyColumnName {
			ret = append(ret, col)
		}
	}
	return ret
}

func (o *OtsStore) Get(key string, columns []string) (map[string]interface{}, error) {
	getRowRequest := new(tablestore.GetRowRequest)
	getRowRequest.SingleRowQueryCriteria = &tablestore.SingleRowQueryCriteria{
		PrimaryKey:   o.primaryKey(key),
		ColumnsToGet: o.attributes(columns),
		TableName:    o.config.TableName,
		MaxVersion:   1,
	}
	resp, err := otsClient.GetRow(getRowRequest)
	if err != nil {
		return nil, err
	}
	if len(resp.PrimaryKey.PrimaryKeys) == 0 && len(resp.Columns) == 0 {
		return nil, nil
	}
	ret := map[string]interface{}{o.config.PrimaryKeyColumnName: key}
	for _, col := range resp.Columns {
		ret[col.ColumnName] = col.Value
	}
	return ret, nil
}

func (o *OtsStore) putRowChange(key string, datas map[string]interface{}) *tablestore.PutRowChange {
	putRowChange := new(tablestore.PutRowChange)
	putRowChange.TableName = o.config.TableName
	putRowChange.PrimaryKey = o.primaryKey(key)
	for col, data := range datas {
		if col == o.config.PrimaryKeyColumnName || data == nil {
			continue
		}
		putRowChange.AddColumn(col, data)
	}
	return putRowChange
}

func (o *OtsStore) Put(key string, datas map[string]interface{}) error {
	// PutRow replaces the whole row, merge into the existing one like sql upsert does
	existed, err := o.Get(key, o.columns())
	if err != nil {
		return err
	}
	if existed == nil {
		putRowChange := o.putRowChange(key, datas)
		putRowChange.SetCondition(tablestore.RowExistenceExpectation_IGNORE)
		_, err := otsClient.PutRow(&tablestore.PutRowRequest{PutRowChange: putRowChange})
		return err
	}
	return o.Update(key, datas)
}

func (o *OtsStore) PutIfAbsent(key string, datas map[string]interface{}) (bool, error) {
	putRowChange := o.putRowChange(key, datas)
	putRowChange.SetCondition(tablestore.RowExistenceExpectation_EXPECT_NOT_EXIST)
	if _, err := otsClient.PutRow(&tablestore.PutRowRequest{PutRowChange: putRowChange}); err != nil {
		if isConditionFail(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (o *OtsStore) updateRowChange(key string, datas map[string]interface{}) *tablestore.UpdateRowChange {
	updateRowChange := new(tablestore.UpdateRowChange)
	updateRowChange.TableName = o.config.TableName
	updateRowChange.PrimaryKey = o.primaryKey(key)
	for col, data := range datas {
		if col == o.config.PrimaryKeyColumnName {
			continue
		}
		if data == nil {
			updateRowChange.DeleteColumn(col)
			continue
		}
		updateRowChange.PutColumn(col, data)
	}
	updateRowChange.SetCondition(tablestore.RowExistenceExpectation_EXPECT_EXIST)
	return updateRowChange
}

func (o *OtsStore) Update(key string, datas map[string]interface{}) error {
	updateRowChange := o.updateRowChange(key, datas)
	if _, err := otsClient.UpdateRow(&tablestore.UpdateRowRequest{UpdateRowChange: updateRowChange}); err != nil {
		return err
	}
	return nil
}

func (o *OtsStore) UpdateIf(key string, column string, expected interface{},
	datas map[string]interface{}) (bool, error) {
	updateRowChange := o.updateRowChange(key, datas)
	condition := tablestore.NewSingleColumnCondition(column, tablestore.CT_EQUAL, expected)
	condition.FilterIfMissing = true
	updateRowChange.SetColumnCondition(condition)
	if _, err := otsClient.UpdateRow(&tablestore.UpdateRowRequest{UpdateRowChange: updateRowChange}); err != nil {
		if isConditionFail(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (o *OtsStore) Delete(key string) error {
	deleteRowReq := new(tablestore.DeleteRowRequest)
	deleteRowReq.DeleteRowChange = new(tablestore.DeleteRowChange)
	deleteRowReq.DeleteRowChange.TableName = o.config.TableName
	deleteRowReq.DeleteRowChange.PrimaryKey = o.primaryKey(key)
	deleteRowReq.DeleteRowChange.SetCondition(tablestore.RowExistenceExpectation_IGNORE)
	if _, err := otsClient.DeleteRow(deleteRowReq); err != nil {
		return err
	}
	return nil
}

func (o *OtsStore) ListAll(columns []string) (map[string]map[string]interface{}, error) {
	return o.scan(columns, nil)
}

func (o *OtsStore) ListBy(column string, value interface{},
	columns []string) (map[string]map[string]interface{}, error) {
	filter := tablestore.NewSingleColumnCondition(column, tablestore.CT_EQUAL, value)
	filter.FilterIfMissing = true
	return o.scan(columns, filter)
}

func (o *OtsStore) scan(columns []string, filter tablestore.ColumnFilter) (map[string]map[string]interface{}, error) {
	startPK := new(tablestore.PrimaryKey)
	startPK.AddPrimaryKeyColumnWithMinValue(conf.COLPK)
	endPK := new(tablestore.PrimaryKey)
	endPK.AddPrimaryKeyColumnWithMaxValue(conf.COLPK)

	resp := make(map[string]map[string]interface{})
	for startPK != nil {
		rangeRowQueryCriteria := &tablestore.RangeRowQueryCriteria{
			TableName:       o.config.TableName,
			StartPrimaryKey: startPK,
			EndPrimaryKey:   endPK,
			Direction:       tablestore.FORWARD,
			MaxVersion:      1,
			Limit:           otsRangeLimit,
			ColumnsToGet:    o.attributes(columns),
		}
		if filter != nil {
			rangeRowQueryCriteria.Filter = filter
		}
		getRangeResp, err := otsClient.GetRange(&tablestore.GetRangeRequest{
			RangeRowQueryCriteria: rangeRowQueryCriteria,
		})
		if err != nil {
			return nil, err
		}
		for _, row := range getRangeResp.Rows {
			key := row.PrimaryKey.PrimaryKeys[0].Value.(string)
			result := map[string]interface{}{o.config.PrimaryKeyColumnName: key}
			for _, col := range row.Columns {
				result[col.ColumnName] = col.Value
			}
			resp[key] = result
		}
		startPK = getRangeResp.NextStartPrimaryKey
	}
	return resp, nil
}

func (o *OtsStore) columns() []string {
	return sortedKeys(o.config.ColumnConfig)
}

func (o *OtsStore) Close() error {
	// do nothing
	return nil
}

func isConditionFail(err error) bool {
	return err != nil && strings.Contains(err.Error(), otsConditionCheckFail)
}
