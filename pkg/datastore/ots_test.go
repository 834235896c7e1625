package datastore

import (
	"testing"

	"github.com/imthegoodboy/AI-Oracle/pkg/config"
	"github.com/stretchr/testify/assert"
)

// needs a real tablestore instance, see OTS_ENDPOINT / OTS_INSTANCE
func TestOts(t *testing.T) {
	if err := config.InitConfig(""); err != nil || !config.ConfigGlobal.UseOts() {
		t.Skip("tablestore not configured")
	}
	tableName := "oracle_test1"
	otsStore, err := NewOtsDatastore(&Config{
		Type:      TableStore,
		TableName: tableName,
		ColumnConfig: map[string]string{
			"user":    colText,
			"info":    colText,
			"version": colInt,
		},
		PrimaryKeyColumnName: "id",
		TimeToAlive:          -1,
		MaxVersion:           1,
	})
	assert.Nil(t, err)
	assert.NotNil(t, otsStore)
	otsStore.Delete("lll")

	// put
	ok, err := otsStore.PutIfAbsent("lll", map[string]interface{}{"info": "test", "version": int64(1)})
	assert.Nil(t, err)
	assert.True(t, ok)
	ok, err = otsStore.PutIfAbsent("lll", map[string]interface{}{"info": "again"})
	assert.Nil(t, err)
	assert.False(t, ok)

	// compare and set
	ok, err = otsStore.UpdateIf("lll", "version", int64(2), map[string]interface{}{"info": "lost"})
	assert.Nil(t, err)
	assert.False(t, ok)
	ok, err = otsStore.UpdateIf("lll", "version", int64(1), map[string]interface{}{
		"info": "test1", "user": "admin", "version": int64(2)})
	assert.Nil(t, err)
	assert.True(t, ok)

	data, err := otsStore.Get("lll", []string{"info", "user"})
	assert.Nil(t, err)
	assert.Equal(t, "test1", data["info"].(string))
	assert.Equal(t, "admin", data["user"].(string))

	datas, err := otsStore.ListBy("user", "admin", []string{"info"})
	assert.Nil(t, err)
	assert.Len(t, datas, 1)
}
