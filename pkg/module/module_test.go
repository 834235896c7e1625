package module

import (
	"sync"
	"testing"

	"github.com/imthegoodboy/AI-Oracle/pkg/config"
	"github.com/imthegoodboy/AI-Oracle/pkg/datastore"
	"github.com/stretchr/testify/require"
)

// newTestTable opens one of the known tables on a fresh sqlite memory database
func newTestTable(t *testing.T, tableName string) datastore.Datastore {
	config.ConfigGlobal.DbSqlite = ":memory:"
	df := datastore.DatastoreFactory{}
	ds, err := df.NewTable(datastore.SQLite, tableName)
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds
}

type recordedEvent struct {
	key   string
	owner string
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeRecorder) Record(key, owner string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{key: key, owner: owner})
}

func (f *fakeRecorder) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ret := make([]string, 0, len(f.events))
	for _, e := range f.events {
		ret = append(ret, e.key)
	}
	return ret
}
