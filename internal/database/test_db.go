package database

import (
	"fmt"

	"github.com/google/uuid"
)

// InitTestDB opens a private in-memory sqlite store. Each call gets its own
// database so tests never see each other's keys.
func InitTestDB() *SQLiteStore {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	store, err := OpenSQLite(dsn)
	if err != nil {
		panic("failed to connect test database: " + err.Error())
	}

	// shared-cache memory databases lock per table, keep one connection
	sqlDB, err := store.db.DB()
	if err != nil {
		panic("failed to get test database handle")
	}
	sqlDB.SetMaxOpenConns(1)

	return store
}

func CleanTestDB(store *SQLiteStore) {
	if store == nil {
		return
	}
	_ = store.Close()
}
