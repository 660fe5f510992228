package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"avaremind-backend/lib/telemetry"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbCounter uint64

// SetupDB spins up telemetry plus an in-memory sqlite database
// migrated for the given models. The returned cleanup tears both
// down. Each call gets its own named memory database so pooled
// connections all land on the same store without leaking state
// between tests.
func SetupDB(t testing.TB, name string, models ...any) (*gorm.DB, func()) {
	cleanup := telemetry.SetupForTesting(t, "test:"+name)

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", atomic.AddUint64(&dbCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(models) > 0 {
		err = db.AutoMigrate(models...)
		if err != nil {
			t.Fatal(err)
		}
	}

	return db, func() {
		sqldb, err := db.DB()
		if err == nil {
			sqldb.Close()
		}
		cleanup()
	}
}
