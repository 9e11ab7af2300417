package testutils

import (
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormDB connects to the test database pointed at by EW_TEST_DB_URL, or
// skips the test when unset. Tests own the database content; each test
// should use throwaway schemas or wipe what it creates.
func GormDB(t *testing.T) *gorm.DB {
	t.Helper()
	url := os.Getenv("EW_TEST_DB_URL")
	if url == "" {
		t.Skip("EW_TEST_DB_URL not set, skipping database test")
	}
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("connecting to test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
