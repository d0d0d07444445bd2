package store

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens a database file through the pure-Go sqlite driver.
func OpenSQLite(path string, config *gorm.Config) (*gorm.DB, error) {
	if config == nil {
		config = &gorm.Config{TranslateError: true}
	}
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path + "?_pragma=busy_timeout(5000)",
	}, config)
}
