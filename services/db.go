package services

import (
	"os"

	"gorm.io/gorm"
)

// DBService is what the domain services need from whichever database
// backend is active. Production wires postgres; DB_DRIVER=sqlite switches
// local runs and the seeder to sqlite.
type DBService interface {
	Db() *gorm.DB
	HandleError(err error) error
}

func UseSqlite() bool {
	return os.Getenv("DB_DRIVER") == "sqlite"
}
