package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/attendance-notifier/internal/repository"
	"gorm.io/gorm"
)

func createBroadcastsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000006_create_broadcasts",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.BroadcastModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.BroadcastModel{})
		},
	}
}
