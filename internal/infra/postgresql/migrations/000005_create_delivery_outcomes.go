package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/attendance-notifier/internal/repository"
	"gorm.io/gorm"
)

func createDeliveryOutcomesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_delivery_outcomes",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryOutcomeModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_outcomes_student_completed ON delivery_outcomes (student_id, completed_at DESC) WHERE student_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_outcomes_status ON delivery_outcomes (status)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryOutcomeModel{})
		},
	}
}
