package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/attendance-notifier/internal/repository"
	"gorm.io/gorm"
)

func createStudentsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_students",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.StudentModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_students_barcode ON students (barcode) WHERE barcode <> ''`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.StudentModel{})
		},
	}
}
