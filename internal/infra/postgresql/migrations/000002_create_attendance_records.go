package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/attendance-notifier/internal/repository"
	"gorm.io/gorm"
)

func createAttendanceTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_attendance_records",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.AttendanceModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_student_date ON attendance_records (student_id, date)`,
				`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance_records (date)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.AttendanceModel{})
		},
	}
}
