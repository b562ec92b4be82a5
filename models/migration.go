package models

import (
	"log"

	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) {
	err := db.AutoMigrate(
		&User{},
		&Sheet{}, &UserSheet{},
		&Cell{}, &CellHistory{},
		&ReportSource{},
		&WebhookMapping{}, &SystemSetting{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
