// seed-admin creates or updates the admin console user. Admin users have
// role_id = 1; regular editors get the default role_id = 2.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dmdcottage/sheets_backend/config"
	"github.com/dmdcottage/sheets_backend/models"
	"github.com/dmdcottage/sheets_backend/utils"
	"gorm.io/gorm"
)

const (
	adminEmail = "admin@dmdcottage.ru"
	adminName  = "DMD Admin"
)

func main() {
	email := flag.String("email", adminEmail, "admin login email")
	password := flag.String("password", "", "Required: admin password")
	flag.Parse()

	if strings.TrimSpace(*password) == "" {
		fmt.Fprintln(os.Stderr, "--password is required")
		os.Exit(1)
	}

	ctx := context.Background()
	db := config.OpenDatabase()

	models.MigrateTable(db)

	hashed, err := utils.HashPassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var existing models.User
	err = db.WithContext(ctx).Where("email = ?", *email).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		u := models.User{
			Email:    *email,
			Name:     adminName,
			Password: hashed,
			RoleId:   1,
			IsActive: true,
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: email=%q (role_id=1)\n", *email)
		return
	}

	if err := db.WithContext(ctx).Model(&models.User{}).Where("email = ?", *email).Updates(map[string]any{
		"password":  hashed,
		"name":      adminName,
		"is_active": true,
		"role_id":   1,
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated admin user: email=%q (role_id=1)\n", *email)
}
