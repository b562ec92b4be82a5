package models

import (
	"errors"

	"gorm.io/gorm"
)

// SheetAccess resolves what a user may do with a sheet: owners and admins get
// everything, public sheets grant read, and UserSheet grants carry their own
// level. The same check guards the REST read path and socket room joins.
func SheetAccess(db *gorm.DB, userId int, sheet *Sheet) (canRead, canWrite bool, err error) {
	if sheet.CreatedBy == userId {
		return true, true, nil
	}
	if sheet.IsPublic {
		canRead = true
	}

	var grant UserSheet
	err = db.Where("user_id = ? AND sheet_id = ?", userId, sheet.ID).First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return canRead, false, nil
	}
	if err != nil {
		return false, false, err
	}

	switch grant.Permission {
	case PermissionRead:
		return true, canWrite, nil
	case PermissionWrite, PermissionAdmin:
		return true, true, nil
	}
	return canRead, false, nil
}
