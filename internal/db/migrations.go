package db

import (
	"fmt"

	"gorm.io/gorm"
)

// ResetSchema drops the books table and creates it again from the model.
// Every stored record is lost.
func ResetSchema(db *gorm.DB) error {
	migrator := db.Migrator()

	if migrator.HasTable(&Book{}) {
		if err := migrator.DropTable(&Book{}); err != nil {
			return fmt.Errorf("failed to drop books table: %w", err)
		}
	}

	return createBooks(db)
}

// EnsureSchema creates the books table when it does not exist yet. Used by
// the read-only browser, which must never wipe data.
func EnsureSchema(db *gorm.DB) error {
	if db.Migrator().HasTable(&Book{}) {
		return nil
	}
	return createBooks(db)
}

// LinkIndex is the unique index backing link deduplication
const LinkIndex = "idx_books_link"

func createBooks(db *gorm.DB) error {
	if err := db.Migrator().CreateTable(&Book{}); err != nil {
		return fmt.Errorf("failed to create books table: %w", err)
	}

	// MySQL cannot index a whole TEXT column, so links are unique on
	// their first 768 characters there.
	column := "link"
	if db.Dialector.Name() == DriverMySQL {
		column = "link(768)"
	}
	stmt := fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)", LinkIndex, Book{}.TableName(), column)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to create link index: %w", err)
	}
	return nil
}
