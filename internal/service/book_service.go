package service

import (
	"errors"
	"fmt"

	"github.com/bookscraper/bookscraper/internal/db"
	"gorm.io/gorm"
)

// ParsedMetadata is the extractor output written back to a book
type ParsedMetadata struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Year   string `json:"year"`
}

// GetBookByID retrieves a book by ID
func GetBookByID(dbConn *gorm.DB, id uint) (*db.Book, error) {
	var book db.Book
	err := dbConn.First(&book, id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// LinkExists reports whether a book with the given download link is stored
func LinkExists(dbConn *gorm.DB, link string) (bool, error) {
	var book db.Book
	err := dbConn.Select("id").Where("link = ?", link).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateBook inserts a discovered book. It returns false without error when
// the link is already stored, whether found by lookup or by the unique index.
func CreateBook(dbConn *gorm.DB, title, author, link string) (bool, error) {
	if title == "" || link == "" {
		return false, fmt.Errorf("title and link cannot be empty")
	}

	created := false
	err := dbConn.Transaction(func(tx *gorm.DB) error {
		exists, err := LinkExists(tx, link)
		if err != nil {
			return fmt.Errorf("failed to check link: %w", err)
		}
		if exists {
			return nil
		}

		book := db.Book{
			Title:  title,
			Author: author,
			Link:   link,
		}
		if err := tx.Create(&book).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return created, nil
}

// ListPendingDownloads returns up to limit books not yet fetched
func ListPendingDownloads(dbConn *gorm.DB, limit int) ([]db.Book, error) {
	var books []db.Book
	err := dbConn.Select("id", "title", "link").
		Where("downloaded = ?", false).
		Order("id").
		Limit(limit).
		Find(&books).Error
	if err != nil {
		return nil, err
	}
	return books, nil
}

// SaveDownload stores the fetched body and marks the book downloaded. A nil
// body records a resolved fetch that produced nothing worth keeping.
func SaveDownload(dbConn *gorm.DB, id uint, body []byte) error {
	return dbConn.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"downloaded": true,
		}
		if body != nil {
			updates["body"] = body
		}
		result := tx.Model(&db.Book{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ListPendingExtraction returns up to limit downloaded books without
// parsed metadata
func ListPendingExtraction(dbConn *gorm.DB, limit int) ([]db.Book, error) {
	var books []db.Book
	err := dbConn.Where("downloaded = ? AND title_parsed IS NULL", true).
		Order("id").
		Limit(limit).
		Find(&books).Error
	if err != nil {
		return nil, err
	}
	return books, nil
}

// SaveParsed writes the extracted metadata columns of a book
func SaveParsed(dbConn *gorm.DB, id uint, parsed ParsedMetadata) error {
	return dbConn.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"title_parsed":  parsed.Title,
			"author_parsed": parsed.Author,
			"year_parsed":   parsed.Year,
		}
		result := tx.Model(&db.Book{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ResetDownloads clears fetched content and parsed metadata so the next
// pipeline run fetches the books again
func ResetDownloads(dbConn *gorm.DB, ids []uint) (int64, error) {
	result := dbConn.Model(&db.Book{}).Where("id IN ?", ids).Updates(map[string]interface{}{
		"body":          nil,
		"downloaded":    false,
		"title_parsed":  nil,
		"author_parsed": nil,
		"year_parsed":   nil,
	})
	return result.RowsAffected, result.Error
}

// ResetExtraction clears parsed metadata so the next pipeline run
// extracts the books again
func ResetExtraction(dbConn *gorm.DB, ids []uint) (int64, error) {
	result := dbConn.Model(&db.Book{}).Where("id IN ?", ids).Updates(map[string]interface{}{
		"title_parsed":  nil,
		"author_parsed": nil,
		"year_parsed":   nil,
	})
	return result.RowsAffected, result.Error
}

// DeleteBooks removes books by ID
func DeleteBooks(dbConn *gorm.DB, ids []uint) (int64, error) {
	result := dbConn.Delete(&db.Book{}, ids)
	return result.RowsAffected, result.Error
}

// CountBooks returns the number of stored books
func CountBooks(dbConn *gorm.DB) (int64, error) {
	var count int64
	err := dbConn.Model(&db.Book{}).Count(&count).Error
	return count, err
}
