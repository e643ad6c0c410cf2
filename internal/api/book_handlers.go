package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bookscraper/bookscraper/internal/db"
	"github.com/bookscraper/bookscraper/internal/fetcher"
	"github.com/bookscraper/bookscraper/internal/service"
)

// listColumns leaves out the document body; its size is computed instead
const listColumns = "id, title, author, link, downloaded, title_parsed, author_parsed, year_parsed, created_at, COALESCE(LENGTH(body), 0) AS body_size"

// BookResponse represents a book without its document body
type BookResponse struct {
	ID           uint    `json:"id"`
	Title        string  `json:"title"`
	Author       string  `json:"author"`
	Link         string  `json:"link"`
	Downloaded   bool    `json:"downloaded"`
	Status       string  `json:"status"`
	BodySize     int64   `json:"body_size"`
	TitleParsed  *string `json:"title_parsed"`
	AuthorParsed *string `json:"author_parsed"`
	YearParsed   *string `json:"year_parsed"`
	CreatedAt    string  `json:"created_at"`
}

// PaginatedResponse represents a paginated response
type PaginatedResponse struct {
	Data  interface{} `json:"data"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
	Total int64       `json:"total"`
	Pages int         `json:"pages"`
}

// Bulk actions
const (
	ActionRefetch   = "refetch"
	ActionReextract = "reextract"
	ActionDelete    = "delete"
)

// BulkRequest represents a bulk operation request
type BulkRequest struct {
	Action string `json:"action" binding:"required,oneof=refetch reextract delete"`
	IDs    []uint `json:"ids" binding:"required,min=1,max=100"`
}

var sortOrders = map[string]string{
	"created_at desc": "created_at desc, id desc",
	"created_at asc":  "created_at asc, id asc",
	"id desc":         "id desc",
	"id asc":          "id asc",
	"title asc":       "title asc, id asc",
	"title desc":      "title desc, id desc",
}

func toResponse(book db.Book) BookResponse {
	size := book.BodySize
	if size == 0 {
		size = int64(len(book.Body))
	}
	return BookResponse{
		ID:           book.ID,
		Title:        book.Title,
		Author:       book.Author,
		Link:         book.Link,
		Downloaded:   book.Downloaded,
		Status:       string(book.Status()),
		BodySize:     size,
		TitleParsed:  book.TitleParsed,
		AuthorParsed: book.AuthorParsed,
		YearParsed:   book.YearParsed,
		CreatedAt:    book.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// statusFilter narrows query to books in the given pipeline status
func statusFilter(query *gorm.DB, status db.BookStatus) (*gorm.DB, error) {
	switch status {
	case db.StatusDiscovered:
		return query.Where("downloaded = ?", false), nil
	case db.StatusSkipped:
		return query.Where("downloaded = ? AND body IS NULL AND title_parsed IS NULL", true), nil
	case db.StatusDownloaded:
		return query.Where("downloaded = ? AND body IS NOT NULL AND title_parsed IS NULL", true), nil
	case db.StatusExtracted:
		return query.Where("title_parsed IS NOT NULL"), nil
	}
	return nil, fmt.Errorf("unknown status %q", status)
}

// ListBooksHandler handles book listing with pagination, search and status
// filtering
func ListBooksHandler(dbConn *gorm.DB, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			page = 1
		}

		pageSize, err := strconv.Atoi(c.DefaultQuery("size", "10"))
		if err != nil || pageSize < 1 || pageSize > 100 {
			pageSize = 10
		}

		order, ok := sortOrders[c.DefaultQuery("sort", "created_at desc")]
		if !ok {
			order = sortOrders["created_at desc"]
		}

		query := dbConn.WithContext(c.Request.Context()).Model(&db.Book{})

		if search := strings.TrimSpace(c.Query("q")); search != "" {
			like := "%" + search + "%"
			query = query.Where("title LIKE ? OR author LIKE ? OR title_parsed LIKE ?", like, like, like)
		}

		if status := strings.TrimSpace(c.Query("status")); status != "" {
			query, err = statusFilter(query, db.BookStatus(status))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		var total int64
		if err := query.Count(&total).Error; err != nil {
			log.Error("Failed to count books", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		offset := (page - 1) * pageSize
		pages := int((total + int64(pageSize) - 1) / int64(pageSize))

		var books []db.Book
		if err := query.Select(listColumns).Order(order).Limit(pageSize).Offset(offset).Find(&books).Error; err != nil {
			log.Error("Failed to fetch books", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		data := make([]BookResponse, 0, len(books))
		for _, book := range books {
			data = append(data, toResponse(book))
		}

		c.JSON(http.StatusOK, PaginatedResponse{
			Data:  data,
			Page:  page,
			Size:  pageSize,
			Total: total,
			Pages: pages,
		})
	}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid book ID"})
		return 0, false
	}
	return uint(id), true
}

// GetBookHandler handles retrieving a single book
func GetBookHandler(dbConn *gorm.DB, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}

		var book db.Book
		err := dbConn.WithContext(c.Request.Context()).Select(listColumns).First(&book, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
				return
			}
			log.Error("Failed to fetch book", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.JSON(http.StatusOK, toResponse(book))
	}
}

// GetBookBodyHandler serves the stored PDF of a book
func GetBookBodyHandler(dbConn *gorm.DB, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}

		book, err := service.GetBookByID(dbConn.WithContext(c.Request.Context()), id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
				return
			}
			log.Error("Failed to fetch book body", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		if len(book.Body) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not stored"})
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="book-%d.pdf"`, book.ID))
		c.Data(http.StatusOK, fetcher.PDFContentType, book.Body)
	}
}

// BulkHandler resets or deletes books so the next pipeline run processes
// them again
func BulkHandler(dbConn *gorm.DB, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BulkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Warn("Bulk operation validation error", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid bulk request",
				"details": err.Error(),
			})
			return
		}

		conn := dbConn.WithContext(c.Request.Context())

		var affected int64
		var err error

		switch req.Action {
		case ActionRefetch:
			affected, err = service.ResetDownloads(conn, req.IDs)
		case ActionReextract:
			affected, err = service.ResetExtraction(conn, req.IDs)
		case ActionDelete:
			affected, err = service.DeleteBooks(conn, req.IDs)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
			return
		}

		if err != nil {
			log.Error("Bulk operation failed", "action", req.Action, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to perform bulk operation"})
			return
		}

		log.Info("Bulk operation completed", "action", req.Action, "affected", affected)
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"action":   req.Action,
			"affected": affected,
		})
	}
}
