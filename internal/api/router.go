package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bookscraper/bookscraper/internal/middleware"
	"github.com/bookscraper/bookscraper/internal/service"
)

// NewRouter builds the catalog browser routes
func NewRouter(dbConn *gorm.DB, log *slog.Logger, allowedOrigins []string) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestLogger(log))
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(allowedOrigins))

	r.GET("/health", HealthHandler(dbConn))

	books := r.Group("/books")
	{
		books.GET("", ListBooksHandler(dbConn, log))
		books.GET("/:id", GetBookHandler(dbConn, log))
		books.GET("/:id/body", GetBookBodyHandler(dbConn, log))
		books.POST("/bulk", BulkHandler(dbConn, log))
	}

	return r
}

// HealthHandler reports whether the store is reachable
func HealthHandler(dbConn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := service.CountBooks(dbConn.WithContext(c.Request.Context()))
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"timestamp": time.Now().UTC(),
				"service":   "catalogd",
				"error":     err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"service":   "catalogd",
			"books":     count,
		})
	}
}
