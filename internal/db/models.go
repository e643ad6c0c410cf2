package db

import "time"

// Book is one catalog entry moving through discover, fetch and extract.
//
// Downloaded marks a resolved fetch attempt, not a valid PDF: non-PDF
// responses set it with a nil Body. A non-nil TitleParsed marks the row
// as extracted.
type Book struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title        string    `gorm:"type:text" json:"title"`
	Author       string    `gorm:"type:text" json:"author"`
	Link         string    `gorm:"type:text;not null" json:"link"`
	Body         []byte    `json:"-"`
	Downloaded   bool      `gorm:"not null;default:false" json:"downloaded"`
	TitleParsed  *string   `gorm:"type:text" json:"title_parsed"`
	AuthorParsed *string   `gorm:"type:text" json:"author_parsed"`
	YearParsed   *string   `gorm:"type:text" json:"year_parsed"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime" json:"created_at"`

	// BodySize is filled by list queries that leave Body unselected.
	BodySize int64 `gorm:"->;-:migration;column:body_size" json:"body_size"`
}

// TableName pins the table name used by every stage
func (Book) TableName() string {
	return "books"
}

// BookStatus is the pipeline position derived from a row's state flags
type BookStatus string

const (
	StatusDiscovered BookStatus = "discovered"
	StatusDownloaded BookStatus = "downloaded"
	StatusSkipped    BookStatus = "skipped"
	StatusExtracted  BookStatus = "extracted"
)

// Status reports where the book stands in the pipeline
func (b *Book) Status() BookStatus {
	switch {
	case b.TitleParsed != nil:
		return StatusExtracted
	case !b.Downloaded:
		return StatusDiscovered
	case len(b.Body) == 0 && b.BodySize == 0:
		return StatusSkipped
	default:
		return StatusDownloaded
	}
}
