package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/bookscraper/bookscraper/internal/db"
	"github.com/bookscraper/bookscraper/internal/httpclient"
	"github.com/bookscraper/bookscraper/internal/llm"
	"github.com/bookscraper/bookscraper/internal/progress"
	"github.com/bookscraper/bookscraper/internal/service"
)

// TextPlaceholder marks where the document text goes in PromptTemplate
const TextPlaceholder = "{text}"

const defaultPrompt = "Вот текст из книги:\n\n" + TextPlaceholder + "\n\n" +
	"Пожалуйста, извлеки:\n" +
	"- Название книги\n" +
	"- Имя автора\n" +
	"- Год публикации (если есть)\n" +
	"Формат: JSON с полями title, author, year"

var errNoModel = errors.New("model not loaded")

// Config holds extraction configuration
type Config struct {
	MaxChars       int           `mapstructure:"max_chars"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Delay          time.Duration `mapstructure:"delay"`
	PromptTemplate string        `mapstructure:"prompt_template"`
}

// DefaultConfig returns default extraction configuration
func DefaultConfig() Config {
	return Config{
		MaxChars:       3000,
		MaxTokens:      512,
		Delay:          time.Second,
		PromptTemplate: defaultPrompt,
	}
}

// Extractor fills in the parsed metadata of downloaded books
type Extractor struct {
	config   Config
	dbConfig db.Config
	load     llm.Loader
	progress progress.Factory
	log      *slog.Logger
}

// ExtractResult summarises one extraction batch
type ExtractResult struct {
	Primary  int
	Fallback int
	Failed   int
}

// New creates a new extractor. load is called once per batch.
func New(config Config, dbConfig db.Config, load llm.Loader, log *slog.Logger, bars progress.Factory) *Extractor {
	return &Extractor{
		config:   config,
		dbConfig: dbConfig,
		load:     load,
		progress: bars,
		log:      log.With("component", "extractor"),
	}
}

// Run extracts metadata for up to batchSize downloaded books. A model that
// fails to load leaves the whole batch to the document metadata reader.
func (e *Extractor) Run(ctx context.Context, batchSize int) (*ExtractResult, error) {
	result := &ExtractResult{}

	err := db.WithConnection(e.dbConfig, func(conn *gorm.DB) error {
		conn = conn.WithContext(ctx)

		books, err := service.ListPendingExtraction(conn, batchSize)
		if err != nil {
			return fmt.Errorf("failed to list pending extraction: %w", err)
		}
		if len(books) == 0 {
			e.log.Info("No books to extract")
			return nil
		}

		model := e.loadModel(ctx)
		if model != nil {
			defer func() {
				if err := model.Close(); err != nil {
					e.log.Warn("Failed to close model", "error", err)
				}
			}()
		}

		bar := e.progress.New(len(books), "Extracting metadata")
		defer bar.Finish()

		for i, book := range books {
			if err := ctx.Err(); err != nil {
				return err
			}

			parsed, cause := firstOf(
				func() (service.ParsedMetadata, error) { return e.askModel(ctx, model, book) },
				func() service.ParsedMetadata { return fallbackMetadata(book.Body, book.Title, book.Author) },
			)
			if cause != nil {
				e.log.Warn("Model extraction failed, using document metadata", "title", book.Title, "error", cause)
			}

			if err := service.SaveParsed(conn, book.ID, parsed); err != nil {
				result.Failed++
				e.log.Error("Failed to save metadata", "title", book.Title, "error", err)
			} else {
				if cause == nil {
					result.Primary++
				} else {
					result.Fallback++
				}
				e.log.Info("Metadata extracted", "title", book.Title,
					"title_parsed", parsed.Title, "author_parsed", parsed.Author, "year_parsed", parsed.Year)
			}
			bar.Add(1)

			if i < len(books)-1 {
				if err := httpclient.Throttle(ctx, e.config.Delay); err != nil {
					return err
				}
			}
		}

		e.log.Info("Extraction batch finished", "primary", result.Primary, "fallback", result.Fallback, "failed", result.Failed)
		return nil
	})

	return result, err
}

func (e *Extractor) loadModel(ctx context.Context) llm.Model {
	if e.load == nil {
		e.log.Warn("No model configured, using document metadata only")
		return nil
	}
	model, err := e.load(ctx)
	if err != nil {
		e.log.Error("Failed to load model, using document metadata only", "error", err)
		return nil
	}
	return model
}

// askModel runs the primary tier for one book
func (e *Extractor) askModel(ctx context.Context, model llm.Model, book db.Book) (service.ParsedMetadata, error) {
	if model == nil {
		return service.ParsedMetadata{}, errNoModel
	}

	prompt, err := buildPrompt(e.config, book.Body)
	if err != nil {
		return service.ParsedMetadata{}, err
	}

	response, err := model.Generate(ctx, prompt, e.config.MaxTokens)
	if err != nil {
		return service.ParsedMetadata{}, err
	}

	return parseModelResponse(response, book.Title, book.Author)
}

// firstOf runs primary and falls back when it fails. The returned error is
// the primary failure; the metadata is always usable.
func firstOf(primary func() (service.ParsedMetadata, error), fallback func() service.ParsedMetadata) (service.ParsedMetadata, error) {
	parsed, err := primary()
	if err == nil {
		return parsed, nil
	}
	return fallback(), err
}
