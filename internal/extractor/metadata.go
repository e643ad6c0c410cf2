package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bookscraper/bookscraper/internal/pdfdoc"
	"github.com/bookscraper/bookscraper/internal/service"
)

var (
	jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)
	errNoJSON  = errors.New("no JSON object in model response")
)

// buildPrompt fills the template with the leading document text. A
// document without text still yields a prompt.
func buildPrompt(config Config, body []byte) (string, error) {
	text, err := pdfdoc.LeadingText(body, config.MaxChars)
	if err != nil {
		return "", fmt.Errorf("failed to read document text: %w", err)
	}
	return strings.ReplaceAll(config.PromptTemplate, TextPlaceholder, text), nil
}

// parseModelResponse reads title, author and year from the first JSON
// object in a model reply. Missing title and author keep the known values.
func parseModelResponse(response, title, author string) (service.ParsedMetadata, error) {
	match := jsonObject.FindString(response)
	if match == "" {
		return service.ParsedMetadata{}, errNoJSON
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(match), &fields); err != nil {
		return service.ParsedMetadata{}, fmt.Errorf("failed to parse model JSON: %w", err)
	}

	return service.ParsedMetadata{
		Title:  field(fields, "title", title),
		Author: field(fields, "author", author),
		Year:   field(fields, "year", ""),
	}, nil
}

func field(fields map[string]any, key, fallback string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return fallback
	}
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fallback
		}
		return string(b)
	}
}

// fallbackMetadata reads the document information dictionary. It never
// fails: unreadable documents yield the known title and author.
func fallbackMetadata(body []byte, title, author string) service.ParsedMetadata {
	info, err := pdfdoc.ReadInfo(body)
	if err != nil {
		return service.ParsedMetadata{Title: title, Author: author}
	}

	parsed := service.ParsedMetadata{Title: title, Author: author}
	if t := strings.TrimSpace(info.Title); t != "" {
		parsed.Title = t
	}
	if a := strings.TrimSpace(info.Author); a != "" {
		parsed.Author = a
	}
	parsed.Year = yearFromDate(info.CreationDate)
	return parsed
}

// yearFromDate returns the year of a PDF date string such as
// "D:20190101120000Z", or "" for any other format
func yearFromDate(date string) string {
	if !strings.HasPrefix(date, "D:") || len(date) < 6 {
		return ""
	}
	year := date[2:6]
	for _, c := range year {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return year
}
