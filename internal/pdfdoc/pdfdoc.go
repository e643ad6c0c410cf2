// Package pdfdoc reads text and document information from PDF bytes.
package pdfdoc

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

func init() {
	// Use built-in defaults instead of a per-user pdfcpu config directory.
	api.DisableConfigDir()
}

// Info is the embedded document information dictionary
type Info struct {
	Title        string
	Author       string
	CreationDate string // raw PDF date, e.g. "D:20190101120000+03'00'"
	PageCount    int
}

// readContext parses and validates a PDF held in memory
func readContext(body []byte) (*model.Context, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(body), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx, nil
}

// ReadInfo returns the entries of the document information dictionary.
// The context's Title, Author and CreationDate are not used: validation
// replaces them with XMP values when the catalog carries a newer packet.
func ReadInfo(body []byte) (*Info, error) {
	ctx, err := readContext(body)
	if err != nil {
		return nil, err
	}

	info := &Info{PageCount: ctx.PageCount}
	if ctx.Info == nil {
		return info, nil
	}

	d, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil {
		return nil, fmt.Errorf("info dict: %w", err)
	}
	info.Title = infoText(ctx, d, "Title")
	info.Author = infoText(ctx, d, "Author")
	info.CreationDate = infoText(ctx, d, "CreationDate")

	return info, nil
}

// infoText returns the decoded string entry key; absent or non-string
// entries are empty.
func infoText(ctx *model.Context, d types.Dict, key string) string {
	o, ok := d[key]
	if !ok {
		return ""
	}
	s, err := ctx.DereferenceText(o)
	if err != nil {
		return ""
	}
	return s
}

// LeadingText returns text from the first pages of a PDF. Pages are read
// until more than maxChars characters are collected; the result is cut to
// maxChars characters. maxChars <= 0 reads the whole document.
func LeadingText(body []byte, maxChars int) (string, error) {
	ctx, err := readContext(body)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		text, err := pageText(ctx, pageNr)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", pageNr, err)
		}
		if text != "" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(text)
		}
		if maxChars > 0 && utf8.RuneCountInString(sb.String()) > maxChars {
			break
		}
	}

	return truncateRunes(sb.String(), maxChars), nil
}

// pageText extracts the shown text of one page's content stream
func pageText(ctx *model.Context, pageNr int) (string, error) {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return textFromContentStream(data), nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
