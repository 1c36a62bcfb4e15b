// Package corpus parses the delimited plain-text article corpus into articles.
package corpus

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/strata/internal/models"
)

// DefaultDelimiter is the 50-dash line separating articles.
var DefaultDelimiter = strings.Repeat("-", 50)

const (
	titlePrefix = "Title:"
	urlPrefix   = "URL:"
	datePrefix  = "Date:"
)

// Parser splits corpus text into articles.
type Parser struct {
	delimiter string
}

// NewParser returns a Parser splitting on delimiter, or DefaultDelimiter when empty.
func NewParser(delimiter string) *Parser {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return &Parser{delimiter: delimiter}
}

// ParseFile reads the corpus at path and parses it.
func (p *Parser) ParseFile(path string) ([]models.Article, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewError(models.KindParse, "open corpus", err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse reads all of r and parses it. It fails only when r cannot be read.
func (p *Parser) Parse(r io.Reader) ([]models.Article, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, models.NewError(models.KindParse, "read corpus", fmt.Errorf("read: %w", err))
	}
	if !utf8.Valid(data) {
		data = []byte(strings.ToValidUTF8(string(data), "�"))
	}
	return p.ParseString(string(data)), nil
}

// ParseString parses corpus text. Blocks that are blank after trimming are dropped;
// a block without header lines becomes an article with only a body.
func (p *Parser) ParseString(text string) []models.Article {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var articles []models.Article
	for _, block := range strings.Split(text, p.delimiter) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		articles = append(articles, parseBlock(block))
	}
	return articles
}

func parseBlock(block string) models.Article {
	var a models.Article
	var body []string
	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, titlePrefix):
			a.Title = strings.TrimSpace(line[len(titlePrefix):])
		case strings.HasPrefix(line, urlPrefix):
			a.URL = strings.TrimSpace(line[len(urlPrefix):])
		case strings.HasPrefix(line, datePrefix):
			a.Date = strings.TrimSpace(line[len(datePrefix):])
		default:
			body = append(body, line)
		}
	}
	a.Body = strings.Join(body, "\n")
	return a
}
