package search

import (
	"fmt"
	"strings"

	"github.com/hyperjump/strata/internal/models"
	"github.com/hyperjump/strata/pkg/utils"
)

const (
	unknownSource = "Unknown Source"
	unknownLink   = "#"
)

// AssembleContext renders matches, in ranked order, as the context block given to the model.
// Each match becomes a Source/Link/Content snippet terminated by "---".
func AssembleContext(matches []*models.Match) string {
	pieces := make([]string, 0, len(matches))
	for _, m := range matches {
		rec := m.Record
		title := utils.FirstNonEmpty(rec.MetaString(models.MetaTitle), unknownSource)
		link := utils.FirstNonEmpty(rec.MetaString(models.MetaURL), unknownLink)
		var content string
		if rec != nil {
			content = rec.Content
		}
		pieces = append(pieces, fmt.Sprintf("Source: %s\nLink: %s\nContent: %s\n---", title, link, content))
	}
	return strings.Join(pieces, "\n")
}
