package ingest

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/pkg/firecrawl"
)

// MaxHTMLBytes is the size at which a page's HTML body is dropped rather
// than stored. Markdown is kept regardless.
const MaxHTMLBytes = 100_000

// PageMapper turns crawl results into CrawledPage rows.
type PageMapper struct {
	converter *md.Converter
}

// NewPageMapper creates a PageMapper.
func NewPageMapper() *PageMapper {
	return &PageMapper{converter: md.NewConverter("", true, nil)}
}

// Map converts one crawl result for a school. Title and description fall
// back to the HTML head when the crawl metadata lacks them, and markdown
// falls back to a conversion of the HTML body.
func (m *PageMapper) Map(school model.School, data firecrawl.PageData) model.CrawledPage {
	page := model.CrawledPage{
		Index:       school.Index,
		SchoolID:    school.ID,
		SchoolName:  school.Name,
		SchoolType:  school.Type,
		URL:         data.Metadata.SourceURL,
		Title:       strings.TrimSpace(data.Metadata.Title),
		Description: strings.TrimSpace(data.Metadata.Description),
		StatusCode:  data.Metadata.StatusCode,
		Markdown:    data.Markdown,
	}

	if data.HTML != "" && (page.Title == "" || page.Description == "") {
		title, desc := headMetadata(data.HTML)
		if page.Title == "" {
			page.Title = title
		}
		if page.Description == "" {
			page.Description = desc
		}
	}

	if strings.TrimSpace(page.Markdown) == "" && data.HTML != "" {
		converted, err := m.converter.ConvertString(data.HTML)
		if err != nil {
			zap.L().Debug("ingest: html to markdown failed",
				zap.String("page_url", page.URL), zap.Error(err))
		} else {
			page.Markdown = converted
		}
	}

	if len(data.HTML) < MaxHTMLBytes {
		page.HTML = data.HTML
	}
	return page
}

// headMetadata reads the document title and meta description.
func headMetadata(html string) (title, description string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}
	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		property, _ := s.Attr("property")
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if content == "" {
			return true
		}
		if strings.EqualFold(name, "description") || strings.EqualFold(property, "og:description") {
			description = content
			return false
		}
		return true
	})
	return title, description
}
