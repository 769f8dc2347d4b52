package ingestion

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/storage/models"
	"github.com/bank-assistant/backend/pkg/logger"
)

var (
	manifestColumns = []string{"chunk_id", "chunk_name", "chunk_url", "chunk_number", "chunk_content"}
	whitespace      = regexp.MustCompile(`\s+`)
	htmlTag         = regexp.MustCompile(`<[a-zA-Z/][^>]*>`)
)

// ReadManifestFile reads the first sheet of an xlsx chunk manifest.
func ReadManifestFile(path, language string) ([]models.DocumentChunk, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}
	defer f.Close()
	return readManifest(f, language)
}

func ReadManifest(r io.Reader, language string) ([]models.DocumentChunk, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	return readManifest(f, language)
}

func readManifest(f *excelize.File, language string) ([]models.DocumentChunk, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("manifest for %q has no sheets", language)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("manifest for %q is empty", language)
	}

	h := make(header, len(rows[0]))
	for i, col := range rows[0] {
		h[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if err := h.require("manifest "+language, manifestColumns...); err != nil {
		return nil, err
	}

	chunks := make([]models.DocumentChunk, 0, len(rows)-1)
	skipped := 0
	for _, row := range rows[1:] {
		id := h.get(row, "chunk_id")
		content := h.get(row, "chunk_content")
		if id == "" || content == "" {
			skipped++
			continue
		}
		// excelize hands back numeric cells as "12" or "12.0" depending on format
		number, err := ParseID(h.get(row, "chunk_number"))
		if err != nil {
			number = 0
		}
		chunks = append(chunks, models.DocumentChunk{
			ID:       language + "_" + id,
			Language: language,
			Title:    h.get(row, "chunk_name"),
			URL:      h.get(row, "chunk_url"),
			Number:   int(number),
			Content:  CleanContent(content),
		})
	}

	logger.Info("Chunk manifest read",
		zap.String("language", language),
		zap.Int("chunks", len(chunks)),
		zap.Int("skipped", skipped),
	)
	return chunks, nil
}

// CleanContent strips residual markup and collapses whitespace. Plain text
// only has its whitespace collapsed.
func CleanContent(s string) string {
	if htmlTag.MatchString(s) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("script, style, nav, footer, header, aside").Remove()
			s = doc.Text()
		}
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
