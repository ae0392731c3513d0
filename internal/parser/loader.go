package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"health-rag/internal/models"
)

const (
	defaultPageNumber = 1
	maxFetchBytes     = 50 << 20
	fetchTimeout      = 60 * time.Second
)

var slideNumRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// Loader turns the configured source into documents.
type Loader interface {
	Load(ctx context.Context, source string) ([]models.Document, error)
}

// SourceLoader loads local files by extension and fetches http(s) sources.
type SourceLoader struct {
	Client *http.Client
}

func NewSourceLoader() *SourceLoader {
	return &SourceLoader{Client: &http.Client{Timeout: fetchTimeout}}
}

// Load is a convenience wrapper around a default SourceLoader.
func Load(ctx context.Context, source string) ([]models.Document, error) {
	return NewSourceLoader().Load(ctx, source)
}

func (l *SourceLoader) Load(ctx context.Context, source string) ([]models.Document, error) {
	var (
		docs []models.Document
		err  error
	)
	if isURL(source) {
		docs, err = l.fetch(ctx, source)
	} else {
		docs, err = ParseFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", source, err)
	}

	docs = dropEmpty(docs)
	if len(docs) == 0 {
		return nil, fmt.Errorf("no text extracted from %s", source)
	}
	log.Debug().Str("source", source).Int("documents", len(docs)).Msg("Loaded source")
	return docs, nil
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func (l *SourceLoader) fetch(ctx context.Context, url string) ([]models.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, err
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/pdf" || strings.EqualFold(path.Ext(req.URL.Path), ".pdf") {
		return parsePDF(bytes.NewReader(body), int64(len(body)), url)
	}
	return parseHTML(ctx, bytes.NewReader(body), url)
}

// ParseFile loads a local file, choosing the parser by extension.
func ParseFile(filePath string) ([]models.Document, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		f, err := os.Open(filePath)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		stat, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return parsePDF(f, stat.Size(), filePath)
	case ".docx":
		return parseDOCX(filePath)
	case ".pptx":
		return parsePPTX(filePath)
	case ".xlsx":
		return parseXLSX(filePath)
	case ".ods":
		return parseODS(filePath)
	case ".md", ".markdown":
		return parseMarkdown(filePath)
	case ".txt":
		return parseText(filePath)
	case ".html", ".htm":
		f, err := os.Open(filePath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return parseHTML(context.Background(), f, filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func parsePDF(r io.ReaderAt, size int64, source string) ([]models.Document, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, err
	}

	var docs []models.Document
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		docs = append(docs, models.Document{
			Content:    pageText,
			Source:     source,
			PageNumber: i,
		})
	}
	return docs, nil
}

func parseHTML(ctx context.Context, r io.Reader, source string) ([]models.Document, error) {
	loaded, err := documentloaders.NewHTML(r).Load(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]models.Document, 0, len(loaded))
	for i, d := range loaded {
		docs = append(docs, models.Document{
			Content:    d.PageContent,
			Source:     source,
			PageNumber: i + 1,
		})
	}
	return docs, nil
}

func parseDOCX(filePath string) ([]models.Document, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// GetContent returns the raw document.xml; paragraphs close with </w:p>.
	content := r.Editable().GetContent()
	var paragraphs []string
	for _, p := range strings.Split(content, "</w:p>") {
		if t := strings.TrimSpace(extractTextFromXML(p, "w:t")); t != "" {
			paragraphs = append(paragraphs, t)
		}
	}
	return []models.Document{{
		Content:    strings.Join(paragraphs, "\n"),
		Source:     filePath,
		PageNumber: defaultPageNumber,
	}}, nil
}

func parsePPTX(filePath string) ([]models.Document, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []models.Document
	for _, file := range f.File {
		m := slideNumRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		slideNum, _ := strconv.Atoi(m[1])

		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		docs = append(docs, models.Document{
			Content:    extractTextFromXML(string(data), "a:t"),
			Source:     filePath,
			PageNumber: slideNum,
		})
	}
	// zip order is not slide order
	sort.Slice(docs, func(i, j int) bool { return docs[i].PageNumber < docs[j].PageNumber })
	return docs, nil
}

func parseXLSX(filePath string) ([]models.Document, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var docs []models.Document
	for sheetNum, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			text.WriteString(strings.Join(cells, "\t"))
			text.WriteString("\n")
		}
		docs = append(docs, models.Document{
			Content:    text.String(),
			Source:     filePath,
			PageNumber: sheetNum + 1,
		})
	}
	return docs, nil
}

// odsContent maps the parts of an OpenDocument content.xml that hold cell
// text. Element names match on their local part.
type odsContent struct {
	Tables []struct {
		Name string `xml:"name,attr"`
		Rows []struct {
			Cells []struct {
				Paragraphs []string `xml:"p"`
			} `xml:"table-cell"`
		} `xml:"table-row"`
	} `xml:"body>spreadsheet>table"`
}

// parseODS reads an OpenDocument spreadsheet, one document per sheet.
func parseODS(filePath string) ([]models.Document, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rc, err := f.Open("content.xml")
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var content odsContent
	if err := xml.NewDecoder(rc).Decode(&content); err != nil {
		return nil, fmt.Errorf("failed to decode content.xml: %w", err)
	}

	var docs []models.Document
	for sheetNum, table := range content.Tables {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", table.Name))
		for _, row := range table.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, strings.Join(cell.Paragraphs, " "))
			}
			text.WriteString(strings.TrimRight(strings.Join(cells, "\t"), "\t"))
			text.WriteString("\n")
		}
		docs = append(docs, models.Document{
			Content:    text.String(),
			Source:     filePath,
			PageNumber: sheetNum + 1,
		})
	}
	return docs, nil
}

func parseMarkdown(filePath string) ([]models.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []models.Document{{
		Content:    markdownToText(data),
		Source:     filePath,
		PageNumber: defaultPageNumber,
	}}, nil
}

func parseText(filePath string) ([]models.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []models.Document{{
		Content:    string(data),
		Source:     filePath,
		PageNumber: defaultPageNumber,
	}}, nil
}

// markdownToText walks the goldmark AST and keeps the text of every block,
// one block per line, dropping markup.
func markdownToText(source []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(source))

	var out strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument && n.FirstChild() != nil && n.FirstChild().Type() == ast.TypeInline {
				out.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			out.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				out.WriteString(" ")
			}
		case *ast.String:
			out.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				out.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(out.String())
}

// extractTextFromXML concatenates the text of every <tag>...</tag> element.
func extractTextFromXML(xmlContent, tag string) string {
	var text strings.Builder
	open, closing := "<"+tag, "</"+tag+">"
	for _, part := range strings.Split(xmlContent, open)[1:] {
		// skip attributes and reject prefixes of longer tag names such as <w:tab>
		gt := strings.Index(part, ">")
		if gt < 0 || (gt > 0 && part[0] != ' ') {
			continue
		}
		endIdx := strings.Index(part, closing)
		if endIdx > gt {
			text.WriteString(html.UnescapeString(part[gt+1:endIdx]) + " ")
		}
	}
	return strings.TrimSpace(text.String())
}

func dropEmpty(docs []models.Document) []models.Document {
	out := docs[:0]
	for _, d := range docs {
		if strings.TrimSpace(d.Content) != "" {
			out = append(out, d)
		}
	}
	return out
}
