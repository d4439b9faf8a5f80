package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func loadText(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return documentloaders.NewText(f).Load(ctx)
}

// loadCSV emits one record per row formatted as "column: value" lines.
func loadCSV(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	docs, err := documentloaders.NewCSV(f).Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = map[string]any{}
		}
		docs[i].Metadata[MetadataPage] = i + 1
	}
	return docs, nil
}

// loadMarkdown drops markdown syntax and keeps the text of each top level
// block, blocks separated by a blank line.
func loadMarkdown(_ context.Context, path string) ([]schema.Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []schema.Document{{PageContent: markdownText(src), Metadata: map[string]any{}}}, nil
}

func markdownText(src []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(text.NewReader(src))

	var blocks []string
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		var b strings.Builder
		writeNodeText(&b, n, src)
		if s := strings.TrimSpace(b.String()); s != "" {
			blocks = append(blocks, s)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func writeNodeText(b *strings.Builder, n ast.Node, src []byte) {
	switch node := n.(type) {
	case *ast.Text:
		b.Write(node.Segment.Value(src))
		if node.SoftLineBreak() || node.HardLineBreak() {
			b.WriteByte('\n')
		}
		return
	case *ast.String:
		b.Write(node.Value)
		return
	case *ast.AutoLink:
		b.Write(node.Label(src))
		return
	case *ast.RawHTML, *ast.HTMLBlock:
		return
	case *ast.CodeBlock, *ast.FencedCodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(src))
		}
		return
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		writeNodeText(b, c, src)
		if c.Type() == ast.TypeBlock && c.NextSibling() != nil {
			b.WriteByte('\n')
		}
	}
}

// loadPDF emits one record per non-empty page.
func loadPDF(_ context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var docs []schema.Document
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		docs = append(docs, schema.Document{
			PageContent: pageText,
			Metadata:    map[string]any{MetadataPage: i},
		})
	}
	return docs, nil
}

func loadDOCX(_ context.Context, path string) ([]schema.Document, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	body, err := extractXMLText(strings.NewReader(r.Editable().GetContent()))
	if err != nil {
		return nil, err
	}
	return []schema.Document{{PageContent: body, Metadata: map[string]any{}}}, nil
}

// loadPPTX emits one record per slide, in slide order.
func loadPPTX(_ context.Context, path string) ([]schema.Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range zr.File {
		m := slideNameRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: num, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	docs := make([]schema.Document, 0, len(slides))
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, err
		}
		body, err := extractXMLText(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.num, err)
		}
		docs = append(docs, schema.Document{
			PageContent: body,
			Metadata:    map[string]any{MetadataPage: s.num},
		})
	}
	return docs, nil
}

// extractXMLText collects the character data of <w:t>/<a:t> runs, ending
// every paragraph element with a blank line.
func extractXMLText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// loadXLSX emits one record per sheet.
func loadXLSX(_ context.Context, path string) ([]schema.Document, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, err
	}

	var docs []schema.Document
	for i, sheet := range f.Sheets {
		rows := make([][]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		docs = append(docs, sheetDocument(sheet.Name, i+1, rows))
	}
	return docs, nil
}

// loadWorkbook handles the macro and template workbook variants through excelize.
func loadWorkbook(_ context.Context, path string) ([]schema.Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []schema.Document
	for i, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
		docs = append(docs, sheetDocument(name, i+1, rows))
	}
	return docs, nil
}

// maxRepeat caps the row and column repeat counts of OpenDocument tables,
// which pad sheets out to their full size with repeated empty cells.
const maxRepeat = 1000

// loadODS reads the tables of an OpenDocument spreadsheet from content.xml.
func loadODS(_ context.Context, path string) ([]schema.Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	rc, err := zr.Open("content.xml")
	if err != nil {
		return nil, fmt.Errorf("failed to open content.xml: %w", err)
	}
	defer rc.Close()

	sheets, err := readODSTables(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read content.xml: %w", err)
	}
	docs := make([]schema.Document, 0, len(sheets))
	for i, sh := range sheets {
		docs = append(docs, sheetDocument(sh.name, i+1, sh.rows))
	}
	return docs, nil
}

type odsSheet struct {
	name string
	rows [][]string
}

func readODSTables(r io.Reader) ([]odsSheet, error) {
	dec := xml.NewDecoder(r)
	var (
		sheets     []odsSheet
		cur        *odsSheet
		row        []string
		rowRepeat  int
		cell       strings.Builder
		cellRepeat int
		inCell     bool
		paragraphs int
		skip       int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if skip > 0 {
				skip++
				continue
			}
			switch t.Name.Local {
			case "table":
				cur = &odsSheet{name: attr(t, "name")}
			case "table-row":
				row, rowRepeat = nil, repeat(attr(t, "number-rows-repeated"))
			case "table-cell", "covered-table-cell":
				cell.Reset()
				inCell, paragraphs = true, 0
				cellRepeat = repeat(attr(t, "number-columns-repeated"))
			case "annotation":
				skip = 1
			case "p":
				if inCell && paragraphs > 0 {
					cell.WriteByte(' ')
				}
				paragraphs++
			case "s", "tab":
				if inCell {
					cell.WriteByte(' ')
				}
			}
		case xml.EndElement:
			if skip > 0 {
				skip--
				continue
			}
			switch t.Name.Local {
			case "table-cell", "covered-table-cell":
				value := strings.TrimSpace(cell.String())
				for i := 0; i < cellRepeat; i++ {
					row = append(row, value)
				}
				inCell = false
			case "table-row":
				if cur == nil || strings.TrimSpace(strings.Join(row, "")) == "" {
					continue
				}
				for i := 0; i < rowRepeat; i++ {
					cur.rows = append(cur.rows, row)
				}
			case "table":
				if cur != nil {
					sheets = append(sheets, *cur)
					cur = nil
				}
			}
		case xml.CharData:
			if inCell && skip == 0 {
				cell.Write(t)
			}
		}
	}
	return sheets, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func repeat(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	return min(n, maxRepeat)
}

func sheetDocument(name string, num int, rows [][]string) schema.Document {
	var b strings.Builder
	for _, row := range rows {
		line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
		if line == "" {
			continue
		}
		if b.Len() == 0 {
			fmt.Fprintf(&b, "## Sheet: %s\n", name)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return schema.Document{
		PageContent: b.String(),
		Metadata:    map[string]any{MetadataPage: num, "sheet": name},
	}
}
