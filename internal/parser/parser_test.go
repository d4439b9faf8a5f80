package parser

import (
	"archive/zip"
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoaderForUnsupported(t *testing.T) {
	for _, name := range []string{"legacy.xls", "photo.png", "Makefile", "archive.tar.gz"} {
		_, err := LoaderFor(name)
		assert.ErrorIs(t, err, ErrUnsupportedFileType, name)
		assert.False(t, Supported(name), name)
		assert.Contains(t, err.Error(), ".pdf", name)
	}
}

func TestLoaderForIsCaseInsensitive(t *testing.T) {
	for _, name := range []string{"NOTES.TXT", "Report.Pdf", "sheet.XLSX", "readme.md", "data.csv", "memo.docx", "deck.pptx"} {
		_, err := LoaderFor(name)
		assert.NoError(t, err, name)
	}
	assert.Contains(t, SupportedExtensions(), ".md")
}

func TestLoadUnsupportedDoesNotTouchFile(t *testing.T) {
	_, err := Load(context.Background(), "/does/not/exist.xls", "exist.xls")
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestLoadTextAndChunk(t *testing.T) {
	var b strings.Builder
	for i := 0; b.Len() < 3000; i++ {
		fmt.Fprintf(&b, "sentence number %d talks about topic %d. ", i, i%7)
		if i%10 == 9 {
			b.WriteString("\n\n")
		}
	}
	body := b.String()[:3000]
	path := writeFile(t, "notes.txt", body)

	docs, err := Load(context.Background(), path, "notes.txt")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	chunker, err := NewChunker(1000, 200, []string{"\n\n", "\n", " ", ""})
	require.NoError(t, err)
	chunks, err := chunker.SplitDocuments(docs, Provenance{OwnerID: 7, FileName: "notes.txt", SourcePath: path})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 1)

	for i, c := range chunks {
		assert.Equal(t, i, c.Metadata.Sequence)
		assert.Equal(t, "notes.txt", c.Metadata.SourceFileName)
		assert.Equal(t, int64(7), c.Metadata.OwnerID)
		assert.Equal(t, path, c.Metadata.SourcePath)
		assert.False(t, c.Metadata.CreatedAt.IsZero())
	}
	assert.Equal(t, 0, chunks[0].Metadata.Sequence)
}

func wordText(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "w%04d", i)
		switch {
		case i%40 == 39:
			b.WriteString("\n\n")
		case i%9 == 8:
			b.WriteString("\n")
		default:
			b.WriteString(" ")
		}
	}
	return b.String()
}

func TestChunkSizeBound(t *testing.T) {
	text := wordText(2000)
	tests := []struct{ size, overlap int }{
		{size: 50, overlap: 0},
		{size: 100, overlap: 20},
		{size: 250, overlap: 50},
		{size: 1000, overlap: 200},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d", tt.size, tt.overlap), func(t *testing.T) {
			chunker, err := NewChunker(tt.size, tt.overlap, []string{"\n\n", "\n", " ", ""})
			require.NoError(t, err)
			segments, err := chunker.Split(text)
			require.NoError(t, err)
			require.NotEmpty(t, segments)
			for _, seg := range segments {
				assert.LessOrEqual(t, len([]rune(seg.Text)), tt.size)
			}
		})
	}
}

func TestChunkReconstruction(t *testing.T) {
	text := wordText(1500)
	chunker, err := NewChunker(200, 40, []string{"\n\n", "\n", " ", ""})
	require.NoError(t, err)
	segments, err := chunker.Split(text)
	require.NoError(t, err)

	covered := make([]bool, len(text))
	last := -1
	for _, seg := range segments {
		require.GreaterOrEqual(t, seg.Offset, 0, "segment %q not located", seg.Text)
		require.GreaterOrEqual(t, seg.Offset, last)
		require.Equal(t, seg.Text, text[seg.Offset:seg.Offset+len(seg.Text)])
		for i := seg.Offset; i < seg.Offset+len(seg.Text); i++ {
			covered[i] = true
		}
		last = seg.Offset
	}
	for i, ch := range text {
		if !covered[i] {
			assert.Contains(t, " \n\t", string(ch), "byte %d not covered", i)
		}
	}
}

func randomText(r *rand.Rand, n int) string {
	tokens := []string{"ab", "a", "wordé", "ünïcode", "x", " ", "  ", "\n", "\n\n", " \n ", "lorem", "日本語"}
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(tokens[r.Intn(len(tokens))])
	}
	return b.String()
}

func TestChunkBoundsAndOffsetsOnMixedText(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	texts := []string{"ab\n\na\n wordé"}
	for i := 0; i < 40; i++ {
		texts = append(texts, randomText(r, 20+r.Intn(400)))
	}
	configs := []struct{ size, overlap int }{
		{size: 10, overlap: 0},
		{size: 10, overlap: 3},
		{size: 7, overlap: 6},
		{size: 25, overlap: 5},
		{size: 60, overlap: 20},
	}
	for _, cfg := range configs {
		chunker, err := NewChunker(cfg.size, cfg.overlap, []string{"\n\n", "\n", " ", ""})
		require.NoError(t, err)
		for _, text := range texts {
			segments, err := chunker.Split(text)
			require.NoError(t, err)
			require.NotEmpty(t, segments)
			last := 0
			for _, seg := range segments {
				require.NotEmpty(t, seg.Text)
				assert.LessOrEqual(t, utf8.RuneCountInString(seg.Text), cfg.size, "size %d text %q", cfg.size, seg.Text)
				require.GreaterOrEqual(t, seg.Offset, last, "segment %q out of order", seg.Text)
				require.LessOrEqual(t, seg.Offset+len(seg.Text), len(text))
				assert.Equal(t, seg.Text, text[seg.Offset:seg.Offset+len(seg.Text)])
				assert.Equal(t, strings.TrimSpace(seg.Text), seg.Text)
				last = seg.Offset
			}
		}
	}
}

func TestChunkSmallSizeMultibyte(t *testing.T) {
	text := "ab\n\na\n wordé"
	chunker, err := NewChunker(10, 0, []string{"\n\n", "\n", " ", ""})
	require.NoError(t, err)
	segments, err := chunker.Split(text)
	require.NoError(t, err)

	var got []string
	for _, seg := range segments {
		got = append(got, seg.Text)
		assert.Equal(t, seg.Text, text[seg.Offset:seg.Offset+len(seg.Text)])
	}
	assert.Equal(t, []string{"ab", "a\n wordé"}, got)
}

func TestChunkUnsplittableWordExceedsSize(t *testing.T) {
	long := strings.Repeat("x", 300)
	chunker, err := NewChunker(100, 10, []string{"\n\n", "\n", " "})
	require.NoError(t, err)

	segments, err := chunker.Split(long)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, long, segments[0].Text)
}

func TestNewChunkerRejectsBadOverlap(t *testing.T) {
	_, err := NewChunker(100, 100, []string{" "})
	assert.Error(t, err)
	_, err = NewChunker(0, 0, []string{" "})
	assert.Error(t, err)
	_, err = NewChunker(100, 10, nil)
	assert.Error(t, err)
}

func TestSplitDocumentsAcrossRecords(t *testing.T) {
	chunker, err := NewChunker(40, 0, []string{"\n\n", "\n", " ", ""})
	require.NoError(t, err)
	docs := []schema.Document{
		{PageContent: "first page has some words to split apart nicely", Metadata: map[string]any{MetadataPage: 1}},
		{PageContent: "   ", Metadata: map[string]any{MetadataPage: 2}},
		{PageContent: "third page is short", Metadata: map[string]any{MetadataPage: 3}},
	}
	chunks, err := chunker.SplitDocuments(docs, Provenance{OwnerID: 1, FileName: "book.pdf"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 3)

	for i, c := range chunks {
		assert.Equal(t, i, c.Metadata.Sequence)
	}
	lastChunk := chunks[len(chunks)-1]
	assert.Equal(t, "third page is short", lastChunk.Text)
	assert.Equal(t, 3, lastChunk.Metadata.Page)
	assert.Equal(t, 1, chunks[0].Metadata.Page)
}

func TestSplitDocumentsEmpty(t *testing.T) {
	chunker, err := NewChunker(100, 10, []string{" "})
	require.NoError(t, err)
	_, err = chunker.SplitDocuments([]schema.Document{{PageContent: " \n\t "}}, Provenance{FileName: "blank.txt"})
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestLoadMarkdown(t *testing.T) {
	path := writeFile(t, "readme.md", "# Title\n\nSome **bold** text.\n\n- item one\n- item two\n\n```go\nfmt.Println(1)\n```\n")

	docs, err := Load(context.Background(), path, "readme.md")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	body := docs[0].PageContent
	assert.Contains(t, body, "Title")
	assert.Contains(t, body, "Some bold text.")
	assert.Contains(t, body, "item one")
	assert.Contains(t, body, "item two")
	assert.Contains(t, body, "fmt.Println(1)")
	assert.NotContains(t, body, "**")
	assert.NotContains(t, body, "# ")
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "people.csv", "name,age\nalice,30\nbob,40\n")

	docs, err := Load(context.Background(), path, "people.csv")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0].PageContent, "name: alice")
	assert.Contains(t, docs[1].PageContent, "age: 40")
	assert.Equal(t, 2, pageOf(docs[1]))
}

func TestExtractXMLText(t *testing.T) {
	xml := `<w:document xmlns:w="urn:w"><w:body>` +
		`<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second</w:t><w:tab/><w:t>para</w:t></w:r></w:p>` +
		`</w:body></w:document>`

	got, err := extractXMLText(strings.NewReader(xml))
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n\nSecond\tpara", got)
}

func TestLoadPPTXOrdersSlides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.pptx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	slides := map[string]string{
		"ppt/slides/slide10.xml": "ten",
		"ppt/slides/slide2.xml":  "two",
		"ppt/slides/slide1.xml":  "one",
	}
	for _, name := range []string{"ppt/slides/slide10.xml", "ppt/slides/slide2.xml", "ppt/slides/slide1.xml"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = fmt.Fprintf(w, `<p:sld xmlns:a="urn:a" xmlns:p="urn:p"><a:p><a:r><a:t>%s</a:t></a:r></a:p></p:sld>`, slides[name])
		require.NoError(t, err)
	}
	w, err := zw.Create("ppt/slides/_rels/slide1.xml.rels")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<Relationships/>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	docs, err := Load(context.Background(), path, "deck.pptx")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "one", docs[0].PageContent)
	assert.Equal(t, "two", docs[1].PageContent)
	assert.Equal(t, "ten", docs[2].PageContent)
	assert.Equal(t, 10, pageOf(docs[2]))
}

func TestSheetDocument(t *testing.T) {
	doc := sheetDocument("Budget", 2, [][]string{{"item", "cost", ""}, {"", ""}, {"rent", "100"}})
	assert.Equal(t, "## Sheet: Budget\nitem\tcost\nrent\t100\n", doc.PageContent)
	assert.Equal(t, 2, pageOf(doc))

	empty := sheetDocument("Empty", 1, [][]string{{"", ""}})
	assert.Empty(t, empty.PageContent)
}

func TestLoadODS(t *testing.T) {
	content := `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"
 xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0"
 xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0">
<office:body><office:spreadsheet>
<table:table table:name="Budget">
 <table:table-row>
  <table:table-cell><text:p>item</text:p></table:table-cell>
  <table:table-cell><text:p>cost</text:p></table:table-cell>
  <table:table-cell table:number-columns-repeated="16380"/>
 </table:table-row>
 <table:table-row>
  <table:table-cell><office:annotation><text:p>ignore me</text:p></office:annotation><text:p>rent</text:p></table:table-cell>
  <table:table-cell table:number-columns-repeated="2"><text:p>100</text:p></table:table-cell>
 </table:table-row>
 <table:table-row table:number-rows-repeated="1048570"><table:table-cell table:number-columns-repeated="16384"/></table:table-row>
</table:table>
<table:table table:name="Empty"><table:table-row><table:table-cell/></table:table-row></table:table>
<table:table table:name="Notes">
 <table:table-row><table:table-cell><text:p>first line</text:p><text:p>second<text:s/>line</text:p></table:table-cell></table:table-row>
</table:table>
</office:spreadsheet></office:body></office:document-content>`

	path := filepath.Join(t.TempDir(), "budget.ods")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("mimetype")
	require.NoError(t, err)
	_, err = w.Write([]byte("application/vnd.oasis.opendocument.spreadsheet"))
	require.NoError(t, err)
	w, err = zw.Create("content.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	assert.True(t, Supported("budget.ODS"))
	docs, err := Load(context.Background(), path, "budget.ods")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "## Sheet: Budget\nitem\tcost\nrent\t100\t100\n", docs[0].PageContent)
	assert.Equal(t, 1, pageOf(docs[0]))
	assert.Equal(t, "## Sheet: Notes\nfirst line second line\n", docs[1].PageContent)
	assert.Equal(t, 3, pageOf(docs[1]))
}
