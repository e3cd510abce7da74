package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/xuri/excelize/v2"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func docxBytes(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range parts {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractBytes_plain(t *testing.T) {
	e := NewExtractor()
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"ascii", []byte("  Hello, world.\n"), "Hello, world."},
		{"utf8", []byte("日本語テキスト"), "日本語テキスト"},
		{"bom", append([]byte{0xEF, 0xBB, 0xBF}, []byte("bom text")...), "bom text"},
		{"invalid utf8", []byte{'a', 0xff, 'b'}, "a�b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ExtractBytes(tt.in, ".txt")
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractBytes_excel(t *testing.T) {
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A3", "Value 1")
	f.SetCellValue("Sheet1", "B3", "Value 2")
	f.NewSheet("Other")
	f.SetCellValue("Other", "A1", "Second sheet")
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".XLSX")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if want := "Title\nValue 1\tValue 2\n\nSecond sheet"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractBytes_excelSkipsEmptySheets(t *testing.T) {
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "First")
	f.NewSheet("Blank")
	f.NewSheet("Last")
	f.SetCellValue("Last", "A2", "Third")
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if want := "First\n\nThird"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtract_excelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Searchable text")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	got, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "Searchable text" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_plainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	if err := os.WriteFile(path, []byte("# Notes\n\nFile content"), 0600); err != nil {
		t.Fatal(err)
	}
	got, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "# Notes\n\nFile content" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_errors(t *testing.T) {
	e := NewExtractor()
	if _, err := e.Extract("/nonexistent/path/file.txt"); err == nil {
		t.Error("expected error for nonexistent file")
	}
	if _, err := e.ExtractBytes([]byte("x"), ".pptx"); !models.IsKind(err, models.ErrInvalidInput) {
		t.Errorf("unsupported format error = %v", err)
	}
	if _, err := e.ExtractBytes([]byte("not a zip"), ".docx"); !models.IsKind(err, models.ErrInvalidInput) {
		t.Errorf("corrupt docx error = %v", err)
	}
	if _, err := e.ExtractBytes([]byte("not a pdf"), ".pdf"); err == nil {
		t.Error("expected error for corrupt pdf")
	}

	path := filepath.Join(t.TempDir(), "big.txt")
	if err := os.WriteFile(path, []byte("0123456789"), 0600); err != nil {
		t.Fatal(err)
	}
	e.maxFileSize = 5
	if _, err := e.Extract(path); !models.IsKind(err, models.ErrInvalidInput) {
		t.Errorf("oversized file error = %v", err)
	}
}

func TestSupports(t *testing.T) {
	e := NewExtractor()
	for _, ext := range []string{".txt", ".MD", ".rst", ".pdf", ".docx", ".xlsx"} {
		if !e.Supports(ext) {
			t.Errorf("Supports(%q) = false", ext)
		}
	}
	if e.Supports(".odp") {
		t.Error("Supports(.odp) = true")
	}
	if got := e.Extensions(); len(got) != 6 || got[0] != ".docx" {
		t.Errorf("Extensions = %v", got)
	}
}

func TestExtractBytes_docxParagraphs(t *testing.T) {
	doc := `<w:document ` + wordNS + `><w:body>` +
		`<w:p w:rsidR="00AB"><w:r><w:t>First</w:t></w:r><w:r><w:t xml:space="preserve"> paragraph</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>A</w:t><w:tab/><w:t>B</w:t></w:r></w:p>` +
		`<w:p></w:p>` +
		`</w:body></w:document>`
	content := docxBytes(t, map[string]string{"word/document.xml": doc})

	got, err := NewExtractor().ExtractBytes(content, ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if want := "First paragraph\nA\tB"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractBytes_docxContentTypes(t *testing.T) {
	for _, override := range []string{
		`<Override PartName="/word/document2.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>`,
		`<Override ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml" PartName="/word/document2.xml"/>`,
	} {
		content := docxBytes(t, map[string]string{
			"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?>` +
				`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` + override + `</Types>`,
			"word/document2.xml": `<w:document ` + wordNS + `><w:body><w:p><w:r><w:t>Content from document2</w:t></w:r></w:p></w:body></w:document>`,
		})
		got, err := NewExtractor().ExtractBytes(content, ".docx")
		if err != nil {
			t.Fatalf("ExtractBytes: %v", err)
		}
		if got != "Content from document2" {
			t.Errorf("got %q", got)
		}
	}
}

func TestExtractBytes_docxMissingMainPart(t *testing.T) {
	content := docxBytes(t, map[string]string{"word/styles.xml": "<styles/>"})
	if _, err := NewExtractor().ExtractBytes(content, ".docx"); err == nil {
		t.Error("expected error when main document part is missing")
	}
}
