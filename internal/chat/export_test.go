package chat

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const androidExport = "\ufeff12/03/2024, 09:15 - Messages and calls are end-to-end encrypted.\n" +
	"12/03/2024, 09:16 - Alice: Morning!\n" +
	"12/03/2024, 09:17 - Bob: Hey, are we still on\n" +
	"for lunch?\n" +
	"13/03/2024, 18:02 - Alice: Dinner at 8: see you there\n"

func TestParseExport_Android(t *testing.T) {
	msgs, err := ParseExport(strings.NewReader(androidExport))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	want := Message{Date: "12/03/2024", Time: "09:16", Author: "Alice", Text: "Morning!"}
	if msgs[0] != want {
		t.Errorf("msgs[0] = %+v, want %+v", msgs[0], want)
	}
	if msgs[1].Text != "Hey, are we still on\nfor lunch?" {
		t.Errorf("continuation not appended: %q", msgs[1].Text)
	}
	if msgs[2].Text != "Dinner at 8: see you there" {
		t.Errorf("msgs[2].Text = %q", msgs[2].Text)
	}
}

func TestParseExport_IOS(t *testing.T) {
	input := "[12/03/2024, 09:16:05] Alice: Morning!\r\n" +
		"\u200e[12/03/2024, 09:16:40] Bob: \u200eimage omitted\r\n"

	msgs, err := ParseExport(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Time != "09:16:05" {
		t.Errorf("Time = %q, want 09:16:05", msgs[0].Time)
	}
	if msgs[1].Author != "Bob" || msgs[1].Text != "image omitted" {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
}

func TestParseExport_Empty(t *testing.T) {
	msgs, err := ParseExport(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}

func TestGroupByDay(t *testing.T) {
	msgs, err := ParseExport(strings.NewReader(androidExport))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks := GroupByDay(msgs)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Date != "12/03/2024" || len(chunks[0].Messages) != 2 {
		t.Errorf("chunks[0] = %s with %d messages", chunks[0].Date, len(chunks[0].Messages))
	}
	if chunks[1].Date != "13/03/2024" || len(chunks[1].Messages) != 1 {
		t.Errorf("chunks[1] = %s with %d messages", chunks[1].Date, len(chunks[1].Messages))
	}
}

func TestReadExportFile_Zip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "WhatsApp Chat with Alice.zip")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	if _, err := zw.Create("media/"); err != nil {
		t.Fatalf("zip dir: %v", err)
	}
	w, err := zw.Create("WhatsApp Chat with Alice.txt")
	if err != nil {
		t.Fatalf("zip entry: %v", err)
	}
	if _, err := w.Write([]byte(androidExport)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	f.Close()

	msgs, err := ReadExportFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("expected 3 messages, got %d", len(msgs))
	}
	if got := ImportName(path); got != "WhatsApp Chat with Alice" {
		t.Errorf("ImportName() = %q", got)
	}
}

func TestReadExportFile_ZipWithoutText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.zip")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	f.Close()

	if _, err := ReadExportFile(path); err == nil {
		t.Error("expected error for archive without .txt entry")
	}
}

func TestReadExportFile_Text(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.txt")
	if err := os.WriteFile(path, []byte(androidExport), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	msgs, err := ReadExportFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("expected 3 messages, got %d", len(msgs))
	}
}

func TestReadExportFile_SizeLimit(t *testing.T) {
	old := maxExportBytes
	maxExportBytes = 64
	t.Cleanup(func() { maxExportBytes = old })

	dir := t.TempDir()
	big := strings.Repeat("12/03/2024, 09:16 - Alice: hello\n", 20)

	zipPath := filepath.Join(dir, "big.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("chat.txt")
	if err != nil {
		t.Fatalf("zip entry: %v", err)
	}
	if _, err := w.Write([]byte(big)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	f.Close()

	if _, err := ReadExportFile(zipPath); err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("zip: expected size error, got %v", err)
	}

	txtPath := filepath.Join(dir, "big.txt")
	if err := os.WriteFile(txtPath, []byte(big), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadExportFile(txtPath); err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("txt: expected size error, got %v", err)
	}
}
