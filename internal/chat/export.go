package chat

import (
	"archive/zip"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// dd/mm/yyyy, hh:mm - Author: text
	androidLine = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}),?\s+(\d{1,2}:\d{2}(?::\d{2})?(?:\s?[APap][Mm])?)\s+-\s+(.*)$`)

	// [dd/mm/yyyy, hh:mm:ss] Author: text
	iosLine = regexp.MustCompile(`^\[(\d{1,2}/\d{1,2}/\d{2,4}),?\s+(\d{1,2}:\d{2}(?::\d{2})?(?:\s?[APap][Mm])?)\]\s+(.*)$`)
)

// invisible marks the export tool scatters at line starts.
const invisible = "\ufeff\u200e\u200f"

// ParseExport parses a chat text export into messages.
// Lines that do not start a new message continue the previous one.
// System lines with no "Author:" prefix are dropped.
func ParseExport(r io.Reader) ([]Message, error) {
	var msgs []Message
	// startedSystem tracks whether the last header was a dropped system line,
	// so its continuation lines are dropped too.
	startedSystem := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(strings.TrimLeft(scanner.Text(), invisible), "\r")

		date, clock, rest, ok := splitHeader(line)
		if !ok {
			if startedSystem || len(msgs) == 0 {
				continue
			}
			last := &msgs[len(msgs)-1]
			last.Text += "\n" + line
			continue
		}

		author, text, found := strings.Cut(rest, ": ")
		if !found {
			startedSystem = true
			continue
		}
		startedSystem = false
		msgs = append(msgs, Message{
			Date:   date,
			Time:   clock,
			Author: strings.TrimLeft(author, invisible),
			Text:   strings.TrimLeft(text, invisible),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return msgs, nil
}

func splitHeader(line string) (date, clock, rest string, ok bool) {
	if m := iosLine.FindStringSubmatch(line); m != nil {
		return m[1], m[2], m[3], true
	}
	if m := androidLine.FindStringSubmatch(line); m != nil {
		return m[1], m[2], m[3], true
	}
	return "", "", "", false
}

// GroupByDay groups messages into day chunks, in order of first appearance.
func GroupByDay(msgs []Message) []DayChunk {
	var chunks []DayChunk
	pos := make(map[string]int)
	for _, m := range msgs {
		i, ok := pos[m.Date]
		if !ok {
			i = len(chunks)
			pos[m.Date] = i
			chunks = append(chunks, DayChunk{Date: m.Date})
		}
		chunks[i].Messages = append(chunks[i].Messages, m)
	}
	return chunks
}

// maxExportBytes caps the uncompressed size of an export.
var maxExportBytes int64 = 64 << 20

// ReadExportFile reads an export from a .txt file or a .zip archive.
// For archives, the first .txt entry is parsed.
func ReadExportFile(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	return ReadExport(f)
}

// ReadExport parses an already opened export file. The file name decides
// whether it is read as a .zip archive.
func ReadExport(f *os.File) ([]Message, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if !strings.EqualFold(filepath.Ext(f.Name()), ".zip") {
		if info.Size() > maxExportBytes {
			return nil, fmt.Errorf("%s exceeds %d bytes", filepath.Base(f.Name()), maxExportBytes)
		}
		return ParseExport(f)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(entry.Name), ".txt") {
			continue
		}
		if entry.UncompressedSize64 > uint64(maxExportBytes) {
			return nil, fmt.Errorf("%s exceeds %d bytes", entry.Name, maxExportBytes)
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", entry.Name, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxExportBytes+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name, err)
		}
		if int64(len(data)) > maxExportBytes {
			return nil, fmt.Errorf("%s exceeds %d bytes", entry.Name, maxExportBytes)
		}
		return ParseExport(bytes.NewReader(data))
	}
	return nil, fmt.Errorf("no .txt entry in %s", filepath.Base(f.Name()))
}

// ImportName derives a conversation name from an export file name,
// e.g. "WhatsApp Chat with Alice.zip" -> "WhatsApp Chat with Alice".
func ImportName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
}
