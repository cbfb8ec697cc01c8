package gps

import (
	"bytes"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

const defaultMaxLineBytes = 4096

// Framer splits a raw byte stream into candidate sentence lines with the
// checksum suffix removed. It never fails: damaged input comes out as a line
// the parser rejects, or is dropped and counted.
//
// A Framer is not safe for concurrent use.
type Framer struct {
	// MaxLineBytes bounds a single frame, including an unterminated tail kept
	// between chunks. Zero means 4096.
	MaxLineBytes int

	// VerifyChecksum drops lines whose *HH suffix does not match the payload.
	// Lines without a checksum are always forwarded.
	VerifyChecksum bool

	partial []byte
	dropped uint64
}

func NewFramer(maxLineBytes int, verifyChecksum bool) *Framer {
	return &Framer{MaxLineBytes: maxLineBytes, VerifyChecksum: verifyChecksum}
}

// Push consumes the next chunk and returns the lines it completed. An
// unterminated tail is held back and completed by a later chunk.
func (f *Framer) Push(chunk []byte) []string {
	data := chunk
	if len(f.partial) > 0 {
		data = append(f.partial, chunk...)
		f.partial = nil
	}

	var out []string
	for {
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			break
		}
		if line, ok := f.frame(data[:i]); ok {
			out = append(out, line)
		}
		data = data[i+1:]
	}

	if len(data) > 0 {
		if len(data) > f.maxLineBytes() {
			f.dropped++
		} else {
			f.partial = append([]byte(nil), data...)
		}
	}
	return out
}

// Flush returns the held-back tail as a final line, for end of stream.
func (f *Framer) Flush() []string {
	if len(f.partial) == 0 {
		return nil
	}
	data := f.partial
	f.partial = nil
	if line, ok := f.frame(data); ok {
		return []string{line}
	}
	return nil
}

// Dropped is the number of frames discarded for size or checksum.
func (f *Framer) Dropped() uint64 {
	return f.dropped
}

// Split is a bufio.SplitFunc applying this framer's checksum policy.
func (f *Framer) Split(data []byte, atEOF bool) (int, []byte, error) {
	return scanSentences(f, data, atEOF)
}

// ScanSentences is a bufio.SplitFunc yielding framed lines from an io.Reader.
// Blank lines are skipped; checksums are stripped but not verified.
func ScanSentences(data []byte, atEOF bool) (int, []byte, error) {
	return scanSentences(nil, data, atEOF)
}

func scanSentences(f *Framer, data []byte, atEOF bool) (int, []byte, error) {
	// Same terminators as Push: CR, LF or both.
	var (
		advance int
		token   []byte
	)
	switch i := bytes.IndexAny(data, "\r\n"); {
	case i >= 0:
		advance, token = i+1, data[:i]
	case atEOF && len(data) > 0:
		advance, token = len(data), data
	default:
		return 0, nil, nil
	}
	var (
		line string
		ok   bool
	)
	if f != nil {
		line, ok = f.frame(token)
	} else {
		line, _, _ = stripChecksum(string(token))
		ok = line != ""
	}
	if !ok {
		return advance, nil, nil
	}
	return advance, []byte(line), nil
}

func (f *Framer) maxLineBytes() int {
	if f.MaxLineBytes <= 0 {
		return defaultMaxLineBytes
	}
	return f.MaxLineBytes
}

func (f *Framer) frame(raw []byte) (string, bool) {
	if len(raw) > f.maxLineBytes() {
		f.dropped++
		return "", false
	}
	line, ck, hasCk := stripChecksum(string(raw))
	if line == "" {
		return "", false
	}
	if f.VerifyChecksum && hasCk && !checksumOK(line, ck) {
		f.dropped++
		return "", false
	}
	return line, true
}

// stripChecksum removes the checksum separator and everything after it. When a
// sentence start appears past the beginning (a lost line break glued two
// frames), the text before the last start marker is discarded.
func stripChecksum(s string) (line string, checksum string, hasChecksum bool) {
	s = strings.TrimSpace(s)
	if star := strings.Index(s, nmea.ChecksumSep); star >= 0 {
		checksum = strings.TrimSpace(s[star+1:])
		s = s[:star]
		hasChecksum = true
	}
	if i := strings.LastIndex(s, nmea.SentenceStart); i > 0 {
		s = s[i:]
	}
	return strings.TrimSpace(s), checksum, hasChecksum
}

func checksumOK(line string, checksum string) bool {
	if len(checksum) < 2 {
		return false
	}
	payload := strings.TrimPrefix(line, nmea.SentenceStart)
	payload = strings.TrimPrefix(payload, nmea.SentenceStartEncapsulated)
	return strings.EqualFold(nmea.Checksum(payload), checksum[:2])
}
