package exchange

// streaming.go provides readers and helpers for receiving uploaded files.
//
//   - progressReader reports fractional upload progress while file content
//     is received, independent of row-processing progress
//   - skipBOM removes the UTF-8 BOM (0xEF 0xBB 0xBF) added by Windows tools
//   - sanitizeUTF8 replaces invalid UTF-8 sequences before parsing

import (
	"bytes"
	"io"
	"unicode/utf8"
)

// progressReader wraps an io.Reader and invokes a callback whenever the
// whole-percent progress value changes. The callback is never invoked with a
// value lower than a previous one.
type progressReader struct {
	reader      io.Reader
	total       int64
	read        int64
	lastPercent int
	onProgress  UploadProgressFunc
}

// NewProgressReader creates a reader that reports 0-100 progress through fn
// as bytes are consumed. If total is unknown (<= 0), fn is only invoked with
// 100 once the reader is exhausted.
func NewProgressReader(r io.Reader, total int64, fn UploadProgressFunc) io.Reader {
	return &progressReader{reader: r, total: total, onProgress: fn}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	p.read += int64(n)

	if p.onProgress != nil {
		percent := 0
		if p.total > 0 {
			percent = int(p.read * 100 / p.total)
			if percent > 100 {
				percent = 100
			}
		}
		if err == io.EOF {
			percent = 100
		}
		if percent > p.lastPercent {
			p.lastPercent = percent
			p.onProgress(percent)
		}
	}

	return n, err
}

// ReadUpload reads at most maxSize bytes from r, reporting progress through
// fn, and returns the content with BOM stripped and UTF-8 sanitized.
// Returns an error mentioning "file too large" when the limit is exceeded.
func ReadUpload(r io.Reader, total, maxSize int64, fn UploadProgressFunc) ([]byte, error) {
	limited := io.LimitReader(r, maxSize+1)
	data, err := io.ReadAll(NewProgressReader(limited, total, fn))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, errFileTooLarge(maxSize)
	}
	return sanitizeUTF8(skipBOM(data)), nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM removes a leading UTF-8 byte order mark, if present.
func skipBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with the Unicode
// replacement character. Valid input is returned unmodified.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
