package sheet

import (
	"bytes"
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultChunkSize is the number of bytes read per chunk. Chunked reading
// bounds peak memory regardless of file size.
const DefaultChunkSize = 2 << 20 // 2 MiB

// StreamOptions configures the chunked row streamer.
type StreamOptions struct {
	ChunkSize int    // bytes per chunk; default DefaultChunkSize
	Charset   string // IANA charset name; "" means UTF-8 passthrough
	// OnRow receives each decoded row. Returning an error aborts the
	// stream. Required.
	OnRow func(row []string) error
	// OnProgress, if set, receives bytesConsumed/totalBytes after each
	// chunk.
	OnProgress func(done float64)
}

// countingReader tracks raw bytes consumed from the underlying source so
// progress reflects input bytes even when a charset decoder expands them.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// rowParser is the carry-over state maintained across chunk boundaries: the
// in-progress field and row buffers, the quote-open flag, and the pending
// CR/quote lookahead flags.
type rowParser struct {
	field        strings.Builder
	row          []string
	inQuotes     bool
	quotePending bool // saw a quote inside quoted mode; next byte decides
	skipLF       bool // saw a CR; a following LF is part of the same terminator
	onRow        func([]string) error
}

func (p *rowParser) endField() {
	p.row = append(p.row, p.field.String())
	p.field.Reset()
}

func (p *rowParser) endRow() error {
	p.endField()
	row := p.row
	p.row = nil
	// Suppress empty rows (a single empty field), e.g. trailing newlines.
	if len(row) == 1 && row[0] == "" {
		return nil
	}
	return p.onRow(row)
}

// consume processes one chunk of decoded text. Delimiters and quotes are
// ASCII, so byte-wise scanning keeps multi-byte runes intact even when they
// straddle a chunk boundary.
func (p *rowParser) consume(data []byte) error {
	for i := 0; i < len(data); i++ {
		b := data[i]

		if p.skipLF {
			p.skipLF = false
			if b == '\n' {
				continue
			}
		}

		if p.quotePending {
			p.quotePending = false
			if b == '"' {
				// Escaped quote: literal quote inside a quoted field.
				p.field.WriteByte('"')
				continue
			}
			// Closing quote; reprocess this byte unquoted.
			p.inQuotes = false
		}

		if p.inQuotes {
			if b == '"' {
				p.quotePending = true
			} else {
				p.field.WriteByte(b)
			}
			continue
		}

		switch b {
		case '"':
			p.inQuotes = true
		case ',':
			p.endField()
		case '\r':
			p.skipLF = true
			if err := p.endRow(); err != nil {
				return err
			}
		case '\n':
			if err := p.endRow(); err != nil {
				return err
			}
		default:
			p.field.WriteByte(b)
		}
	}
	return nil
}

// flush emits any pending field or row at end of input.
func (p *rowParser) flush() error {
	if p.field.Len() == 0 && len(p.row) == 0 {
		return nil
	}
	return p.endRow()
}

// StreamRows incrementally decodes delimited text from r in fixed-size
// chunks, invoking opts.OnRow once per decoded row. Quoted fields, embedded
// delimiters and newlines, escaped quotes, and CRLF/LF terminators are
// handled; a CRLF pair is one terminator. The decoded row sequence is
// identical for any chunk size. Cancellation is cooperative: the context is
// checked once per chunk and once per row, and on cancellation the
// in-progress buffers are simply dropped.
//
// totalBytes is used only for progress reporting; pass 0 when unknown.
func StreamRows(ctx context.Context, r io.Reader, totalBytes int64, opts StreamOptions) error {
	if opts.OnRow == nil {
		return eris.New("stream: OnRow callback is required")
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	counter := &countingReader{r: r}
	src := io.Reader(counter)
	if opts.Charset != "" {
		enc, err := htmlindex.Get(opts.Charset)
		if err != nil {
			return eris.Wrapf(err, "stream: unknown charset %q", opts.Charset)
		}
		src = enc.NewDecoder().Reader(counter)
	}

	parser := &rowParser{onRow: func(row []string) error {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "stream: cancelled")
		}
		return opts.OnRow(row)
	}}

	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "stream: cancelled")
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if err := parser.consume(buf[:n]); err != nil {
				return err
			}
			if opts.OnProgress != nil && totalBytes > 0 {
				done := float64(counter.n) / float64(totalBytes)
				if done > 1 {
					done = 1
				}
				opts.OnProgress(done)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return eris.Wrap(readErr, "stream: read chunk")
		}
	}

	return parser.flush()
}

// StreamBytes streams rows from an in-memory file.
func StreamBytes(ctx context.Context, data []byte, opts StreamOptions) error {
	return StreamRows(ctx, bytes.NewReader(data), int64(len(data)), opts)
}

// DetectCharset sniffs a sample of the file for invalid UTF-8; provider
// exports that fail the check are overwhelmingly Windows-1252.
func DetectCharset(sample []byte) string {
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	// Allow for a partial rune truncated at the sample boundary.
	for i := 0; i < utf8.UTFMax; i++ {
		if utf8.Valid(sample) {
			return ""
		}
		if len(sample) == 0 {
			break
		}
		sample = sample[:len(sample)-1]
	}
	return "windows-1252"
}
