// Package recordstream implements the RecordStreamParser: a streaming
// decoder that turns a chunked byte source of NUL-delimited,
// newline-fielded commit records into typed commit records without
// ever buffering the whole chain in memory. The bundled store adapters'
// LogNodesStream returns LogNodes' newline-joined "sha message"
// listing, not records in this format. Serves the
// same commit-walking concern as pkg/chain and pkg/wormhole, but at
// the byte level with cancellation support, rather than go-git's
// already-decoded object model.
package recordstream

import (
	"bytes"
	"context"
	"io"
	"regexp"

	"github.com/cuemby/warp/pkg/warperr"
)

// recordDelimiter separates records in the chunked source; it is the
// one byte the external producer guarantees never appears in commit
// metadata.
const recordDelimiter = 0x00

const minRecordFields = 4

var shaPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Record is one decoded commit record.
type Record struct {
	SHA     string
	Author  string
	Date    string
	Parents []string
	Message string
}

// readChunkSize is how much the parser asks the underlying source for
// on each refill; it bounds neither a record's size nor the stream's,
// it only governs how eagerly bytes are pulled in.
const readChunkSize = 64 * 1024

// Parser decodes records from src on demand: each call to Next reads
// only as much of src as is needed to assemble the next record, so a
// consumer that stops pulling stops the underlying reads too.
type Parser struct {
	src  io.Reader
	buf  []byte
	tmp  []byte
	done bool
}

// New constructs a Parser over src. src is read in readChunkSize
// chunks as records are demanded; it is never read ahead of what Next
// needs.
func New(src io.Reader) *Parser {
	return &Parser{src: src, tmp: make([]byte, readChunkSize)}
}

func aborted() error {
	return warperr.New(warperr.KindCancelled, warperr.CodeOperationAborted,
		"record stream parsing was cancelled", nil)
}

// Next returns the next valid record, or ok=false once the source is
// exhausted. Malformed records (fewer than 4 lines, empty SHA, empty
// message body) are silently skipped — they never surface as errors.
// Next checks ctx at each chunk read and at
// each record boundary, failing with OPERATION_ABORTED if ctx is done.
func (p *Parser) Next(ctx context.Context) (Record, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Record{}, false, aborted()
		}

		if idx := bytes.IndexByte(p.buf, recordDelimiter); idx >= 0 {
			raw := p.buf[:idx]
			p.buf = p.buf[idx+1:]

			if err := ctx.Err(); err != nil {
				return Record{}, false, aborted()
			}

			rec, ok := decodeRecord(raw)
			if !ok {
				continue
			}
			return rec, true, nil
		}

		if p.done {
			if len(p.buf) == 0 {
				return Record{}, false, nil
			}
			raw := p.buf
			p.buf = nil
			rec, ok := decodeRecord(raw)
			if !ok {
				return Record{}, false, nil
			}
			return rec, true, nil
		}

		n, err := p.src.Read(p.tmp)
		if n > 0 {
			p.buf = append(p.buf, p.tmp[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				p.done = true
				continue
			}
			return Record{}, false, err
		}
	}
}

// decodeRecord parses one NUL-delimited record's bytes into a Record.
// UTF-8 decoding happens here, on the complete record, never during
// the byte-level scan that finds record boundaries.
func decodeRecord(raw []byte) (Record, bool) {
	lines := bytes.Split(raw, []byte("\n"))
	if len(lines) < minRecordFields {
		return Record{}, false
	}

	sha := string(lines[0])
	if sha == "" || !shaPattern.MatchString(sha) {
		return Record{}, false
	}

	author := string(lines[1])
	date := string(lines[2])
	parents := splitParents(lines[3])

	message := string(bytes.Join(lines[4:], []byte("\n")))
	if message == "" {
		return Record{}, false
	}

	return Record{SHA: sha, Author: author, Date: date, Parents: parents, Message: message}, true
}

func splitParents(field []byte) []string {
	fields := bytes.Fields(field)
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}
