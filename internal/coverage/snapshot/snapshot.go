// Package snapshot encodes aggregate reports for storage and transport.
//
// Layout: one flag byte, a little-endian uint32 holding the msgpack length,
// then the msgpack body, LZ4 block-compressed when that makes it smaller.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"fortio.org/safecast"
	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/yungbote/coverage-backend/internal/coverage/aggregate"
	"github.com/yungbote/coverage-backend/internal/domain/coverage"
)

const (
	version = 1

	flagRaw byte = 0
	flagLZ4 byte = 1

	headerSize = 5
)

var ErrCorrupt = errors.New("snapshot: corrupt payload")

type record struct {
	Version int           `msgpack:"v"`
	Files   []string      `msgpack:"f"`
	Entries []entryRecord `msgpack:"e"`
	Applied []string      `msgpack:"a"`
}

type entryRecord struct {
	File       uint32 `msgpack:"f"`
	FromLine   int    `msgpack:"fl"`
	FromColumn int    `msgpack:"fc"`
	ToLine     int    `msgpack:"tl"`
	ToColumn   int    `msgpack:"tc"`
	Executions int64  `msgpack:"x"`
	Statements int64  `msgpack:"s"`
	Min        int64  `msgpack:"smin"`
	Max        int64  `msgpack:"smax"`
	StampNanos int64  `msgpack:"tn"`
	StampID    string `msgpack:"ti"`
}

// Encode serializes r. File handles are written as paths so the payload does
// not depend on this process's path table.
func Encode(paths *coverage.PathTable, r *aggregate.Report) ([]byte, error) {
	rec := record{Version: version, Applied: r.AppliedKeys()}
	local := map[coverage.FileID]uint32{}
	for _, e := range r.Entries(paths) {
		idx, ok := local[e.Identity.File]
		if !ok {
			n, err := safecast.Conv[uint32](len(rec.Files))
			if err != nil {
				return nil, fmt.Errorf("snapshot: too many files: %w", err)
			}
			idx = n
			local[e.Identity.File] = idx
			rec.Files = append(rec.Files, paths.MustLookup(e.Identity.File))
		}
		rec.Entries = append(rec.Entries, entryRecord{
			File:       idx,
			FromLine:   e.Identity.From.Line,
			FromColumn: e.Identity.From.Column,
			ToLine:     e.Identity.To.Line,
			ToColumn:   e.Identity.To.Column,
			Executions: e.Executions,
			Statements: e.Statements,
			Min:        e.StatementsMin,
			Max:        e.StatementsMax,
			StampNanos: e.StatementStamp.ReceivedAt.UnixNano(),
			StampID:    e.StatementStamp.SubmissionID,
		})
	}

	body, err := msgpack.Marshal(&rec)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal: %w", err)
	}
	bodyLen, err := safecast.Conv[uint32](len(body))
	if err != nil {
		return nil, fmt.Errorf("snapshot: payload too large: %w", err)
	}

	compressed := make([]byte, headerSize+lz4.CompressBlockBound(len(body)))
	n, err := lz4.CompressBlock(body, compressed[headerSize:], nil)
	if err == nil && n > 0 && n < len(body) {
		compressed[0] = flagLZ4
		binary.LittleEndian.PutUint32(compressed[1:headerSize], bodyLen)
		return compressed[:headerSize+n], nil
	}

	out := make([]byte, headerSize+len(body))
	out[0] = flagRaw
	binary.LittleEndian.PutUint32(out[1:headerSize], bodyLen)
	copy(out[headerSize:], body)
	return out, nil
}

// Decode rebuilds a report, interning its paths into paths. An empty payload
// decodes to the empty report.
func Decode(paths *coverage.PathTable, data []byte) (*aggregate.Report, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < headerSize {
		return nil, ErrCorrupt
	}
	bodyLen := binary.LittleEndian.Uint32(data[1:headerSize])
	var body []byte
	switch data[0] {
	case flagRaw:
		body = data[headerSize:]
		if uint32(len(body)) != bodyLen {
			return nil, ErrCorrupt
		}
	case flagLZ4:
		body = make([]byte, bodyLen)
		n, err := lz4.UncompressBlock(data[headerSize:], body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(n) != bodyLen {
			return nil, ErrCorrupt
		}
	default:
		return nil, ErrCorrupt
	}

	var rec record
	if err := msgpack.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.Version != version {
		return nil, fmt.Errorf("snapshot: unsupported version %d", rec.Version)
	}

	ids := make([]coverage.FileID, len(rec.Files))
	for i, path := range rec.Files {
		id, err := paths.Intern(path)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	entries := make([]aggregate.Entry, 0, len(rec.Entries))
	for _, er := range rec.Entries {
		if int(er.File) >= len(ids) {
			return nil, ErrCorrupt
		}
		entries = append(entries, aggregate.Entry{
			Identity: coverage.Identity{
				File: ids[er.File],
				From: coverage.Position{Line: er.FromLine, Column: er.FromColumn},
				To:   coverage.Position{Line: er.ToLine, Column: er.ToColumn},
			},
			Executions:    er.Executions,
			Statements:    er.Statements,
			StatementsMin: er.Min,
			StatementsMax: er.Max,
			StatementStamp: aggregate.Stamp{
				ReceivedAt:   time.Unix(0, er.StampNanos).UTC(),
				SubmissionID: er.StampID,
			},
		})
	}
	return aggregate.FromEntries(entries, rec.Applied), nil
}
