package parser

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"unicode/utf8"

	"github.com/ultrabooks/ultrabooks/pkg/types"
)

// PalmDB and MOBI layout offsets, big-endian throughout
const (
	pdbHeaderSize   = 78
	pdbNameSize     = 32
	pdbNumRecordsAt = 76
	palmDOCSize     = 16

	mobiHeaderLenAt = palmDOCSize + 4
	mobiFullNameAt  = palmDOCSize + 0x44
	mobiFullLenAt   = palmDOCSize + 0x48
	mobiEXTHFlagsAt = palmDOCSize + 0x70

	exthFlagPresent = 0x40

	exthAuthor       = 100
	exthUpdatedTitle = 503
)

// MOBIParser reads the title and author of Mobipocket files
type MOBIParser struct{}

// NewMOBIParser creates a new MOBI parser
func NewMOBIParser() *MOBIParser {
	return &MOBIParser{}
}

// Inspect reads the PalmDB name, the MOBI full name and EXTH records 100
// and 503. Title precedence is EXTH 503, then full name, then PalmDB name.
func (p *MOBIParser) Inspect(ctx context.Context, data []byte) (*types.Inspection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inspection := &types.Inspection{}
	if len(data) < pdbHeaderSize+8 {
		return inspection, nil
	}

	inspection.Title = cleanText(data[:pdbNameSize])

	if binary.BigEndian.Uint16(data[pdbNumRecordsAt:]) == 0 {
		return inspection, nil
	}
	rec0 := int(binary.BigEndian.Uint32(data[pdbHeaderSize:]))
	record, ok := slice(data, rec0, len(data)-rec0)
	if !ok || len(record) < mobiEXTHFlagsAt+4 || string(record[palmDOCSize:palmDOCSize+4]) != "MOBI" {
		return inspection, nil
	}

	headerLen := int(binary.BigEndian.Uint32(record[mobiHeaderLenAt:]))
	nameOff := int(binary.BigEndian.Uint32(record[mobiFullNameAt:]))
	nameLen := int(binary.BigEndian.Uint32(record[mobiFullLenAt:]))
	if name, ok := slice(record, nameOff, nameLen); ok {
		if title := cleanText(name); title != "" {
			inspection.Title = title
		}
	}

	if binary.BigEndian.Uint32(record[mobiEXTHFlagsAt:])&exthFlagPresent == 0 {
		return inspection, nil
	}
	exth, ok := slice(record, palmDOCSize+headerLen, len(record)-palmDOCSize-headerLen)
	if !ok {
		return inspection, nil
	}
	records := parseEXTH(exth)
	if author := cleanText(records[exthAuthor]); author != "" {
		inspection.Author = author
	}
	if title := cleanText(records[exthUpdatedTitle]); title != "" {
		inspection.Title = title
	}

	return inspection, nil
}

// SupportedFormats returns the formats this parser supports
func (p *MOBIParser) SupportedFormats() []string {
	return []string{"mobi"}
}

// parseEXTH returns the first record of each type.
// Format: "EXTH" + length(4) + count(4) + records of type(4) + length(4) + data.
func parseEXTH(data []byte) map[uint32][]byte {
	records := make(map[uint32][]byte)
	if len(data) < 12 || string(data[:4]) != "EXTH" {
		return records
	}

	count := int(binary.BigEndian.Uint32(data[8:]))
	pos := 12
	for i := 0; i < count && pos+8 <= len(data); i++ {
		recType := binary.BigEndian.Uint32(data[pos:])
		recLen := int(binary.BigEndian.Uint32(data[pos+4:]))
		if recLen < 8 || pos+recLen > len(data) {
			break
		}
		if _, seen := records[recType]; !seen {
			records[recType] = data[pos+8 : pos+recLen]
		}
		pos += recLen
	}
	return records
}

// slice returns data[off:off+n] when it lies within bounds
func slice(data []byte, off, n int) ([]byte, bool) {
	if off < 0 || n <= 0 || off > len(data) || n > len(data)-off {
		return nil, false
	}
	return data[off : off+n], true
}

// cleanText trims NUL padding and whitespace, replacing invalid UTF-8
func cleanText(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	s := string(b)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return strings.TrimSpace(s)
}
