package parser

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ultrabooks/ultrabooks/internal/epubmeta"
)

// DefaultFactory creates parsers for supported formats
type DefaultFactory struct {
	parsers map[string]Parser
}

// NewFactory creates a new parser factory with the epub, mobi and pdf inspectors.
// maxMemberBytes caps how much of a single archive member the epub inspector reads.
func NewFactory(logger *zap.Logger, maxMemberBytes int64) Factory {
	f := &DefaultFactory{
		parsers: make(map[string]Parser),
	}

	extractor := epubmeta.New(logger, epubmeta.WithMaxMemberBytes(maxMemberBytes))
	f.registerParser(NewEPUBParser(extractor))
	f.registerParser(NewMOBIParser())
	f.registerParser(NewPDFParser())

	return f
}

// registerParser registers a parser for its supported formats
func (f *DefaultFactory) registerParser(p Parser) {
	for _, format := range p.SupportedFormats() {
		f.parsers[strings.ToLower(format)] = p
	}
}

// GetParser returns a parser for the given format
func (f *DefaultFactory) GetParser(format string) (Parser, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	parser, ok := f.parsers[format]
	if !ok {
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	return parser, nil
}
