package parser

import (
	"context"

	"github.com/ultrabooks/ultrabooks/pkg/types"
)

// Parser inspects an uploaded book file for its title, author and cover
type Parser interface {
	// Inspect reads what it can from the file. Malformed input yields an
	// empty inspection rather than an error.
	Inspect(ctx context.Context, data []byte) (*types.Inspection, error)

	// SupportedFormats returns the file formats this parser supports
	SupportedFormats() []string
}

// Factory creates parsers for different formats
type Factory interface {
	// GetParser returns a parser for the given format
	GetParser(format string) (Parser, error)
}
