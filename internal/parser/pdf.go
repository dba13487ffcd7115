package parser

import (
	"context"

	"github.com/ultrabooks/ultrabooks/pkg/types"
)

// PDFParser accepts PDF files without reading their document info.
// Uploads fall back to the filename for the title.
type PDFParser struct{}

// NewPDFParser creates a new PDF parser
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Inspect returns an empty inspection
func (p *PDFParser) Inspect(ctx context.Context, data []byte) (*types.Inspection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &types.Inspection{}, nil
}

// SupportedFormats returns the formats this parser supports
func (p *PDFParser) SupportedFormats() []string {
	return []string{"pdf"}
}
