package parser

import (
	"context"

	"github.com/ultrabooks/ultrabooks/internal/epubmeta"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

// EPUBParser inspects ePUB files through the cover and metadata extractor
type EPUBParser struct {
	extractor *epubmeta.Extractor
}

// NewEPUBParser creates a new ePUB parser. A nil extractor uses the defaults.
func NewEPUBParser(extractor *epubmeta.Extractor) *EPUBParser {
	if extractor == nil {
		extractor = epubmeta.New(nil)
	}
	return &EPUBParser{extractor: extractor}
}

// Inspect extracts the title, author and cover of an ePUB file
func (p *EPUBParser) Inspect(ctx context.Context, data []byte) (*types.Inspection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta := p.extractor.ExtractMetadata(data)
	inspection := &types.Inspection{
		Title:  meta.Title,
		Author: meta.Author,
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cover := p.extractor.ExtractCover(data); cover != nil {
		inspection.Cover = &types.CoverImage{
			Data:       cover.Data,
			MIMEType:   cover.MIMEType,
			SourcePath: cover.Path,
			Method:     string(cover.Method),
			Size:       len(cover.Data),
		}
	}

	return inspection, nil
}

// SupportedFormats returns the formats this parser supports
func (p *EPUBParser) SupportedFormats() []string {
	return []string{"epub"}
}
