package epubmeta

import (
	"fmt"

	"go.uber.org/zap"
)

// Metadata is the title and author found in a package document. An empty
// field means the element was not present.
type Metadata struct {
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
}

// Extractor runs cover and metadata extraction and logs why an extraction
// came back empty. It holds no per-call state and is safe for concurrent use.
type Extractor struct {
	logger         *zap.Logger
	maxMemberBytes int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxMemberBytes caps the decompressed size of any archive member read
// during extraction.
func WithMaxMemberBytes(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxMemberBytes = n
		}
	}
}

// New creates an Extractor. A nil logger disables diagnostics.
func New(logger *zap.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{
		logger:         logger.With(zap.String("component", "epubmeta")),
		maxMemberBytes: DefaultMaxMemberBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = New(nil)

// ExtractCover returns the cover image of an EPUB, or nil when none can be
// found. It never panics on malformed input.
func ExtractCover(data []byte) *Cover {
	return defaultExtractor.ExtractCover(data)
}

// ExtractMetadata returns the title and author of an EPUB. Missing or
// malformed input yields a zero Metadata.
func ExtractMetadata(data []byte) Metadata {
	return defaultExtractor.ExtractMetadata(data)
}

// ExtractCover is the logging variant of the package-level ExtractCover.
func (e *Extractor) ExtractCover(data []byte) (cover *Cover) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("cover extraction panicked", zap.Any("panic", r))
			cover = nil
		}
	}()

	cover, err := e.extractCover(data)
	if err != nil {
		e.logger.Debug("no cover extracted",
			zap.String("reason", failureReason(err)),
			zap.Int("size", len(data)),
			zap.Error(err))
		return nil
	}
	return cover
}

// ExtractMetadata is the logging variant of the package-level ExtractMetadata.
func (e *Extractor) ExtractMetadata(data []byte) (meta Metadata) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("metadata extraction panicked", zap.Any("panic", r))
			meta = Metadata{}
		}
	}()

	meta, err := e.extractMetadata(data)
	if err != nil {
		e.logger.Debug("metadata extraction incomplete",
			zap.String("reason", failureReason(err)),
			zap.Bool("has_title", meta.Title != ""),
			zap.Bool("has_author", meta.Author != ""),
			zap.Error(err))
	}
	return meta
}

// loadPackage opens the archive and reads the package document named by
// container.xml. It returns the archive, the package document bytes and the
// directory hrefs are resolved against.
func (e *Extractor) loadPackage(data []byte) (*archive, []byte, string, error) {
	a, err := openArchive(data, e.maxMemberBytes)
	if err != nil {
		return nil, nil, "", err
	}

	container, err := a.read(containerPath)
	if err != nil {
		return nil, nil, "", err
	}

	opfPath, err := packagePath(container)
	if err != nil {
		return nil, nil, "", err
	}

	opf, err := a.read(opfPath)
	if err != nil {
		return nil, nil, "", err
	}
	return a, opf, baseDir(opfPath), nil
}

func (e *Extractor) extractCover(data []byte) (*Cover, error) {
	a, opf, base, err := e.loadPackage(data)
	if err != nil {
		return nil, err
	}

	// Items collected before a markup error are still searched.
	doc, parseErr := parsePackage(opf)
	href, method, ok := doc.resolveCoverHref()
	if !ok {
		if parseErr != nil {
			return nil, parseErr
		}
		return nil, fmt.Errorf("%w: no manifest item looks like a cover", errUnresolvableReference)
	}

	// Some producers store root-relative hrefs without the package
	// directory, so the raw href is tried when the resolved path misses.
	memberPath := resolveHref(base, href)
	f, found := a.lookup(memberPath)
	if !found {
		memberPath = href
		f, found = a.lookup(memberPath)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", errUnresolvableReference, href)
	}

	img, err := a.readFile(f)
	if err != nil {
		return nil, err
	}

	return &Cover{
		Data:     img,
		MIMEType: mimeTypeFor(href),
		Path:     memberPath,
		Method:   method,
	}, nil
}

func (e *Extractor) extractMetadata(data []byte) (Metadata, error) {
	_, opf, _, err := e.loadPackage(data)
	if err != nil {
		return Metadata{}, err
	}

	// A markup error part way through still leaves earlier fields usable.
	doc, err := parsePackage(opf)
	return Metadata{Title: doc.Title, Author: doc.Creator}, err
}
