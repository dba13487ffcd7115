package epubmeta

import "errors"

// Failure categories. They never leave the package; they only label the
// debug log line written when an extraction collapses to "nothing found".
var (
	errNotArchive            = errors.New("epubmeta: not a zip archive")
	errMissingDescriptor     = errors.New("epubmeta: missing container or package document")
	errMalformedMarkup       = errors.New("epubmeta: malformed markup")
	errUnresolvableReference = errors.New("epubmeta: unresolvable reference")
	errMemberTooLarge        = errors.New("epubmeta: archive member too large")
)

// failureReason maps an internal error to a short log label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, errNotArchive):
		return "not_an_archive"
	case errors.Is(err, errMissingDescriptor):
		return "missing_descriptor"
	case errors.Is(err, errMalformedMarkup):
		return "malformed_markup"
	case errors.Is(err, errUnresolvableReference):
		return "unresolvable_reference"
	case errors.Is(err, errMemberTooLarge):
		return "member_too_large"
	default:
		return "unknown"
	}
}
