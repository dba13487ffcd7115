package share

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ultrabooks/ultrabooks/internal/book"
	"github.com/ultrabooks/ultrabooks/internal/packaging"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

const (
	// CodeLength is the number of characters in a share code
	CodeLength = 8

	// DefaultExpiry applies when a share is created without an expiry
	DefaultExpiry = 24 * time.Hour

	// MaxExpiryHours bounds how long a share may stay valid
	MaxExpiryHours = 24 * 365

	// codeAlphabet leaves out characters that are easy to misread (0/O, 1/l/I)
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789"

	maxCodeAttempts = 5
)

var (
	// ErrUnavailable is returned for unknown, disabled and expired shares
	ErrUnavailable = fmt.Errorf("share unavailable: %w", book.ErrNotFound)

	// ErrInvalidExpiry is returned for a negative or too long expiry
	ErrInvalidExpiry = errors.New("invalid share expiry")
)

// CreateRequest selects what a new share exposes
type CreateRequest struct {
	IncludeBookmarks  bool
	IncludeHighlights bool
	IncludeNotes      bool
	ExpiresInHours    int // 0 means DefaultExpiry
}

// SharedBook is what a share code resolves to
type SharedBook struct {
	Share      *types.Share       `json:"share"`
	Book       *types.Book        `json:"book"`
	Bookmarks  []*types.Bookmark  `json:"bookmarks,omitempty"`
	Highlights []*types.Highlight `json:"highlights,omitempty"`
}

// Options configures a Service; zero values pick the defaults
type Options struct {
	Logger  *zap.Logger
	Now     func() time.Time
	NewCode func() (string, error)
}

// Service manages share links for books
type Service struct {
	repo      book.Repository
	packaging *packaging.Service
	logger    *zap.Logger
	now       func() time.Time
	newCode   func() (string, error)

	// mu serializes share writes so reuse checks and view counts stay exact
	mu sync.Mutex
}

// NewService creates a share service
func NewService(repo book.Repository, opts Options) *Service {
	s := &Service{
		repo:      repo,
		packaging: packaging.NewService(repo),
		logger:    opts.Logger,
		now:       opts.Now,
		newCode:   opts.NewCode,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("component", "share"))
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newCode == nil {
		s.newCode = GenerateCode
	}
	return s
}

// Create returns a share for a book. An active, unexpired share of the book
// is reused instead of creating a second one; reused reports which happened.
func (s *Service) Create(ctx context.Context, bookID string, req CreateRequest) (share *types.Share, reused bool, err error) {
	if req.ExpiresInHours < 0 || req.ExpiresInHours > MaxExpiryHours {
		return nil, false, fmt.Errorf("%w: expires_in_hours must be between 0 and %d", ErrInvalidExpiry, MaxExpiryHours)
	}
	if _, err := s.repo.GetBook(ctx, bookID); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.ListShares(ctx, bookID)
	if err != nil {
		return nil, false, err
	}
	now := s.now()
	for _, sh := range existing {
		if usable(sh, now) {
			return sh, true, nil
		}
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, false, err
	}

	expiry := DefaultExpiry
	if req.ExpiresInHours > 0 {
		expiry = time.Duration(req.ExpiresInHours) * time.Hour
	}
	share = &types.Share{
		Code:              code,
		BookID:            bookID,
		IncludeBookmarks:  req.IncludeBookmarks,
		IncludeHighlights: req.IncludeHighlights,
		IncludeNotes:      req.IncludeNotes,
		IsActive:          true,
		ExpiresAt:         now.Add(expiry),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.SaveShare(ctx, share); err != nil {
		return nil, false, err
	}

	s.logger.Info("share created",
		zap.String("book_id", bookID),
		zap.String("share_code", code),
		zap.Time("expires_at", share.ExpiresAt),
	)
	return share, false, nil
}

// List returns every share of a book, newest first
func (s *Service) List(ctx context.Context, bookID string) ([]*types.Share, error) {
	if _, err := s.repo.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.repo.ListShares(ctx, bookID)
}

// SetActive enables or disables a share of a book
func (s *Service) SetActive(ctx context.Context, bookID, code string, active bool) (*types.Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	share, err := s.ownedShare(ctx, bookID, code)
	if err != nil {
		return nil, err
	}
	share.IsActive = active
	share.UpdatedAt = s.now()
	if err := s.repo.SaveShare(ctx, share); err != nil {
		return nil, err
	}
	return share, nil
}

// Delete removes a share of a book
func (s *Service) Delete(ctx context.Context, bookID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedShare(ctx, bookID, code); err != nil {
		return err
	}
	return s.repo.DeleteShare(ctx, code)
}

// Open resolves an active, unexpired share code to the book and the
// annotations it includes, and counts the view.
func (s *Service) Open(ctx context.Context, code string) (*SharedBook, error) {
	share, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	b, err := s.repo.GetBook(ctx, share.BookID)
	if err != nil {
		return nil, err
	}
	result := &SharedBook{Share: share, Book: b}

	if share.IncludeBookmarks {
		if result.Bookmarks, err = s.repo.ListBookmarks(ctx, share.BookID); err != nil {
			return nil, err
		}
	}
	if share.IncludeHighlights {
		if result.Highlights, err = s.repo.ListHighlights(ctx, share.BookID); err != nil {
			return nil, err
		}
	}
	if !share.IncludeNotes {
		packaging.StripNotes(result.Bookmarks, result.Highlights)
	}

	s.countView(ctx, share)
	return result, nil
}

// Export packages a shared book, with the book file and only the
// annotations the share includes
func (s *Service) Export(ctx context.Context, code string) (io.Reader, error) {
	share, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.packaging.PackageBook(ctx, share.BookID, packaging.Options{
		IncludeFile:    true,
		OmitBookmarks:  !share.IncludeBookmarks,
		OmitHighlights: !share.IncludeHighlights,
		OmitNotes:      !share.IncludeNotes,
		OmitProgress:   true,
	})
}

// lookup returns the share for code if it can currently be opened
func (s *Service) lookup(ctx context.Context, code string) (*types.Share, error) {
	if !ValidCode(code) {
		return nil, ErrUnavailable
	}
	share, err := s.repo.GetShare(ctx, code)
	if err != nil {
		if errors.Is(err, book.ErrNotFound) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	if !usable(share, s.now()) {
		return nil, ErrUnavailable
	}
	return share, nil
}

func (s *Service) ownedShare(ctx context.Context, bookID, code string) (*types.Share, error) {
	if !ValidCode(code) {
		return nil, fmt.Errorf("share %s: %w", code, book.ErrNotFound)
	}
	share, err := s.repo.GetShare(ctx, code)
	if err != nil {
		return nil, err
	}
	if share.BookID != bookID {
		return nil, fmt.Errorf("share %s: %w", code, book.ErrNotFound)
	}
	return share, nil
}

func (s *Service) countView(ctx context.Context, share *types.Share) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.GetShare(ctx, share.Code)
	if err == nil {
		current.ViewCount++
		err = s.repo.SaveShare(ctx, current)
	}
	if err != nil {
		s.logger.Warn("failed to count share view",
			zap.String("share_code", share.Code),
			zap.Error(err),
		)
		return
	}
	share.ViewCount = current.ViewCount
}

func (s *Service) uniqueCode(ctx context.Context) (string, error) {
	for range maxCodeAttempts {
		code, err := s.newCode()
		if err != nil {
			return "", fmt.Errorf("generate share code: %w", err)
		}
		if _, err := s.repo.GetShare(ctx, code); errors.Is(err, book.ErrNotFound) {
			return code, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("generate share code: no free code after %d attempts", maxCodeAttempts)
}

func usable(share *types.Share, now time.Time) bool {
	return share.IsActive && now.Before(share.ExpiresAt)
}

// GenerateCode returns a random share code drawn from codeAlphabet
func GenerateCode() (string, error) {
	// largest multiple of the alphabet size that fits in a byte, so every
	// character is equally likely
	limit := byte(256 / len(codeAlphabet) * len(codeAlphabet))

	var b strings.Builder
	buf := make([]byte, 2*CodeLength)
	for b.Len() < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, c := range buf {
			if c >= limit {
				continue
			}
			b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
			if b.Len() == CodeLength {
				break
			}
		}
	}
	return b.String(), nil
}

// ValidCode reports whether code has the shape of a share code
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
