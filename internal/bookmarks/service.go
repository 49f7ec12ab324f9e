package bookmarks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrBookmarkNotFound indicates the id does not exist for the user.
	ErrBookmarkNotFound = errors.New("bookmarks: bookmark not found")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingUserID     = errors.New("user identifier is required")
	errMissingBookmarkID = errors.New("bookmark identifier is required")
	errMissingTitle      = errors.New("bookmark title is required")
	errInvalidKind       = errors.New("bookmark kind must be link or folder")
	errLinkRequiresURL   = errors.New("link bookmarks require a url")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "bookmarks.service.new"
	opCreate     = "bookmarks.create"
	opList       = "bookmarks.list"
	opResolve    = "bookmarks.resolve"
)

// ServiceError carries a dotted operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for new bookmarks.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the bookmark store.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service is the thin bookmark store the click flow resolves against.
type Service struct {
	db         *gorm.DB
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the bookmark service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateRequest carries the fields for a new bookmark.
type CreateRequest struct {
	UserID   string
	Title    string
	URL      string
	Kind     Kind
	Position int64
}

// Create persists a new bookmark for the user and returns it.
func (s *Service) Create(ctx context.Context, request CreateRequest) (Bookmark, error) {
	userID := strings.TrimSpace(request.UserID)
	if userID == "" {
		return Bookmark{}, newServiceError(opCreate, "missing_user_id", errMissingUserID)
	}
	title := strings.TrimSpace(request.Title)
	if title == "" {
		return Bookmark{}, newServiceError(opCreate, "missing_title", errMissingTitle)
	}
	kind := request.Kind
	if kind != KindLink && kind != KindFolder {
		return Bookmark{}, newServiceError(opCreate, "invalid_kind", errInvalidKind)
	}
	urlValue := strings.TrimSpace(request.URL)
	if kind == KindLink && urlValue == "" {
		return Bookmark{}, newServiceError(opCreate, "missing_url", errLinkRequiresURL)
	}

	bookmarkID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.String("user_id", userID))
		return Bookmark{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	bookmark := Bookmark{
		BookmarkID: bookmarkID,
		UserID:     userID,
		Title:      title,
		URL:        urlValue,
		Kind:       kind,
		Position:   request.Position,
	}
	if err := s.db.WithContext(ctx).Create(&bookmark).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("user_id", userID))
		return Bookmark{}, newServiceError(opCreate, "insert_failed", err)
	}
	return bookmark, nil
}

// List returns the user's bookmarks in display order.
func (s *Service) List(ctx context.Context, userID string) ([]Bookmark, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, newServiceError(opList, "missing_user_id", errMissingUserID)
	}

	var bookmarks []Bookmark
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("position ASC, created_at ASC").
		Find(&bookmarks).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return bookmarks, nil
}

// Resolve returns the user's bookmark by id, or ErrBookmarkNotFound.
func (s *Service) Resolve(ctx context.Context, userID, bookmarkID string) (Bookmark, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Bookmark{}, newServiceError(opResolve, "missing_user_id", errMissingUserID)
	}
	bookmarkID = strings.TrimSpace(bookmarkID)
	if bookmarkID == "" {
		return Bookmark{}, newServiceError(opResolve, "missing_bookmark_id", errMissingBookmarkID)
	}

	var bookmark Bookmark
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND bookmark_id = ?", userID, bookmarkID).
		Take(&bookmark).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Bookmark{}, ErrBookmarkNotFound
	}
	if err != nil {
		s.logError(opResolve, "query_failed", err,
			zap.String("user_id", userID),
			zap.String("bookmark_id", bookmarkID))
		return Bookmark{}, newServiceError(opResolve, "query_failed", err)
	}
	return bookmark, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("bookmarks service error", attrs...)
}
