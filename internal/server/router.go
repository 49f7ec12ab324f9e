package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/LZZLHY/start-sub000/internal/auth"
	"github.com/LZZLHY/start-sub000/internal/bookmarks"
	"github.com/LZZLHY/start-sub000/internal/clicks"
	"github.com/LZZLHY/start-sub000/internal/siteurl"
	"github.com/LZZLHY/start-sub000/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey      = "startpage_user_id"
	displayNameContextKey = "startpage_user_display_name"
	rolesContextKey       = "startpage_user_roles"

	defaultRankingLimit = 10
	heartbeatInterval   = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingClicksService    = errors.New("clicks service dependency required")
	errMissingBookmarksService = errors.New("bookmarks service dependency required")
)

// SessionValidator authenticates incoming requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Dependencies collects everything the HTTP surface needs.
type Dependencies struct {
	SessionValidator SessionValidator
	ClicksService    *clicks.Service
	BookmarksService *bookmarks.Service
	UsersService     *users.Service
	Dispatcher       *ClickEventDispatcher
	RankingMaxLimit  int
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin handler serving the start-page API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.ClicksService == nil {
		return nil, errMissingClicksService
	}
	if deps.BookmarksService == nil {
		return nil, errMissingBookmarksService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rankingMaxLimit := deps.RankingMaxLimit
	if rankingMaxLimit < 1 {
		rankingMaxLimit = 100
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = NewClickEventDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions:         deps.SessionValidator,
		clicksService:    deps.ClicksService,
		bookmarksService: deps.BookmarksService,
		usersService:     deps.UsersService,
		dispatcher:       dispatcher,
		rankingMaxLimit:  rankingMaxLimit,
		logger:           logger,
	}

	api := router.Group("/api")
	api.Use(handler.authorizeRequest)
	api.POST("/bookmarks", handler.handleCreateBookmark)
	api.GET("/bookmarks", handler.handleListBookmarks)
	api.POST("/click", handler.handleClick)
	api.GET("/stats", handler.handleUserStats)

	admin := api.Group("/")
	admin.Use(handler.requireAdmin)
	admin.GET("/heat-ranking", handler.handleHeatRanking)
	admin.GET("/heat/stream", handler.handleHeatStream)

	return router, nil
}

type httpHandler struct {
	sessions         SessionValidator
	clicksService    *clicks.Service
	bookmarksService *bookmarks.Service
	usersService     *users.Service
	dispatcher       *ClickEventDispatcher
	rankingMaxLimit  int
	logger           *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Set(displayNameContextKey, claims.UserDisplayName)
	c.Set(rolesContextKey, claims.UserRoles)
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	roles, _ := c.Get(rolesContextKey)
	if roleList, ok := roles.([]string); ok {
		for _, role := range roleList {
			if role == auth.RoleAdmin {
				c.Next()
				return
			}
		}
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
}

type createBookmarkPayload struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	Position int64  `json:"position"`
}

type bookmarkPayload struct {
	BookmarkID string `json:"bookmark_id"`
	Title      string `json:"title"`
	URL        string `json:"url,omitempty"`
	Kind       string `json:"kind"`
	Position   int64  `json:"position"`
}

func (h *httpHandler) handleCreateBookmark(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request createBookmarkPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	kind := bookmarks.Kind(request.Kind)
	if kind == "" {
		kind = bookmarks.KindLink
	}

	bookmark, err := h.bookmarksService.Create(c.Request.Context(), bookmarks.CreateRequest{
		UserID:   userID,
		Title:    request.Title,
		URL:      request.URL,
		Kind:     kind,
		Position: request.Position,
	})
	if err != nil {
		var serviceErr *bookmarks.ServiceError
		if errors.As(err, &serviceErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_bookmark", "code": serviceErr.Code()})
			return
		}
		h.logger.Error("failed to create bookmark", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bookmark_create_failed"})
		return
	}

	c.JSON(http.StatusOK, toBookmarkPayload(bookmark))
}

func (h *httpHandler) handleListBookmarks(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	listed, err := h.bookmarksService.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list bookmarks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bookmark_list_failed"})
		return
	}

	payload := make([]bookmarkPayload, 0, len(listed))
	for _, bookmark := range listed {
		payload = append(payload, toBookmarkPayload(bookmark))
	}
	c.JSON(http.StatusOK, gin.H{"bookmarks": payload})
}

func toBookmarkPayload(bookmark bookmarks.Bookmark) bookmarkPayload {
	return bookmarkPayload{
		BookmarkID: bookmark.BookmarkID,
		Title:      bookmark.Title,
		URL:        bookmark.URL,
		Kind:       string(bookmark.Kind),
		Position:   bookmark.Position,
	}
}

type clickRequestPayload struct {
	BookmarkID string `json:"bookmark_id"`
}

type clickResponsePayload struct {
	SiteID       string `json:"site_id"`
	UserClicks   int64  `json:"user_clicks"`
	GlobalClicks int64  `json:"global_clicks"`
}

func (h *httpHandler) handleClick(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request clickRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.BookmarkID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	bookmark, err := h.bookmarksService.Resolve(c.Request.Context(), userID, request.BookmarkID)
	if errors.Is(err, bookmarks.ErrBookmarkNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "bookmark_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to resolve bookmark", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "click_failed"})
		return
	}
	if !bookmark.Clickable() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not_clickable"})
		return
	}

	// Normalization failures are caught before any ledger write.
	siteID, err := siteurl.Normalize(bookmark.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_url"})
		return
	}

	if h.usersService != nil {
		if err := h.usersService.Touch(userID, c.GetString(displayNameContextKey)); err != nil {
			h.logger.Warn("identity bookkeeping failed", zap.Error(err), zap.String("user_id", userID))
		}
	}

	record, err := h.clicksService.RecordClick(c.Request.Context(), userID, siteID)
	if err != nil {
		h.logger.Error("failed to record click", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "click_failed", "code": serviceErrorCode(err)})
		return
	}

	global, err := h.clicksService.GlobalStats(c.Request.Context(), siteID)
	if err != nil {
		h.logger.Error("failed to load global stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "click_failed", "code": serviceErrorCode(err)})
		return
	}

	h.dispatcher.Publish(ClickEvent{
		SiteID:       siteID,
		SiteName:     siteurl.DisplayName(siteID),
		GlobalClicks: global.GlobalClicks,
		UniqueUsers:  global.UniqueUsers,
		Timestamp:    record.LastClickAt,
	})

	c.JSON(http.StatusOK, clickResponsePayload{
		SiteID:       siteID,
		UserClicks:   record.ClickCount,
		GlobalClicks: global.GlobalClicks,
	})
}

func (h *httpHandler) handleUserStats(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	stats, err := h.clicksService.UserStats(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load user stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_failed", "code": serviceErrorCode(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

type heatRankingItemPayload struct {
	SiteID       string `json:"site_id"`
	SiteName     string `json:"site_name"`
	GlobalClicks int64  `json:"global_clicks"`
	UniqueUsers  int64  `json:"unique_users"`
}

func (h *httpHandler) handleHeatRanking(c *gin.Context) {
	limit := defaultRankingLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = parsed
	}
	if limit < 1 {
		limit = 1
	}
	if limit > h.rankingMaxLimit {
		limit = h.rankingMaxLimit
	}

	ranking, err := h.clicksService.HeatRanking(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to compute heat ranking", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ranking_failed", "code": serviceErrorCode(err)})
		return
	}

	payload := make([]heatRankingItemPayload, 0, len(ranking))
	for _, item := range ranking {
		payload = append(payload, heatRankingItemPayload{
			SiteID:       item.SiteID,
			SiteName:     item.SiteName,
			GlobalClicks: item.GlobalClicks,
			UniqueUsers:  item.UniqueUsers,
		})
	}
	c.JSON(http.StatusOK, gin.H{"ranking": payload})
}

func (h *httpHandler) handleHeatStream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	stream, cleanup := h.dispatcher.Subscribe(c.Request.Context())
	defer cleanup()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(realtimeEventClick, event)
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, time.Now().UTC().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func serviceErrorCode(err error) string {
	var serviceErr *clicks.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return "internal"
}
