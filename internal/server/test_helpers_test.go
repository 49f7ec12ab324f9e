package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/LZZLHY/start-sub000/internal/auth"
	"github.com/LZZLHY/start-sub000/internal/bookmarks"
	"github.com/LZZLHY/start-sub000/internal/clicks"
	"github.com/LZZLHY/start-sub000/internal/users"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "server-test-secret"
	testCookieName    = "startpage_session"
	testSessionIssuer = "startpage-auth"
)

type testServices struct {
	db        *gorm.DB
	clicks    *clicks.Service
	bookmarks *bookmarks.Service
	users     *users.Service
}

func newTestServices(t *testing.T) testServices {
	t.Helper()

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&clicks.ClickRecord{}, &bookmarks.Bookmark{}, &users.Identity{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clicksService, err := clicks.NewService(clicks.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build clicks service: %v", err)
	}
	bookmarksService, err := bookmarks.NewService(bookmarks.ServiceConfig{Database: db, IDProvider: bookmarks.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to build bookmarks service: %v", err)
	}
	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}

	return testServices{db: db, clicks: clicksService, bookmarks: bookmarksService, users: usersService}
}

func newTestHandlerWith(t *testing.T, services testServices, validator SessionValidator, logger *zap.Logger) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if logger == nil {
		logger = zap.NewNop()
	}
	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator: validator,
		ClicksService:    services.clicks,
		BookmarksService: services.bookmarks,
		UsersService:     services.users,
		RankingMaxLimit:  100,
		Logger:           logger,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func newTestHandler(t *testing.T) (http.Handler, testServices) {
	t.Helper()
	services := newTestServices(t)
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to build session validator: %v", err)
	}
	return newTestHandlerWith(t, services, validator, nil), services
}

func mintSessionToken(t *testing.T, userID string, roles []string) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.SessionClaims{
		UserID:    userID,
		UserRoles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testSessionIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newJSONRequest(t *testing.T, method, target, token string, payload any) *http.Request {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to encode payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}
	request, err := http.NewRequest(method, target, body)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	return request
}

func decodeJSONBody(t *testing.T, body *bytes.Buffer, target any) {
	t.Helper()
	if err := json.Unmarshal(body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response body %q: %v", body.String(), err)
	}
}
