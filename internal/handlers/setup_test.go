package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nrezzano/web_auctions/internal/config"
	"github.com/nrezzano/web_auctions/internal/hash"
	"github.com/nrezzano/web_auctions/internal/models"
	"github.com/nrezzano/web_auctions/internal/mykafka"
	"github.com/nrezzano/web_auctions/internal/upload"
)

var (
	testJWTSecret     = []byte("test-jwt-secret")
	testRefreshSecret = []byte("test-refresh-secret")
)

func initTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := config.Migrate(db); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func newAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{
		DB:            db,
		JWTSecret:     testJWTSecret,
		RefreshSecret: testRefreshSecret,
		Producer:      &mykafka.Producer{},
	}
}

func newListingHandler(t *testing.T, db *gorm.DB) *ListingHandler {
	t.Helper()
	uploads, err := upload.NewStore(t.TempDir())
	require.NoError(t, err)
	return &ListingHandler{
		DB:        db,
		Producer:  &mykafka.Producer{},
		JWTSecret: testJWTSecret,
		Uploads:   uploads,
		Validate:  validator.New(),
	}
}

func createUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	passwordHash, err := hash.HashPassword("password")
	require.NoError(t, err)
	user := models.User{Username: username, PasswordHash: passwordHash, Role: "user"}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func accessCookie(t *testing.T, user models.User) *http.Cookie {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"exp":  time.Now().Add(15 * time.Minute).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testJWTSecret)
	require.NoError(t, err)
	return &http.Cookie{Name: "accessToken", Value: signed}
}

func createCategory(t *testing.T, db *gorm.DB, name string) models.Category {
	t.Helper()
	category := models.Category{Name: name}
	require.NoError(t, db.Create(&category).Error)
	return category
}

func createListing(t *testing.T, db *gorm.DB, owner models.User, category models.Category, price float64) models.Listing {
	t.Helper()
	listing := models.Listing{
		Title:      "test listing",
		Price:      price,
		Date:       time.Now(),
		OnSale:     true,
		OwnerID:    owner.ID,
		CategoryID: category.ID,
	}
	require.NoError(t, db.Create(&listing).Error)
	return listing
}

func jsonRequest(t *testing.T, e *echo.Echo, method, path string, body interface{}, cookies ...*http.Cookie) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	return rec, e.NewContext(req, rec)
}

func multipartRequest(t *testing.T, e *echo.Echo, path string, fields map[string]string, fileField, fileName string, cookies ...*http.Cookie) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = io.WriteString(fw, "fake image bytes")
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	return rec, e.NewContext(req, rec)
}

func httpErrorCode(t *testing.T, err error) (int, string) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError, got %v", err)
	msg, _ := he.Message.(string)
	return he.Code, msg
}
