package token

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nrezzano/web_auctions/internal/config"
	"github.com/nrezzano/web_auctions/internal/models"
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

func newService(db *gorm.DB) *TokenService {
	return &TokenService{DB: db, JWTSecret: testJWTSecret, RefreshSecret: testRefreshSecret}
}

func issueRefresh(t *testing.T, db *gorm.DB, userID uint, role string) string {
	t.Helper()
	raw, err := SignRefreshToken(userID, role, testRefreshSecret)
	require.NoError(t, err)
	require.NoError(t, SaveRefreshToken(db, raw, userID))
	return raw
}

func TestRotateToken(t *testing.T) {
	db := initTestDB(t)
	svc := newService(db)

	raw := issueRefresh(t, db, 7, "user")

	access, refresh, claims, err := svc.RotateToken(raw)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	require.NotEqual(t, raw, refresh)
	require.Equal(t, float64(7), claims["sub"])

	// the new refresh token is persisted and usable
	var stored models.RefreshToken
	require.NoError(t, db.Where("token = ?", refresh).First(&stored).Error)
	require.Equal(t, uint(7), stored.UserID)
	require.False(t, stored.Revoked)

	// the new access token verifies with the access secret
	parsed, err := jwt.Parse(access, func(j *jwt.Token) (interface{}, error) {
		return testJWTSecret, nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
}

func TestRotateRevokedToken(t *testing.T) {
	db := initTestDB(t)
	svc := newService(db)

	raw := issueRefresh(t, db, 7, "user")
	require.NoError(t, db.Model(&models.RefreshToken{}).
		Where("token = ?", raw).Update("revoked", true).Error)

	_, _, _, err := svc.RotateToken(raw)
	require.Error(t, err)
	require.Contains(t, err.Error(), "revoked")
}

func TestRotateExpiredToken(t *testing.T) {
	db := initTestDB(t)
	svc := newService(db)

	raw, err := SignRefreshToken(7, "user", testRefreshSecret)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.RefreshToken{
		Token:     raw,
		UserID:    7,
		ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	}).Error)

	_, _, _, err = svc.RotateToken(raw)
	require.Error(t, err)
	require.Contains(t, err.Error(), "expired")
}

func TestRotateUnknownToken(t *testing.T) {
	db := initTestDB(t)
	svc := newService(db)

	raw, err := SignRefreshToken(7, "user", testRefreshSecret)
	require.NoError(t, err)

	_, _, _, err = svc.RotateToken(raw)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestValidateRefreshRejectsAccessToken(t *testing.T) {
	db := initTestDB(t)

	// an access token lacks typ=refresh and must not pass
	raw, err := SignAccessToken(7, "user", testRefreshSecret)
	require.NoError(t, err)

	_, err = ValidateRefresh(raw, testRefreshSecret, db)
	require.Error(t, err)
}

func middlewareRun(t *testing.T, svc *TokenService, admin bool, cookies ...*http.Cookie) (*httptest.ResponseRecorder, echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	mw := svc.AutoRefreshMiddleware
	if admin {
		mw = svc.AutoRefreshMiddlewareAdmin
	}
	return rec, c, mw(next)(c)
}

func TestMiddlewareValidAccess(t *testing.T) {
	db := initTestDB(t)
	svc := newService(db)

	access, err := SignAccessToken(7, "user", testJWTSecret)
	require.NoError(t, err)

	rec, c, err := middlewareRun(t, svc, false, &http.Cookie{Name: "accessToken", Value: access})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint(7), c.Get("userID"))
	require.Equal(t, "user", c.Get("role"))
}

func TestMiddlewareRotatesExpiredAccess(t *testing.T) {
	db := initTestDB(t)
	svc := newService(db)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  7,
		"role": "user",
		"exp":  time.Now().Add(-time.Minute).Unix(),
	}).SignedString(testJWTSecret)
	require.NoError(t, err)

	refresh := issueRefresh(t, db, 7, "user")

	rec, c, err := middlewareRun(t, svc, false,
		&http.Cookie{Name: "accessToken", Value: expired},
		&http.Cookie{Name: "refreshToken", Value: refresh})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint(7), c.Get("userID"))

	// fresh cookies are set on the response
	names := map[string]bool{}
	for _, ck := range rec.Result().Cookies() {
		names[ck.Name] = ck.Value != ""
	}
	require.True(t, names["accessToken"])
	require.True(t, names["refreshToken"])
}

func TestMiddlewareRejectsBadAlgorithm(t *testing.T) {
	db := initTestDB(t)
	svc := newService(db)

	// a token with alg=none must not be treated as an expired session either
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":  7,
		"role": "admin",
		"exp":  time.Now().Add(15 * time.Minute).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	refresh := issueRefresh(t, db, 7, "user")

	_, _, err = middlewareRun(t, svc, false,
		&http.Cookie{Name: "accessToken", Value: unsigned},
		&http.Cookie{Name: "refreshToken", Value: refresh})
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestMiddlewareNoSession(t *testing.T) {
	db := initTestDB(t)
	svc := newService(db)

	_, _, err := middlewareRun(t, svc, false)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestMiddlewareAdminRole(t *testing.T) {
	db := initTestDB(t)
	svc := newService(db)

	userAccess, err := SignAccessToken(7, "user", testJWTSecret)
	require.NoError(t, err)

	_, _, err = middlewareRun(t, svc, true, &http.Cookie{Name: "accessToken", Value: userAccess})
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusForbidden, he.Code)

	adminAccess, err := SignAccessToken(1, "admin", testJWTSecret)
	require.NoError(t, err)

	rec, _, err := middlewareRun(t, svc, true, &http.Cookie{Name: "accessToken", Value: adminAccess})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)
}
