package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nrezzano/web_auctions/internal/models"
)

func TestRegister(t *testing.T) {
	db := initTestDB(t)
	h := newAuthHandler(db)
	e := echo.New()

	payload := map[string]string{
		"username":     "test_user",
		"email":        "test@example.com",
		"password":     "password",
		"confirmation": "password",
	}
	rec, c := jsonRequest(t, e, http.MethodPost, "/register", payload)
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	require.Equal(t, "test_user", user.Username)
	require.Equal(t, "user", user.Role)
	require.NotEmpty(t, user.ID)

	// registration signs the account in
	cookies := rec.Result().Cookies()
	names := map[string]bool{}
	for _, ck := range cookies {
		names[ck.Name] = ck.Value != ""
	}
	require.True(t, names["accessToken"])
	require.True(t, names["refreshToken"])
}

func TestRegisterDuplicateUsername(t *testing.T) {
	db := initTestDB(t)
	h := newAuthHandler(db)
	e := echo.New()

	payload := map[string]string{
		"username":     "test_user",
		"password":     "password",
		"confirmation": "password",
	}
	_, c := jsonRequest(t, e, http.MethodPost, "/register", payload)
	require.NoError(t, h.Register(c))

	_, c2 := jsonRequest(t, e, http.MethodPost, "/register", payload)
	code, msg := httpErrorCode(t, h.Register(c2))
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "Username already taken.", msg)
}

func TestRegisterPasswordRules(t *testing.T) {
	db := initTestDB(t)
	h := newAuthHandler(db)
	e := echo.New()

	_, c := jsonRequest(t, e, http.MethodPost, "/register", map[string]string{
		"username": "test_user",
	})
	code, msg := httpErrorCode(t, h.Register(c))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "You need a password.", msg)

	_, c2 := jsonRequest(t, e, http.MethodPost, "/register", map[string]string{
		"username":     "test_user",
		"password":     "password",
		"confirmation": "different",
	})
	code, msg = httpErrorCode(t, h.Register(c2))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Passwords must match.", msg)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRegisterStorageError(t *testing.T) {
	db := initTestDB(t)
	h := newAuthHandler(db)
	e := echo.New()

	// a broken store is a 500, not a username conflict
	require.NoError(t, db.Migrator().DropTable(&models.User{}))

	_, c := jsonRequest(t, e, http.MethodPost, "/register", map[string]string{
		"username":     "test_user",
		"password":     "password",
		"confirmation": "password",
	})
	code, _ := httpErrorCode(t, h.Register(c))
	require.Equal(t, http.StatusInternalServerError, code)
}

func TestIsDuplicate(t *testing.T) {
	require.True(t, isDuplicate(gorm.ErrDuplicatedKey))
	require.True(t, isDuplicate(errors.New("UNIQUE constraint failed: users.username")))
	require.True(t, isDuplicate(errors.New(`duplicate key value violates unique constraint "uni_users_username"`)))
	require.False(t, isDuplicate(errors.New("connection refused")))
}

func TestLogin(t *testing.T) {
	db := initTestDB(t)
	h := newAuthHandler(db)
	e := echo.New()

	createUser(t, db, "test_user")

	rec, c := jsonRequest(t, e, http.MethodPost, "/login", map[string]string{
		"username": "test_user",
		"password": "password",
	})
	require.NoError(t, h.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["access_token"])
	require.NotEmpty(t, resp["refresh_token"])

	_, cBad := jsonRequest(t, e, http.MethodPost, "/login", map[string]string{
		"username": "test_user",
		"password": "wrong",
	})
	code, msg := httpErrorCode(t, h.Login(cBad))
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "Invalid username and/or password.", msg)

	_, cUnknown := jsonRequest(t, e, http.MethodPost, "/login", map[string]string{
		"username": "nobody",
		"password": "password",
	})
	code, msg = httpErrorCode(t, h.Login(cUnknown))
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "Invalid username and/or password.", msg)
}

func TestLogOut(t *testing.T) {
	db := initTestDB(t)
	h := newAuthHandler(db)
	e := echo.New()

	createUser(t, db, "test_user")

	recLogin, cLogin := jsonRequest(t, e, http.MethodPost, "/login", map[string]string{
		"username": "test_user",
		"password": "password",
	})
	require.NoError(t, h.Login(cLogin))

	var resp map[string]string
	require.NoError(t, json.Unmarshal(recLogin.Body.Bytes(), &resp))
	refreshToken := resp["refresh_token"]
	require.NotEmpty(t, refreshToken)

	recLogout, cLogout := jsonRequest(t, e, http.MethodPost, "/logout", nil,
		&http.Cookie{Name: "refreshToken", Value: refreshToken})
	require.NoError(t, h.LogOut(cLogout))
	require.Equal(t, http.StatusOK, recLogout.Code)

	var stored models.RefreshToken
	require.NoError(t, db.Where("token = ?", refreshToken).First(&stored).Error)
	require.True(t, stored.Revoked)
}
