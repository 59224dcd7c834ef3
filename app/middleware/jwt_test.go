package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/auth"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/config"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(jwtService *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWTAuth(jwtService), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUsername))
	})
	r.GET("/admin", JWTAuth(jwtService), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	svc := auth.NewJWTService(config.JWTConfig{Secret: "s"})
	r := newRouter(svc)

	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "Bearer garbage").Code)

	token, err := svc.GenerateToken(&model.User{ID: 1, Username: "alice"})
	require.NoError(t, err)
	w := do(r, "/me", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	svc := auth.NewJWTService(config.JWTConfig{Secret: "s"})
	r := newRouter(svc)

	editor, err := svc.GenerateToken(&model.User{ID: 2, Username: "ed", Role: &model.Role{Name: "editor"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(r, "/admin", "Bearer "+editor).Code)

	admin, err := svc.GenerateToken(&model.User{ID: 1, Username: "root", Role: &model.Role{Name: model.RoleAdmin}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, do(r, "/admin", "Bearer "+admin).Code)
}
