package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/auth"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/config"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/database/dbtest"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/middleware"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/repository"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/service"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/storage"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db     *gorm.DB
	store  *storage.LocalStore
	stats  *service.PipelineStatsService
	router *gin.Engine
	admin  string
	editor string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.New(t)
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	log := logger.NewNop()

	jwtCfg := config.JWTConfig{Secret: "handler-test", ExpireTime: 1}
	jwtService := auth.NewJWTService(jwtCfg)

	podcasts := repository.NewPodcastRepository(db)
	tasks := repository.NewExternalTaskRepository(db)
	stats := service.NewPipelineStatsService(podcasts, tasks, time.Minute)

	env := &testEnv{db: db, store: store, stats: stats}
	env.admin = env.token(t, jwtService, "root", model.RoleAdmin, "s3cret-pass")
	env.editor = env.token(t, jwtService, "ed", "editor", "editor-pass")

	r := gin.New()
	r.Any("/video-generation-callback",
		NewVideoCallbackHandler(service.NewVideoCallbackService(podcasts, tasks, log), stats, log).Handle)

	authHandler := NewAuthHandler(db, jwtCfg, jwtService)
	r.POST("/api/auth/login", authHandler.Login)

	api := r.Group("/api", middleware.JWTAuth(jwtService))
	api.GET("/me", authHandler.Me)

	categories := NewCategoryHandler(db, store, log)
	api.GET("/categories", categories.ListCategories)
	api.POST("/categories", categories.CreateCategory)
	api.PUT("/categories/:id", categories.UpdateCategory)
	api.DELETE("/categories/:id", categories.DeleteCategory)
	api.POST("/categories/:id/background", categories.UploadBackground)

	podcastHandler := NewPodcastHandler(db, store, stats, log)
	api.GET("/podcasts", podcastHandler.ListPodcasts)
	api.GET("/podcasts/statuses", podcastHandler.ListStatuses)
	api.GET("/podcasts/:id", podcastHandler.GetPodcast)
	api.POST("/podcasts", podcastHandler.CreatePodcast)
	api.PUT("/podcasts/:id", podcastHandler.UpdatePodcast)
	api.DELETE("/podcasts/:id", podcastHandler.DeletePodcast)
	api.POST("/podcasts/:id/audio", podcastHandler.UploadAudio)
	api.POST("/podcasts/:id/background", podcastHandler.UploadBackground)

	assets := NewAssetHandler(store, log)
	api.GET("/assets/*key", assets.GetAsset)
	api.DELETE("/assets/*key", assets.DeleteAsset)

	users := NewUserHandler(db)
	admin := api.Group("", middleware.RequireAdmin())
	admin.GET("/users", users.ListUsers)
	admin.POST("/users", users.CreateUser)
	admin.DELETE("/users/:id", users.DeleteUser)

	env.router = r
	return env
}

// token 创建指定角色的用户并签发令牌
func (e *testEnv) token(t *testing.T, jwtService *auth.JWTService, username, roleName, password string) string {
	t.Helper()

	role := model.Role{Name: roleName}
	require.NoError(t, e.db.Where(model.Role{Name: roleName}).FirstOrCreate(&role).Error)

	hash, err := utils.HashPassword(password)
	require.NoError(t, err)
	user := model.User{Username: username, Password: hash, IsActive: true, RoleID: &role.ID, Role: &role}
	require.NoError(t, e.db.Omit("Role").Create(&user).Error)

	token, err := jwtService.GenerateToken(&user)
	require.NoError(t, err)
	return "Bearer " + token
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, path, token, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(formFileField, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) category(t *testing.T, slug, background string) model.Category {
	t.Helper()
	c := model.Category{Name: slug, Slug: slug, DefaultBackgroundKey: background}
	require.NoError(t, e.db.Create(&c).Error)
	return c
}

func (e *testEnv) podcast(t *testing.T, p model.Podcast) model.Podcast {
	t.Helper()
	if p.Title == "" {
		p.Title = "episode"
	}
	if p.Status == "" {
		p.Status = model.PodcastStatusDraft
	}
	require.NoError(t, e.db.Create(&p).Error)
	return p
}

func (e *testEnv) reload(t *testing.T, id uint) model.Podcast {
	t.Helper()
	var p model.Podcast
	require.NoError(t, e.db.First(&p, id).Error)
	return p
}

// decode 解析统一响应，data 写入 out
func decode(t *testing.T, w *httptest.ResponseRecorder, out any) ApiResponse {
	t.Helper()
	var resp struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(resp.Data, out))
	}
	return ApiResponse{Code: resp.Code, Message: resp.Message}
}
