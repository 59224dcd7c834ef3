package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/database/dbtest"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/repository"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/utils/videogen"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

const testCallbackURL = "http://admin.test/video-generation-callback"

// fakeVideoService 模拟外部视频生成服务
type fakeVideoService struct {
	mu           sync.Mutex
	healthStatus int
	genStatus    int
	genBody      string
	onGenerate   func()
	healthCalls  int
	requests     []videogen.GenerateVideoRequest
	nextID       int
}

func (f *fakeVideoService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/health":
		f.healthCalls++
		w.WriteHeader(f.healthStatus)
	case "/generate-video":
		var req videogen.GenerateVideoRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.requests = append(f.requests, req)
		if f.onGenerate != nil {
			f.onGenerate()
		}
		w.WriteHeader(f.genStatus)
		if f.genBody != "" {
			_, _ = w.Write([]byte(f.genBody))
			return
		}
		f.nextID++
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": fmt.Sprintf("task-%d", f.nextID)})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeVideoService) generateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type harness struct {
	db         *gorm.DB
	podcasts   *repository.PodcastRepository
	tasks      *repository.ExternalTaskRepository
	video      *fakeVideoService
	dispatcher *VideoGenerationService
	callbacks  *VideoCallbackService
	logs       *observer.ObservedLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := dbtest.New(t)
	video := &fakeVideoService{healthStatus: http.StatusOK, genStatus: http.StatusOK}
	srv := httptest.NewServer(video)
	t.Cleanup(srv.Close)

	client := videogen.New(srv.URL, "test-key", 5*time.Second)
	t.Cleanup(func() { _ = client.Close() })

	core, logs := observer.New(zap.DebugLevel)
	log := logger.FromZap(zap.New(core))

	podcasts := repository.NewPodcastRepository(db)
	tasks := repository.NewExternalTaskRepository(db)

	return &harness{
		db:       db,
		podcasts: podcasts,
		tasks:    tasks,
		video:    video,
		dispatcher: NewVideoGenerationService(podcasts, tasks, repository.NewCategoryRepository(db), client, log,
			VideoGenerationOptions{CallbackURL: testCallbackURL, CandidateLimit: 10, StaleAfter: time.Hour}),
		callbacks: NewVideoCallbackService(podcasts, tasks, log),
		logs:      logs,
	}
}

func (h *harness) category(t *testing.T, slug, defaultBackground string) model.Category {
	t.Helper()
	c := model.Category{Name: slug, Slug: slug, DefaultBackgroundKey: defaultBackground}
	require.NoError(t, h.db.Create(&c).Error)
	return c
}

func (h *harness) podcast(t *testing.T, p model.Podcast) model.Podcast {
	t.Helper()
	if p.Title == "" {
		p.Title = "episode"
	}
	if p.Status == "" {
		p.Status = model.PodcastStatusAudioGenerated
	}
	require.NoError(t, h.db.Create(&p).Error)
	return p
}

func (h *harness) status(t *testing.T, id uint) model.PodcastStatus {
	t.Helper()
	var p model.Podcast
	require.NoError(t, h.db.First(&p, id).Error)
	return p.Status
}

func (h *harness) taskCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&model.ExternalServiceTask{}).Count(&n).Error)
	return n
}

func ptr[T any](v T) *T { return &v }
