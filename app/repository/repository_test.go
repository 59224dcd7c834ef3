package repository

import (
	"context"
	"testing"
	"time"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/database/dbtest"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedPodcast(t *testing.T, db *gorm.DB, p model.Podcast) model.Podcast {
	t.Helper()
	if p.CategoryID == 0 {
		p.CategoryID = 1
	}
	if p.Title == "" {
		p.Title = "episode"
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func ptr[T any](v T) *T { return &v }

func TestFindEligibleForVideo_Ordering(t *testing.T) {
	db := dbtest.New(t)
	repo := NewPodcastRepository(db)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)
	t2 := t1.Add(24 * time.Hour)

	b := seedPodcast(t, db, model.Podcast{Title: "B", Status: model.PodcastStatusAudioGenerated, SourceAudioKey: "b.mp3", CreatedAt: t0})
	c := seedPodcast(t, db, model.Podcast{Title: "C", Status: model.PodcastStatusAudioGenerated, SourceAudioKey: "c.mp3", ScheduledPublishAt: ptr(t2), CreatedAt: t0.Add(time.Hour)})
	a := seedPodcast(t, db, model.Podcast{Title: "A", Status: model.PodcastStatusAudioGenerated, SourceAudioKey: "a.mp3", ScheduledPublishAt: ptr(t1), CreatedAt: t0.Add(2 * time.Hour)})

	// 不符合条件
	seedPodcast(t, db, model.Podcast{Title: "no audio", Status: model.PodcastStatusAudioGenerated, ScheduledPublishAt: ptr(t0)})
	seedPodcast(t, db, model.Podcast{Title: "draft", Status: model.PodcastStatusDraft, SourceAudioKey: "d.mp3", ScheduledPublishAt: ptr(t0)})

	got, err := repo.FindEligibleForVideo(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []uint{a.ID, c.ID, b.ID}, []uint{got[0].ID, got[1].ID, got[2].ID})

	got, err = repo.FindEligibleForVideo(context.Background(), 0, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	got, err = repo.FindEligibleForVideo(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)
}

func TestFindEligibleForVideo_TieBrokenByCreatedAt(t *testing.T) {
	db := dbtest.New(t)
	repo := NewPodcastRepository(db)

	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	later := seedPodcast(t, db, model.Podcast{Status: model.PodcastStatusAudioGenerated, SourceAudioKey: "1.mp3", ScheduledPublishAt: ptr(when), CreatedAt: when.Add(-time.Hour)})
	earlier := seedPodcast(t, db, model.Podcast{Status: model.PodcastStatusAudioGenerated, SourceAudioKey: "2.mp3", ScheduledPublishAt: ptr(when), CreatedAt: when.Add(-2 * time.Hour)})

	got, err := repo.FindEligibleForVideo(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, earlier.ID, got[0].ID)
	assert.Equal(t, later.ID, got[1].ID)
}

func TestFirstByStatus(t *testing.T) {
	db := dbtest.New(t)
	repo := NewPodcastRepository(db)

	_, err := repo.FirstByStatus(context.Background(), model.PodcastStatusGenerating)
	require.ErrorIs(t, err, ErrNotFound)

	p := seedPodcast(t, db, model.Podcast{Status: model.PodcastStatusGenerating})
	got, err := repo.FirstByStatus(context.Background(), model.PodcastStatusGenerating)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestMarkGenerating(t *testing.T) {
	db := dbtest.New(t)
	repo := NewPodcastRepository(db)
	ctx := context.Background()

	first := seedPodcast(t, db, model.Podcast{Status: model.PodcastStatusAudioGenerated, SourceAudioKey: "1.mp3"})
	second := seedPodcast(t, db, model.Podcast{Status: model.PodcastStatusAudioGenerated, SourceAudioKey: "2.mp3"})

	n, err := repo.MarkGenerating(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PodcastStatusGenerating, got.Status)
	assert.NotNil(t, got.LastStatusChangeAt)

	// 已有播客在生成中，第二个不能进入 generating
	n, err = repo.MarkGenerating(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err = repo.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PodcastStatusAudioGenerated, got.Status)
}

func TestMarkGenerating_WrongStatus(t *testing.T) {
	db := dbtest.New(t)
	repo := NewPodcastRepository(db)

	p := seedPodcast(t, db, model.Podcast{Status: model.PodcastStatusGeneratingAudio, SourceAudioKey: "1.mp3"})

	n, err := repo.MarkGenerating(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestTransitionStatus(t *testing.T) {
	db := dbtest.New(t)
	repo := NewPodcastRepository(db)
	ctx := context.Background()

	p := seedPodcast(t, db, model.Podcast{Status: model.PodcastStatusGenerating, SourceAudioKey: "1.mp3"})

	n, err := repo.TransitionStatus(ctx, p.ID, model.PodcastStatusGenerating, model.PodcastStatusGenerated,
		map[string]interface{}{"video_bucket_key": "videos/1.mp4"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PodcastStatusGenerated, got.Status)
	assert.Equal(t, "videos/1.mp4", got.VideoBucketKey)

	// 当前状态已不是 generating
	n, err = repo.TransitionStatus(ctx, p.ID, model.PodcastStatusGenerating, model.PodcastStatusAudioGenerated, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = repo.TransitionStatus(ctx, p.ID, model.PodcastStatusDraft, model.PodcastStatusPublished, nil)
	require.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestCountByStatus(t *testing.T) {
	db := dbtest.New(t)
	repo := NewPodcastRepository(db)

	seedPodcast(t, db, model.Podcast{Status: model.PodcastStatusDraft})
	seedPodcast(t, db, model.Podcast{Status: model.PodcastStatusDraft})
	seedPodcast(t, db, model.Podcast{Status: model.PodcastStatusGenerating})

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Len(t, counts, len(model.PodcastStatuses))
	assert.Equal(t, int64(2), counts[model.PodcastStatusDraft])
	assert.Equal(t, int64(1), counts[model.PodcastStatusGenerating])
	assert.Equal(t, int64(0), counts[model.PodcastStatusPublished])
}

func TestFindGeneratingSince(t *testing.T) {
	db := dbtest.New(t)
	repo := NewPodcastRepository(db)

	now := time.Now()
	old := seedPodcast(t, db, model.Podcast{Status: model.PodcastStatusGenerating, LastStatusChangeAt: ptr(now.Add(-3 * time.Hour))})
	seedPodcast(t, db, model.Podcast{Status: model.PodcastStatusGenerating, LastStatusChangeAt: ptr(now.Add(-time.Minute))})

	got, err := repo.FindGeneratingSince(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, old.ID, got[0].ID)
}

func TestExternalTaskRepository(t *testing.T) {
	db := dbtest.New(t)
	repo := NewExternalTaskRepository(db)
	ctx := context.Background()

	task, err := model.NewExternalServiceTask("ext-1", model.VideoGenerationPayload{PodcastID: 7})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, task))

	_, err = repo.FindByExternalID(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	got, err := repo.FindByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExternalTaskStatusProcessing, got.Status)

	n, err := repo.Finish(ctx, "ext-1", model.ExternalTaskStatusError, "render failed")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// 终态不会被覆盖
	n, err = repo.Finish(ctx, "ext-1", model.ExternalTaskStatusCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err = repo.FindByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExternalTaskStatusError, got.Status)
	assert.Equal(t, "render failed", got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)

	counts, err := repo.CountByStatus(ctx, model.TaskTypeVideoGeneration)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.ExternalTaskStatusError])
	assert.Equal(t, int64(0), counts[model.ExternalTaskStatusProcessing])
}

func TestCategoryRepository_DefaultBackgroundKey(t *testing.T) {
	db := dbtest.New(t)
	repo := NewCategoryRepository(db)

	cat := model.Category{Name: "Tech", Slug: "tech", DefaultBackgroundKey: "bg/tech.jpg"}
	require.NoError(t, db.Create(&cat).Error)

	key, err := repo.DefaultBackgroundKey(context.Background(), cat.ID)
	require.NoError(t, err)
	assert.Equal(t, "bg/tech.jpg", key)

	_, err = repo.DefaultBackgroundKey(context.Background(), cat.ID+100)
	require.ErrorIs(t, err, ErrNotFound)
}
