package service

import (
	"context"
	"errors"
	"testing"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// dispatchOne 创建一个播客并调度，返回播客与外部任务 ID
func dispatchOne(t *testing.T, h *harness) (model.Podcast, string) {
	t.Helper()
	cat := h.category(t, "cat-"+t.Name(), "bg/default.jpg")
	p := h.podcast(t, model.Podcast{CategoryID: cat.ID, SourceAudioKey: "audio.mp3"})

	res := h.dispatcher.TriggerVideoGeneration(context.Background())
	require.Equal(t, DispatchDispatched, res.Outcome)
	require.Equal(t, p.ID, res.PodcastID)
	return p, res.TaskID
}

func TestCallback_Completed(t *testing.T) {
	h := newHarness(t)
	p, taskID := dispatchOne(t, h)

	res, err := h.callbacks.HandleCallback(context.Background(), CallbackRequest{
		TaskID: taskID, Status: CallbackStatusCompleted, VideoBucketKey: "videos/out.mp4",
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, res.PodcastID)
	assert.Equal(t, model.PodcastStatusGenerated, res.PodcastStatus)
	assert.False(t, res.AlreadyFinished)

	got, err := h.podcasts.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PodcastStatusGenerated, got.Status)
	assert.Equal(t, "videos/out.mp4", got.VideoBucketKey)

	task, err := h.tasks.FindByExternalID(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, model.ExternalTaskStatusCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)
}

func TestCallback_ErrorRegressesForRetry(t *testing.T) {
	h := newHarness(t)
	p, taskID := dispatchOne(t, h)

	res, err := h.callbacks.HandleCallback(context.Background(), CallbackRequest{
		TaskID: taskID, Status: CallbackStatusError, Error: "ffmpeg crashed",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PodcastStatusAudioGenerated, res.PodcastStatus)
	assert.Equal(t, model.PodcastStatusAudioGenerated, h.status(t, p.ID))

	task, err := h.tasks.FindByExternalID(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, model.ExternalTaskStatusError, task.Status)
	assert.Equal(t, "ffmpeg crashed", task.ErrorMessage)

	// 下一轮重新选中同一播客
	next := h.dispatcher.TriggerVideoGeneration(context.Background())
	require.Equal(t, DispatchDispatched, next.Outcome)
	assert.Equal(t, p.ID, next.PodcastID)
	assert.NotEqual(t, taskID, next.TaskID)
}

func TestCallback_UnknownTask(t *testing.T) {
	h := newHarness(t)
	p, _ := dispatchOne(t, h)

	_, err := h.callbacks.HandleCallback(context.Background(), CallbackRequest{
		TaskID: "nope", Status: CallbackStatusCompleted, VideoBucketKey: "videos/x.mp4",
	})
	require.ErrorIs(t, err, ErrTaskNotFound)
	assert.Equal(t, model.PodcastStatusGenerating, h.status(t, p.ID))
}

func TestCallback_CompletedWithoutVideoKey(t *testing.T) {
	h := newHarness(t)
	p, taskID := dispatchOne(t, h)

	_, err := h.callbacks.HandleCallback(context.Background(), CallbackRequest{TaskID: taskID, Status: CallbackStatusCompleted})
	require.ErrorIs(t, err, ErrInvalidCallback)

	got, err := h.podcasts.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PodcastStatusGenerating, got.Status)
	assert.Empty(t, got.VideoBucketKey)

	task, err := h.tasks.FindByExternalID(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, model.ExternalTaskStatusProcessing, task.Status)
}

func TestCallback_RequiredFields(t *testing.T) {
	h := newHarness(t)

	_, err := h.callbacks.HandleCallback(context.Background(), CallbackRequest{Status: CallbackStatusCompleted})
	require.ErrorIs(t, err, ErrInvalidCallback)

	_, err = h.callbacks.HandleCallback(context.Background(), CallbackRequest{TaskID: "task-1"})
	require.ErrorIs(t, err, ErrInvalidCallback)
}

func TestCallback_UnexpectedStatus(t *testing.T) {
	h := newHarness(t)
	p, taskID := dispatchOne(t, h)

	_, err := h.callbacks.HandleCallback(context.Background(), CallbackRequest{TaskID: taskID, Status: "running"})
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, model.PodcastStatusGenerating, h.status(t, p.ID))
}

func TestCallback_MalformedCorrelationData(t *testing.T) {
	h := newHarness(t)

	bad := &model.ExternalServiceTask{
		ExternalTaskID: "bad-1",
		Type:           model.TaskTypeVideoGeneration,
		Data:           datatypes.JSON(`{"episode":3}`),
		Status:         model.ExternalTaskStatusProcessing,
	}
	require.NoError(t, h.tasks.Create(context.Background(), bad))

	_, err := h.callbacks.HandleCallback(context.Background(), CallbackRequest{
		TaskID: "bad-1", Status: CallbackStatusCompleted, VideoBucketKey: "videos/x.mp4",
	})
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestCallback_PodcastMissing(t *testing.T) {
	h := newHarness(t)

	task, err := model.NewExternalServiceTask("orphan-1", model.VideoGenerationPayload{PodcastID: 4242})
	require.NoError(t, err)
	require.NoError(t, h.tasks.Create(context.Background(), task))

	_, err = h.callbacks.HandleCallback(context.Background(), CallbackRequest{
		TaskID: "orphan-1", Status: CallbackStatusCompleted, VideoBucketKey: "videos/x.mp4",
	})
	require.ErrorIs(t, err, ErrPodcastNotFound)

	got, err := h.tasks.FindByExternalID(context.Background(), "orphan-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExternalTaskStatusProcessing, got.Status)
}

func TestCallback_DuplicateIsNoOp(t *testing.T) {
	h := newHarness(t)
	p, taskID := dispatchOne(t, h)

	req := CallbackRequest{TaskID: taskID, Status: CallbackStatusCompleted, VideoBucketKey: "videos/first.mp4"}
	_, err := h.callbacks.HandleCallback(context.Background(), req)
	require.NoError(t, err)

	// 重复投递，且内容不同，也不会再次修改
	res, err := h.callbacks.HandleCallback(context.Background(), CallbackRequest{
		TaskID: taskID, Status: CallbackStatusError, Error: "late failure",
	})
	require.NoError(t, err)
	assert.True(t, res.AlreadyFinished)

	got, err := h.podcasts.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PodcastStatusGenerated, got.Status)
	assert.Equal(t, "videos/first.mp4", got.VideoBucketKey)

	task, err := h.tasks.FindByExternalID(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, model.ExternalTaskStatusCompleted, task.Status)
}

// flakyFinishStore 第一次关闭关联记录时失败
type flakyFinishStore struct {
	*repository.ExternalTaskRepository
	failed bool
}

func (f *flakyFinishStore) Finish(ctx context.Context, externalTaskID string, status model.ExternalTaskStatus, errMsg string) (int64, error) {
	if !f.failed {
		f.failed = true
		return 0, errors.New("database is locked")
	}
	return f.ExternalTaskRepository.Finish(ctx, externalTaskID, status, errMsg)
}

func TestCallback_RedeliveryAfterRecordUpdateFailed(t *testing.T) {
	h := newHarness(t)
	p, taskID := dispatchOne(t, h)
	callbacks := NewVideoCallbackService(h.podcasts, &flakyFinishStore{ExternalTaskRepository: h.tasks}, logger.NewNop())

	req := CallbackRequest{TaskID: taskID, Status: CallbackStatusCompleted, VideoBucketKey: "videos/out.mp4"}
	res, err := callbacks.HandleCallback(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.AlreadyFinished)

	task, err := h.tasks.FindByExternalID(context.Background(), taskID)
	require.NoError(t, err)
	require.Equal(t, model.ExternalTaskStatusProcessing, task.Status)

	// 关联记录仍是 processing，重复投递按幂等处理并补写终态
	res, err = callbacks.HandleCallback(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.AlreadyFinished)
	assert.Equal(t, model.PodcastStatusGenerated, res.PodcastStatus)

	got, err := h.podcasts.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PodcastStatusGenerated, got.Status)
	assert.Equal(t, "videos/out.mp4", got.VideoBucketKey)

	task, err = h.tasks.FindByExternalID(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, model.ExternalTaskStatusCompleted, task.Status)
}

func TestCallback_ErrorRedeliveryWhileRecordProcessing(t *testing.T) {
	h := newHarness(t)
	p, taskID := dispatchOne(t, h)

	req := CallbackRequest{TaskID: taskID, Status: CallbackStatusError, Error: "render failed"}
	_, err := h.callbacks.HandleCallback(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, h.db.Model(&model.ExternalServiceTask{}).Where("external_task_id = ?", taskID).
		Update("status", model.ExternalTaskStatusProcessing).Error)

	res, err := h.callbacks.HandleCallback(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.AlreadyFinished)
	assert.Equal(t, model.PodcastStatusAudioGenerated, h.status(t, p.ID))

	task, err := h.tasks.FindByExternalID(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, model.ExternalTaskStatusError, task.Status)
}

func TestCallback_PodcastMovedOnIsIgnored(t *testing.T) {
	h := newHarness(t)
	p, taskID := dispatchOne(t, h)

	// 运营人员手动把播客改回草稿
	require.NoError(t, h.db.Model(&model.Podcast{}).Where("id = ?", p.ID).
		Update("status", model.PodcastStatusDraft).Error)

	res, err := h.callbacks.HandleCallback(context.Background(), CallbackRequest{
		TaskID: taskID, Status: CallbackStatusCompleted, VideoBucketKey: "videos/x.mp4",
	})
	require.NoError(t, err)
	assert.True(t, res.Ignored)

	got, err := h.podcasts.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PodcastStatusDraft, got.Status)
	assert.Empty(t, got.VideoBucketKey)

	task, err := h.tasks.FindByExternalID(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, model.ExternalTaskStatusCompleted, task.Status)
}

func TestRoundTrip_StatusSequence(t *testing.T) {
	h := newHarness(t)
	cat := h.category(t, "tech", "bg/tech.jpg")
	p := h.podcast(t, model.Podcast{CategoryID: cat.ID, SourceAudioKey: "audio.mp3"})

	seen := []model.PodcastStatus{h.status(t, p.ID)}

	res := h.dispatcher.TriggerVideoGeneration(context.Background())
	require.Equal(t, DispatchDispatched, res.Outcome)
	seen = append(seen, h.status(t, p.ID))

	_, err := h.callbacks.HandleCallback(context.Background(), CallbackRequest{
		TaskID: res.TaskID, Status: CallbackStatusCompleted, VideoBucketKey: "videos/final.mp4",
	})
	require.NoError(t, err)
	seen = append(seen, h.status(t, p.ID))

	assert.Equal(t, []model.PodcastStatus{
		model.PodcastStatusAudioGenerated,
		model.PodcastStatusGenerating,
		model.PodcastStatusGenerated,
	}, seen)
}
