package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"podcasts/1/audio.mp3", "podcasts/1/audio.mp3", false},
		{"/podcasts//1/./audio.mp3", "podcasts/1/audio.mp3", false},
		{"", "", true},
		{"  ", "", true},
		{"..", "", true},
		{"../etc/passwd", "", true},
		{"a/../../b", "", true},
	}

	for _, tt := range tests {
		got, err := CleanKey(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidKey, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewKey(t *testing.T) {
	key := NewKey("podcasts/7/audio", "MP3")
	assert.True(t, strings.HasPrefix(key, "podcasts/7/audio/"), key)
	assert.True(t, strings.HasSuffix(key, ".mp3"), key)
	assert.NotEqual(t, key, NewKey("podcasts/7/audio", "MP3"))
}

func TestLocalStore_RoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "podcasts/1/bg.jpg", strings.NewReader("jpeg-bytes"), "image/jpeg"))

	obj, err := store.Get(ctx, "podcasts/1/bg.jpg")
	require.NoError(t, err)
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
	assert.Equal(t, int64(len("jpeg-bytes")), obj.Size)
	assert.Equal(t, "image/jpeg", obj.ContentType)

	// 覆盖写入
	require.NoError(t, store.Put(ctx, "podcasts/1/bg.jpg", strings.NewReader("v2"), "image/jpeg"))
	obj2, err := store.Get(ctx, "podcasts/1/bg.jpg")
	require.NoError(t, err)
	data, _ = io.ReadAll(obj2.Body)
	_ = obj2.Body.Close()
	assert.Equal(t, "v2", string(data))

	require.NoError(t, store.Delete(ctx, "podcasts/1/bg.jpg"))
	_, err = store.Get(ctx, "podcasts/1/bg.jpg")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.Delete(ctx, "podcasts/1/bg.jpg"), ErrNotFound)
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = store.Put(context.Background(), "../outside.txt", strings.NewReader("x"), "")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestNew_LocalDriver(t *testing.T) {
	store, err := New(context.Background(), config.StorageConfig{Driver: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	_, err = New(context.Background(), config.StorageConfig{Driver: "ftp"})
	require.Error(t, err)
}

func TestNew_S3Driver(t *testing.T) {
	store, err := New(context.Background(), config.StorageConfig{
		Driver: "s3",
		S3: config.S3Config{
			Bucket:          "media",
			Region:          "us-east-1",
			Endpoint:        "http://127.0.0.1:9000",
			AccessKeyID:     "minio",
			SecretAccessKey: "minio123",
		},
	})
	require.NoError(t, err)
	assert.IsType(t, &S3Store{}, store)
}
