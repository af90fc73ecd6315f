package imagecache

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) objectKey(bucket, key *string) string {
	return aws.StringValue(bucket) + "/" + aws.StringValue(key)
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[f.objectKey(in.Bucket, in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "missing", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.objectKey(in.Bucket, in.Key)
	f.objects[key] = data
	f.types[key] = aws.StringValue(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, f.objectKey(in.Bucket, in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// exerciseCache runs the behaviour every Cache implementation shares.
func exerciseCache(t *testing.T, cache Cache) {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()

	_, err := cache.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, cache.Put(ctx, id, []byte("first")))
	require.NoError(t, cache.Put(ctx, id, []byte("second")))
	got, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	require.NoError(t, cache.Delete(ctx, id))
	_, err = cache.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, cache.Delete(ctx, id), "deleting an absent image succeeds")

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		ids[i] = uuid.New()
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			assert.NoError(t, cache.Put(ctx, id, []byte(id.String())))
		}(ids[i])
	}
	wg.Wait()
	for _, id := range ids {
		got, err := cache.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []byte(id.String()), got)
	}
}

func TestBadger(t *testing.T) {
	cache, err := NewBadger(t.TempDir(), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, cache.Close()) })

	exerciseCache(t, cache)
}

func TestS3(t *testing.T) {
	client := newFakeS3()
	cache := NewS3WithClient(client, "bucket", "previews", quietLogger())

	exerciseCache(t, cache)
}

func TestS3_KeyLayout(t *testing.T) {
	client := newFakeS3()
	cache := NewS3WithClient(client, "bucket", "previews", quietLogger())
	id := uuid.New()
	png := []byte("\x89PNG\r\n\x1a\n0000")

	require.NoError(t, cache.Put(context.Background(), id, png))

	key := "bucket/previews/" + id.String()
	assert.Contains(t, client.objects, key)
	assert.Equal(t, "image/png", client.types[key])
}
