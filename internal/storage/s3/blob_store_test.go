package s3

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		f.body, _ = io.ReadAll(params.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestPutObjectSniffsContentType(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{}
	store := newWithClient(fake, Config{Bucket: "images", Endpoint: "https://proj.supabase.co/storage/v1/s3"})

	url, err := store.PutObject(context.Background(), "featured/a.png", "", pngHeader)
	require.NoError(t, err)
	require.Equal(t, "https://proj.supabase.co/storage/v1/s3/images/featured/a.png", url)
	require.Equal(t, "image/png", aws.ToString(fake.input.ContentType))
	require.Equal(t, "featured/a.png", aws.ToString(fake.input.Key))
	require.Equal(t, pngHeader, fake.body)
}

func TestPutObjectURLs(t *testing.T) {
	t.Parallel()

	store := newWithClient(&fakeS3{}, Config{Bucket: "images"})
	url, err := store.PutObject(context.Background(), "a.png", "image/png", pngHeader)
	require.NoError(t, err)
	require.Equal(t, "https://images.s3.amazonaws.com/a.png", url)

	store = newWithClient(&fakeS3{}, Config{Bucket: "images", PublicBaseURL: "https://cdn.example.com/"})
	url, err = store.PutObject(context.Background(), "a.png", "image/png", pngHeader)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/a.png", url)
}

func TestPutObjectError(t *testing.T) {
	t.Parallel()

	store := newWithClient(&fakeS3{err: errors.New("denied")}, Config{Bucket: "images"})
	_, err := store.PutObject(context.Background(), "a.png", "image/png", pngHeader)
	require.ErrorContains(t, err, "denied")
}
