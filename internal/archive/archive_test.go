package archive

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectAPI struct {
	puts    []*s3.PutObjectInput
	bodies  []string
	putErr  error
	headErr error
}

func (f *fakeObjectAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, params)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestNewArchiver(t *testing.T) {
	a := NewArchiver(Config{
		Endpoint:    "https://account.r2.cloudflarestorage.com",
		Region:      "auto",
		Bucket:      "renders",
		AccessKeyID: "key",
		SecretKey:   "secret",
		Prefix:      "cowsay",
	})

	assert.NotNil(t, a.client)
	assert.Equal(t, "renders", a.bucket)
	assert.Equal(t, "cowsay/", a.prefix)
}

func TestArchiver_Key(t *testing.T) {
	a := newArchiver(&fakeObjectAPI{}, Config{Bucket: "b"})
	key := a.Key("Moo!")

	assert.Regexp(t, `^renders/[0-9a-f]{64}\.txt$`, key)
	assert.Equal(t, key, a.Key("Moo!"))
	assert.NotEqual(t, key, a.Key("Baa!"))

	prefixed := newArchiver(&fakeObjectAPI{}, Config{Bucket: "b", Prefix: "env/prod/"})
	assert.Equal(t, "env/prod/"+key, prefixed.Key("Moo!"))
}

func TestArchiver_Store(t *testing.T) {
	fake := &fakeObjectAPI{}
	a := newArchiver(fake, Config{Bucket: "renders"})

	key, err := a.Store(context.Background(), "Moo!", "< Moo! >")
	require.NoError(t, err)
	assert.Equal(t, a.Key("Moo!"), key)

	require.Len(t, fake.puts, 1)
	put := fake.puts[0]
	assert.Equal(t, "renders", aws.ToString(put.Bucket))
	assert.Equal(t, key, aws.ToString(put.Key))
	assert.Equal(t, "text/plain; charset=utf-8", aws.ToString(put.ContentType))
	assert.Equal(t, "4", put.Metadata["text-length"])
	assert.Equal(t, "< Moo! >", fake.bodies[0])
}

func TestArchiver_StoreError(t *testing.T) {
	a := newArchiver(&fakeObjectAPI{putErr: errors.New("access denied")}, Config{Bucket: "renders"})

	key, err := a.Store(context.Background(), "Moo!", "out")
	require.Error(t, err)
	assert.Empty(t, key)
	assert.Contains(t, err.Error(), "failed to archive")
	assert.Contains(t, err.Error(), "access denied")
}

func TestArchiver_CheckHealth(t *testing.T) {
	ok := newArchiver(&fakeObjectAPI{}, Config{Bucket: "renders"})
	assert.NoError(t, ok.CheckHealth(context.Background()))

	down := newArchiver(&fakeObjectAPI{headErr: errors.New("no such bucket")}, Config{Bucket: "renders"})
	err := down.CheckHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive bucket renders unreachable")
}
