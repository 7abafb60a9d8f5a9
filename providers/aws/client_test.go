package aws

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGetter struct {
	bucket, key string
	body        string
	err         error
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket, f.key = *in.Bucket, *in.Key
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestParseS3URI(t *testing.T) {
	bucket, key, err := ParseS3URI("s3://zk-params/kzg/17.params")
	require.NoError(t, err)
	assert.Equal(t, "zk-params", bucket)
	assert.Equal(t, "kzg/17.params", key)

	for _, bad := range []string{"https://x/y", "s3://bucket", "s3:///key", "::"} {
		_, _, err := ParseS3URI(bad)
		assert.Error(t, err, bad)
	}
}

func TestS3SourceFetch(t *testing.T) {
	getter := &fakeGetter{body: "params"}
	src, err := NewS3Source(&Client{s3Client: getter}, "s3://zk-params/kzg.params")
	require.NoError(t, err)
	assert.Equal(t, "s3://zk-params/kzg.params", src.String())

	rc, err := src.Fetch(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "params", string(data))
	assert.Equal(t, "zk-params", getter.bucket)
	assert.Equal(t, "kzg.params", getter.key)

	getter.err = errors.New("access denied")
	_, err = src.Fetch(context.Background())
	assert.ErrorContains(t, err, "access denied")
}
