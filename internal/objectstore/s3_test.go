package objectstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockObjectAPI records the region each call was made in.
type MockObjectAPI struct {
	mock.Mock
	bodies []string
}

func regionOf(optFns []func(*s3.Options)) string {
	var o s3.Options
	for _, fn := range optFns {
		fn(&o)
	}
	return o.Region
}

func (m *MockObjectAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(params.Body)
	m.bodies = append(m.bodies, string(body))
	args := m.Called(ctx, *params.Key, regionOf(optFns))
	if out, ok := args.Get(0).(*s3.PutObjectOutput); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockObjectAPI) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	args := m.Called(ctx, *params.Bucket)
	if out, ok := args.Get(0).(*s3.HeadBucketOutput); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockPresigner struct {
	mock.Mock
}

func (m *MockPresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	args := m.Called(ctx, *params.Key, o.Expires)
	if out, ok := args.Get(0).(*v4.PresignedHTTPRequest); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestStore(api objectAPI) *S3Store {
	return &S3Store{api: api, bucket: "church-feedback", http: http.DefaultClient}
}

func redirectErr() error {
	return &smithy.GenericAPIError{
		Code:    "PermanentRedirect",
		Message: "The bucket you are attempting to access must be addressed using the specified endpoint: church-feedback.s3.eu-west-1.amazonaws.com",
	}
}

func TestUploadRetriesOnceInRedirectedRegion(t *testing.T) {
	api := &MockObjectAPI{}
	api.On("PutObject", mock.Anything, "feedback/1/a", "").Return(nil, redirectErr()).Once()
	api.On("PutObject", mock.Anything, "feedback/1/a", "eu-west-1").Return(&s3.PutObjectOutput{}, nil).Once()

	store := newTestStore(api)
	err := store.Upload(context.Background(), []byte("jpeg"), "feedback/1/a", "image/jpeg")
	require.NoError(t, err)
	api.AssertExpectations(t)
	assert.Equal(t, []string{"jpeg", "jpeg"}, api.bodies, "body must be resent in full")

	// the learned region sticks
	api.On("PutObject", mock.Anything, "feedback/1/b", "eu-west-1").Return(&s3.PutObjectOutput{}, nil).Once()
	require.NoError(t, store.Upload(context.Background(), []byte("x"), "feedback/1/b", ""))
	api.AssertExpectations(t)
}

func TestUploadDoesNotRetryTwice(t *testing.T) {
	api := &MockObjectAPI{}
	api.On("PutObject", mock.Anything, "k", mock.Anything).Return(nil, redirectErr()).Twice()

	err := newTestStore(api).Upload(context.Background(), []byte("x"), "k", "")
	require.Error(t, err)
	var redirect *RedirectError
	assert.True(t, errors.As(err, &redirect))
	api.AssertNumberOfCalls(t, "PutObject", 2)
}

func TestUploadOtherErrorsAreNotRetried(t *testing.T) {
	api := &MockObjectAPI{}
	api.On("PutObject", mock.Anything, "k", "").Return(nil, &smithy.GenericAPIError{Code: "AccessDenied"}).Once()

	err := newTestStore(api).Upload(context.Background(), []byte("x"), "k", "")
	require.Error(t, err)
	var redirect *RedirectError
	assert.False(t, errors.As(err, &redirect))
	api.AssertNumberOfCalls(t, "PutObject", 1)
}

func TestUploadRedirectWithoutRegionAsksBucket(t *testing.T) {
	api := &MockObjectAPI{}
	api.On("PutObject", mock.Anything, "k", "").Return(nil, &smithy.GenericAPIError{Code: "PermanentRedirect"}).Once()
	api.On("HeadBucket", mock.Anything, "church-feedback").Return(nil, errors.New("forbidden")).Once()

	err := newTestStore(api).Upload(context.Background(), []byte("x"), "k", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve region")
	api.AssertExpectations(t)
}

func TestUploadFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer srv.Close()

	api := &MockObjectAPI{}
	api.On("PutObject", mock.Anything, "feedback/7/doc", "").Return(&s3.PutObjectOutput{}, nil).Once()
	store := newTestStore(api)

	require.NoError(t, store.UploadFromURL(context.Background(), srv.URL+"/file", "feedback/7/doc", ""))
	assert.Equal(t, []string{"%PDF"}, api.bodies)

	err := store.UploadFromURL(context.Background(), srv.URL+"/missing", "feedback/7/none", "")
	assert.Error(t, err)
	api.AssertExpectations(t)
}

func TestSignedReadURL(t *testing.T) {
	p := &MockPresigner{}
	p.On("PresignGetObject", mock.Anything, "feedback/1/a", 15*time.Minute).
		Return(&v4.PresignedHTTPRequest{URL: "https://signed.example/a"}, nil).Once()

	store := newTestStore(&MockObjectAPI{})
	store.presign = p

	url, err := store.SignedReadURL(context.Background(), "feedback/1/a", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/a", url)
}

func TestAsRedirect(t *testing.T) {
	assert.Nil(t, asRedirect(errors.New("plain")))

	r := asRedirect(redirectErr())
	require.NotNil(t, r)
	assert.Equal(t, "eu-west-1", r.Region)
}
