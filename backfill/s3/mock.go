package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// -----------------------------------------------------------------------------
// Mock S3 Client for Testing
// -----------------------------------------------------------------------------

type mockObject struct {
	data     []byte
	etag     string
	modified time.Time
}

// MockS3Client is a test double for API.
type MockS3Client struct {
	mu      sync.RWMutex
	objects map[string]mockObject

	// Call counters for test assertions
	HeadObjectCalls int
	GetObjectCalls  int

	// HeadObjectErr, when set, is returned by every HeadObject call.
	HeadObjectErr error

	openBodies int
}

// NewMockS3Client creates a new mock S3 client for testing.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		objects: make(map[string]mockObject),
	}
}

// Put stores data under key, replacing any previous object.
func (m *MockS3Client) Put(key string, data []byte) {
	sum := md5.Sum(data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = mockObject{
		data:     append([]byte(nil), data...),
		etag:     `"` + hex.EncodeToString(sum[:]) + `"`,
		modified: time.Now().UTC(),
	}
}

// OpenBodies returns the number of GetObject bodies not yet closed.
func (m *MockS3Client) OpenBodies() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openBodies
}

// ResetCounts resets call counters for test isolation.
func (m *MockS3Client) ResetCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HeadObjectCalls = 0
	m.GetObjectCalls = 0
}

// HeadObject implements API.HeadObject for testing.
func (m *MockS3Client) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	m.HeadObjectCalls++
	headErr := m.HeadObjectErr
	obj, exists := m.objects[key]
	m.mu.Unlock()

	if headErr != nil {
		return nil, headErr
	}
	if !exists {
		return nil, &types.NotFound{}
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ETag:          aws.String(obj.etag),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

// GetObject implements API.GetObject for testing.
func (m *MockS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetObjectCalls++
	obj, exists := m.objects[key]
	if !exists {
		return nil, &types.NoSuchKey{}
	}
	if ifMatch := aws.ToString(params.IfMatch); ifMatch != "" && ifMatch != obj.etag {
		return nil, &smithyAPIError{code: "PreconditionFailed", message: "etag mismatch"}
	}

	m.openBodies++
	return &s3.GetObjectOutput{
		Body:          &trackedBody{Reader: bytes.NewReader(obj.data), client: m},
		ContentLength: aws.Int64(int64(len(obj.data))),
		ETag:          aws.String(obj.etag),
	}, nil
}

// trackedBody counts itself closed exactly once.
type trackedBody struct {
	io.Reader
	client *MockS3Client
	closed bool
}

func (b *trackedBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.client.mu.Lock()
	b.client.openBodies--
	b.client.mu.Unlock()
	return nil
}

// smithyAPIError implements smithy.APIError for testing.
type smithyAPIError struct {
	code    string
	message string
}

// NewAPIError returns a smithy.APIError with the given code, for tests
// that inject backend failures.
func NewAPIError(code, message string) error {
	return &smithyAPIError{code: code, message: message}
}

func (e *smithyAPIError) Error() string {
	return e.message
}

func (e *smithyAPIError) ErrorCode() string {
	return e.code
}

func (e *smithyAPIError) ErrorMessage() string {
	return e.message
}

func (e *smithyAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultUnknown
}
