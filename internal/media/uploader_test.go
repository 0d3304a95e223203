package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/schooldesk/portal/internal/models"
	apperrors "github.com/schooldesk/portal/pkg/errors"
	"github.com/schooldesk/portal/pkg/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// imageHost fakes both the gateway signing endpoint and the bucket.
type imageHost struct {
	t            *testing.T
	srv          *httptest.Server
	signStatus   int
	// destroySignStatus overrides signStatus for destroy signatures
	destroySignStatus int
	bucketStatus []int // per DELETE/PUT attempt; last value repeats
	block        chan struct{}

	signCalls   atomic.Int32
	bucketCalls atomic.Int32
	uploaded    []byte
}

func newImageHost(t *testing.T) *imageHost {
	h := &imageHost{t: t, signStatus: http.StatusOK, bucketStatus: []int{http.StatusOK}}
	h.srv = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *imageHost) serve(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case SignaturePath:
		h.signCalls.Add(1)
		var req models.MediaSignatureRequest
		require.NoError(h.t, json.NewDecoder(r.Body).Decode(&req))

		status := h.signStatus
		if req.Operation == models.MediaOperationDestroy && h.destroySignStatus != 0 {
			status = h.destroySignStatus
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"Media not found"}`))
			return
		}

		sig := models.MediaSignature{Key: "profiles/u1/abc.png", ExpiresAt: time.Now().Add(time.Minute)}
		if req.Operation == models.MediaOperationUpload {
			assert.Equal(h.t, "image/png", req.ContentType)
			sig.Method = http.MethodPut
			sig.URL = h.srv.URL + "/bucket/profiles/u1/abc.png?X-Amz-Signature=x"
			sig.Headers = map[string]string{"Content-Type": req.ContentType}
			sig.PublicURL = "https://cdn.school.test/profiles/u1/abc.png"
		} else {
			sig.Key = req.Key
			sig.Method = http.MethodDelete
			sig.URL = h.srv.URL + "/bucket/" + req.Key + "?X-Amz-Signature=x"
		}
		_ = json.NewEncoder(w).Encode(sig)
	default:
		n := int(h.bucketCalls.Add(1)) - 1
		if h.block != nil {
			select {
			case <-h.block:
			case <-r.Context().Done():
			}
			return
		}
		if r.Method == http.MethodPut {
			assert.Equal(h.t, "image/png", r.Header.Get("Content-Type"))
			h.uploaded, _ = io.ReadAll(r.Body)
		}
		status := h.bucketStatus[len(h.bucketStatus)-1]
		if n < len(h.bucketStatus) {
			status = h.bucketStatus[n]
		}
		w.WriteHeader(status)
	}
}

func (h *imageHost) uploader(t *testing.T, timeout time.Duration) *Uploader {
	t.Helper()
	u, err := NewUploader(Options{
		GatewayURL:      h.srv.URL,
		HTTP:            httpclient.NewStandardClient(httpclient.Options{}),
		Timeout:         timeout,
		DeleteRetries:   2,
		DeleteBaseDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return u
}

func TestNewUploader_RequiresGateway(t *testing.T) {
	_, err := NewUploader(Options{HTTP: httpclient.NewStandardClient(httpclient.Options{})})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	u, err := NewUploader(Options{GatewayURL: "http://gw", HTTP: httpclient.NewStandardClient(httpclient.Options{}), MaxSize: 1024})
	require.NoError(t, err)

	mime, err := u.Validate(pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	_, err = u.Validate(nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = u.Validate([]byte("%PDF-1.7 not an image"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = u.Validate(append(pngBytes(t), make([]byte, 2048)...))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestUpload(t *testing.T) {
	host := newImageHost(t)
	data := pngBytes(t)

	img, err := host.uploader(t, time.Second).Upload(context.Background(), data, "me.png")
	require.NoError(t, err)
	assert.Equal(t, "profiles/u1/abc.png", img.Key)
	assert.Equal(t, "https://cdn.school.test/profiles/u1/abc.png", img.PublicURL)
	assert.Equal(t, len(data), img.Size)
	assert.Equal(t, data, host.uploaded)
}

func TestUpload_InvalidFileNeverSigns(t *testing.T) {
	host := newImageHost(t)

	_, err := host.uploader(t, time.Second).Upload(context.Background(), []byte("plain text"), "notes.txt")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Zero(t, host.signCalls.Load())
}

func TestUpload_Timeout(t *testing.T) {
	host := newImageHost(t)
	host.block = make(chan struct{})
	defer close(host.block)

	_, err := host.uploader(t, 50*time.Millisecond).Upload(context.Background(), pngBytes(t), "me.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUploadTimeout)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.False(t, errors.Is(err, apperrors.ErrNetwork), "timeout must not look like a network failure")
}

func TestUpload_HostFailureIsNetworkError(t *testing.T) {
	host := newImageHost(t)
	host.bucketStatus = []int{http.StatusBadGateway}

	_, err := host.uploader(t, time.Second).Upload(context.Background(), pngBytes(t), "me.png")
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
}

func TestDestroy_RetriesWithBackoff(t *testing.T) {
	host := newImageHost(t)
	host.bucketStatus = []int{http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusNoContent}

	require.NoError(t, host.uploader(t, time.Second).Destroy(context.Background(), "profiles/u1/old.png"))
	assert.Equal(t, int32(3), host.bucketCalls.Load())
}

func TestDestroy_GivesUpAfterRetries(t *testing.T) {
	host := newImageHost(t)
	host.bucketStatus = []int{http.StatusServiceUnavailable}

	err := host.uploader(t, time.Second).Destroy(context.Background(), "profiles/u1/old.png")
	require.Error(t, err)
	assert.Equal(t, int32(3), host.bucketCalls.Load(), "first attempt plus two retries")
}

func TestDestroy_UnknownKeyIsTolerated(t *testing.T) {
	host := newImageHost(t)
	host.destroySignStatus = http.StatusNotFound

	require.NoError(t, host.uploader(t, time.Second).Destroy(context.Background(), "profiles/u1/gone.png"))
	assert.Zero(t, host.bucketCalls.Load())
}

func TestDestroy_ForbiddenIsNotRetried(t *testing.T) {
	host := newImageHost(t)
	host.bucketStatus = []int{http.StatusForbidden}

	err := host.uploader(t, time.Second).Destroy(context.Background(), "profiles/u1/old.png")
	assert.ErrorIs(t, err, apperrors.ErrAccessDenied)
	assert.Equal(t, int32(1), host.bucketCalls.Load())
}

func TestReplace_DeleteFailureDoesNotBlockUpload(t *testing.T) {
	host := newImageHost(t)
	host.destroySignStatus = http.StatusInternalServerError

	img, err := host.uploader(t, time.Second).Replace(context.Background(), "profiles/u1/old.png", pngBytes(t), "me.png")
	require.NoError(t, err)
	assert.Equal(t, "profiles/u1/abc.png", img.Key)
	assert.Equal(t, int32(2), host.signCalls.Load())
	assert.Equal(t, int32(1), host.bucketCalls.Load(), "only the upload reaches the bucket")
}

func TestReplace_UploadFailureIsReturned(t *testing.T) {
	host := newImageHost(t)
	host.bucketStatus = []int{http.StatusNoContent, http.StatusInternalServerError}

	_, err := host.uploader(t, time.Second).Replace(context.Background(), "profiles/u1/old.png", pngBytes(t), "me.png")
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
}
