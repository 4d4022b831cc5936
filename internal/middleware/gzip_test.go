package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler отвечает телом запроса с тем же Content-Type.
func echoHandler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		defer r.Body.Close()

		if ct := r.Header.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.WriteHeader(status)
		if status != http.StatusNoContent {
			_, _ = w.Write(body)
		}
	}
}

func gzipBytes(t *testing.T, s string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return &buf
}

func TestGzipMiddleware(t *testing.T) {
	const clientJSON = `{"name":"Анна","phone":"+79991234567","balance":"100.00"}`

	tests := []struct {
		name           string
		status         int
		body           string
		compressedBody bool
		headers        map[string]string
		wantEncoding   string
		wantBody       string
	}{
		{
			name:         "json response compressed",
			status:       http.StatusOK,
			body:         clientJSON,
			headers:      map[string]string{"Accept-Encoding": "gzip", "Content-Type": "application/json"},
			wantEncoding: "gzip",
			wantBody:     clientJSON,
		},
		{
			name:         "client without gzip support",
			status:       http.StatusOK,
			body:         clientJSON,
			headers:      map[string]string{"Content-Type": "application/json"},
			wantEncoding: "",
			wantBody:     clientJSON,
		},
		{
			name:         "binary content left as is",
			status:       http.StatusOK,
			body:         "\x89PNG",
			headers:      map[string]string{"Accept-Encoding": "gzip", "Content-Type": "image/png"},
			wantEncoding: "",
			wantBody:     "\x89PNG",
		},
		{
			name:           "compressed request body",
			status:         http.StatusCreated,
			body:           clientJSON,
			compressedBody: true,
			headers: map[string]string{
				"Accept-Encoding":  "gzip",
				"Content-Encoding": "gzip",
				"Content-Type":     "application/json",
			},
			wantEncoding: "gzip",
			wantBody:     clientJSON,
		},
		{
			name:         "empty response without content type",
			status:       http.StatusNoContent,
			headers:      map[string]string{"Accept-Encoding": "gzip"},
			wantEncoding: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(tt.body)
			if tt.compressedBody {
				body = gzipBytes(t, tt.body)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/clients", body)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			GzipMiddleware(echoHandler(tt.status)).ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()

			require.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))

			reader := io.Reader(res.Body)
			if tt.wantEncoding == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				require.NoError(t, err)
				defer gr.Close()
				reader = gr
			}

			got, err := io.ReadAll(reader)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, string(got))
		})
	}
}

func TestGzipMiddleware_MalformedRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/clients", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()

	GzipMiddleware(echoHandler(http.StatusOK)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecompressRequest_PlainBodyUntouched(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/clients", strings.NewReader(`{"name":"Ann"}`))
	rec := httptest.NewRecorder()

	DecompressRequest(echoHandler(http.StatusOK)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"name":"Ann"}`, rec.Body.String())
}
