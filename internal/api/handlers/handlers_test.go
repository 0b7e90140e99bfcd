package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"instasend/mailer/internal/api/middleware"
	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/config"
)

var testIdentity = auth.Identity{UserID: "64b7f0c2a1b2c3d4e5f60718", Email: "ann@example.com", Name: "Ann"}

func testConfig() *config.Config {
	return &config.Config{
		JwtSecret:              "test-secret",
		JwtTTL:                 time.Hour,
		AttachmentMaxSizeMB:    1,
		AttachmentAllowedTypes: []string{"application/pdf"},
	}
}

// newRouter returns a test engine. With signedIn the caller is testIdentity,
// standing in for AuthMiddleware.
func newRouter(signedIn bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if signedIn {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.ContextKeyIdentity, testIdentity)
			c.Next()
		})
	}
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

type filePart struct {
	field, filename, contentType string
	data                         []byte
}

func doMultipart(t *testing.T, r http.Handler, path string, fields map[string]string, file *filePart) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+file.field+`"; filename="`+file.filename+`"`)
		h.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
