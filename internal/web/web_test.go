package web

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/authdemo/internal/logging"
)

func newTestRouter(t *testing.T, buf *bytes.Buffer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.New(buf, "debug", "text")

	router := gin.New()
	router.SetHTMLTemplate(MustTemplates())
	router.Use(RequestID(), RequestLogger(logger), ErrorPages(logger))
	router.NoRoute(NotFound)
	return router
}

func TestTemplatesEscapeInput(t *testing.T) {
	tmpl := MustTemplates()

	var out bytes.Buffer
	err := tmpl.ExecuteTemplate(&out, "home.html", gin.H{
		"Authenticated": true,
		"Username":      "<script>alert(1)</script>",
	})
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "<script>")
	assert.Contains(t, out.String(), "&lt;script&gt;")
}

func TestEveryPageTemplateRenders(t *testing.T) {
	tmpl := MustTemplates()
	for _, name := range []string{
		"home.html", "signup.html", "signup_done.html", "login.html", "loggedin.html",
		"members.html", "contact.html", "subscribed.html", "nosql.html", "error.html",
	} {
		var out bytes.Buffer
		require.NoError(t, tmpl.ExecuteTemplate(&out, name, gin.H{}), name)
		assert.Contains(t, out.String(), "</html>", name)
	}
}

func TestStaticFSServesImages(t *testing.T) {
	f, err := StaticFS().Open("cat1.svg")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<svg"))
}

func TestAbortRendersErrorPage(t *testing.T) {
	var logs bytes.Buffer
	router := newTestRouter(t, &logs)
	router.GET("/boom", func(c *gin.Context) {
		Abort(c, errors.New("redis: connection refused"))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Something went wrong")
	assert.NotContains(t, rec.Body.String(), "redis", "internal error must not leak")
	assert.Contains(t, logs.String(), "connection refused")
}

func TestNotFound(t *testing.T) {
	var logs bytes.Buffer
	router := newTestRouter(t, &logs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/no/such/page", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Page not found - 404", rec.Body.String())
}

func TestRequestID(t *testing.T) {
	var logs bytes.Buffer
	router := newTestRouter(t, &logs)
	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?secret=value", nil))
	id := rec.Header().Get(requestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "request_id="+id)
	assert.NotContains(t, logs.String(), "secret=value")

	given := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, given)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, given, rec.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "not a uuid\nX-Evil: 1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.NotEqual(t, "not a uuid\nX-Evil: 1", rec.Header().Get(requestIDHeader))
}
