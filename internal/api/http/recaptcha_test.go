package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/config"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

func newVerifier(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("secret") == "s3cret" && r.URL.Query().Get("response") == "human" {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newRecaptchaApp(cfg config.RecaptchaConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Use(RecaptchaMiddleware(cfg, zap.NewNop()))
	ok := func(c *fiber.Ctx) error { return c.SendString("ok") }
	app.Get("/login", ok)
	app.Post("/login", ok)
	return app
}

func TestRecaptchaMiddleware(t *testing.T) {
	var calls atomic.Int32
	srv := newVerifier(t, &calls)
	app := newRecaptchaApp(config.RecaptchaConfig{Enabled: true, Secret: "s3cret", VerifyURL: srv.URL, Timeout: time.Second})

	tests := []struct {
		name        string
		method      string
		body        string
		contentType string
		want        int
	}{
		{"get skips verification", http.MethodGet, "", "", http.StatusOK},
		{"json answer accepted", http.MethodPost, `{"g-recaptcha-response":"human"}`, fiber.MIMEApplicationJSON, http.StatusOK},
		{"form answer accepted", http.MethodPost, "g-recaptcha-response=human", fiber.MIMEApplicationForm, http.StatusOK},
		{"wrong answer", http.MethodPost, `{"g-recaptcha-response":"robot"}`, fiber.MIMEApplicationJSON, http.StatusForbidden},
		{"missing answer", http.MethodPost, `{}`, fiber.MIMEApplicationJSON, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/login", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			require.Equal(t, tt.want, resp.StatusCode)
		})
	}
	require.Equal(t, int32(4), calls.Load())
}

func TestRecaptchaMiddleware_UnreachableVerifier(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	app := newRecaptchaApp(config.RecaptchaConfig{Enabled: true, Secret: "s3cret", VerifyURL: url, Timeout: time.Second})
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"g-recaptcha-response":"human"}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRecaptchaMiddleware_Disabled(t *testing.T) {
	app := newRecaptchaApp(config.RecaptchaConfig{})
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
