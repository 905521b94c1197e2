package http

import (
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/config"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

const recaptchaField = "g-recaptcha-response"

type recaptchaVerdict struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// RecaptchaMiddleware verifies the captcha answer of POST requests against the
// verification endpoint. Other methods pass through.
func RecaptchaMiddleware(cfg config.RecaptchaConfig, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Enabled || c.Method() != fiber.MethodPost {
			return c.Next()
		}

		var body struct {
			Response string `json:"g-recaptcha-response" form:"g-recaptcha-response"`
		}
		_ = c.BodyParser(&body)
		if body.Response == "" {
			body.Response = c.FormValue(recaptchaField)
		}

		query := url.Values{}
		query.Set("response", body.Response)
		query.Set("secret", cfg.Secret)

		agent := fiber.Post(cfg.VerifyURL)
		agent.QueryString(query.Encode())
		if cfg.Timeout > 0 {
			agent.Timeout(cfg.Timeout)
		}

		var verdict recaptchaVerdict
		status, _, errs := agent.Struct(&verdict)
		if len(errs) > 0 {
			logger.Warn("recaptcha verification failed", zap.Errors("errors", errs))
			return apperrors.NewForbidden("captcha verification failed")
		}
		if status != http.StatusOK || !verdict.Success {
			logger.Debug("recaptcha rejected", zap.Int("status", status), zap.Strings("codes", verdict.ErrorCodes))
			return apperrors.NewForbidden("captcha verification failed")
		}
		return c.Next()
	}
}
