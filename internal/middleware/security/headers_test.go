package security

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaders(t *testing.T) {
	tests := []struct {
		name     string
		cfg      HeadersConfig
		wantHSTS bool
		wantCSP  string
	}{
		{
			name:     "production",
			cfg:      HeadersConfig{AllowedOrigins: []string{"https://app.bank.example"}},
			wantHSTS: true,
			wantCSP:  "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; connect-src 'self' https://app.bank.example",
		},
		{
			name:    "development",
			cfg:     HeadersConfig{IsDevelopment: true},
			wantCSP: "default-src 'none'; frame-ancestors 'none'; base-uri 'none'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(HeadersMiddleware(tt.cfg))
			app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)

			assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
			assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
			assert.Equal(t, tt.wantCSP, resp.Header.Get("Content-Security-Policy"))
			assert.Equal(t, tt.wantHSTS, resp.Header.Get("Strict-Transport-Security") != "")
		})
	}
}
