package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseCurlCommand(t *testing.T) {
	tt := []struct {
		name        string
		curlCmd     string
		wantHeaders map[string]string
		wantCookie  string
		wantErr     bool
	}{
		{
			name:        "single header with single quotes",
			curlCmd:     `curl -H 'Authorization: Bearer token123' http://localhost:8000/api/me/`,
			wantHeaders: map[string]string{"Authorization": "Bearer token123"},
		},
		{
			name:        "single header with double quotes",
			curlCmd:     `curl -H "Authorization: Bearer token123" http://localhost:8000/api/me/`,
			wantHeaders: map[string]string{"Authorization": "Bearer token123"},
		},
		{
			name:    "long flag names",
			curlCmd: `curl --header 'Accept: application/json' --cookie 'refresh=r1' http://localhost:8000/api/me/`,
			wantHeaders: map[string]string{
				"Accept": "application/json",
			},
			wantCookie: "refresh=r1",
		},
		{
			name:        "cookie in -b flag",
			curlCmd:     `curl -b 'refresh=abc123' http://localhost:8000/api/me/`,
			wantHeaders: map[string]string{},
			wantCookie:  "refresh=abc123",
		},
		{
			name:    "cookie header is excluded from regular headers",
			curlCmd: `curl -H 'Cookie: refresh=abc123' -H 'Authorization: Bearer token' http://localhost:8000/api/me/`,
			wantHeaders: map[string]string{
				"Authorization": "Bearer token",
			},
			wantCookie: "refresh=abc123",
		},
		{
			name:        "-b cookie takes precedence over -H cookie",
			curlCmd:     `curl -H 'Cookie: refresh=old' -b 'refresh=new' http://localhost:8000/api/me/`,
			wantHeaders: map[string]string{},
			wantCookie:  "refresh=new",
		},
		{
			name: "multiline curl with backslashes",
			curlCmd: `curl 'http://localhost:8000/api/workouts/' \
  -H 'accept: application/json, text/plain, */*' \
  -H 'authorization: Bearer eyJhbGciOi' \
  -b 'csrftoken=x1; refresh=r2'`,
			wantHeaders: map[string]string{
				"accept":        "application/json, text/plain, */*",
				"authorization": "Bearer eyJhbGciOi",
			},
			wantCookie: "csrftoken=x1; refresh=r2",
		},
		{
			name:    "no headers or cookies",
			curlCmd: `curl http://localhost:8000/api/me/`,
			wantErr: true,
		},
		{
			name:    "empty command",
			curlCmd: "",
			wantErr: true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ParseCurlCommand(tc.curlCmd)

			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseCurlCommand() error = %v, wantErr %v", err, tc.wantErr)
			}

			if tc.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				return
			}

			if len(result.Headers) != len(tc.wantHeaders) {
				t.Errorf("ParseCurlCommand() headers count = %v, want %v", len(result.Headers), len(tc.wantHeaders))
			}

			for key, want := range tc.wantHeaders {
				if got := result.Headers[key]; got != want {
					t.Errorf("ParseCurlCommand() header[%s] = %v, want %v", key, got, want)
				}
			}

			if result.Cookie != tc.wantCookie {
				t.Errorf("ParseCurlCommand() cookie = %v, want %v", result.Cookie, tc.wantCookie)
			}
		})
	}
}

func TestParseCurlFile(t *testing.T) {
	t.Run("successful file parse", func(t *testing.T) {
		curlFile := filepath.Join(t.TempDir(), "curl.sh")

		curlCmd := `curl -H 'Authorization: Bearer token123' -b 'refresh=r9' http://localhost:8000/api/me/`
		if err := os.WriteFile(curlFile, []byte(curlCmd), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}

		result, err := ParseCurlFile(curlFile)
		if err != nil {
			t.Fatalf("ParseCurlFile() error = %v", err)
		}

		if result.BearerToken() != "token123" {
			t.Errorf("BearerToken() = %v, want token123", result.BearerToken())
		}
		if result.CookieValue("refresh") != "r9" {
			t.Errorf("CookieValue(refresh) = %v, want r9", result.CookieValue("refresh"))
		}
	})

	t.Run("file does not exist", func(t *testing.T) {
		if _, err := ParseCurlFile("/nonexistent/file.sh"); err == nil {
			t.Error("ParseCurlFile() expected error for nonexistent file")
		}
	})
}

func TestCurlHeaders(t *testing.T) {
	t.Run("BearerToken", func(t *testing.T) {
		tc := []struct {
			name    string
			headers map[string]string
			want    string
		}{
			{"canonical header", map[string]string{"Authorization": "Bearer abc"}, "abc"},
			{"lowercase scheme", map[string]string{"authorization": "bearer abc"}, "abc"},
			{"other scheme", map[string]string{"Authorization": "Basic dTpw"}, ""},
			{"missing", map[string]string{"Accept": "*/*"}, ""},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				h := &CurlHeaders{Headers: tt.headers}
				if got := h.BearerToken(); got != tt.want {
					t.Errorf("BearerToken() = %q, want %q", got, tt.want)
				}
			})
		}
	})

	t.Run("Cookies", func(t *testing.T) {
		h := &CurlHeaders{Cookie: "csrftoken=x1; refresh=r2"}
		cookies := h.Cookies()
		if len(cookies) != 2 {
			t.Fatalf("expected 2 cookies, got %d", len(cookies))
		}
		if h.CookieValue("csrftoken") != "x1" {
			t.Errorf("unexpected csrftoken value %q", h.CookieValue("csrftoken"))
		}
		if h.CookieValue("sessionid") != "" {
			t.Error("missing cookie should be empty")
		}
	})

	t.Run("Cookies empty", func(t *testing.T) {
		h := &CurlHeaders{}
		if h.Cookies() != nil {
			t.Error("expected nil cookies")
		}
	})
}
