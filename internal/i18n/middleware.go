package i18n

import "net/http"

// Middleware injects a localizer into every request context. A "lang"
// cookie naming a loaded locale takes precedence over lang.
func Middleware(lang string) func(http.Handler) http.Handler {
	fallback := NewLocalizer(lang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := fallback
			if c, err := r.Cookie("lang"); err == nil && c.Value != lang && isLoaded(c.Value) {
				loc = NewLocalizer(c.Value, lang)
			}
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), loc)))
		})
	}
}

func isLoaded(lang string) bool {
	for _, l := range languages {
		if l == lang {
			return true
		}
	}
	return false
}
