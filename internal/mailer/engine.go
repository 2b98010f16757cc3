package mailer

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/osteele/liquid"
)

// Renderer handles Liquid template rendering with a parse cache keyed by
// template text.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the newsletter's custom filters.
func NewRenderer() *Renderer {
	r := &Renderer{engine: liquid.NewEngine()}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// {{ subscriber.first_name | default: "there" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	r.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	})

	// {{ post.summary | truncate: 120 }}
	r.engine.RegisterFilter("truncate", func(s string, length int) string {
		if len(s) <= length {
			return s
		}
		if length <= 3 {
			return s[:length]
		}
		return s[:length-3] + "..."
	})

	r.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	r.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	// {{ post.published | date_format: "Jan 2, 2006" }}
	r.engine.RegisterFilter("date_format", func(value interface{}, layout string) string {
		switch v := value.(type) {
		case time.Time:
			return v.Format(layout)
		case *time.Time:
			if v == nil {
				return ""
			}
			return v.Format(layout)
		case string:
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return v
			}
			return t.Format(layout)
		}
		return fmt.Sprintf("%v", value)
	})
}

// Render parses (or reuses) tpl and renders it with vars.
func (r *Renderer) Render(tpl string, vars map[string]interface{}) (string, error) {
	if !strings.Contains(tpl, "{{") && !strings.Contains(tpl, "{%") {
		return tpl, nil
	}

	key := cacheKey(tpl)
	var t *liquid.Template
	if cached, ok := r.cache.Load(key); ok {
		t = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(tpl)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		r.cache.Store(key, parsed)
		t = parsed
	}

	out, err := t.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// Validate reports a parse error in tpl without rendering it.
func (r *Renderer) Validate(tpl string) error {
	if _, err := r.engine.ParseString(tpl); err != nil {
		return err
	}
	return nil
}

func cacheKey(tpl string) string {
	sum := md5.Sum([]byte(tpl))
	return hex.EncodeToString(sum[:])
}
