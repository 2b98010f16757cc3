package mailer

import (
	"html"
	"regexp"
	"strings"
)

// Layout is the data wrapped around every campaign body.
type Layout struct {
	Title          string
	Preheader      string
	Brand          string
	Greeting       string
	Body           string
	TrackingPixel  string
	UnsubscribeURL string
	SiteURL        string
}

const layoutTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{ title | escape }}</title>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
.container { max-width: 600px; margin: 0 auto; padding: 20px; }
.header { background-color: #f8f9fa; padding: 20px; text-align: center; }
.content { padding: 20px; }
.footer { background-color: #f8f9fa; padding: 20px; text-align: center; font-size: 12px; color: #666; }
.unsubscribe { margin-top: 20px; }
.unsubscribe a { color: #666; text-decoration: none; }
</style>
</head>
<body>
{% if preheader != "" %}<div style="display:none;max-height:0;overflow:hidden;">{{ preheader | escape }}</div>{% endif %}
<div class="container">
<div class="header"><h1>{{ brand | escape }}</h1></div>
<div class="content">
<h2>Hello {{ greeting | escape }}!</h2>
{{ body }}
</div>
<div class="footer">
<p>You received this email because you subscribed to the {{ brand | escape }} newsletter.</p>
<div class="unsubscribe"><a href="{{ unsubscribe_url }}">Unsubscribe</a></div>
</div>
</div>
{{ tracking_pixel }}
</body>
</html>
`

// Wrap renders the standard HTML layout around l.Body.
func (r *Renderer) Wrap(l Layout) (string, error) {
	pixel := ""
	if l.TrackingPixel != "" {
		pixel = `<img src="` + l.TrackingPixel + `" width="1" height="1" alt="" style="display:none;">`
	}
	return r.Render(layoutTemplate, map[string]interface{}{
		"title":           l.Title,
		"preheader":       l.Preheader,
		"brand":           l.Brand,
		"greeting":        l.Greeting,
		"body":            l.Body,
		"tracking_pixel":  pixel,
		"unsubscribe_url": l.UnsubscribeURL,
		"site_url":        l.SiteURL,
	})
}

var (
	headPattern  = regexp.MustCompile(`(?is)<(head|style|script)[^>]*>.*?</(head|style|script)>`)
	tagPattern   = regexp.MustCompile(`<[^<]+?>`)
	spacePattern = regexp.MustCompile(`\s+`)
	hrefPattern  = regexp.MustCompile(`(?i)href="(https?://[^"]+)"`)
)

// StripHTML converts HTML to a single line of plain text. Head, style and
// script blocks are dropped with their content.
func StripHTML(s string) string {
	s = headPattern.ReplaceAllString(s, " ")
	s = tagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// RewriteLinks replaces every absolute http(s) href in body with the
// result of wrap. Links wrap returns unchanged are left alone.
func RewriteLinks(body string, wrap func(string) string) string {
	return hrefPattern.ReplaceAllStringFunc(body, func(m string) string {
		sub := hrefPattern.FindStringSubmatch(m)
		if len(sub) < 2 {
			return m
		}
		return `href="` + wrap(sub[1]) + `"`
	})
}
