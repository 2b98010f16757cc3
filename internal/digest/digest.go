// Package digest turns the newest posts of the blog feed into a
// blog_digest campaign draft.
package digest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/mailer"
	"github.com/ignite/newsletter/internal/pkg/httpretry"
	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/service/campaign"
	"github.com/mmcdole/gofeed"
)

// ErrNoItems is returned when the feed has nothing newer than the cutoff.
var ErrNoItems = errors.New("no new feed items")

const summaryLimit = 280

const bodyTemplate = `<p>Here is what we published recently.</p>
{% for item in items %}
<div style="margin:24px 0;">
  {% if item.image_url != "" %}<img src="{{ item.image_url }}" alt="" style="max-width:100%;border-radius:4px;">{% endif %}
  <h2 style="margin:8px 0;font-size:20px;"><a href="{{ item.link }}" style="color:#1a1a1a;">{{ item.title | escape }}</a></h2>
  <p style="color:#666;font-size:13px;margin:0 0 8px;">{{ item.published | date_format: "Jan 2, 2006" }}{% if item.author != "" %} &middot; {{ item.author | escape }}{% endif %}</p>
  <p>{{ item.summary | escape }}</p>
  <p><a href="{{ item.link }}">Read more</a></p>
</div>
{% endfor %}`

// Item is one post pulled from the feed.
type Item struct {
	GUID      string
	Title     string
	Link      string
	Summary   string
	Author    string
	ImageURL  string
	Published time.Time
}

// CampaignCreator persists the generated draft.
type CampaignCreator interface {
	Create(ctx context.Context, in campaign.CreateInput) (*domain.Campaign, error)
}

// Builder fetches the feed and creates digest campaigns.
type Builder struct {
	http     *httpretry.Client
	parser   *gofeed.Parser
	renderer *mailer.Renderer
	creator  CampaignCreator
	feedURL  string
	maxItems int
}

// NewBuilder creates a digest builder for feedURL.
func NewBuilder(feedURL string, maxItems int, renderer *mailer.Renderer, creator CampaignCreator) *Builder {
	if maxItems <= 0 {
		maxItems = 5
	}
	return &Builder{
		http:     httpretry.New(nil, httpretry.Options{MaxRetries: 2}),
		parser:   gofeed.NewParser(),
		renderer: renderer,
		creator:  creator,
		feedURL:  feedURL,
		maxItems: maxItems,
	}
}

// Request controls one digest build.
type Request struct {
	Name         string            `json:"name"`
	Subject      string            `json:"subject"`
	Since        *time.Time        `json:"since,omitempty"`
	Target       domain.TargetRule `json:"target"`
	InterestTags []string          `json:"interest_tags,omitempty"`
}

// Fetch returns the newest items, newest first, capped at the configured
// maximum. Items published at or before since are dropped.
func (b *Builder) Fetch(ctx context.Context, since *time.Time) ([]Item, error) {
	if b.feedURL == "" {
		return nil, fmt.Errorf("digest feed url is not configured")
	}
	resp, err := b.http.Get(ctx, b.feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: status %d", resp.StatusCode)
	}
	feed, err := b.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]Item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		it := parseItem(fi)
		if since != nil && !it.Published.After(*since) {
			continue
		}
		items = append(items, it)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Published.After(items[j].Published) })
	if len(items) > b.maxItems {
		items = items[:b.maxItems]
	}
	return items, nil
}

// Build fetches the feed and stores a draft blog_digest campaign. The
// default audience is every eligible subscriber.
func (b *Builder) Build(ctx context.Context, req Request) (*domain.Campaign, error) {
	items, err := b.Fetch(ctx, req.Since)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	body, err := b.Render(items)
	if err != nil {
		return nil, err
	}

	target := req.Target
	if len(req.InterestTags) > 0 {
		target = domain.TargetRule{InterestTags: req.InterestTags}
	}
	if !target.SendToAll && len(target.InterestTags) == 0 && len(target.SubscriberIDs) == 0 {
		target.SendToAll = true
	}

	subject := req.Subject
	if subject == "" {
		subject = "New on the blog: " + items[0].Title
	}
	name := req.Name
	if name == "" {
		name = "Blog digest " + time.Now().UTC().Format("2006-01-02")
	}

	c, err := b.creator.Create(ctx, campaign.CreateInput{
		Name:        name,
		Type:        domain.CampaignBlogDigest,
		Subject:     escapeLiquid(subject),
		Preheader:   escapeLiquid(items[0].Title),
		HTMLContent: body,
		Target:      target,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("digest campaign created", "campaign_id", c.ID, "items", len(items))
	return c, nil
}

// Render produces the digest body for items.
func (b *Builder) Render(items []Item) (string, error) {
	vars := make([]map[string]interface{}, len(items))
	for i, it := range items {
		vars[i] = map[string]interface{}{
			"title":     it.Title,
			"link":      it.Link,
			"summary":   it.Summary,
			"author":    it.Author,
			"image_url": it.ImageURL,
			"published": it.Published,
		}
	}
	out, err := b.renderer.Render(bodyTemplate, map[string]interface{}{"items": vars})
	if err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return out, nil
}

func parseItem(fi *gofeed.Item) Item {
	it := Item{
		GUID:  fi.GUID,
		Title: escapeLiquid(strings.TrimSpace(fi.Title)),
		Link:  fi.Link,
	}
	if it.GUID == "" {
		it.GUID = fi.Link
	}

	summary := fi.Description
	if summary == "" {
		summary = fi.Content
	}
	it.Summary = escapeLiquid(truncate(mailer.StripHTML(summary), summaryLimit))

	switch {
	case fi.PublishedParsed != nil:
		it.Published = *fi.PublishedParsed
	case fi.UpdatedParsed != nil:
		it.Published = *fi.UpdatedParsed
	default:
		it.Published = time.Now().UTC()
	}

	if fi.Image != nil {
		it.ImageURL = fi.Image.URL
	} else {
		for _, enc := range fi.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") {
				it.ImageURL = enc.URL
				break
			}
		}
	}

	if len(fi.Authors) > 0 && fi.Authors[0] != nil {
		it.Author = fi.Authors[0].Name
	}
	return it
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

// escapeLiquid breaks template delimiters in feed text so the campaign
// body survives the per-recipient render unchanged.
func escapeLiquid(s string) string {
	s = strings.ReplaceAll(s, "{{", "{ {")
	return strings.ReplaceAll(s, "{%", "{ %")
}
