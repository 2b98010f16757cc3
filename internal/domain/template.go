package domain

import "time"

// TemplateType groups templates; at most one template per type is the default.
type TemplateType string

const (
	TemplateNewsletter       TemplateType = "newsletter"
	TemplateWelcome          TemplateType = "welcome"
	TemplateBlogNotification TemplateType = "blog_notification"
	TemplateDigest           TemplateType = "digest"
	TemplateAnnouncement     TemplateType = "announcement"
	TemplateCustom           TemplateType = "custom"
)

// Template is reusable campaign content.
type Template struct {
	ID              string       `json:"id" db:"id"`
	Name            string       `json:"name" db:"name"`
	Type            TemplateType `json:"template_type" db:"template_type"`
	Description     string       `json:"description" db:"description"`
	SubjectTemplate string       `json:"subject_template" db:"subject_template"`
	HTMLContent     string       `json:"html_content" db:"html_content"`
	PlainContent    string       `json:"plain_text_content" db:"plain_text_content"`
	IsActive        bool         `json:"is_active" db:"is_active"`
	IsDefault       bool         `json:"is_default" db:"is_default"`
	TimesUsed       int          `json:"times_used" db:"times_used"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}
