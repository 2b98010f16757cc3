// Package template manages reusable campaign content.
//
// At most one template per type is the default. That rule is enforced by
// SetDefault alone, never as a side effect of saving.
package template
