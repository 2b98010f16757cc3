// Package mailer renders campaign email and hands it to a mail transport.
//
// Rendering uses the Liquid template language so campaign authors can
// personalize subject and body ({{ subscriber.first_name | default: "there" }}).
// Transports: SES for production, a Redis-paced wrapper for any
// transport, and a log-only transport for local runs.
package mailer
