// Package tracking signs open and click URLs, serves the public tracking
// endpoints and drains the engagement queue.
package tracking
