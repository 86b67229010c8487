// Package view reconciles consumer state with live messages. A view is seeded
// from the REST API and then patched by every message a Subscription
// delivers. Messages that do not concern the view are ignored.
package view
