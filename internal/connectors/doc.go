// Package connectors holds the adapters that reach the repositories a
// document belongs to. Each subpackage implements the ContentSource port
// for one kind of location and may also feed triggers into the engine:
// github over the API and webhooks, filesystem over a local checkout.
package connectors
