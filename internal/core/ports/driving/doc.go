// Package driving is the API the CLI, the MCP server, the webhook
// listener, the watcher and the scheduler call into. Its
// implementations live in internal/core/services.
package driving
