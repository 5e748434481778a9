// Package gateway orchestrates the altair-gateway server components.
//
// # Overview
//
// The Gateway owns the store, the plugin registry with its built-ins, the
// capability aggregator, the tool-call dispatcher, the installer, and the
// session manager, and serves them over one HTTP listener (plain TCP or a
// Tailscale tsnet node).
//
// # Routes
//
// Public:
//
//	GET    /health                      liveness
//	GET    /health/ready                preference store reachable
//	GET    /api/plugins                 catalog with enabled flags
//	GET    /api/plugins/{id}
//	GET    /api/model/config            model setup payload for a new connection
//	GET    /api/guidance[?format=html]  system-instruction briefing
//	GET    /api/todos[?list=NAME]       todo list written by the todo plugin
//	GET    /api/timers                  running timers
//	GET    /api/sessions
//	POST   /api/sessions                open a session (snapshots the model config)
//	GET    /api/sessions/{id}
//	DELETE /api/sessions/{id}           close; pending acknowledgements are dropped
//	POST   /api/sessions/{id}/toolcall  {"functionCalls":[...]}
//	GET    /api/sessions/{id}/acks      SSE stream of "tool_response" events
//
// Operator (bearer JWT when auth.jwt_secret is set):
//
//	POST   /api/plugins                 create a template-cloned plugin
//	PUT    /api/plugins/{id}/enabled    {"enabled": bool}
//	DELETE /api/plugins/{id}            uninstall (built-ins are refused)
//	POST   /api/plugins/install         multipart "file" or {"url": ...}
//	GET    /api/installs[?limit=N]      install audit trail
//
// # Errors
//
// Errors are JSON objects {"error": "..."}. Validation and parse failures map
// to 400, protected built-ins to 403, unknown plugins or sessions to 404, and
// an install with no template available to 409.
package gateway
