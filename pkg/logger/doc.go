// Package logger builds configured slog.Logger instances and provides typed
// attribute helpers so the rest of the codebase logs consistent keys
// (event_id, user_id, product_id, component) without string literals
// scattered across packages.
//
// Defaults are production-safe: JSON output at INFO level. Development setups
// switch to text format via LOG_FORMAT=text.
package logger
