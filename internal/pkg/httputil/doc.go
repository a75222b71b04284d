// Package httputil holds the JSON response helpers shared by the trigger,
// webhook and operator handlers, so every endpoint answers with the same
// envelope.
package httputil
