// Package api exposes the plugin admin HTTP control surface: register,
// list, inspect, enable, disable, reload and delete plugins managed by
// the plugin runtime, behind structured error responses and request
// tracing.
package api
