// Package app wires every other package into one running proxy: it owns
// the construction order (config → upstream manager → aggregator → router
// → inbound transports → authorization core → health checker) and the
// process lifecycle (start, watch for config changes, shut down cleanly).
//
// # Construction order
//
// Bootstrap builds the dependency graph bottom-up:
//
//  1. Logging is initialized first so every later step can log.
//  2. The initial config.Snapshot is loaded from Config.ConfigPath.
//  3. upstream.Manager is created and started against that snapshot.
//  4. aggregator.Aggregator is created over the manager (Run starts it).
//  5. session.Registry and router.Router are created; Run starts the
//     router so it begins bridging aggregator list-changed events.
//  6. internal/transport's capability syncer and MCP server are built from
//     the router and aggregator.
//  7. oauth.Server is constructed, if authorization is enabled, with its
//     KnownTags callback closing over router.Router.AllTags.
//  8. health.Checker is constructed with its statuses callback closing
//     over upstream.Manager.Snapshot.
//
// Run then starts serving (stdio, or streamable HTTP/SSE) and watches the
// config file for changes until its context is canceled, at which point
// every component is stopped in reverse construction order.
package app
