// Package mcp exposes feature control to agents as MCP tools.
//
// Tools:
//   - feature_list: features and progress for a project
//   - feature_active: the feature currently in progress
//   - feature_next: activate the next pending feature
//   - feature_complete: force-complete the active or a named feature
//   - reattribute_preview: dry-run the offline reattribution job
//
// The server runs over stdio and calls the tracker and reattribution
// packages directly.
package mcp
