// Package storage persists what the bot needs across restarts:
//   - OAuth client credentials, one per server contacted (created lazily)
//   - An append-only journal of boost cycle summaries
package storage
