// Package broadcast fans poll snapshots out to live WebSocket sessions.
//
// The Registry is a mutex-guarded map from poll ID to the sessions watching it. The Broadcaster
// serializes Publish per poll, copies the subscriber set and hands the encoded snapshot to each
// session's bounded queue without blocking. A per-connection writer goroutine drains the queue
// under a write deadline. A full queue or failed write evicts that session only.
package broadcast
