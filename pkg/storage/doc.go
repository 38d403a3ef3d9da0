/*
Package storage provides the embedded, transactional key-value store
backing the change tracker, the scheduled-job manager, and the state
store.

It wraps go.etcd.io/bbolt: one bucket per logical collection
(tracked_specs, change_history, executions, state_store), values
JSON-encoded, reads and writes transactional and safe for concurrent
use by multiple goroutines. The database survives process restart; the
in-memory caches layered on top of it (pkg/tracker) are reloaded from
it on startup.

Consumers call Put/Get/Delete for keyed collections and AppendOnly for
the append-only change_history and executions collections, rather than
reaching into bbolt transactions directly — Update is exposed only for
operations that must batch several writes atomically (batch_update_tracker).
*/
package storage
