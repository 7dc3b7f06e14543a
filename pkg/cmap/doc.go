// Package cmap provides a sharded concurrent map keyed by string.
//
// ussal uses it for registries that are written on connect and disconnect
// and read by status and shutdown paths: live job sessions and per-client
// rate limiters. Each shard has its own RWMutex, so unrelated keys do not
// contend.
//
//	m := cmap.New[*session]()
//	if !m.SetIfAbsent(id, s) { ... }
//	defer m.Delete(id)
//	m.Range(func(id string, s *session) bool { s.cancel(); return true })
package cmap
