// Package confloader loads ussal configuration with koanf.
//
// Sources, later overriding earlier:
//
//  1. Defaults already present in the target struct
//  2. YAML configuration file
//  3. Environment variables (USSAL_ prefix)
//  4. Explicit overrides passed with LoadMap, typically from flags
//
// Environment names are matched against the target's koanf tags, so
// USSAL_SERVER_MAX_SESSIONS sets server.max_sessions.
//
// Watcher reports changes to the configuration file. The server uses it to
// apply log.level at runtime; every other setting takes effect on restart.
package confloader
