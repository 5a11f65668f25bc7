// Package ime is the input method engine that a platform front-end drives.
//
// # Architecture Overview
//
// A front-end (IBus, TSF, IMKit or a test harness) converts native key
// events into Key values and hands them to Engine.ProcessKey. The engine
// owns one composing machine and one candidate resolver, and routes each
// key through them:
//
//	Key ─→ Engine.ProcessKey
//	          │
//	          ├─ letters ─→ compose.Machine ─→ scheme ─→ candidate.Source
//	          │                                              │
//	          ├─ space / digits ─→ candidate.Resolver.Pick ←─┘
//	          │                         │
//	          │                         └─→ following words
//	          └─ enter / escape / delete / paging
//	                    │
//	                    ↓
//	              compose.TextSink (host)
//
// # Schemas
//
// SelectSchema opens a schema document and derives everything that depends
// on it: the composing scheme, the candidate source and, for the Cangjie and
// Zhuyin table schemes, the packed tables loaded in the background. The
// result is an immutable snapshot that replaces the previous one in a
// single atomic store. Readers holding the old snapshot finish with it.
//
//	┌──────────┬──────────────────┬─────────────────────────────────┐
//	│ Engine   │ Scheme           │ Candidate source                │
//	├──────────┼──────────────────┼─────────────────────────────────┤
//	│ cangjie  │ compose.Cangjie  │ packed code table (+ phrases)   │
//	│ zhuyin   │ compose.Zhuyin   │ packed syllable table (+ phr.)  │
//	│ script   │ compose.Script   │ sqlite full-text dictionary     │
//	└──────────┴──────────────────┴─────────────────────────────────┘
//
// # Keys
//
// While composing, space picks the highlighted candidate, enter commits
// the typed code, escape drops it and delete removes its last unit. Digits
// 1-9 pick from the page when the scheme does not take them. Any other
// printable key commits the top candidate and then itself. After a pick
// the resolver shows the words that commonly follow it.
//
// # Sessions
//
// Start begins a session for a new field. Every session gets a random id
// that tags the engine's log records; typed codes and committed text are
// redacted from logs unless the logging configuration allows them.
package ime
