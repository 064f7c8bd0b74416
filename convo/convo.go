// Package convo holds application-wide defaults shared across the engine,
// configuration, and storage layers.
package convo

const (
	// DefaultAppName is used for config lookup paths and user-facing labels.
	DefaultAppName = "convoengine"

	// DefaultConfigPath is the fallback directory searched for config files.
	DefaultConfigPath = "/etc/convoengine"

	// DefaultDatabaseDir is where embedded session databases are created when
	// no explicit path is configured.
	DefaultDatabaseDir = "./data"

	// DefaultDatabasePath is the embedded libsql file backing durable sessions.
	DefaultDatabasePath = "./data/sessions.db"
)

// DefaultPromptTemplate primes the model for the JSON reply protocol the
// engine parses. It is rendered with at least the variable `ha_name` bound to
// the configured site name.
const DefaultPromptTemplate = `You are the voice assistant for a smart home named {{.ha_name}}.
Answer every request with a single JSON object and nothing else.
The object must contain the key "comment" holding the sentence to speak to the user.
When the user asks for an action, also include the key "command" holding an object
with string fields "domain" and "service" and an object field "data" describing the call.
If no action is needed, omit "command" entirely.`
