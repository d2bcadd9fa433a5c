// Package ops provides net/http handlers for operating a running board: inspect tasks and
// LEDs, suspend or resume a task by name, simulate a button press, and change the log level.
//
// NewRouter mounts every handler on a chi router. The handlers can also be mounted
// individually; task and button names come from the chi {name} URL parameter, or from
// ?name= when mounted outside chi.
//
// # Formats
//
// Handlers render text by default. The default can be configured by options, and can be
// overridden per request by URL query:
//   - ?format=text
//   - ?format=json
//
// Text output is line-based and greppable: <kind>\t<name>\t<field>\t<value>.
//
// # Security notes
//
// The write endpoints change what the board does. Restrict them with TokenGuard (see
// RouterConfig.Tokens) and limit which tasks can be controlled with WithTaskAllowNames.
package ops
