// Package config loads the application property file: process settings (log
// level, gateway address, NATS connection) and the predefined graphs the app
// can start by name or automatically at startup.
//
// Values decode from JSON, then environment variables prefixed AGENTGRAPH_
// override individual fields, then the whole configuration is validated,
// including a full structural validation of every predefined graph. A
// property file that fails validation is rejected wholesale; nothing is
// partially applied.
package config
