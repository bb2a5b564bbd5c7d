// Package config loads the settings shared by the server, worker and
// notifier processes. Values come from defaults, an optional config.yaml,
// a .env file and CLASSIFIER_* environment variables, in increasing order
// of precedence, and are validated before any process starts.
package config
