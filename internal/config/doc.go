/*
Package config provides configuration management for geodex.

Configuration is assembled from three sources with increasing precedence:
built-in defaults, a YAML file, and GEODEX_* environment variables. The
result is validated once at load time and then passed by value into the
components that need it; there is no process-wide mutable settings object.

The repos section maps driver names to their repository settings (archive
root, tile-grid vector, remote-source selection, credentials). Per-driver
settings not modeled as fields live in the extra map and are resolved
through RepoConfig.Setting with an UNKNOWN_SETTING error when absent.
*/
package config
