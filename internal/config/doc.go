// Package config holds the options of the freezedry command: the flat Config
// built from CLI flags, the optional YAML site file with per-host cookies and
// headers, and the XDG locations for the cache and config files.
package config
