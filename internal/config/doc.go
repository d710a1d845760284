// Package config loads the announcer's YAML configuration on top of built-in
// defaults, validates every section and maps the sections onto the
// configuration types of the packages that consume them.
package config
