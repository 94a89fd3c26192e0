// Package registry holds the table of calling applications admitted by the
// service. The table is read once at startup, either from a YAML file or from
// the built-in defaults, and never changes afterwards.
package registry
