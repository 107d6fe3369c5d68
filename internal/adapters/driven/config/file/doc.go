// Package file provides the TOML-backed configuration store.
//
// The file lives at ~/.prdmachine/config.toml unless a path is given.
// Tables are flattened into dot-notation keys on load ("[llm] provider"
// becomes "llm.provider") and nested back into tables on save.
package file
