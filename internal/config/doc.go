// Package config loads the project configuration file atplug.cue.
//
//	roots:       ["./internal", "./cmd"]
//	resources:   "resources"
//	header:      "AtPlug-Component"
//	index:       ".atplug/index.db"
//	concurrency: 4
//
// Every field is optional. Relative paths are resolved against the
// directory holding the file. Unknown fields and invalid values are
// reported as CompileErrors carrying the CUE source position.
package config
