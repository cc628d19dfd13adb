// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the
// treepatch commands.
//
// Configuration is read from a single file named by either the
// --config flag (via [LoadFile]) or the TREEPATCH_CONFIG environment
// variable (via [Load]). There is no discovery and no search path:
// without either, commands run on [Default] values. Command-line
// flags override whatever the file sets.
//
// Variable expansion is performed on layout fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded.
//
// Example:
//
//	generate:
//	  quality: 4
//	  compression: zstd
//	  exclude: ['\.pdb$']
//	retry:
//	  attempts: 9
//	  delay: 500ms
//	log:
//	  level: debug
package config
