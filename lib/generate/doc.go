// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package generate builds a patch that transforms one version of a
// directory tree into another.
//
// [Generator.Generate] runs a fixed sequence of passes over the two
// trees:
//
//  1. list both trees ([ListTree]);
//  2. classify paths as added, deleted, or common ([Classify]);
//  3. compress every added file into its Finished artifact;
//  4. fingerprint each common file in both trees, and for every file
//     whose content changed, search several delta resolutions
//     ([MinimizeDelta]) and compress the smallest delta;
//  5. record a checksum for every file of the new tree;
//  6. record deleted paths;
//  7. validate the manifest and write it atomically.
//
// Each pass returns its results to Generate, which merges them into
// the manifest. The output directory then holds manifest.json and the
// PatchData artifact store, ready for lib/apply.
package generate
