// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package generate

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/bureau-foundation/treepatch/lib/artifactstore"
	"github.com/bureau-foundation/treepatch/lib/blockcodec"
	"github.com/bureau-foundation/treepatch/lib/delta"
	"github.com/bureau-foundation/treepatch/lib/fingerprint"
	"github.com/bureau-foundation/treepatch/lib/manifest"
	"github.com/bureau-foundation/treepatch/lib/testutil"
)

func paths(entries []manifest.PatchFileEntry) []string {
	result := []string{}
	for _, entry := range entries {
		result = append(result, entry.Path)
	}
	return result
}

type fixture struct {
	oldRoot, newRoot, outRoot string
}

func newFixture(t *testing.T, oldFiles, newFiles map[string][]byte) fixture {
	t.Helper()
	base := t.TempDir()
	f := fixture{
		oldRoot: filepath.Join(base, "old"),
		newRoot: filepath.Join(base, "new"),
		outRoot: filepath.Join(base, "out"),
	}
	testutil.WriteTree(t, f.oldRoot, oldFiles)
	testutil.WriteTree(t, f.newRoot, newFiles)
	return f
}

func TestGenerateClassification(t *testing.T) {
	large := testutil.PseudoRandom(1, 50000)
	changed := append([]byte{}, large...)
	copy(changed[20000:], "changed region")

	f := newFixture(t,
		map[string][]byte{
			"removed.txt":   []byte("only in old"),
			"b.txt":         []byte("identical"),
			"c.txt":         large,
			"dir/gone.conf": []byte("x"),
		},
		map[string][]byte{
			"a.txt":        []byte("only in new"),
			"b.txt":        []byte("identical"),
			"c.txt":        changed,
			"dir/new.conf": []byte("y"),
		},
	)

	generator := &Generator{Logger: testutil.DiscardLogger()}
	result, summary, err := generator.Generate(context.Background(), f.oldRoot, f.newRoot, f.outRoot)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if got, want := paths(result.Added), []string{"a.txt", "dir/new.conf"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Added = %v, want %v", got, want)
	}
	if got, want := result.Deleted, []string{"dir/gone.conf", "removed.txt"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Deleted = %v, want %v", got, want)
	}
	if got, want := paths(result.Modified), []string{"c.txt"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Modified = %v, want %v", got, want)
	}

	if summary.Added != 2 || summary.Modified != 1 || summary.Unchanged != 1 || summary.Deleted != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if result.Compression != "zstd" {
		t.Errorf("Compression = %q, want zstd", result.Compression)
	}

	modified := result.Modified[0]
	if !modified.Old().Equal(fingerprint.OfBytes(large)) {
		t.Errorf("old fingerprint = %v, want %v", modified.Old(), fingerprint.OfBytes(large))
	}
	if !modified.New().Equal(fingerprint.OfBytes(changed)) {
		t.Errorf("new fingerprint = %v, want %v", modified.New(), fingerprint.OfBytes(changed))
	}
	if modified.ArtifactSize >= uint64(len(changed))/10 {
		t.Errorf("delta artifact is %d bytes for a small edit of %d bytes", modified.ArtifactSize, len(changed))
	}

	// The persisted manifest equals the returned one.
	loaded, err := manifest.Read(filepath.Join(f.outRoot, manifest.FileName))
	if err != nil {
		t.Fatalf("reading persisted manifest: %v", err)
	}
	if !reflect.DeepEqual(loaded, result) {
		t.Errorf("persisted manifest differs from returned manifest")
	}
}

func TestGenerateArtifactsMatchManifest(t *testing.T) {
	f := newFixture(t,
		map[string][]byte{"mod.bin": testutil.PseudoRandom(2, 10000)},
		map[string][]byte{"mod.bin": testutil.PseudoRandom(3, 10000), "new/file.bin": testutil.PseudoRandom(4, 3000)},
	)

	result, _, err := (&Generator{Logger: testutil.DiscardLogger()}).Generate(context.Background(), f.oldRoot, f.newRoot, f.outRoot)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	store, err := artifactstore.Open(filepath.Join(f.outRoot, artifactstore.DefaultDir))
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range append(append([]manifest.PatchFileEntry{}, result.Added...), result.Modified...) {
		matches, err := entry.Artifact().MatchesFile(store.Path(entry.Path, artifactstore.Finished))
		if err != nil {
			t.Fatal(err)
		}
		if !matches {
			t.Errorf("artifact for %s does not match its manifest fingerprint", entry.Path)
		}
	}

	// The added artifact decompresses to the new file.
	var restored bytes.Buffer
	artifact, err := os.Open(store.Path("new/file.bin", artifactstore.Finished))
	if err != nil {
		t.Fatal(err)
	}
	defer artifact.Close()
	if err := blockcodec.Zstd.Decompress(&restored, artifact); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(restored.Bytes(), testutil.PseudoRandom(4, 3000)) {
		t.Error("added artifact does not decompress to the new file")
	}

	inProgress, err := store.InProgress()
	if err != nil {
		t.Fatal(err)
	}
	if len(inProgress) != 0 {
		t.Errorf("in-progress artifacts left behind: %v", inProgress)
	}
}

func TestGenerateChecksumCompleteness(t *testing.T) {
	newFiles := map[string][]byte{
		"same.txt":    []byte("same"),
		"changed.txt": []byte("after"),
		"added.txt":   []byte("fresh"),
		"empty":       {},
	}
	f := newFixture(t,
		map[string][]byte{"same.txt": []byte("same"), "changed.txt": []byte("before")},
		newFiles,
	)

	result, _, err := (&Generator{Logger: testutil.DiscardLogger()}).Generate(context.Background(), f.oldRoot, f.newRoot, f.outRoot)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(result.Checksums) != len(newFiles) {
		t.Fatalf("got %d checksums, want %d", len(result.Checksums), len(newFiles))
	}
	for _, entry := range result.Checksums {
		content, found := newFiles[entry.Path]
		if !found {
			t.Errorf("checksum for unknown path %q", entry.Path)
			continue
		}
		if !entry.Fingerprint().Equal(fingerprint.OfBytes(content)) {
			t.Errorf("checksum for %s = %v, want %v", entry.Path, entry.Fingerprint(), fingerprint.OfBytes(content))
		}
	}
}

func TestGenerateDeterministicManifest(t *testing.T) {
	f := newFixture(t,
		map[string][]byte{"x/1": testutil.PseudoRandom(5, 9000), "x/2": []byte("gone"), "y": []byte("same")},
		map[string][]byte{"x/1": testutil.PseudoRandom(6, 9000), "x/3": []byte("new"), "y": []byte("same")},
	)

	generator := &Generator{Logger: testutil.DiscardLogger()}
	var outputs [][]byte
	for i := 0; i < 2; i++ {
		outRoot := filepath.Join(t.TempDir(), "out")
		if _, _, err := generator.Generate(context.Background(), f.oldRoot, f.newRoot, outRoot); err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
		data, err := os.ReadFile(filepath.Join(outRoot, manifest.FileName))
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, data)
	}
	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Error("two generations from the same trees produced different manifests")
	}
}

func TestGenerateCompressionSetting(t *testing.T) {
	f := newFixture(t, nil, map[string][]byte{"a": []byte("abc")})

	generator := &Generator{Compression: blockcodec.None, Logger: testutil.DiscardLogger()}
	result, _, err := generator.Generate(context.Background(), f.oldRoot, f.newRoot, f.outRoot)
	if err != nil {
		t.Fatal(err)
	}
	if result.Compression != "none" {
		t.Errorf("Compression = %q, want none", result.Compression)
	}
	// Uncompressed artifacts are the file itself.
	if !result.Added[0].Artifact().Equal(result.Added[0].New()) {
		t.Errorf("uncompressed artifact fingerprint %v differs from content %v", result.Added[0].Artifact(), result.Added[0].New())
	}
}

func TestGenerateMissingInput(t *testing.T) {
	base := t.TempDir()
	_, _, err := (&Generator{Logger: testutil.DiscardLogger()}).Generate(context.Background(),
		filepath.Join(base, "absent"), base, filepath.Join(base, "out"))
	if err == nil {
		t.Fatal("Generate with missing old tree succeeded")
	}
}

func TestGenerateCancelled(t *testing.T) {
	f := newFixture(t, nil, map[string][]byte{"a": []byte("a"), "b": []byte("b")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := (&Generator{Logger: testutil.DiscardLogger()}).Generate(ctx, f.oldRoot, f.newRoot, f.outRoot)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(filepath.Join(f.outRoot, manifest.FileName)); !os.IsNotExist(err) {
		t.Errorf("manifest written by cancelled run: %v", err)
	}
}

// failingCodec fails on one resolution to exercise cleanup.
type failingCodec struct {
	delta.Codec
	failAt int
}

func (c failingCodec) ComputeDelta(basis, target io.Reader, out io.Writer, resolution int) error {
	if resolution == c.failAt {
		return errors.New("codec failure")
	}
	return c.Codec.ComputeDelta(basis, target, out, resolution)
}

func TestGenerateCodecFailureLeavesNoScratch(t *testing.T) {
	f := newFixture(t,
		map[string][]byte{"m": testutil.PseudoRandom(7, 5000)},
		map[string][]byte{"m": testutil.PseudoRandom(8, 5000)},
	)
	generator := &Generator{
		Codec:  failingCodec{Codec: delta.NewBlockCodec(), failAt: 512},
		Logger: testutil.DiscardLogger(),
	}
	_, _, err := generator.Generate(context.Background(), f.oldRoot, f.newRoot, f.outRoot)
	if err == nil || !strings.Contains(err.Error(), "codec failure") {
		t.Fatalf("err = %v, want codec failure", err)
	}

	store, err := artifactstore.Open(filepath.Join(f.outRoot, artifactstore.DefaultDir))
	if err != nil {
		t.Fatal(err)
	}
	inProgress, err := store.InProgress()
	if err != nil {
		t.Fatal(err)
	}
	if len(inProgress) != 0 {
		t.Errorf("in-progress artifacts left after codec failure: %v", inProgress)
	}
}

func TestListTreeSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string][]byte{"real": []byte("x"), "sub/file": []byte("y")})
	if err := os.Symlink("real", filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	listed, err := ListTree(root, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"real", "sub/file"}; !reflect.DeepEqual(listed, want) {
		t.Errorf("ListTree = %v, want %v", listed, want)
	}
}

func TestClassify(t *testing.T) {
	got := Classify(
		[]string{"b.txt", "old.txt", "c.txt"},
		[]string{"c.txt", "a.txt", "b.txt"},
	)
	want := Classification{
		Added:   []string{"a.txt"},
		Deleted: []string{"old.txt"},
		Common:  []string{"b.txt", "c.txt"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Classify = %+v, want %+v", got, want)
	}

	empty := Classify(nil, nil)
	if len(empty.Added)+len(empty.Deleted)+len(empty.Common) != 0 {
		t.Errorf("Classify(nil, nil) = %+v", empty)
	}
}
