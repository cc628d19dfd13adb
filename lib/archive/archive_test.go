// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/treepatch/lib/testutil"
)

var patchFiles = map[string]string{
	"manifest.json":              `{"format_version": 1}`,
	"PatchData/bin/app.patch":    "delta bytes",
	"PatchData/docs/guide.patch": "compressed guide",
	"PatchData/cache/junk.patch": "should be excluded",
	"PatchData/notes.patchtemp":  "scratch",
	"PatchData/deep/a/b/c.patch": "nested",
}

func TestPackUnpackRoundTrip(t *testing.T) {
	source := t.TempDir()
	testutil.WriteTree(t, source, patchFiles)

	var archive bytes.Buffer
	if err := Pack(source, &archive, Options{}); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	destination := filepath.Join(t.TempDir(), "unpacked")
	if err := Unpack(&archive, destination, UnpackOptions{}); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if got := testutil.ReadTree(t, destination); !reflect.DeepEqual(got, patchFiles) {
		t.Errorf("unpacked files = %v, want %v", got, patchFiles)
	}
}

func TestPackExcludes(t *testing.T) {
	source := t.TempDir()
	testutil.WriteTree(t, source, patchFiles)

	excludes, err := CompileExcludes([]string{`^PatchData/cache/$`, `\.patchtemp$`})
	if err != nil {
		t.Fatal(err)
	}
	var archive bytes.Buffer
	if err := Pack(source, &archive, Options{Exclude: excludes}); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	destination := t.TempDir()
	if err := Unpack(&archive, destination, UnpackOptions{}); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	got := testutil.ReadTree(t, destination)
	for _, excluded := range []string{"PatchData/cache/junk.patch", "PatchData/notes.patchtemp"} {
		if _, found := got[excluded]; found {
			t.Errorf("%s was not excluded", excluded)
		}
	}
	if len(got) != len(patchFiles)-2 {
		t.Errorf("unpacked %d files, want %d", len(got), len(patchFiles)-2)
	}
	if _, err := os.Stat(filepath.Join(destination, "PatchData", "cache")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("excluded directory was packed: %v", err)
	}
}

func TestEncryptedRoundTrip(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}
	recipients, err := ParseRecipients([]string{identity.Recipient().String()})
	if err != nil {
		t.Fatal(err)
	}

	source := t.TempDir()
	testutil.WriteTree(t, source, patchFiles)
	var archive bytes.Buffer
	if err := Pack(source, &archive, Options{Recipients: recipients}); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if !bytes.HasPrefix(archive.Bytes(), []byte("age-encryption.org/v1")) {
		t.Fatal("encrypted archive lacks age header")
	}
	encrypted := archive.Bytes()

	if err := Unpack(bytes.NewReader(encrypted), t.TempDir(), UnpackOptions{}); !errors.Is(err, ErrEncrypted) {
		t.Errorf("Unpack without identity: err = %v, want ErrEncrypted", err)
	}

	other, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}
	if err := Unpack(bytes.NewReader(encrypted), t.TempDir(), UnpackOptions{Identities: []age.Identity{other}}); err == nil {
		t.Error("Unpack with the wrong identity succeeded")
	}

	identityFile := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(identityFile, []byte("# test key\n"+identity.String()+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	identities, err := LoadIdentities(identityFile)
	if err != nil {
		t.Fatalf("LoadIdentities: %v", err)
	}
	destination := t.TempDir()
	if err := Unpack(bytes.NewReader(encrypted), destination, UnpackOptions{Identities: identities}); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if got := testutil.ReadTree(t, destination); !reflect.DeepEqual(got, patchFiles) {
		t.Errorf("decrypted files = %v", got)
	}
}

func TestUnpackRejectsEscapingEntries(t *testing.T) {
	for _, name := range []string{"../evil", "a/../../evil", "/abs/evil"} {
		var raw bytes.Buffer
		compressor, err := zstd.NewWriter(&raw)
		if err != nil {
			t.Fatal(err)
		}
		tarWriter := tar.NewWriter(compressor)
		content := []byte("x")
		if err := tarWriter.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tarWriter.Write(content); err != nil {
			t.Fatal(err)
		}
		if err := tarWriter.Close(); err != nil {
			t.Fatal(err)
		}
		if err := compressor.Close(); err != nil {
			t.Fatal(err)
		}

		parent := t.TempDir()
		err = Unpack(&raw, filepath.Join(parent, "out"), UnpackOptions{})
		if err == nil || !strings.Contains(err.Error(), "escapes") {
			t.Errorf("Unpack(%q): err = %v, want escape rejection", name, err)
		}
		if _, statErr := os.Stat(filepath.Join(parent, "evil")); !errors.Is(statErr, fs.ErrNotExist) {
			t.Errorf("Unpack(%q) wrote outside the destination", name)
		}
	}
}

func TestParseRecipientsRejectsGarbage(t *testing.T) {
	if _, err := ParseRecipients([]string{"not-a-key"}); err == nil {
		t.Error("ParseRecipients accepted garbage")
	}
}

func TestCompileExcludesRejectsBadPattern(t *testing.T) {
	if _, err := CompileExcludes([]string{"("}); err == nil {
		t.Error("CompileExcludes accepted an invalid pattern")
	}
	if excludes, err := CompileExcludes(nil); err != nil || len(excludes) != 0 {
		t.Errorf("CompileExcludes(nil) = %v, %v", excludes, err)
	}
	options := Options{Exclude: []*regexp.Regexp{regexp.MustCompile(`^skip`)}}
	if !options.excluded("skip/me") || options.excluded("keep/skip") {
		t.Error("excluded() does not anchor as written")
	}
}
