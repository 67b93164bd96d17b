package storage

import (
	"testing"
)

func TestArchiveKey(t *testing.T) {
	id := Identity{Owner: "alice", Name: "lib", Version: "1.0.0"}
	got := ArchiveKey(id)
	want := "zipped/alice/lib/1.0.0/package.zip"
	if got != want {
		t.Errorf("ArchiveKey = %q, want %q", got, want)
	}
}

func TestMemberKeys(t *testing.T) {
	id := Identity{Owner: "alice", Name: "lib", Version: "1.0.0"}

	prefix := MemberKeyPrefix(id)
	if prefix != "extracted/alice/lib/1.0.0/" {
		t.Errorf("MemberKeyPrefix = %q", prefix)
	}

	key := MemberKey(id, "src/deep/main.go")
	if key != "extracted/alice/lib/1.0.0/src/deep/main.go" {
		t.Errorf("MemberKey = %q", key)
	}
}

func TestParseArchiveKey_RoundTrip(t *testing.T) {
	ids := []Identity{
		{Owner: "alice", Name: "lib", Version: "1.0.0"},
		{Owner: "bob", Name: "my-pkg", Version: "0.0.1-alpha"},
		{Owner: "carol", Name: "x", Version: "2.0.0+build.5"},
	}
	for _, id := range ids {
		parsed, ok := ParseArchiveKey(ArchiveKey(id))
		if !ok {
			t.Fatalf("ParseArchiveKey(%q) failed", ArchiveKey(id))
		}
		if parsed != id {
			t.Errorf("round trip: got %v, want %v", parsed, id)
		}
	}
}

func TestParseArchiveKey_Rejects(t *testing.T) {
	keys := []string{
		"",
		"zipped/alice/lib/package.zip",
		"zipped/alice/lib/1.0.0/extra/package.zip",
		"extracted/alice/lib/1.0.0/package.zip",
		"zipped/alice/lib/1.0.0/other.zip",
		"zipped//lib/1.0.0/package.zip",
		"zipped/alice//1.0.0/package.zip",
		"zipped/alice/lib//package.zip",
	}
	for _, key := range keys {
		if _, ok := ParseArchiveKey(key); ok {
			t.Errorf("ParseArchiveKey(%q) should fail", key)
		}
	}
}

func TestPackagePrefix_NoCollision(t *testing.T) {
	// "foo" must never match keys belonging to "foobar".
	prefix := PackagePrefix("alice", "foo")
	other := ArchiveKey(Identity{Owner: "alice", Name: "foobar", Version: "1.0.0"})
	if len(other) >= len(prefix) && other[:len(prefix)] == prefix {
		t.Errorf("prefix %q matches foreign key %q", prefix, other)
	}
	own := ArchiveKey(Identity{Owner: "alice", Name: "foo", Version: "1.0.0"})
	if own[:len(prefix)] != prefix {
		t.Errorf("prefix %q does not match own key %q", prefix, own)
	}
}

func TestIdentityValidate(t *testing.T) {
	t.Run("accepts path-safe components", func(t *testing.T) {
		id := Identity{Owner: "alice", Name: "lib", Version: "1.0.0"}
		if err := id.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})

	t.Run("rejects slashes and empty fields", func(t *testing.T) {
		bad := []Identity{
			{Owner: "a/b", Name: "lib", Version: "1.0.0"},
			{Owner: "alice", Name: "li/b", Version: "1.0.0"},
			{Owner: "alice", Name: "lib", Version: "1.0/0"},
			{Owner: "", Name: "lib", Version: "1.0.0"},
			{Owner: "alice", Name: "", Version: "1.0.0"},
			{Owner: "alice", Name: "lib", Version: ""},
		}
		for _, id := range bad {
			if err := id.Validate(); err == nil {
				t.Errorf("Validate(%v) should fail", id)
			}
		}
	})
}
