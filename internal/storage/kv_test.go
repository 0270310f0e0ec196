package storage

import (
	"errors"
	"testing"
)

type kvBackend interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

func TestKVBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) kvBackend{
		"memory": func(t *testing.T) kvBackend { return NewMemoryKV() },
		"bolt": func(t *testing.T) kvBackend {
			b, err := OpenBolt(t.TempDir())
			if err != nil {
				t.Fatalf("OpenBolt: %v", err)
			}
			t.Cleanup(func() { b.Close() })
			return b
		},
		"sqlite": func(t *testing.T) kvBackend { return openTestStore(t) },
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			kv := open(t)

			if _, ok, err := kv.Get("k"); err != nil || ok {
				t.Fatalf("Get on empty backend = (ok=%v, err=%v)", ok, err)
			}
			if err := kv.Set("k", "v1"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := kv.Set("k", "v2"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			v, ok, err := kv.Get("k")
			if err != nil || !ok || v != "v2" {
				t.Fatalf("Get = (%q, %v, %v), want (v2, true, nil)", v, ok, err)
			}
			if err := kv.Delete("k"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := kv.Delete("k"); !errors.Is(err, ErrNotFound) {
				t.Errorf("second Delete = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestBoltKV_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	b1, err := OpenBolt(dir)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	if err := b1.Set("doc", "[]"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	b1.Close()

	b2, err := OpenBolt(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b2.Close()

	v, ok, err := b2.Get("doc")
	if err != nil || !ok || v != "[]" {
		t.Errorf("Get after reopen = (%q, %v, %v)", v, ok, err)
	}
}
