package overlay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newTestFactory(t *testing.T, engine string, sealer *Sealer) *Factory {
	t.Helper()
	f, err := NewFactory(Config{
		Engine: engine,
		Dir:    filepath.Join(t.TempDir(), "temp"),
		Sealer: sealer,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	return f
}

func engines() []string {
	return []string{EngineFile, EngineBadger}
}

func TestNewFactory_Validation(t *testing.T) {
	if _, err := NewFactory(Config{Engine: EngineFile}); err == nil {
		t.Error("NewFactory() without dir should fail")
	}
	if _, err := NewFactory(Config{Engine: "rocks", Dir: t.TempDir()}); err == nil {
		t.Error("NewFactory() with unknown engine should fail")
	}
	f, err := NewFactory(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	if f.Engine() != EngineFile {
		t.Errorf("Engine() = %q, want %q", f.Engine(), EngineFile)
	}
}

func TestStore_Operations(t *testing.T) {
	ctx := context.Background()

	for _, engine := range engines() {
		t.Run(engine, func(t *testing.T) {
			f := newTestFactory(t, engine, nil)
			s, err := f.Create(ctx, "1-test", nil)
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			defer s.Remove()

			if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
				t.Errorf("Get(missing) = ok %v, err %v", ok, err)
			}

			if err := s.Put(ctx, "k", "v1"); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if err := s.Put(ctx, "k", "v2"); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			got, ok, err := s.Get(ctx, "k")
			if err != nil || !ok || got != "v2" {
				t.Errorf("Get(k) = %q, %v, %v; want v2", got, ok, err)
			}

			all, err := s.All(ctx)
			if err != nil {
				t.Fatalf("All() error = %v", err)
			}
			if len(all) != 1 || all["k"] != "v2" {
				t.Errorf("All() = %v", all)
			}

			found, err := s.Delete(ctx, "k")
			if err != nil || !found {
				t.Errorf("Delete(k) = %v, %v; want true", found, err)
			}
			found, err = s.Delete(ctx, "k")
			if err != nil || found {
				t.Errorf("second Delete(k) = %v, %v; want false", found, err)
			}
		})
	}
}

func TestStore_NonUTF8(t *testing.T) {
	ctx := context.Background()
	const value = "\xff\xfe"

	tests := []struct {
		engine  string
		wantErr error
	}{
		{EngineFile, ErrInvalidUTF8},
		{EngineBadger, nil},
	}
	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			f := newTestFactory(t, tt.engine, nil)
			s, err := f.Create(ctx, "1-test", nil)
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			defer s.Remove()

			if err := s.Put(ctx, "ok", "v"); err != nil {
				t.Fatalf("Put(ok) error = %v", err)
			}
			err = s.Put(ctx, "k", value)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Put(k) error = %v, want %v", err, tt.wantErr)
			}

			got, ok, err := s.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get(k) error = %v", err)
			}
			if tt.wantErr != nil {
				if ok {
					t.Errorf("Get(k) = %q after a rejected Put", got)
				}
				if v, _, _ := s.Get(ctx, "ok"); v != "v" {
					t.Errorf("Get(ok) = %q after a rejected Put, want v", v)
				}
				return
			}
			if !ok || got != value {
				t.Errorf("Get(k) = %q, %v; want %q", got, ok, value)
			}
		})
	}
}

func TestStore_SeedAndRemove(t *testing.T) {
	ctx := context.Background()

	for _, engine := range engines() {
		t.Run(engine, func(t *testing.T) {
			f := newTestFactory(t, engine, nil)
			seed := map[string]string{"a": "1", "b": "2"}
			s, err := f.Create(ctx, "2-test", seed)
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			// Seed is copied, not aliased.
			seed["c"] = "3"
			all, err := s.All(ctx)
			if err != nil {
				t.Fatalf("All() error = %v", err)
			}
			if len(all) != 2 || all["a"] != "1" || all["b"] != "2" {
				t.Errorf("All() = %v, want seed contents", all)
			}

			if err := s.Remove(); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
			entries, err := os.ReadDir(f.Dir())
			if err != nil {
				t.Fatal(err)
			}
			for _, e := range entries {
				t.Errorf("object %q left behind after Remove()", e.Name())
			}
			if err := s.Remove(); err != nil {
				t.Errorf("second Remove() error = %v", err)
			}
			if _, err := s.All(ctx); !errors.Is(err, ErrClosed) {
				t.Errorf("All() after Remove() error = %v, want ErrClosed", err)
			}
		})
	}
}

func TestFile_Naming(t *testing.T) {
	f := newTestFactory(t, EngineFile, nil)
	s, err := f.Create(context.Background(), "3-01ARZ3NDEKTSV4RRFFQ69G5FAV", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Remove()

	if s.Name() != "3-01ARZ3NDEKTSV4RRFFQ69G5FAV.json" {
		t.Errorf("Name() = %q", s.Name())
	}
	if _, err := os.Stat(filepath.Join(f.Dir(), s.Name())); err != nil {
		t.Errorf("overlay file missing: %v", err)
	}
}

func TestStore_Sealed(t *testing.T) {
	ctx := context.Background()
	sealer, err := NewSealer("correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}

	for _, engine := range engines() {
		t.Run(engine, func(t *testing.T) {
			f := newTestFactory(t, engine, sealer)
			s, err := f.Create(ctx, "1-sealed", map[string]string{"seeded": "plain-seed-value"})
			if err != nil {
				t.Fatal(err)
			}
			defer s.Remove()

			if err := s.Put(ctx, "secret", "plain-put-value"); err != nil {
				t.Fatal(err)
			}
			got, ok, err := s.Get(ctx, "secret")
			if err != nil || !ok || got != "plain-put-value" {
				t.Errorf("Get(secret) = %q, %v, %v", got, ok, err)
			}

			if engine == EngineFile {
				raw, err := os.ReadFile(s.(*File).Path())
				if err != nil {
					t.Fatal(err)
				}
				if bytes.Contains(raw, []byte("plain-put-value")) || bytes.Contains(raw, []byte("plain-seed-value")) {
					t.Error("sealed overlay file contains plaintext")
				}
			}
		})
	}
}

func TestSealer(t *testing.T) {
	if _, err := NewSealer(""); err == nil {
		t.Error("NewSealer(\"\") should fail")
	}

	s1, _ := NewSealer("one")
	s2, _ := NewSealer("two")

	sealed, err := s1.Seal([]byte("payload"), []byte("ad"))
	if err != nil {
		t.Fatal(err)
	}
	plain, err := s1.Open(sealed, []byte("ad"))
	if err != nil || string(plain) != "payload" {
		t.Errorf("Open() = %q, %v", plain, err)
	}
	if _, err := s1.Open(sealed, []byte("other")); err == nil {
		t.Error("Open() with wrong additional data should fail")
	}
	if _, err := s2.Open(sealed, []byte("ad")); err == nil {
		t.Error("Open() with wrong key should fail")
	}
	if _, err := s1.Open([]byte{1, 2}, nil); !errors.Is(err, ErrSealedTooShort) {
		t.Errorf("Open(short) error = %v, want ErrSealedTooShort", err)
	}
}
