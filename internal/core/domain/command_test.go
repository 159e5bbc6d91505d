package domain

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Command
		wantErr error
	}{
		{"set", "SET a 1 5", Command{Verb: VerbSet, Key: "a", Value: "1", TTL: 5}, nil},
		{"lowercase verb", "set a 1 5", Command{Verb: VerbSet, Key: "a", Value: "1", TTL: 5}, nil},
		{"key case kept", "GET MixedCase", Command{Verb: VerbGet, Key: "MixedCase"}, nil},
		{"get", "GET a", Command{Verb: VerbGet, Key: "a"}, nil},
		{"delete", "DELETE a", Command{Verb: VerbDelete, Key: "a"}, nil},
		{"push", "PUSH", Command{Verb: VerbPush}, nil},
		{"pop", "POP", Command{Verb: VerbPop}, nil},
		{"deletesaves", "DELETESAVES", Command{Verb: VerbDeleteSaves}, nil},
		{"size", "SIZE", Command{Verb: VerbSize}, nil},
		{"printall", "PRINTALL", Command{Verb: VerbPrintAll}, nil},
		{"trailing newline", "GET a\n", Command{Verb: VerbGet, Key: "a"}, nil},
		{"crlf", "PUSH\r\n", Command{Verb: VerbPush}, nil},
		{"longest ttl", "SET a 1 9223372036", Command{Verb: VerbSet, Key: "a", Value: "1", TTL: MaxTTL}, nil},
		{"utf-8 value", "SET k héllo 5", Command{Verb: VerbSet, Key: "k", Value: "héllo", TTL: 5}, nil},

		{"empty", "", Command{}, ErrInvalidCommand},
		{"unknown verb", "FLUSH", Command{}, ErrInvalidCommand},
		{"push with arg", "PUSH x", Command{}, ErrInvalidCommand},
		{"get without key", "GET", Command{}, ErrInvalidCommand},
		{"get extra token", "GET a b", Command{}, ErrInvalidCommand},
		{"set missing ttl", "SET a 1", Command{}, ErrInvalidCommand},
		{"set extra token", "SET a 1 5 6", Command{}, ErrInvalidCommand},
		{"double space", "GET  a", Command{}, ErrInvalidCommand},
		{"zero ttl", "SET a 1 0", Command{}, ErrInvalidTTL},
		{"negative ttl", "SET a 1 -3", Command{}, ErrInvalidTTL},
		{"non-integer ttl", "SET a 1 ten", Command{}, ErrInvalidTTL},
		{"ttl overflows duration", "SET k v 9300000000", Command{}, ErrInvalidTTL},
		{"non-utf-8 value", "SET k \xff\xfe 10", Command{}, ErrInvalidCommand},
		{"non-utf-8 key", "GET \xff", Command{}, ErrInvalidCommand},
		{"enum order is not arity", "SIZE a", Command{}, ErrInvalidCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse(%q) error = %v, want %v", tt.line, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestCommand_StringRoundTrip(t *testing.T) {
	cmds := []Command{
		{Verb: VerbSet, Key: "k", Value: "v", TTL: 30},
		{Verb: VerbGet, Key: "k"},
		{Verb: VerbDelete, Key: "k"},
		{Verb: VerbPush},
		{Verb: VerbDeleteSaves},
	}

	for _, cmd := range cmds {
		line := cmd.String()
		back, err := Parse(line)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", line, err)
		}
		if back != cmd {
			t.Errorf("round trip of %q = %+v, want %+v", line, back, cmd)
		}
	}

	if got := (Command{Verb: VerbSet, Key: "p", Value: "val1", TTL: 30}).String(); got != "SET p val1 30" {
		t.Errorf("String() = %q, want %q", got, "SET p val1 30")
	}
	if got := (Command{Verb: VerbPush}).String(); got != "PUSH" {
		t.Errorf("String() = %q, want %q", got, "PUSH")
	}
}

func TestVerb_Mutating(t *testing.T) {
	mutating := map[Verb]bool{
		VerbSet: true, VerbDelete: true, VerbPush: true, VerbPop: true, VerbDeleteSaves: true,
		VerbGet: false, VerbSize: false, VerbPrintAll: false,
	}
	for v, want := range mutating {
		if got := v.Mutating(); got != want {
			t.Errorf("%s.Mutating() = %v, want %v", v, got, want)
		}
	}
}

func TestCommand_Validate(t *testing.T) {
	if err := (Command{Verb: VerbSet, Key: "a", Value: "b", TTL: 0}).Validate(); !errors.Is(err, ErrInvalidTTL) {
		t.Errorf("Validate() = %v, want ErrInvalidTTL", err)
	}
	if err := (Command{Verb: VerbSet, Key: "a b", Value: "b", TTL: 1}).Validate(); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("Validate() = %v, want ErrInvalidCommand", err)
	}
	if err := (Command{Verb: VerbSet, Key: "a", Value: "b", TTL: MaxTTL + 1}).Validate(); !errors.Is(err, ErrInvalidTTL) {
		t.Errorf("Validate() = %v, want ErrInvalidTTL", err)
	}
	if err := (Command{Verb: "NOPE"}).Validate(); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("Validate() = %v, want ErrInvalidCommand", err)
	}
}
