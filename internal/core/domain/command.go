package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTTL is the longest lifetime, in seconds, whose expiry fits a time.Duration.
const MaxTTL = math.MaxInt64 / int64(time.Second)

// Verb identifies a store command.
type Verb string

// Supported verbs.
const (
	VerbSet         Verb = "SET"
	VerbGet         Verb = "GET"
	VerbDelete      Verb = "DELETE"
	VerbPush        Verb = "PUSH"
	VerbPop         Verb = "POP"
	VerbDeleteSaves Verb = "DELETESAVES"
	VerbSize        Verb = "SIZE"
	VerbPrintAll    Verb = "PRINTALL"
)

// Reserved tokens of the command surface that never reach the dispatcher.
const (
	TokenSync = "SYNC"
	TokenQuit = "QUIT"
)

// arity is the exact number of arguments each verb takes.
var arity = map[Verb]int{
	VerbPush:        0,
	VerbPop:         0,
	VerbDeleteSaves: 0,
	VerbSize:        0,
	VerbPrintAll:    0,
	VerbGet:         1,
	VerbDelete:      1,
	VerbSet:         3,
}

// Verbs returns all verbs in help-text order.
func Verbs() []Verb {
	return []Verb{VerbSet, VerbGet, VerbDelete, VerbSize, VerbPrintAll, VerbPush, VerbPop, VerbDeleteSaves}
}

// Arity returns the argument count of v and whether v is known.
func (v Verb) Arity() (int, bool) {
	n, ok := arity[v]
	return n, ok
}

// Mutating reports whether a successful command with this verb changes state
// and is therefore propagated to peers.
func (v Verb) Mutating() bool {
	switch v {
	case VerbSet, VerbDelete, VerbPush, VerbPop, VerbDeleteSaves:
		return true
	}
	return false
}

// Command is one parsed line of the command language.
type Command struct {
	Verb  Verb
	Key   string
	Value string
	TTL   int64 // seconds, SET only
}

// String returns the canonical form: VERB[ KEY[ VALUE[ TTL]]].
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(string(c.Verb))
	n, _ := c.Verb.Arity()
	if n >= 1 {
		b.WriteByte(' ')
		b.WriteString(c.Key)
	}
	if n == 3 {
		b.WriteByte(' ')
		b.WriteString(c.Value)
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(c.TTL, 10))
	}
	return b.String()
}

// Validate checks the command against the per-verb arity rules.
func (c Command) Validate() error {
	n, ok := c.Verb.Arity()
	if !ok {
		return ErrInvalidCommand.WithDetails("unknown verb " + strconv.Quote(string(c.Verb)))
	}
	if n >= 1 && !validToken(c.Key) {
		return ErrInvalidCommand.WithDetails("invalid key")
	}
	if n == 3 {
		if !validToken(c.Value) {
			return ErrInvalidCommand.WithDetails("invalid value")
		}
		if c.TTL <= 0 {
			return ErrInvalidTTL.WithDetails("TTL must be a positive number of seconds")
		}
		if c.TTL > MaxTTL {
			return ErrInvalidTTL.WithDetails("TTL must not exceed " + strconv.FormatInt(MaxTTL, 10) + " seconds")
		}
	}
	return nil
}

// Parse parses one line into a Command. The verb is case-normalized; keys and
// values are taken verbatim. Tokens are separated by single spaces, so an
// empty token (two adjacent spaces, leading or trailing space) is an arity
// violation.
func Parse(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Command{}, ErrInvalidCommand.WithDetails("empty command")
	}

	parts := strings.Split(line, " ")
	verb := Verb(strings.ToUpper(parts[0]))
	n, ok := verb.Arity()
	if !ok {
		return Command{}, ErrInvalidCommand.WithDetails("unknown verb " + strconv.Quote(parts[0]))
	}
	if len(parts)-1 != n {
		return Command{}, ErrInvalidCommand.WithDetails(
			string(verb) + " takes " + strconv.Itoa(n) + " argument(s), got " + strconv.Itoa(len(parts)-1))
	}

	cmd := Command{Verb: verb}
	if n >= 1 {
		cmd.Key = parts[1]
	}
	if n == 3 {
		cmd.Value = parts[2]
		ttl, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return Command{}, ErrInvalidTTL.WithDetails(strconv.Quote(parts[3]) + " is not an integer").WithCause(err)
		}
		cmd.TTL = ttl
	}

	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// validToken reports whether s is a non-empty UTF-8 token free of separators.
func validToken(s string) bool {
	return s != "" && utf8.ValidString(s) && !strings.ContainsAny(s, " \r\n")
}
