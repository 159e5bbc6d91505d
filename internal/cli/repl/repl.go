package repl

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/layerkv/layerkv/internal/core/domain"
)

// HelpText is printed by HELP.
const HelpText = "\t\t\tCommand List\n\n" +
	"1. SET <key> <value> <TTL>  | Sets the value of a key a defined period of time\n" +
	"2. GET <key>                | Returns the value of a key\n" +
	"3. DELETE <key>             | Deletes a key and its value\n" +
	"4. SIZE                     | Returns the size of the cache\n" +
	"5. PRINTALL                 | Prints all keys and their values\n" +
	"6. PUSH                     | Saves the current state\n" +
	"7. POP                      | Returns to previous saved state\n" +
	"8. DELETESAVES              | Deletes all saved states\n" +
	"9. SYNC                     | Synchronizes database\n" +
	"10. QUIT                    | Quits the program\n" +
	"11. HELP                    | Displays this list\n"

// Messages printed around SYNC.
const (
	MsgNoPeer       = "No other client to sync with"
	MsgSyncing      = "Syncing..."
	MsgSyncFinished = "Finished syncing"
)

// ErrNoPeer is the sentinel a Syncer returns when nobody can donate state.
// It is compared with errors.Is, so Syncers may wrap or alias it.
var ErrNoPeer = errors.New("no other client to sync with")

// Dispatcher executes command lines.
type Dispatcher interface {
	DispatchLine(ctx context.Context, line string, propagate bool) domain.Response
}

// Syncer replaces the local state with a peer's.
type Syncer interface {
	Sync(ctx context.Context) (int, error)
}

// Config configures a REPL.
type Config struct {
	In         io.Reader
	Out        *Console
	Dispatcher Dispatcher

	// Syncer is optional; without one SYNC reports that no peer exists.
	Syncer Syncer

	// NoPeer reports whether a Sync error means no donor was available.
	// Defaults to errors.Is(err, ErrNoPeer).
	NoPeer func(error) bool

	// History records entered lines. Optional.
	History *History

	Logger *slog.Logger
}

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	cfg Config
}

// New creates a REPL.
func New(cfg Config) *REPL {
	if cfg.NoPeer == nil {
		cfg.NoPeer = func(err error) bool { return errors.Is(err, ErrNoPeer) }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &REPL{cfg: cfg}
}

// Run reads lines until QUIT, end of input or ctx cancellation.
func (r *REPL) Run(ctx context.Context) error {
	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(r.cfg.In)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					errCh <- err
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errCh:
					return err
				default:
					return nil
				}
			}
			if quit := r.execute(ctx, line); quit {
				return nil
			}
		}
	}
}

// execute handles one input line and reports whether the loop should end.
func (r *REPL) execute(ctx context.Context, line string) bool {
	line = normalize(line)
	if line == "" {
		return false
	}
	if r.cfg.History != nil {
		r.cfg.History.Add(line)
	}

	switch line {
	case domain.TokenQuit:
		return true
	case "HELP", "--HELP":
		_, _ = io.WriteString(r.cfg.Out, HelpText)
	case domain.TokenSync:
		r.sync(ctx)
	default:
		resp := r.cfg.Dispatcher.DispatchLine(ctx, line, true)
		r.cfg.Out.Println(resp.Value)
	}
	return false
}

// normalize trims line and upper-cases its verb. Keys and values are kept.
func normalize(line string) string {
	verb, rest, found := strings.Cut(strings.TrimSpace(line), " ")
	verb = strings.ToUpper(verb)
	if !found {
		return verb
	}
	return verb + " " + rest
}

func (r *REPL) sync(ctx context.Context) {
	if r.cfg.Syncer == nil {
		r.cfg.Out.Println(MsgNoPeer)
		return
	}
	n, err := r.cfg.Syncer.Sync(ctx)
	switch {
	case err == nil:
		r.cfg.Logger.Info("sync finished", "commands", n)
		r.cfg.Out.Println(MsgSyncFinished)
	case r.cfg.NoPeer(err):
		r.cfg.Out.Println(MsgNoPeer)
	default:
		r.cfg.Logger.Error("sync failed", "applied", n, "error", err)
		r.cfg.Out.Println("Sync failed: " + err.Error())
	}
}
