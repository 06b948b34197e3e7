package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kamusis/memview/internal/connection"
	"github.com/kamusis/memview/internal/search"
	"github.com/spf13/cobra"
)

const shellHelp = `Commands:
  connect <bundle>        open a bundle
  disconnect              close it and forget the saved path
  refresh                 reopen the current bundle from disk
  status                  show the connection state
  list [n]                list the first n records (default 20)
  grep <words>            list records matching every word
  show <id>               show one record
  search <v1,v2,...> [k]  nearest records to a vector
  like <id> [k]           nearest records to an existing record
  k <n>                   set the default result count
  help                    show this help
  quit                    leave the shell`

var shellCmd = &cobra.Command{
	Use:   "shell [bundle]",
	Short: "Explore a bundle interactively",
	Long: `Open an interactive prompt over a single connection. State changes are
printed as they happen.

Without an argument the saved connection is restored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	sh := &shell{m: s.manager, k: s.cfg.DefaultK}
	unsubscribe := s.manager.Subscribe(sh.onChange)
	defer unsubscribe()

	if len(args) == 1 {
		if err := s.manager.Connect(ctx, args[0]); err != nil {
			printErr("", err.Error())
		}
	} else if _, err := s.manager.Restore(ctx); err != nil {
		printErr("", err.Error())
	}

	fmt.Fprintln(stdout, "memview shell — type 'help' for commands")
	return sh.run(ctx, cmd.InOrStdin())
}

type shell struct {
	m    *connection.Manager
	k    int
	last connection.State
}

// onChange prints state transitions. Connecting is transient and skipped.
func (sh *shell) onChange() {
	st := sh.m.State()
	if st == sh.last || st == connection.Connecting {
		return
	}
	sh.last = st
	switch st {
	case connection.Connected:
		printInfo("state", fmt.Sprintf("%s → %s (%d records, dim %d)", st, sh.m.SourcePath(), sh.m.Count(), sh.m.Dimension()))
	case connection.Error:
		printInfo("state", fmt.Sprintf("%s: %v", st, sh.m.LastError()))
	default:
		printInfo("state", st.String())
	}
}

func (sh *shell) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64<<10), 16<<20)
	for {
		fmt.Fprint(stdout, "memview> ")
		if !sc.Scan() {
			fmt.Fprintln(stdout)
			return sc.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		quit, err := sh.exec(ctx, sc.Text())
		if err != nil {
			printErr("", err.Error())
		}
		if quit {
			return nil
		}
	}
}

var errShellUsage = errors.New("usage error (type 'help')")

// exec runs one shell line and reports whether the shell should exit.
func (sh *shell) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := fields[0], fields[1:]
	switch name {
	case "quit", "exit":
		return true, nil
	case "help", "?":
		fmt.Fprintln(stdout, shellHelp)
	case "connect":
		if len(args) != 1 {
			return false, errShellUsage
		}
		return false, sh.m.Connect(ctx, args[0])
	case "disconnect":
		return false, sh.m.Disconnect(ctx)
	case "refresh":
		return false, sh.m.Refresh(ctx)
	case "status":
		sh.status()
	case "k":
		n, err := sh.parseK(args, 0)
		if err != nil || len(args) != 1 {
			return false, errShellUsage
		}
		sh.k = n
		printOK("", fmt.Sprintf("k = %d", n))
	case "list":
		n := 20
		if len(args) == 1 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 0 {
				return false, errShellUsage
			}
			n = v
		}
		return false, sh.list(search.Filter{}, n)
	case "grep":
		if len(args) == 0 {
			return false, errShellUsage
		}
		return false, sh.list(search.Filter{Keyword: strings.Join(args, " ")}, 0)
	case "show":
		if len(args) != 1 {
			return false, errShellUsage
		}
		return false, sh.show(args[0])
	case "search":
		if len(args) == 0 {
			return false, errShellUsage
		}
		// A trailing integer after a separate vector token is k.
		vecArgs, k, err := sh.splitK(args)
		if err != nil {
			return false, err
		}
		vec, err := parseVector(strings.Join(vecArgs, ","))
		if err != nil {
			return false, err
		}
		return false, sh.search(func() ([]search.Result, error) { return sh.m.Search(ctx, vec, k) }, "vector")
	case "like":
		if len(args) == 0 || len(args) > 2 {
			return false, errShellUsage
		}
		k, err := sh.parseK(args, 1)
		if err != nil {
			return false, err
		}
		return false, sh.search(func() ([]search.Result, error) { return sh.m.SearchSimilar(ctx, args[0], k) }, "like "+args[0])
	default:
		return false, fmt.Errorf("unknown command %q (type 'help')", name)
	}
	return false, nil
}

// parseK reads k from args[i], falling back to the shell default.
func (sh *shell) parseK(args []string, i int) (int, error) {
	if len(args) <= i {
		return sh.k, nil
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid k %q", args[i])
	}
	return n, nil
}

// splitK separates "search 1,0,0 5" into the vector tokens and k. A vector
// written with spaces ("search 1 0 0") has no k.
func (sh *shell) splitK(args []string) ([]string, int, error) {
	if len(args) == 2 && strings.Contains(args[0], ",") && !strings.Contains(args[1], ",") {
		k, err := sh.parseK(args, 1)
		return args[:1], k, err
	}
	return args, sh.k, nil
}

func (sh *shell) status() {
	fmt.Fprintf(stdout, "  state:     %s\n", sh.m.State())
	switch sh.m.State() {
	case connection.Connected:
		fmt.Fprintf(stdout, "  bundle:    %s\n", sh.m.SourcePath())
		fmt.Fprintf(stdout, "  dimension: %d\n", sh.m.Dimension())
		fmt.Fprintf(stdout, "  records:   %d\n", sh.m.Count())
	case connection.Error:
		fmt.Fprintf(stdout, "  error:     %v\n", sh.m.LastError())
	}
}

func (sh *shell) list(f search.Filter, limit int) error {
	if err := requireConnected(sh.m); err != nil {
		return err
	}
	records, positions := f.Apply(sh.m.ListRecords())
	total := len(records)
	records, positions = page(records, 0, limit), page(positions, 0, limit)
	fmt.Fprintf(stdout, "Records (%d of %d shown):\n", len(records), total)
	printRecords(records, positions)
	return nil
}

func (sh *shell) show(id string) error {
	if err := requireConnected(sh.m); err != nil {
		return err
	}
	r, ok := sh.m.LookupRecord(id)
	if !ok {
		printMiss(id, "no such record")
		return nil
	}
	fmt.Fprintf(stdout, "● %s  role=%s thread=%s\n", r.ID, orDash(r.Metadata.Role), orDash(r.Metadata.ThreadID))
	fmt.Fprintf(stdout, "  vector: %s\n", formatVector(r.Vector, 8))
	if r.Metadata.Content != "" {
		fmt.Fprintf(stdout, "  %s\n", preview(r.Metadata.Content, 200))
	}
	return nil
}

func (sh *shell) search(run func() ([]search.Result, error), query string) error {
	if err := requireConnected(sh.m); err != nil {
		return err
	}
	results, err := run()
	if err != nil {
		return err
	}
	printSearchResults(query, results)
	return nil
}
