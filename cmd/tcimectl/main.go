// tcimectl manages tcime dictionaries and schemas and replays key sequences
// through the engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"tcime/internal/compose"
	"tcime/internal/config"
	"tcime/internal/ime"
	"tcime/internal/logging"
	"tcime/internal/store"
)

var (
	configPath = flag.String("config", "", "path to config file")
	verbose    = flag.Bool("v", false, "log at debug level to stderr")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)

	switch cmd {
	case "list":
		cmdList()
	case "status":
		cmdStatus()
	case "migrate":
		if flag.NArg() > 2 {
			fmt.Fprintln(os.Stderr, "Usage: tcimectl migrate [version]")
			os.Exit(1)
		}
		version := store.LatestVersion
		if flag.NArg() == 2 {
			v, err := strconv.Atoi(flag.Arg(1))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid version: %s\n", flag.Arg(1))
				os.Exit(1)
			}
			version = v
		}
		cmdMigrate(version)
	case "import-schema":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: tcimectl import-schema <file.schema.yaml> [id]")
			os.Exit(1)
		}
		id := ""
		if flag.NArg() >= 3 {
			id = flag.Arg(2)
		}
		cmdImportSchema(flag.Arg(1), id)
	case "import-rows":
		if flag.NArg() < 3 {
			fmt.Fprintln(os.Stderr, "Usage: tcimectl import-rows <dictionary> <rows.tsv>")
			os.Exit(1)
		}
		cmdImportRows(flag.Arg(1), flag.Arg(2))
	case "import-conversions":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: tcimectl import-conversions <TSCharacters.txt>")
			os.Exit(1)
		}
		cmdImportConversions(flag.Arg(1))
	case "build-table":
		if flag.NArg() < 4 {
			fmt.Fprintln(os.Stderr, "Usage: tcimectl build-table cangjie|zhuyin|phrases <input.tsv> <output.dict>")
			os.Exit(1)
		}
		cmdBuildTable(flag.Arg(1), flag.Arg(2), flag.Arg(3))
	case "simulate":
		if flag.NArg() < 3 {
			fmt.Fprintln(os.Stderr, "Usage: tcimectl simulate <schema> <keys>")
			os.Exit(1)
		}
		cmdSimulate(flag.Arg(1), flag.Arg(2))
	case "fuzzy":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: tcimectl fuzzy <schema> [rule on|off]")
			os.Exit(1)
		}
		if flag.NArg() == 3 || flag.NArg() > 4 {
			fmt.Fprintln(os.Stderr, "Usage: tcimectl fuzzy <schema> [rule on|off]")
			os.Exit(1)
		}
		cmdFuzzy(flag.Args()[1:])
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `tcimectl - Control utility for the tcime input method

Usage: tcimectl [options] <command> [args]

Commands:
  list                                  List schemas from the database and schema directory
  status                                Show database migrations, integrity and dictionaries
  migrate [version]                     Migrate the database to version (default: latest); lower rolls back
  import-schema <file> [id]             Store a schema document in the database
  import-rows <dictionary> <tsv>        Import "text<TAB>code" rows into a full-text dictionary
  import-conversions <file>             Import traditional to simplified mappings
  build-table <kind> <tsv> <out>        Pack a cangjie, zhuyin or phrases table
  simulate <schema> <keys>              Type keys, e.g. "ab{space}{pgdn}1", and print the result
  fuzzy <schema> [rule on|off]          Show or change a schema's fuzzy rules
  help                                  Show this help message

Options:
  -config <path>  Path to config file (default: platform config dir)
  -v              Log at debug level`)
}

func loadConfig() *config.Config {
	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Logging.Level = "debug"
		cfg.Logging.Output = "stderr"
	}
	return cfg
}

func newLogger(cfg *config.Config) *logging.Logger {
	lc, err := cfg.LogConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in logging config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(lc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		os.Exit(1)
	}
	return log
}

func openStore(cfg *config.Config) *store.Store {
	st, err := store.Open(cfg.Dictionary.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return st
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func cmdList() {
	cfg := loadConfig()
	st := openStore(cfg)
	defer st.Close()

	eng, err := ime.NewEngine(ime.Options{Config: cfg, Store: st, Sink: discardSink{}, Log: logging.Discard()})
	if err != nil {
		fail("%v", err)
	}
	defer eng.Close()

	infos, err := eng.Schemas(context.Background())
	if err != nil {
		fail("listing schemas: %v", err)
	}
	if len(infos) == 0 {
		fmt.Println("No schemas found.")
		return
	}
	for _, info := range infos {
		mark := " "
		if info.ID == cfg.Schema.Default {
			mark = "*"
		}
		fmt.Printf("%s %s %s\n", mark, runewidth.FillRight(info.ID, 16), info.Name)
	}
}

func cmdStatus() {
	cfg := loadConfig()
	st, err := store.OpenUnmigrated(cfg.Dictionary.Path)
	if err != nil {
		fail("opening database: %v", err)
	}
	defer st.Close()

	fmt.Println("=== tcime Status ===")
	fmt.Println()
	fmt.Printf("Database: %s\n", cfg.Dictionary.Path)
	if info, err := os.Stat(cfg.Dictionary.Path); err == nil {
		fmt.Printf("  Size: %s\n", formatBytes(info.Size()))
	}

	ctx := context.Background()
	status, err := st.MigrationStatus(ctx)
	if err != nil {
		fail("reading migrations: %v", err)
	}
	fmt.Printf("  Schema version: %d of %d\n", status.CurrentVersion, status.LatestVersion)
	for _, m := range status.Pending {
		fmt.Printf("  Pending: %d %s\n", m.Version, m.Description)
	}
	problems, err := st.Check(ctx)
	if err != nil {
		fail("checking database: %v", err)
	}
	if len(problems) == 0 {
		fmt.Println("  Integrity: OK")
	}
	for _, p := range problems {
		fmt.Printf("  Problem: %s\n", p)
	}
	fmt.Println()

	fmt.Println("Dictionaries:")
	names, err := st.Dictionaries(ctx)
	if err != nil {
		fmt.Printf("  %v\n", err)
	} else if len(names) == 0 {
		fmt.Println("  (none)")
	}
	for _, n := range names {
		fmt.Printf("  - %s\n", n)
	}
	fmt.Println()

	fmt.Println("Tables:")
	entries, err := os.ReadDir(cfg.Dictionary.TableDir)
	if err != nil {
		fmt.Printf("  %s: %v\n", cfg.Dictionary.TableDir, err)
		return
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ime.TableSuffix {
			continue
		}
		if info, err := e.Info(); err == nil {
			fmt.Printf("  - %s (%s)\n", e.Name(), formatBytes(info.Size()))
		}
	}
}

func cmdMigrate(version int) {
	cfg := loadConfig()
	st, err := store.OpenUnmigrated(cfg.Dictionary.Path)
	if err != nil {
		fail("opening database: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	before, err := st.MigrationStatus(ctx)
	if err != nil {
		fail("reading migrations: %v", err)
	}
	if err := st.Migrate(ctx, version); err != nil {
		fail("migrating to %d: %v", version, err)
	}
	if before.CurrentVersion == version {
		fmt.Printf("Database already at version %d\n", version)
		return
	}
	fmt.Printf("Migrated database from version %d to %d\n", before.CurrentVersion, version)
}

func cmdImportSchema(path, id string) {
	cfg := loadConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		fail("%v", err)
	}
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), ".schema.yaml")
		id = strings.TrimSuffix(id, filepath.Ext(id))
	}

	st := openStore(cfg)
	defer st.Close()
	if err := st.ImportSchema(context.Background(), id, data); err != nil {
		fail("importing %s: %v", path, err)
	}
	fmt.Printf("Imported schema %s\n", id)
}

func cmdImportRows(name, path string) {
	cfg := loadConfig()
	f, err := os.Open(path)
	if err != nil {
		fail("%v", err)
	}
	defer f.Close()
	rows, err := readRows(f)
	if err != nil {
		fail("%s: %v", path, err)
	}

	st := openStore(cfg)
	defer st.Close()
	n, err := st.ImportRows(context.Background(), name, rows)
	if err != nil {
		fail("importing %s: %v", path, err)
	}
	fmt.Printf("Imported %d rows into %s\n", n, name)
}

func cmdImportConversions(path string) {
	cfg := loadConfig()
	f, err := os.Open(path)
	if err != nil {
		fail("%v", err)
	}
	defer f.Close()
	convs, err := readConversions(f)
	if err != nil {
		fail("%s: %v", path, err)
	}

	st := openStore(cfg)
	defer st.Close()
	n, err := st.ImportConversions(context.Background(), convs)
	if err != nil {
		fail("importing %s: %v", path, err)
	}
	fmt.Printf("Imported %d conversions\n", n)
}

func cmdBuildTable(kind, in, out string) {
	f, err := os.Open(in)
	if err != nil {
		fail("%v", err)
	}
	defer f.Close()

	n, err := buildTable(kind, f, out)
	if err != nil {
		fail("%s: %v", in, err)
	}
	fmt.Printf("Wrote %s table with %d entries to %s\n", kind, n, out)
}

func cmdSimulate(schemaID, keyList string) {
	cfg := loadConfig()
	keys, err := ime.ParseKeys(keyList)
	if err != nil {
		fail("%v", err)
	}
	log := newLogger(cfg)
	defer log.Close()
	st := openStore(cfg)
	defer st.Close()

	sink := &printSink{}
	eng, err := ime.NewEngine(ime.Options{Config: cfg, Store: st, Sink: sink, Log: log.Logger})
	if err != nil {
		fail("%v", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := eng.SelectSchema(ctx, schemaID); err != nil {
		fail("selecting %s: %v", schemaID, err)
	}
	if err := eng.WaitReady(ctx); err != nil {
		fail("loading tables: %v", err)
	}
	eng.Start(compose.KindText)

	for _, k := range keys {
		handled := eng.ProcessKey(k)
		if !handled {
			fmt.Printf("%-8s passed to host\n", k)
			continue
		}
		fmt.Printf("%-8s %s\n", k, describe(eng.State()))
	}
	fmt.Println()
	fmt.Printf("Committed: %q\n", sink.committed.String())
}

func cmdFuzzy(args []string) {
	cfg := loadConfig()
	st := openStore(cfg)
	defer st.Close()

	eng, err := ime.NewEngine(ime.Options{Config: cfg, Store: st, Sink: discardSink{}, Log: logging.Discard()})
	if err != nil {
		fail("%v", err)
	}
	defer eng.Close()

	ctx := context.Background()
	if err := eng.SelectSchema(ctx, args[0]); err != nil {
		fail("selecting %s: %v", args[0], err)
	}
	if len(args) == 3 {
		var on bool
		switch args[2] {
		case "on":
			on = true
		case "off":
		default:
			fail("expected on or off, got %q", args[2])
		}
		if err := eng.SetFuzzy(ctx, args[1], on); err != nil {
			if errors.Is(err, ime.ErrUnknownFuzzy) {
				fail("%s has no fuzzy rule %q", args[0], args[1])
			}
			fail("%v", err)
		}
	}

	rules := eng.FuzzyRules()
	if len(rules) == 0 {
		fmt.Printf("%s has no fuzzy rules.\n", args[0])
		return
	}
	for _, r := range rules {
		state := "off"
		if r.Enabled {
			state = "on"
		}
		fmt.Printf("  %s %s\n", runewidth.FillRight(r.Name, 12), state)
	}
}

func describe(s ime.State) string {
	var b strings.Builder
	switch {
	case s.Mode != "":
		fmt.Fprintf(&b, "<%s> ", s.Mode)
	case s.ASCII:
		b.WriteString("[ascii] ")
	}
	if s.Composing != "" {
		fmt.Fprintf(&b, "[%s]", s.Preedit)
	}
	if s.NotReady {
		b.WriteString(" (tables loading)")
	}
	if len(s.Candidates) > 0 {
		if s.Following {
			b.WriteString(" following:")
		}
		for i, c := range s.Candidates {
			mark := " "
			if i == s.Highlight {
				mark = ">"
			}
			fmt.Fprintf(&b, " %s%d.%s", mark, i+1, c.Text)
			if c.Comment != "" {
				fmt.Fprintf(&b, "(%s)", c.Comment)
			}
		}
		if !s.LastPage {
			b.WriteString(" …")
		}
	}
	return b.String()
}

type printSink struct {
	committed strings.Builder
}

func (p *printSink) Commit(text string) {
	p.committed.WriteString(text)
	fmt.Printf("         commit %q\n", text)
}

func (p *printSink) SetComposingPreview(string) {}
func (p *printSink) ClearComposingPreview()     {}

type discardSink struct{}

func (discardSink) Commit(string)              {}
func (discardSink) SetComposingPreview(string) {}
func (discardSink) ClearComposingPreview()     {}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
