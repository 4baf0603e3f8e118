package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/edvin/firestore-admin/internal/admin"
	"github.com/edvin/firestore-admin/internal/cli"
	"github.com/edvin/firestore-admin/internal/config"
	"github.com/edvin/firestore-admin/internal/logging"
	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/resource"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "databases":
		cmdDatabases(os.Args[2:])
	case "indexes":
		cmdIndexes(os.Args[2:])
	case "fields":
		cmdFields(os.Args[2:])
	case "export":
		cmdExport(os.Args[2:])
	case "import":
		cmdImport(os.Args[2:])
	case "bulk-delete":
		cmdBulkDelete(os.Args[2:])
	case "backups":
		cmdBackups(os.Args[2:])
	case "restore":
		cmdRestore(os.Args[2:])
	case "schedules":
		cmdSchedules(os.Args[2:])
	case "usercreds":
		cmdUserCreds(os.Args[2:])
	case "operations":
		cmdOperations(os.Args[2:])
	case "profiles":
		cmdProfiles(os.Args[2:])
	case "use":
		cmdUse(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// globalFlags are accepted by every command that talks to the API.
type globalFlags struct {
	profile  *string
	project  *string
	database *string
	wait     *bool
	verbose  *bool
}

func addGlobalFlags(fs *flag.FlagSet) *globalFlags {
	return &globalFlags{
		profile:  fs.String("profile", "", "Connection profile (defaults to the active profile)"),
		project:  fs.String("project", "", "Project ID (overrides the profile)"),
		database: fs.String("database", "", "Database ID (overrides the profile)"),
		wait:     fs.Bool("wait", false, "Block until a long-running operation finishes"),
		verbose:  fs.Bool("v", false, "Log requests to stderr"),
	}
}

// session is a resolved connection: config, client and the database the
// command acts on.
type session struct {
	ctx    context.Context
	cfg    *config.Config
	client *admin.Client
	db     resource.DatabaseName
	wait   bool
}

func connect(g *globalFlags) *session {
	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "fsadmin"
	}
	if _, err := cli.Resolve(cfg, *g.profile); err != nil {
		fail("resolve profile: %v", err)
	}
	if *g.project != "" {
		cfg.ProjectID = *g.project
	}
	if *g.database != "" {
		cfg.DatabaseID = *g.database
	}
	if err := cfg.Validate("fsadmin"); err != nil {
		fail("%v", err)
	}

	if !*g.verbose {
		cfg.LogLevel = "warn"
	}
	logger := logging.NewLogger(cfg).Output(zerolog.ConsoleWriter{Out: os.Stderr})

	client, err := admin.NewFromConfig(cfg, logger)
	if err != nil {
		fail("create client: %v", err)
	}

	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return &session{
		ctx:    ctx,
		cfg:    cfg,
		client: client,
		db:     resource.ProjectName{Project: cfg.ProjectID}.Database(cfg.DatabaseID),
		wait:   *g.wait,
	}
}

func (s *session) project() resource.ProjectName {
	return resource.ProjectName{Project: s.cfg.ProjectID}
}

// finish prints the operation, or with -wait its result.
func finish[R, M model.Message](s *session, op *admin.Operation[R, M], err error) {
	if err != nil {
		fail("%v", err)
	}
	if !s.wait {
		printJSON(op.Raw())
		return
	}
	fmt.Fprintf(os.Stderr, "Waiting for %s...\n", op.Name())
	res, err := op.Wait(s.ctx)
	if err != nil {
		fail("%v", err)
	}
	printJSON(res)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail("encode output: %v", err)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// verb splits "list -x" into the verb and its flags.
func verb(args []string, usage string) (string, []string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintln(os.Stderr, "Usage: "+usage)
		os.Exit(1)
	}
	return args[0], args[1:]
}

func requireFlags(fs *flag.FlagSet, names ...string) {
	for _, name := range names {
		if f := fs.Lookup(name); f == nil || f.Value.String() == "" {
			fmt.Fprintf(os.Stderr, "Error: -%s is required\n", name)
			fs.Usage()
			os.Exit(1)
		}
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func cmdProfiles(args []string) {
	if len(args) > 0 {
		switch args[0] {
		case "import":
			profileImport(args[1:])
			return
		case "delete":
			if len(args) < 2 {
				fmt.Fprintln(os.Stderr, "Usage: fsadmin profiles delete <name>")
				os.Exit(1)
			}
			if err := cli.DeleteProfile(args[1]); err != nil {
				fail("%v", err)
			}
			fmt.Printf("Deleted profile %q\n", args[1])
			return
		}
	}

	profiles, err := cli.ListProfiles()
	if err != nil {
		fail("%v", err)
	}
	if len(profiles) == 0 {
		fmt.Println("No profiles found. Import one with: fsadmin profiles import <config-file>")
		return
	}

	active, _ := cli.GetActive()
	fmt.Printf("%-20s %-24s %-16s %-24s %s\n", "NAME", "PROJECT", "DATABASE", "TARGET", "ACTIVE")
	for _, p := range profiles {
		marker := ""
		if p.Name == active {
			marker = " *"
		}
		database := p.Database
		if database == "" {
			database = resource.DefaultDatabase
		}
		target := p.Endpoint
		if p.EmulatorHost != "" {
			target = "emulator " + p.EmulatorHost
		}
		if target == "" {
			target = "-"
		}
		fmt.Printf("%-20s %-24s %-16s %-24s %s\n", p.Name, p.Project, database, target, marker)
	}
}

func profileImport(args []string) {
	fs := flag.NewFlagSet("profiles import", flag.ExitOnError)
	name := fs.String("name", "", "Profile name (default: file name)")
	setActive := fs.Bool("set-active", true, "Set this profile as active after import")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: fsadmin profiles import [-name NAME] <config-file>")
		os.Exit(1)
	}

	profile, err := cli.Import(fs.Arg(0), *name)
	if err != nil {
		fail("%v", err)
	}
	fmt.Printf("Imported profile %q (project: %s)\n", profile.Name, profile.Project)

	if *setActive {
		if err := cli.SetActive(profile.Name); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not set active profile: %v\n", err)
		} else {
			fmt.Printf("Active profile set to %q\n", profile.Name)
		}
	}
}

func cmdUse(args []string) {
	if len(args) < 1 {
		active, _ := cli.GetActive()
		if active == "" {
			fmt.Println("No active profile")
		} else {
			fmt.Println(active)
		}
		return
	}
	if err := cli.SetActive(args[0]); err != nil {
		fail("%v", err)
	}
	fmt.Printf("Active profile set to %q\n", args[0])
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `fsadmin - Firestore administration CLI

Usage:
  fsadmin databases list|get|create|update|delete [flags]
  fsadmin indexes list|get|create|delete -collection-group GROUP [flags]
  fsadmin fields list|get|update -collection-group GROUP [flags]
  fsadmin export -output URI_PREFIX [-collections a,b]
  fsadmin import -input URI_PREFIX [-collections a,b]
  fsadmin bulk-delete [-collections a,b]
  fsadmin backups list|get|delete [-location LOCATION] [flags]
  fsadmin restore -backup BACKUP_NAME -id DATABASE_ID
  fsadmin schedules list|get|create|update|delete [flags]
  fsadmin usercreds list|get|create|enable|disable|reset|delete [flags]
  fsadmin operations list|get|cancel|delete [flags]
  fsadmin profiles [import <file> | delete <name>]
  fsadmin use [profile-name]

Common flags:
  -profile NAME    Connection profile (default: active profile)
  -project ID      Project ID
  -database ID     Database ID (default: (default))
  -wait            Block until a long-running operation finishes
  -v               Log requests to stderr

Connection settings can also come from FIRESTORE_PROJECT, FIRESTORE_DATABASE,
FIRESTORE_ENDPOINT, FIRESTORE_ACCESS_TOKEN and FIRESTORE_EMULATOR_HOST.`)
}
