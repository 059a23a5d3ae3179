package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/feiju-bot/feiju/internal/config"
	"github.com/feiju-bot/feiju/internal/di"
	"github.com/feiju-bot/feiju/internal/di/providers"
	"github.com/feiju-bot/feiju/internal/service"
)

// configFlags are forwarded to config.Load so memectl reads the same
// settings as the server.
type configFlags struct {
	dataPath   string
	dbPath     string
	configFile string
	envFile    string
	logLevel   string
}

func (f *configFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.dataPath, "data-path", "", "Base path for data storage")
	pf.StringVar(&f.dbPath, "db-path", "", "Path to the meme database")
	pf.StringVar(&f.configFile, "config", "", "Path to a YAML config file")
	pf.StringVar(&f.envFile, "env-file", ".env", "Path to .env file")
	pf.StringVar(&f.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

func (f *configFlags) args() []string {
	args := []string{"-env-file=" + f.envFile, "-log-level=" + f.logLevel}
	if f.dataPath != "" {
		args = append(args, "-data-path="+f.dataPath)
	}
	if f.dbPath != "" {
		args = append(args, "-db-path="+f.dbPath)
	}
	if f.configFile != "" {
		args = append(args, "-config="+f.configFile)
	}
	return args
}

// env is an opened container for one command run.
type env struct {
	cfg      *config.Config
	injector *do.RootScope
}

func openEnv() (*env, error) {
	cfg, err := config.Load(globals.args())
	if err != nil {
		return nil, err
	}
	// Command output goes to stdout; keep the container quiet unless asked.
	injector := di.NewCoreContainer(cfg)
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		_ = injector.Shutdown()
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &env{cfg: cfg, injector: injector}, nil
}

func (e *env) Close() {
	if report := e.injector.Shutdown(); !report.Succeed {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", report)
	}
}

func (e *env) memes() (*service.MemeService, error) {
	return do.Invoke[*service.MemeService](e.injector)
}

func (e *env) aliases() (*service.AliasService, error) {
	return do.Invoke[*service.AliasService](e.injector)
}

// withEnv opens the environment around fn.
func withEnv(fn func(e *env) error) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(e)
}

// errReply reports a reply that did not succeed. Its text was already printed.
var errReply = errors.New("operation failed")

// printReply prints a service reply and turns failures into errReply.
func printReply(r service.Reply) error {
	if jsonOutput {
		printJSON(r)
	} else if r.OK() {
		fmt.Println(color.GreenString("✓"), r.Text)
	} else {
		fmt.Fprintln(os.Stderr, color.RedString("✗"), r.Text)
	}
	if !r.OK() {
		return fmt.Errorf("%w: %s", errReply, r.Outcome)
	}
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printError(err error) {
	if errors.Is(err, errReply) {
		return
	}
	if jsonOutput {
		printJSON(map[string]any{"ok": false, "message": err.Error()})
		return
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
}
