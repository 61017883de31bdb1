package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/tgifai/tgflow/internal/config"
	"github.com/tgifai/tgflow/internal/consts"
	"github.com/tgifai/tgflow/internal/pkg/utils"
)

var onboardHwd = &OnboardRunner{}

type OnboardRunner struct {
	scanner *bufio.Scanner
}

func (r *OnboardRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "onboard",
		Usage: "Interactive setup wizard that writes a config file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Where to write the config file",
				Value:   consts.DefaultConfigPath(),
			},
		},
		Action: r.run,
	}
}

var (
	cStep    = color.New(color.FgCyan, color.Bold)
	cWarn    = color.New(color.FgYellow)
	cSuccess = color.New(color.FgGreen)
	cError   = color.New(color.FgRed)
	cPrompt  = color.New(color.FgWhite, color.Bold)
	cDim     = color.New(color.FgHiBlack)
)

func (r *OnboardRunner) run(_ context.Context, cmd *cli.Command) error {
	return r.wizard(os.Stdin, cmd.String("config"))
}

func (r *OnboardRunner) wizard(in io.Reader, cfgPath string) error {
	r.scanner = bufio.NewScanner(in)

	if _, err := os.Stat(cfgPath); err == nil {
		cWarn.Printf("  Config already exists at %s\n", cfgPath)
		if !r.confirm("  Overwrite existing config?", false) {
			fmt.Println("  Aborted.")
			return nil
		}
		fmt.Println()
	}

	cfg := &config.Config{}

	r.printStepHeader("Step 1", "Bot")
	if cfg.Bot.Token = r.promptRequired("  Bot token"); cfg.Bot.Token == "" {
		return fmt.Errorf("bot token is required")
	}
	cfg.Bot.Intents = r.stepIntents()
	fmt.Println()

	r.printStepHeader("Step 2", "Transport")
	cDim.Println("    [1] polling")
	cDim.Println("    [2] webhook")
	fmt.Println()
	if r.promptChoice("  Transport", 1, 2) == 1 {
		cfg.Polling = &config.PollingConfig{Timeout: 30}
	} else {
		cfg.Webhook = r.stepWebhook()
	}
	fmt.Println()

	r.printStepHeader("Step 3", "Observability")
	cfg.Logging = config.LoggingConfig{Level: "info", Format: "text", Output: "both", File: consts.DefaultLogFile()}
	if r.confirm("  Expose prometheus metrics?", false) {
		cfg.Metrics.Enabled = true
	}
	cfg.Admin.Bind = r.promptDefault("  Admin bind (empty disables /health)", "127.0.0.1:8081")
	cfg.Stats.Schedule = r.promptDefault("  Stats schedule (empty disables)", "@every 10m")
	fmt.Println()

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if _, err = config.Parse(raw); err != nil {
		return err
	}
	if err = writeConfig(cfgPath, raw); err != nil {
		return err
	}

	cSuccess.Printf("  ✓ Config written to %s\n", cfgPath)
	cSuccess.Println("  All set! Run \"tgflow run\" to start.")
	fmt.Println()
	return nil
}

func (r *OnboardRunner) stepIntents() []any {
	val := r.promptDefault("  Update kinds, comma separated (empty means platform default)", "")
	if val == "" {
		return nil
	}
	var out []any
	for _, name := range strings.Split(val, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (r *OnboardRunner) stepWebhook() *config.WebhookConfig {
	w := &config.WebhookConfig{}
	w.URL = r.promptRequired("  Public webhook URL (https://...)")
	w.Host = r.promptDefault("  Listen host", "0.0.0.0")
	port := r.promptDefault("  Listen port", "8443")
	w.Port, _ = strconv.Atoi(port)
	w.SecretToken = r.promptDefault("  Secret token", utils.RandStr(32))
	return w
}

func writeConfig(path string, raw []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func (r *OnboardRunner) prompt(label string) (string, bool) {
	cPrompt.Printf("%s > ", label)
	if r.scanner.Scan() {
		return strings.TrimSpace(r.scanner.Text()), true
	}
	return "", false
}

func (r *OnboardRunner) promptDefault(label string, defaultVal string) string {
	if defaultVal != "" {
		cPrompt.Printf("%s ", label)
		cDim.Printf("[%s]", defaultVal)
		cPrompt.Print(" > ")
	} else {
		cPrompt.Printf("%s > ", label)
	}

	if r.scanner.Scan() {
		val := strings.TrimSpace(r.scanner.Text())
		if val != "" {
			return val
		}
	}
	return defaultVal
}

// promptRequired repeats until a value is entered. It gives up with "" once
// input is exhausted.
func (r *OnboardRunner) promptRequired(label string) string {
	for {
		val, ok := r.prompt(label)
		if val != "" || !ok {
			return val
		}
		cError.Println("  This field is required.")
	}
}

func (r *OnboardRunner) promptChoice(label string, min, max int) int {
	for {
		val := r.promptDefault(label, strconv.Itoa(min))
		n, err := strconv.Atoi(val)
		if err == nil && n >= min && n <= max {
			return n
		}
		cError.Printf("  Please enter a number between %d and %d.\n", min, max)
	}
}

func (r *OnboardRunner) confirm(label string, defaultYes bool) bool {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}

	cPrompt.Printf("%s %s > ", label, hint)
	if r.scanner.Scan() {
		val := strings.ToLower(strings.TrimSpace(r.scanner.Text()))
		if val == "" {
			return defaultYes
		}
		return val == "y" || val == "yes"
	}
	return defaultYes
}

func (r *OnboardRunner) printStepHeader(step string, title string) {
	cStep.Printf("═══ %s: %s ═══\n\n", step, title)
}
