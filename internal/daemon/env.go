package daemon

import (
	"fmt"
	"os"

	"github.com/ianremillard/shoal/internal/config"
)

// buildEnv composes a new session's environment per spec §4.6/§6: a
// blank slate plus $HOME, $USER, $SHPOOL_SESSION_NAME, $TERM from the
// attaching client, config.env, config.forward_env names copied from
// the attaching client's env, and $XDG_RUNTIME_DIR if the daemon has
// one. Grounded on the original's spawn_subshell env_clear()-then-
// inject approach (server.rs) rather than inheriting the daemon's
// full environment.
func buildEnv(name string, clientEnv map[string]string, cfg config.Config) ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("daemon: resolve home dir: %w", err)
	}
	user := os.Getenv("USER")

	env := map[string]string{
		"HOME":                home,
		"USER":                user,
		"SHPOOL_SESSION_NAME": name,
	}

	if term, ok := clientEnv["TERM"]; ok {
		env["TERM"] = term
	}
	if rt := os.Getenv("XDG_RUNTIME_DIR"); rt != "" {
		env["XDG_RUNTIME_DIR"] = rt
	}
	if cfg.InitialPath != "" {
		env["PATH"] = cfg.InitialPath
	}

	for k, v := range cfg.Env {
		env[k] = v
	}

	for _, varName := range cfg.ForwardEnv {
		if v, ok := clientEnv[varName]; ok {
			env[varName] = v
		}
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// shellArgv resolves the argv to exec for a new session: cmd
// overrides the configured shell when given (only honored on
// session creation, never on reattach, per spec §9's open question),
// falling back to cfg.Shell, falling back to $SHELL.
func shellArgv(cmd []string, cfg config.Config) []string {
	if len(cmd) > 0 {
		return cmd
	}

	shell := cfg.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}

	argv := []string{shell}
	if cfg.Norc && (shell == "/bin/bash" || shell == "bash") {
		argv = append(argv, "--norc", "--noprofile")
	}
	return argv
}
