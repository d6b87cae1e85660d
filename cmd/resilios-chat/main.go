// Command resilios-chat is a terminal client for the Resilios gateway. It
// drives a chat.Composer over the sdk and can run a live avatar session.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/vango-go/resilios/internal/dotenv"
	resilios "github.com/vango-go/resilios/sdk"
)

const (
	defaultBaseURL      = "http://127.0.0.1:8000"
	defaultTimeout      = 90 * time.Second
	defaultHistoryLimit = 50
)

type chatConfig struct {
	BaseURL      string
	UserID       string
	Email        string
	Password     string
	Timeout      time.Duration
	HistoryLimit int
	LoadHistory  bool
}

func parseChatConfig(args []string, getenv func(string) string) (chatConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	baseURL := strings.TrimSpace(getenv("RESILIOS_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	cfg := chatConfig{}
	fs := flag.NewFlagSet("resilios-chat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BaseURL, "base-url", baseURL, "gateway base URL (or RESILIOS_BASE_URL)")
	fs.StringVar(&cfg.UserID, "user", strings.TrimSpace(getenv("RESILIOS_USER_ID")), "user id when not signing in (or RESILIOS_USER_ID)")
	fs.StringVar(&cfg.Email, "email", strings.TrimSpace(getenv("RESILIOS_EMAIL")), "gmail address to sign in with (or RESILIOS_EMAIL)")
	fs.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "per-turn timeout (e.g. 90s)")
	fs.IntVar(&cfg.HistoryLimit, "history", defaultHistoryLimit, "messages to load with /history")
	fs.BoolVar(&cfg.LoadHistory, "resume", false, "load server history on start")

	if err := fs.Parse(args); err != nil {
		return chatConfig{}, err
	}
	cfg.Password = getenv("RESILIOS_PASSWORD")

	if err := validateChatConfig(cfg); err != nil {
		return chatConfig{}, err
	}
	return cfg, nil
}

func validateChatConfig(cfg chatConfig) error {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		return errors.New("base-url must not be empty")
	}
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil || strings.TrimSpace(baseURL.Scheme) == "" || strings.TrimSpace(baseURL.Host) == "" {
		return errors.New("base-url must be a valid absolute URL")
	}
	if baseURL.User != nil {
		return errors.New("base-url must not include credentials")
	}
	if cfg.Email == "" && cfg.UserID == "" {
		return errors.New("either -email or -user is required")
	}
	if cfg.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	if cfg.HistoryLimit <= 0 {
		return errors.New("history must be > 0")
	}
	return nil
}

func buildClientOptions(cfg chatConfig) []resilios.ClientOption {
	opts := []resilios.ClientOption{
		resilios.WithBaseURL(cfg.BaseURL),
		resilios.WithTimeout(cfg.Timeout),
	}
	if cfg.UserID != "" {
		opts = append(opts, resilios.WithUserID(cfg.UserID))
	}
	return opts
}

func runChat(ctx context.Context, cfg chatConfig, in io.Reader, out io.Writer, errOut io.Writer) error {
	if err := validateChatConfig(cfg); err != nil {
		return err
	}
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	client := resilios.NewClient(buildClientOptions(cfg)...)
	userID := cfg.UserID
	if cfg.Email != "" {
		sess, err := client.Account.Login(ctx, cfg.Email, cfg.Password)
		if err != nil {
			return fmt.Errorf("sign in: %w", err)
		}
		userID = sess.UserID
		fmt.Fprintf(out, "signed in as %s (%s)\n", sess.Email, sess.UserID)
	}

	st := newSession(client, cfg, userID, out, errOut)
	defer st.closeLive()

	if cfg.LoadHistory {
		if err := st.loadHistory(ctx); err != nil {
			fmt.Fprintf(errOut, "history error: %v\n", err)
		}
	}

	fmt.Fprintf(out, "Resilios chat connected to %s\n", cfg.BaseURL)
	fmt.Fprintln(out, "Type /help for commands, /exit or /quit to stop.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "/exit", "/quit":
			fmt.Fprintln(out, "bye")
			return nil
		}

		if handled, err := st.handleSlashCommand(ctx, line); err != nil {
			return err
		} else if handled {
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		st.send(turnCtx, line)
		cancel()
	}
}

func main() {
	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "resilios-chat: %v\n", err)
		os.Exit(1)
	}

	cfg, err := parseChatConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resilios-chat: %v\n", err)
		os.Exit(1)
	}

	if err := runChat(context.Background(), cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "resilios-chat: %v\n", err)
		os.Exit(1)
	}
}
