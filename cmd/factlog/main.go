package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/factlog-protocol/factlog/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serviceURL string
	cfgFile    string
	token      string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "factlog",
	Short: "Fact log CLI",
	Long: `factlog is the command-line interface for a fact log service.

It submits facts, reads the log back, and drives the commitment and
extension-proof protocol from the verifier's side.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".factlog"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serviceURL == "" {
			serviceURL = viper.GetString("service_url")
		}
		if serviceURL == "" {
			serviceURL = "http://localhost:8080"
		}
		if token == "" {
			token = loadToken()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.factlog/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serviceURL, "service", "", "fact log service URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "operator JWT (default from 'factlog login')")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(factsCmd)
	rootCmd.AddCommand(commitmentCmd)
	rootCmd.AddCommand(proveCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	opts := []client.Option{}
	if token != "" {
		opts = append(opts, client.WithToken(token))
	}
	return client.New(serviceURL, opts...)
}

func tokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".factlog", "token")
}

func loadToken() string {
	p := tokenPath()
	if p == "" {
		return ""
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveToken(tok string) error {
	p := tokenPath()
	if p == "" {
		return errors.New("cannot determine home directory")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(tok+"\n"), 0o600)
}

// ── status ───────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the log accepts facts, its size, and its commitment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		st, err := newClient().Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Enabled:\t%v\n", st.Enabled)
		fmt.Fprintf(w, "Facts:\t%d\n", st.Facts)
		if st.Commitment != "" {
			fmt.Fprintf(w, "Commitment:\t%s\n", st.Commitment)
		}
		return w.Flush()
	},
}

// ── enable / disable ─────────────────────────────────────────────────────────

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Open the log for fact submission (requires operator token)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		if err := newClient().Enable(ctx); err != nil {
			return err
		}
		fmt.Println("log enabled")
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Close the log to new facts (requires operator token)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		if err := newClient().Disable(ctx); err != nil {
			return err
		}
		fmt.Println("log disabled")
		return nil
	},
}

// ── append ───────────────────────────────────────────────────────────────────

var appendCmd = &cobra.Command{
	Use:   "append [json]",
	Short: "Submit a fact to the log",
	Long: `Append submits one JSON fact to the log. The fact is read from the
argument, or from stdin when no argument is given:

  factlog append '{"event":"deploy","sha":"ab12"}'
  cat fact.json | factlog append

When the log is disabled the fact is silently dropped and the receipt
reports stored=false.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw []byte
		if len(args) == 1 {
			raw = []byte(args[0])
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("read fact from stdin: %w", err)
			}
			raw = data
		}
		var fact json.RawMessage
		if err := json.Unmarshal(raw, &fact); err != nil {
			return fmt.Errorf("fact is not valid JSON: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		receipt, err := newClient().AppendFact(ctx, fact)
		if err != nil {
			return err
		}
		if !receipt.Stored {
			fmt.Println("fact dropped: log is disabled")
			return nil
		}
		fmt.Printf("fact stored (receipt %s)\n", receipt.Receipt)
		return nil
	},
}

// ── facts ────────────────────────────────────────────────────────────────────

var (
	factsOrder string
	factsLimit int
)

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "List stored facts in insertion or reverse-insertion order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		page, err := newClient().Facts(ctx, factsOrder, factsLimit)
		if err != nil {
			return err
		}
		for _, fact := range page.Facts {
			fmt.Println(string(fact))
		}
		fmt.Fprintf(os.Stderr, "%d fact(s), order=%s\n", page.Count, page.Order)
		return nil
	},
}

func init() {
	factsCmd.Flags().StringVar(&factsOrder, "order", "asc", "Listing order: asc or desc")
	factsCmd.Flags().IntVar(&factsLimit, "limit", 100, "Maximum number of facts to return")
}

// ── commitment / prove / verify ──────────────────────────────────────────────

var commitmentCmd = &cobra.Command{
	Use:   "commitment",
	Short: "Print the commitment over the current log contents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		commitment, err := newClient().Commitment(ctx)
		if errors.Is(err, client.ErrUnavailable) {
			fmt.Fprintln(os.Stderr, "commitment unavailable: the log is empty")
			os.Exit(1)
		}
		if err != nil {
			return err
		}
		fmt.Println(commitment)
		return nil
	},
}

var proveCmd = &cobra.Command{
	Use:   "prove <latest-reference>",
	Short: "Request a proof that the log strictly extends a previous commitment",
	Long: `Prove asks the service for a reference proving the log has grown past the
given commitment. Pass the reference from a previous 'commitment' or
'prove' call; the service answers with an older:newer pair whose older
component equals the baseline you presented.

The proof is unavailable (exit 1) when the log has not grown since the
baseline, or when the baseline does not belong to this log.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		proof, err := newClient().ExtensionProof(ctx, args[0])
		if errors.Is(err, client.ErrUnavailable) {
			fmt.Fprintln(os.Stderr, "proof unavailable: the log has not strictly extended that commitment")
			os.Exit(1)
		}
		if err != nil {
			return err
		}
		fmt.Println(proof)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <reference>",
	Short: "Check a commitment reference against the current log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		valid, err := newClient().Verify(ctx, args[0])
		if err != nil {
			return err
		}
		if !valid {
			fmt.Println("invalid: reference does not attest this log's history")
			os.Exit(1)
		}
		fmt.Println("valid")
		return nil
	},
}

// ── login ────────────────────────────────────────────────────────────────────

var loginSubject string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain an operator token and store it for later commands",
	Long: `Login exchanges the operator password for a JWT and writes it to
~/.factlog/token, where enable/disable pick it up automatically.

The password is read from stdin (hidden when stdin is a terminal).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if term.IsTerminal(int(syscall.Stdin)) {
			fmt.Fprint(os.Stderr, "Password: ")
			raw, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			password = string(raw)
		} else {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password from stdin: %w", err)
			}
			password = strings.TrimSpace(line)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		tok, err := newClient().Login(ctx, loginSubject, password)
		if err != nil {
			return err
		}
		if err := saveToken(tok); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		fmt.Printf("logged in as %s, token written to %s\n", loginSubject, tokenPath())
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginSubject, "subject", "operator", "Subject to authenticate as")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}
