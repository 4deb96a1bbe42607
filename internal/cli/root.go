package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leafsii/postboard-backend/internal/client"
	"github.com/leafsii/postboard-backend/internal/log"
)

const defaultAPIURL = "http://localhost:8080"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	APIURL    string
	Transport string
	Timeout   time.Duration
	Format    string
	Verbose   bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command of postctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	v := viper.New()
	v.SetEnvPrefix("PB")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "postctl",
		Short:         "Read and edit posts on a postboard server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Flags win over PB_API_URL, which wins over the default.
			if !cmd.Flags().Changed("api") {
				if env := v.GetString("api_url"); env != "" {
					opts.APIURL = env
				}
			}
			if !isValid(opts.Format, ValidFormats) {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if !isValid(strings.ToLower(opts.Transport), []string{client.TransportREST, client.TransportRPC}) {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid transport %q: must be rest or rpc", opts.Transport))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", defaultAPIURL, "API base URL (env PB_API_URL)")
	cmd.PersistentFlags().StringVar(&opts.Transport, "transport", client.TransportREST, "API binding (rest|rpc)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", client.DefaultTimeout, "per-request timeout")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging to stderr")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func newClient(opts *RootOptions) (*client.Client, error) {
	c, err := client.New(client.Options{
		BaseURL:   opts.APIURL,
		Transport: opts.Transport,
		Timeout:   opts.Timeout,
		Logger:    log.NewCLI(opts.Verbose),
	})
	if err != nil {
		return nil, WrapExitError(ExitUsage, "cannot create client", err)
	}
	return c, nil
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}

func isValid(value string, allowed []string) bool {
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

// Exit codes for CLI commands.
const (
	ExitSuccess = 0
	ExitFailure = 1 // the server rejected or failed the request
	ExitUsage   = 2 // bad flags or arguments
)

// ExitError carries an exit code along with the message.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns ExitFailure for errors that are not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}
