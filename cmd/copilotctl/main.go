// Command copilotctl drives a running live copilot service from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"ai-live-copilot-service/internal/client"
	"ai-live-copilot-service/internal/models"
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "Display API base URL")
	rootCmd.PersistentFlags().String("grpc-addr", "localhost:50051", "gRPC health address")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./copilotctl.yaml)")

	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("grpc_addr", rootCmd.PersistentFlags().Lookup("grpc-addr"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))

	transcriptCmd.Flags().String("speaker", "", "Only entries from this speaker")
	transcriptCmd.Flags().String("q", "", "Case-insensitive text search")
	transcriptCmd.Flags().Bool("bookmarked", false, "Only bookmarked entries")
	transcriptCmd.Flags().Bool("key-moments", false, "Only key moments")

	rootCmd.AddCommand(statusCmd, listenCmd, micCmd, signInCmd, signOutCmd, demoResetCmd)
	rootCmd.AddCommand(transcriptCmd, speakersCmd, bookmarkCmd, clearCmd, enrichmentCmd)
	rootCmd.AddCommand(watchCmd, healthCmd)
}

func initConfig() {
	if path, _ := rootCmd.PersistentFlags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("copilotctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("COPILOT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:          "copilotctl",
	Short:        "Control a live copilot session",
	SilenceUsage: true,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := newClient().State(cmd.Context())
		return printResult(st, err)
	},
}

var listenCmd = &cobra.Command{
	Use:       "listen <on|off>",
	Short:     "Start or stop listening",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		st, err := newClient().SetListening(cmd.Context(), on)
		return printResult(st, err)
	},
}

var micCmd = &cobra.Command{
	Use:       "mic <granted|denied|prompt>",
	Short:     "Set the microphone permission",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"granted", "denied", "prompt"},
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newClient().SetMicPermission(cmd.Context(), models.MicPermission(args[0]))
		return printResult(st, err)
	},
}

var signInCmd = &cobra.Command{
	Use:   "signin <token>",
	Short: "Sign in with a bearer token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newClient().SignIn(cmd.Context(), args[0])
		return printResult(st, err)
	},
}

var signOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := newClient().SignOut(cmd.Context())
		return printResult(st, err)
	},
}

var demoResetCmd = &cobra.Command{
	Use:   "demo-reset",
	Short: "Reset the demo allowance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := newClient().ResetDemo(cmd.Context())
		return printResult(st, err)
	},
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Print the transcript",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		q := client.TranscriptQuery{}
		q.Speaker, _ = f.GetString("speaker")
		q.Query, _ = f.GetString("q")
		q.Bookmarked, _ = f.GetBool("bookmarked")
		q.KeyMoments, _ = f.GetBool("key-moments")

		view, err := newClient().Transcript(cmd.Context(), q)
		if err != nil {
			return err
		}
		for _, e := range view.Entries {
			mark := " "
			if e.Bookmarked {
				mark = "*"
			}
			tag := ""
			if e.IsKeyMoment() {
				tag = " [" + string(e.KeyMoment) + "]"
			}
			fmt.Printf("%s %s %d %s: %s%s\n", mark, e.Time, e.ID, e.Speaker, e.Text, tag)
		}
		if view.InterimText != "" {
			fmt.Printf("  ... %s\n", view.InterimText)
		}
		return nil
	},
}

var speakersCmd = &cobra.Command{
	Use:   "speakers",
	Short: "List speakers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		speakers, err := newClient().Speakers(cmd.Context())
		return printResult(speakers, err)
	},
}

var bookmarkCmd = &cobra.Command{
	Use:   "bookmark <id>",
	Short: "Toggle the bookmark on an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid entry id %q", args[0])
		}
		e, err := newClient().ToggleBookmark(cmd.Context(), id)
		return printResult(e, err)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the transcript and enrichment",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return newClient().Clear(cmd.Context())
	},
}

var enrichmentCmd = &cobra.Command{
	Use:   "enrichment",
	Short: "Show the current enrichment",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := newClient().Enrichment(cmd.Context())
		return printResult(st, err)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream session events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		enc := json.NewEncoder(os.Stdout)
		return client.New(viper.GetString("server"), 0).Watch(ctx, func(ev models.Event) error {
			return enc.Encode(ev)
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health [service]",
	Short: "Query the gRPC health service",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := grpc.NewClient(viper.GetString("grpc_addr"), grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
		defer cancel()

		req := &grpc_health_v1.HealthCheckRequest{}
		if len(args) == 1 {
			req.Service = args[0]
		}
		resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, req)
		if err != nil {
			return err
		}
		fmt.Println(resp.GetStatus().String())
		return nil
	},
}

func newClient() *client.Client {
	return client.New(viper.GetString("server"), viper.GetDuration("timeout"))
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "start":
		return true, nil
	case "off", "false", "stop":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func printResult(v any, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
