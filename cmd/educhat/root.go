package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smallnest/educhat/config"
)

var version = "dev"

// cli carries state shared by the commands of one invocation.
type cli struct {
	configPath string
	logLevel   string
	app        *app
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "educhat",
		Short: "Chat with your study documents",
		Long: `educhat extracts the text of study documents, indexes them with embeddings
and answers questions about them, citing the passages it used.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error, none)")

	root.AddCommand(
		c.newIngestCmd(),
		c.newDocsCmd(),
		c.newSessionCmd(),
		c.newAskCmd(),
		c.newChatCmd(),
		c.newQuizCmd(),
		newVersionCmd(),
	)
	return root
}

// setup loads the configuration and builds the services.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	c.app, err = newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		// Printing the version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "educhat version %s\n", version)
		},
	}
}
