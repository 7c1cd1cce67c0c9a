package cmd

import (
	"github.com/AmyangXYZ/rtseries/pkg/appender"
	"github.com/AmyangXYZ/rtseries/pkg/config"
	"github.com/spf13/cobra"
)

var appendFlags struct {
	url         string
	principal   string
	credentials string
	prefix      string
}

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Create a time series, append values to it and remove it again",
	Long: `append opens a session, adds the topic {prefix}/string/{UTC timestamp} as a time series
of strings, appends the configured values in order, waits for them to settle, removes the
topic and closes the session. Failures after the session is open are printed and do not
change the exit code.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(func(cfg *config.Config) {
			flags := cmd.Flags()
			if flags.Changed("url") {
				cfg.Client.ServerURL = appendFlags.url
			}
			if flags.Changed("principal") {
				cfg.Client.Principal = appendFlags.principal
			}
			if flags.Changed("credentials") {
				cfg.Client.Credentials = appendFlags.credentials
			}
			if flags.Changed("prefix") {
				cfg.Appender.TopicPrefix = appendFlags.prefix
			}
		})
		if err != nil {
			return err
		}

		a := appender.New(cfg.Appender, appender.ClientOpener(cfg.Client), cmd.OutOrStdout())
		_, err = a.Run(cmd.Context())
		return err
	},
}

func init() {
	flags := appendCmd.Flags()
	flags.StringVarP(&appendFlags.url, "url", "u", config.DefaultConfig.Client.ServerURL, "server WebSocket URL")
	flags.StringVarP(&appendFlags.principal, "principal", "p", config.DefaultConfig.Client.Principal, "principal to authenticate as")
	flags.StringVar(&appendFlags.credentials, "credentials", config.DefaultConfig.Client.Credentials, "credentials for the principal")
	flags.StringVar(&appendFlags.prefix, "prefix", config.DefaultConfig.Appender.TopicPrefix, "topic path prefix")
	rootCmd.AddCommand(appendCmd)
}
