package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/exampleorg/boardrunner/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON status API",
	Long:  "Start an HTTP server exposing boardrunner's board and run-history state as JSON.\nBy default it listens on the serve.addr setting (127.0.0.1:8181). With --port it listens on that port on all interfaces instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := getStore()
		if err != nil {
			return err
		}

		srv := api.NewServer(st)
		addr := viper.GetString("serve.addr")
		if cmd.Flags().Changed("port") {
			addr = fmt.Sprintf(":%d", viper.GetInt("port"))
		}

		ui.Info("Serving status API at http://localhost%s", addr)
		return http.ListenAndServe(addr, srv.Router())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	viper.SetDefault("port", 8080)
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}
