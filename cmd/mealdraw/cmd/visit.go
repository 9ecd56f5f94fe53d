package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/mealdraw/guard"
)

// routes is the application's navigation table. Unknown paths are treated
// as requiring a signed-in user.
var routes = map[string]guard.Route{
	"/":        {Path: "/"},
	"/login":   {Path: "/login"},
	"/about":   {Path: "/about"},
	"/draw":    {Path: "/draw", RequiresAuth: true},
	"/history": {Path: "/history", RequiresAuth: true},
	"/me":      {Path: "/me", RequiresAuth: true},
	"/admin":   {Path: "/admin", RequiresAuth: true, RequiresAdmin: true},
}

func routeFor(path string) guard.Route {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if r, ok := routes[path]; ok {
		return r
	}
	return guard.Route{Path: path, RequiresAuth: true}
}

var visitCmd = &cobra.Command{
	Use:   "visit <path>",
	Short: "Check whether navigation to a page is allowed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, cmd.OutOrStdout(), nil)
		if err != nil {
			return err
		}
		defer a.close()

		route := routeFor(args[0])
		d := a.guard.Check(cmd.Context(), route)
		if d.Allow {
			printField(a.out, "Allowed", route.Path)
			return nil
		}
		printField(a.out, "Denied", route.Path+" ("+d.Reason+")")
		(&printNavigator{w: a.out}).Navigate(cmd.Context(), d.Redirect)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(visitCmd)
}
