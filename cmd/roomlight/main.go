// roomlight recommends where to put lights in a scanned room and which
// fixtures to use.
//
//	roomlight planes --synthetic 4x2.5x5
//	roomlight volume --mesh room.glb
//	roomlight plan --mesh room.glb --outlet 2,-1.2,0 --preference high --report plan.html
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/banshee-data/roomlight/internal/monitoring"
	"github.com/banshee-data/roomlight/internal/version"
)

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:   "roomlight",
		Short: "Room lighting recommender",
		Long: `roomlight detects the floor, ceiling, walls and tables of a scanned room,
estimates its volume and recommends lighting units at outlet positions
until enough of the room is lit for the chosen brightness.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !verbose {
				monitoring.SetLogger(nil)
				return
			}
			l := log.New(cmd.ErrOrStderr(), "", log.LstdFlags|log.Lmicroseconds)
			monitoring.SetLogger(l.Printf)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline diagnostics to stderr")
	root.AddCommand(newPlanCmd(), newPlanesCmd(), newVolumeCmd())
	return root
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version.String()))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		os.Exit(1)
	}
}
