package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/roomlight/internal/surface"
	"github.com/banshee-data/roomlight/internal/units"
)

func newPlanesCmd() *cobra.Command {
	f := &sourceFlags{}
	cmd := &cobra.Command{
		Use:   "planes",
		Short: "List the classified planes of a room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(); err != nil {
				return err
			}
			cfg, err := f.loadConfig()
			if err != nil {
				return err
			}
			_, out, _, err := scanRoom(cmd.Context(), f, cfg)
			if err != nil {
				return err
			}

			ls := units.LengthSuffix(f.units)
			w := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "TAG\tTYPE\tAREA (%s2)\tCENTRE (%s)\tNORMAL\n", ls, ls)
			for _, sp := range out.Catalog.All() {
				c, n := sp.Bounds.Center, sp.Plane.Normal
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t(%.2f, %.2f, %.2f)\t(%.2f, %.2f, %.2f)\n",
					sp.Tag, sp.Type, units.ConvertArea(sp.Area, f.units),
					units.ConvertLength(c.X, f.units), units.ConvertLength(c.Y, f.units), units.ConvertLength(c.Z, f.units),
					n.X, n.Y, n.Z)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			counts := out.Catalog.Counts()
			fmt.Fprintf(w, "%d planes:", out.Catalog.Len())
			for _, t := range surface.AllPlaneTypes {
				fmt.Fprintf(w, " %s=%d", t, counts[t])
			}
			fmt.Fprintln(w)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newVolumeCmd() *cobra.Command {
	f := &sourceFlags{}
	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Estimate the dimensions and volume of a room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(); err != nil {
				return err
			}
			cfg, err := f.loadConfig()
			if err != nil {
				return err
			}
			_, out, _, err := scanRoom(cmd.Context(), f, cfg)
			if err != nil {
				return err
			}
			if out.VolumeErr != nil {
				return out.VolumeErr
			}
			printRoom(cmd.OutOrStdout(), out, f.units)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
