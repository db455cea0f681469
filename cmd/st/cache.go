package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/servicetrack/internal/geo"
	"github.com/zulandar/servicetrack/internal/location"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the cached viewer location",
		Long:  "Shows, sets or clears the last known location used to measure the technician's distance.",
	}

	cmd.AddCommand(newCacheShowCmd())
	cmd.AddCommand(newCacheSetCmd())
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func newCacheShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the cached location",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFromConfig(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fix, ok := store.Load()
			if !ok {
				fmt.Fprintln(out, "No cached location.")
				return nil
			}
			label := fix.Label
			if label == "" {
				label = "(unlabelled)"
			}
			fmt.Fprintf(out, "Label:       %s\n", label)
			fmt.Fprintf(out, "Coordinates: %s\n", fix.Point)
			fmt.Fprintf(out, "Updated:     %s\n", formatAgo(time.Now(), fix.At))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to servicetrack config file")
	return cmd
}

func newCacheSetCmd() *cobra.Command {
	var (
		configPath string
		lat, lng   float64
		label      string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a location as the cached fix",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFromConfig(configPath)
			if err != nil {
				return err
			}
			fix := location.Fix{Point: geo.Point{Lat: lat, Lng: lng}, Label: label, At: time.Now()}
			if err := store.Save(fix); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cached location %s\n", fix.Point)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to servicetrack config file")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")
	cmd.Flags().StringVar(&label, "label", "", "human-readable label")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lng")
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the cached location",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cached location cleared.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to servicetrack config file")
	return cmd
}

func storeFromConfig(configPath string) (*location.Store, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return openLocationStore(cfg)
}
