package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	natsadapter "github.com/samirrijal/houselocator/internal/adapters/nats"
	"github.com/samirrijal/houselocator/internal/adapters/simsensor"
	"github.com/samirrijal/houselocator/internal/core/domain"
	"github.com/samirrijal/houselocator/internal/core/usecases"
	"github.com/samirrijal/houselocator/internal/pkg/geospatial"
)

func addCommand(a *app) *cobra.Command {
	var (
		name, notes, caretaker, phone string
		noPrompt                      bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Acquire the current position and save it as a house",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			// validate before bothering the sensor
			draft := domain.NewProperty{Name: name, CaretakerName: caretaker, CaretakerPhone: phone}.Normalize()
			if draft.Name == "" {
				return errors.New("--name is required")
			}

			nc, err := a.nats()
			if err != nil {
				return err
			}
			sensor := natsadapter.NewSensorClient(nc, a.cfg.Acquisition.SensorSubject)
			locator := usecases.NewLocationService(sensor, a.logger)

			var decide usecases.DecideFunc = keepDecider
			if !noPrompt {
				decide = promptDecider(a.in, a.out)
			}

			fmt.Fprintln(a.out, "Acquiring position...")
			acq, err := locator.Acquire(ctx, acquireConfig(a), decide)
			if err != nil {
				return describeAcquireError(err)
			}
			if acq.BelowThreshold {
				fmt.Fprintf(a.out, "Keeping a %s fix (%.1fm).\n", acq.Band, acq.Fix.AccuracyMeters)
			}

			gw, err := a.gateway(ctx)
			if err != nil {
				return err
			}

			p := domain.NewPropertyFromFix(acq.Fix, draft.Name, notes)
			p.CaretakerName = draft.CaretakerName
			p.CaretakerPhone = draft.CaretakerPhone

			env, err := gw.Create(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s (via %s)\n", env.Message, env.Source)
			fmt.Fprintf(a.out, "  id:         %s\n", env.Data.ID)
			fmt.Fprintf(a.out, "  position:   %.6f, %.6f (±%.1fm)\n", env.Data.Latitude, env.Data.Longitude, acq.Fix.AccuracyMeters)
			fmt.Fprintf(a.out, "  directions: %s\n", domain.DirectionsURL(env.Data.Latitude, env.Data.Longitude))
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "House name")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	cmd.Flags().StringVar(&caretaker, "caretaker", "", "Caretaker name")
	cmd.Flags().StringVar(&phone, "phone", "", "Caretaker phone")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Keep the first fix instead of asking to retry")
	return cmd
}

func acquireConfig(a *app) usecases.AcquireConfig {
	c := a.cfg.Acquisition
	return usecases.AcquireConfig{
		MaxWait:             c.MaxWait,
		AccuracyThreshold:   c.AccuracyThreshold,
		MaxRetries:          c.MaxRetries,
		RequireFreshReading: c.RequireFreshReading,
		Tiered:              c.Tiered,
		RetryDelay:          c.RetryDelay,
	}
}

// describeAcquireError turns acquisition failures into operator guidance.
func describeAcquireError(err error) error {
	var le *domain.LocationError
	switch {
	case errors.Is(err, domain.ErrAbandoned):
		return errors.New("location capture abandoned")
	case errors.Is(err, domain.ErrBusy):
		return err
	case errors.As(err, &le):
		switch le.Kind {
		case domain.PermissionDenied:
			return fmt.Errorf("location access denied, allow positioning on the device: %w", err)
		case domain.PositionUnavailable:
			return fmt.Errorf("position unavailable, move to an open area and try again: %w", err)
		case domain.Timeout:
			return fmt.Errorf("no position in time, try again: %w", err)
		case domain.Unsupported:
			return fmt.Errorf("no positioning sensor is responding (is `capture simulate` or the device bridge running?): %w", err)
		}
	}
	return err
}

func listCommand(a *app) *cobra.Command {
	var (
		search      string
		page, limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved houses, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, err := a.gateway(cmd.Context())
			if err != nil {
				return err
			}
			env, err := gw.List(cmd.Context(), search, page, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tLATITUDE\tLONGITUDE\tCARETAKER\tCREATED")
			for _, h := range env.Data {
				fmt.Fprintf(tw, "%s\t%s\t%.6f\t%.6f\t%s\t%s\n",
					h.ID, h.Name, h.Latitude, h.Longitude, h.CaretakerName, h.CreatedAt.Local().Format(time.DateTime))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			p := env.Pagination
			fmt.Fprintf(a.out, "page %d of %d, %d total (via %s)\n", p.Page, max(p.Pages, 1), p.Total, env.Source)
			return nil
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "Filter by name, caretaker or notes")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", domain.DefaultPageSize, "Page size")
	return cmd
}

func mapCommand(a *app) *cobra.Command {
	var (
		search string
		vp     = geospatial.DefaultViewport()
	)

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Project saved houses onto a canvas and print screen positions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := a.cfg.Map.Viewport()
			if !cmd.Flags().Changed("width") {
				vp.Width = conf.Width
			}
			if !cmd.Flags().Changed("height") {
				vp.Height = conf.Height
			}
			if !cmd.Flags().Changed("margin") {
				vp.Margin = conf.Margin
			}
			vp.MinPaddingDegrees = conf.MinPaddingDegrees
			gw, err := a.gateway(cmd.Context())
			if err != nil {
				return err
			}
			env, err := gw.List(cmd.Context(), search, 1, domain.MaxPageSize)
			if err != nil {
				return err
			}

			points, bounds := geospatial.ProjectWithBounds(domain.MapPointsFromRecords(env.Data), vp)
			if len(points) == 0 {
				fmt.Fprintln(a.out, "No houses to draw.")
				return nil
			}
			fmt.Fprintf(a.out, "canvas %gx%g, lat %.5f..%.5f, lng %.5f..%.5f\n",
				vp.Width, vp.Height, bounds.MinLat, bounds.MaxLat, bounds.MinLon, bounds.MaxLon)

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tNAME\tX\tY\tDIRECTIONS")
			for _, p := range points {
				fmt.Fprintf(tw, "%d\t%s\t%.1f\t%.1f\t%s\n", p.SequenceIndex, p.Label, p.ScreenX, p.ScreenY, p.DirectionsURL)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "Filter by name, caretaker or notes")
	cmd.Flags().Float64Var(&vp.Width, "width", vp.Width, "Canvas width")
	cmd.Flags().Float64Var(&vp.Height, "height", vp.Height, "Canvas height")
	cmd.Flags().Float64Var(&vp.Margin, "margin", vp.Margin, "Canvas margin")
	return cmd
}

func removeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a saved house",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := a.gateway(cmd.Context())
			if err != nil {
				return err
			}
			env, err := gw.Remove(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s (via %s)\n", env.Message, env.Source)
			return nil
		},
	}
}

func simulateCommand(a *app) *cobra.Command {
	var cfg simsensor.Config

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Answer position requests with a simulated sensor",
		Long: "Serves the sensor subject with readings scattered around a fixed point, " +
			"each within its reported accuracy. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !domain.ValidLatitude(cfg.Latitude) || !domain.ValidLongitude(cfg.Longitude) {
				return fmt.Errorf("invalid position %v, %v", cfg.Latitude, cfg.Longitude)
			}
			if cfg.Seed == 0 {
				cfg.Seed = uint64(time.Now().UnixNano())
			}
			nc, err := a.nats()
			if err != nil {
				return err
			}
			subject := a.cfg.Acquisition.SensorSubject
			fmt.Fprintf(a.out, "Simulated sensor at %.6f, %.6f on %s\n", cfg.Latitude, cfg.Longitude, subject)

			err = natsadapter.ServeSensor(cmd.Context(), nc, subject, simsensor.New(cfg))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().Float64Var(&cfg.Latitude, "lat", 43.2630, "Latitude")
	cmd.Flags().Float64Var(&cfg.Longitude, "lng", -2.9350, "Longitude")
	cmd.Flags().Float64SliceVar(&cfg.Accuracies, "accuracy", []float64{35, 18, 8}, "Accuracy of successive readings in metres")
	cmd.Flags().DurationVar(&cfg.Delay, "delay", 500*time.Millisecond, "Time per reading")
	cmd.Flags().Uint64Var(&cfg.Seed, "seed", 0, "Random seed (0 picks one)")
	return cmd
}

func watchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print house changes as they happen",
		RunE: func(cmd *cobra.Command, _ []string) error {
			nc, err := a.nats()
			if err != nil {
				return err
			}
			sub, err := natsadapter.NewSubscriber(nc)
			if err != nil {
				return err
			}
			defer sub.Close()

			err = sub.SubscribePropertyEvents(cmd.Context(), "", func(_ context.Context, ev *domain.PropertyEvent) error {
				name := ""
				if ev.Property != nil {
					name = ev.Property.Name
				}
				fmt.Fprintf(a.out, "%s  %-7s %s %s\n", ev.Time.Local().Format(time.TimeOnly), ev.Type, ev.ID, name)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Watching for house changes, Ctrl-C to stop.")
			<-cmd.Context().Done()
			return nil
		},
	}
}
