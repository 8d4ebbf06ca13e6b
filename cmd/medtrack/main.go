package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/TrXuk/open-medtracker-sub000/internal/app"
	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
	"github.com/TrXuk/open-medtracker-sub000/internal/engine"
	"github.com/TrXuk/open-medtracker-sub000/internal/notify"
	"github.com/TrXuk/open-medtracker-sub000/internal/repo"
	"github.com/TrXuk/open-medtracker-sub000/internal/server"
	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

var rootCmd = &cobra.Command{
	Use:   "medtrack",
	Short: "Medtrack CLI",
	Long: `Medtrack tracks medication doses across time zones.
Schedules keep civil times in a reference zone; dose records pin the exact
instant each dose was due, so a zone change or DST shift never loses or
duplicates a dose. Zone changes are recorded as transition events and
schedules are re-anchored with an explicit strategy.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("MEDTRACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(medCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(doseCmd())
	rootCmd.AddCommand(transitionCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(zoneCmd())
}

func medCmd() *cobra.Command {
	med := &cobra.Command{Use: "med", Short: "Manage medications"}
	med.AddCommand(medAddCmd())
	med.AddCommand(medListCmd())
	med.AddCommand(medShowCmd())
	med.AddCommand(medUpdateCmd())
	med.AddCommand(medDeactivateCmd())
	return med
}

func medAddCmd() *cobra.Command {
	var name, dosage, startDate, endDate string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a medication",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				start, err := zoneclock.ParseCivilDate(startDate)
				if err != nil {
					return err
				}
				opts := engine.MedicationCreateOptions{Name: name, Dosage: dosage, StartDate: start}
				if endDate != "" {
					end, err := zoneclock.ParseCivilDate(endDate)
					if err != nil {
						return err
					}
					opts.EndDate = &end
				}
				m, err := e.CreateMedication(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "medication name")
	cmd.Flags().StringVar(&dosage, "dosage", "", "dosage description")
	cmd.Flags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end", "", "end date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func medListCmd() *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List medications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListMedications(ctx, repo.MedicationFilters{ActiveOnly: activeOnly})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Dosage", "Active", "Start", "End"})
				for _, m := range items {
					end := ""
					if m.EndDate != nil {
						end = m.EndDate.String()
					}
					tw.AppendRow(table.Row{m.ID, m.Name, m.Dosage, m.Active, m.StartDate.String(), end})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active medications")
	return cmd
}

func medShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a medication",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Repo.GetMedication(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func medUpdateCmd() *cobra.Command {
	var name, dosage, endDate string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a medication",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var opts engine.MedicationUpdateOptions
				if cmd.Flags().Changed("name") {
					opts.Name = &name
				}
				if cmd.Flags().Changed("dosage") {
					opts.Dosage = &dosage
				}
				if cmd.Flags().Changed("end") {
					end, err := zoneclock.ParseCivilDate(endDate)
					if err != nil {
						return err
					}
					opts.EndDate = &end
				}
				m, err := e.UpdateMedication(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "medication name")
	cmd.Flags().StringVar(&dosage, "dosage", "", "dosage description")
	cmd.Flags().StringVar(&endDate, "end", "", "end date (YYYY-MM-DD)")
	return cmd
}

func medDeactivateCmd() *cobra.Command {
	var endDate string
	cmd := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate a medication and disable its schedules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var end *zoneclock.CivilDate
				if endDate != "" {
					d, err := zoneclock.ParseCivilDate(endDate)
					if err != nil {
						return err
					}
					end = &d
				}
				m, err := e.DeactivateMedication(ctx, args[0], end)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&endDate, "end", "", "end date (YYYY-MM-DD), defaults to today")
	return cmd
}

func scheduleCmd() *cobra.Command {
	sc := &cobra.Command{Use: "schedule", Short: "Manage schedules"}
	sc.AddCommand(scheduleAddCmd())
	sc.AddCommand(scheduleListCmd())
	sc.AddCommand(scheduleShowCmd())
	sc.AddCommand(scheduleUpdateCmd())
	sc.AddCommand(scheduleNextCmd())
	sc.AddCommand(scheduleEnableCmd(true))
	sc.AddCommand(scheduleEnableCmd(false))
	return sc
}

func parseDays(days []string) (domain.DayMask, error) {
	if len(days) == 0 {
		return domain.DayMaskAll, nil
	}
	var mask domain.DayMask
	for _, name := range days {
		matched := false
		for d := time.Sunday; d <= time.Saturday; d++ {
			if strings.EqualFold(d.String(), name) || strings.EqualFold(d.String()[:3], name) {
				mask |= domain.DayMaskOf(d)
				matched = true
				break
			}
		}
		if !matched {
			return 0, fmt.Errorf("unknown weekday %q", name)
		}
	}
	return mask, nil
}

func scheduleAddCmd() *cobra.Command {
	var medicationID, kind, zone, timeOfDay, anchor string
	var days []string
	var interval time.Duration
	var disabled bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				k, err := domain.ParseScheduleKind(kind)
				if err != nil {
					return err
				}
				opts := engine.ScheduleCreateOptions{
					MedicationID:  medicationID,
					Kind:          k,
					ReferenceZone: zone,
					Interval:      interval,
					Enabled:       !disabled,
				}
				if k == domain.ScheduleTimeOfDay {
					if opts.TimeOfDay, err = zoneclock.ParseCivilTime(timeOfDay); err != nil {
						return err
					}
					if opts.DayMask, err = parseDays(days); err != nil {
						return err
					}
				}
				if anchor != "" {
					at, err := time.Parse(time.RFC3339, anchor)
					if err != nil {
						return fmt.Errorf("invalid anchor: %w", err)
					}
					opts.Anchor = &at
				}
				s, err := e.CreateSchedule(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&medicationID, "med", "", "medication id")
	cmd.Flags().StringVar(&kind, "kind", "time_of_day", "schedule kind (time_of_day, interval, as_needed)")
	cmd.Flags().StringVar(&zone, "zone", "", "reference zone (IANA identifier)")
	cmd.Flags().StringVar(&timeOfDay, "at", "", "civil time of day (HH:MM)")
	cmd.Flags().StringSliceVar(&days, "days", nil, "weekdays (default all)")
	cmd.Flags().DurationVar(&interval, "every", 0, "interval between doses (interval kind)")
	cmd.Flags().StringVar(&anchor, "anchor", "", "anchor instant (RFC3339, interval kind)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create disabled")
	_ = cmd.MarkFlagRequired("med")
	_ = cmd.MarkFlagRequired("zone")
	return cmd
}

func scheduleListCmd() *cobra.Command {
	var medicationID string
	var enabledOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListSchedules(ctx, repo.ScheduleFilters{
					MedicationID: medicationID,
					EnabledOnly:  enabledOnly,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Medication", "Kind", "Zone", "Time", "Enabled"})
				for _, s := range items {
					at := ""
					if s.Kind == domain.ScheduleTimeOfDay {
						at = s.TimeOfDay.String()
					} else if s.Kind == domain.ScheduleInterval {
						at = "every " + s.Interval.String()
					}
					tw.AppendRow(table.Row{s.ID, s.MedicationID, s.Kind, s.ReferenceZone, at, s.Enabled})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&medicationID, "med", "", "medication filter")
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "only enabled schedules")
	return cmd
}

func scheduleShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Repo.GetSchedule(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func scheduleUpdateCmd() *cobra.Command {
	var zone, timeOfDay, anchor string
	var days []string
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var opts engine.ScheduleUpdateOptions
				if cmd.Flags().Changed("zone") {
					opts.ReferenceZone = &zone
				}
				if cmd.Flags().Changed("at") {
					t, err := zoneclock.ParseCivilTime(timeOfDay)
					if err != nil {
						return err
					}
					opts.TimeOfDay = &t
				}
				if cmd.Flags().Changed("days") {
					mask, err := parseDays(days)
					if err != nil {
						return err
					}
					opts.DayMask = &mask
				}
				if cmd.Flags().Changed("every") {
					opts.Interval = &interval
				}
				if cmd.Flags().Changed("anchor") {
					at, err := time.Parse(time.RFC3339, anchor)
					if err != nil {
						return fmt.Errorf("invalid anchor: %w", err)
					}
					opts.Anchor = &at
				}
				s, err := e.UpdateSchedule(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&zone, "zone", "", "reference zone")
	cmd.Flags().StringVar(&timeOfDay, "at", "", "civil time of day (HH:MM)")
	cmd.Flags().StringSliceVar(&days, "days", nil, "weekdays")
	cmd.Flags().DurationVar(&interval, "every", 0, "interval between doses")
	cmd.Flags().StringVar(&anchor, "anchor", "", "anchor instant (RFC3339)")
	return cmd
}

func scheduleNextCmd() *cobra.Command {
	var after string
	cmd := &cobra.Command{
		Use:   "next <id>",
		Short: "Show the next occurrence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var afterPtr *time.Time
				if after != "" {
					at, err := time.Parse(time.RFC3339, after)
					if err != nil {
						return fmt.Errorf("invalid --after: %w", err)
					}
					afterPtr = &at
				}
				next, err := e.NextDose(ctx, args[0], afterPtr)
				if err != nil {
					return err
				}
				if next == nil {
					fmt.Println("no upcoming occurrence")
					return nil
				}
				return printJSONOrTable(map[string]any{"next": next.Format(time.RFC3339)})
			})
		},
	}
	cmd.Flags().StringVar(&after, "after", "", "query instant (RFC3339, default now)")
	return cmd
}

func scheduleEnableCmd(enable bool) *cobra.Command {
	use, short := "enable <id>", "Enable a schedule"
	if !enable {
		use, short = "disable <id>", "Disable a schedule"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.SetScheduleEnabled(ctx, args[0], enable)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func doseCmd() *cobra.Command {
	dose := &cobra.Command{Use: "dose", Short: "Manage dose records"}
	dose.AddCommand(doseGenerateCmd())
	dose.AddCommand(doseListCmd())
	dose.AddCommand(doseTakeCmd())
	dose.AddCommand(doseMissCmd())
	dose.AddCommand(doseSkipCmd())
	dose.AddCommand(doseResetCmd())
	dose.AddCommand(doseLogCmd())
	return dose
}

func doseGenerateCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate dose records for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := zoneclock.ParseCivilDate(from)
				if err != nil {
					return err
				}
				t, err := zoneclock.ParseCivilDate(to)
				if err != nil {
					return err
				}
				created, err := e.GenerateDoses(ctx, f, t)
				if err != nil {
					return err
				}
				fmt.Printf("generated %d dose(s)\n", len(created))
				if viper.GetBool("json") {
					return printJSON(created)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "end date inclusive (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func doseListCmd() *cobra.Command {
	var scheduleID, medicationID, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dose records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if status != "" {
					if _, err := domain.ParseDoseStatus(status); err != nil {
						return err
					}
				}
				items, err := e.Repo.ListDoses(ctx, repo.DoseFilters{
					ScheduleID:   scheduleID,
					MedicationID: medicationID,
					Status:       status,
					Limit:        limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Medication", "Scheduled", "Status", "Taken", "Zone"})
				for _, d := range items {
					scheduled, taken := "", ""
					if d.ScheduledAt != nil {
						scheduled = d.ScheduledAt.Format(time.RFC3339)
					}
					if d.TakenAt != nil {
						taken = d.TakenAt.Format(time.RFC3339)
					}
					tw.AppendRow(table.Row{d.ID, d.MedicationID, scheduled, d.Status, taken, d.RecordedZone})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&scheduleID, "schedule", "", "schedule filter")
	cmd.Flags().StringVar(&medicationID, "med", "", "medication filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "max records")
	return cmd
}

func parseTakenAt(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	at, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid --at: %w", err)
	}
	return &at, nil
}

func doseTakeCmd() *cobra.Command {
	var at, zone, note string
	cmd := &cobra.Command{
		Use:   "take <id>",
		Short: "Mark a dose taken",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				takenAt, err := parseTakenAt(at)
				if err != nil {
					return err
				}
				d, err := e.MarkTaken(ctx, args[0], takenAt, zone, note)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "taken instant (RFC3339, default now)")
	cmd.Flags().StringVar(&zone, "zone", "", "zone the dose was taken in")
	cmd.Flags().StringVar(&note, "note", "", "note")
	return cmd
}

func doseMissCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "miss <id>",
		Short: "Mark a dose missed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.MarkMissed(ctx, args[0], note)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note")
	return cmd
}

func doseSkipCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "skip <id>",
		Short: "Mark a dose skipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.MarkSkipped(ctx, args[0], note)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "reason for skipping")
	return cmd
}

func doseResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <id>",
		Short: "Reset a dose to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.ResetDose(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func doseLogCmd() *cobra.Command {
	var at, zone, note string
	cmd := &cobra.Command{
		Use:   "log <medication-id>",
		Short: "Log an as-needed dose",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				takenAt, err := parseTakenAt(at)
				if err != nil {
					return err
				}
				d, err := e.LogAsNeededDose(ctx, args[0], takenAt, zone, note)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "taken instant (RFC3339, default now)")
	cmd.Flags().StringVar(&zone, "zone", "", "zone the dose was taken in")
	cmd.Flags().StringVar(&note, "note", "", "note")
	_ = cmd.MarkFlagRequired("zone")
	return cmd
}

func transitionCmd() *cobra.Command {
	tr := &cobra.Command{Use: "transition", Short: "Manage zone transitions"}
	tr.AddCommand(transitionDetectCmd())
	tr.AddCommand(transitionPendingCmd())
	tr.AddCommand(transitionConfirmCmd())
	tr.AddCommand(transitionDiscardCmd())
	tr.AddCommand(transitionRecordCmd())
	tr.AddCommand(transitionListCmd())
	tr.AddCommand(transitionProposeCmd())
	tr.AddCommand(transitionApplyCmd())
	tr.AddCommand(transitionAssociateCmd())
	return tr
}

func transitionDetectCmd() *cobra.Command {
	var from, to, at string
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Report a zone-change candidate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var occurredAt time.Time
				if at != "" {
					parsed, err := time.Parse(time.RFC3339, at)
					if err != nil {
						return fmt.Errorf("invalid --at: %w", err)
					}
					occurredAt = parsed
				}
				p, err := e.DetectTransition(ctx, from, to, occurredAt, domain.DetectionManual)
				if err != nil {
					return err
				}
				if p == nil {
					fmt.Println("zones are equivalent; nothing recorded")
					return nil
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "previous zone")
	cmd.Flags().StringVar(&to, "to", "", "new zone")
	cmd.Flags().StringVar(&at, "at", "", "occurrence instant (RFC3339, default now)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func transitionPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show the pending transition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.PendingTransition(ctx)
				if err != nil {
					return err
				}
				if p == nil {
					fmt.Println("no pending transition")
					return nil
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func transitionConfirmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm the pending transition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evt, err := e.ConfirmPending(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(evt)
			})
		},
	}
	return cmd
}

func transitionDiscardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discard",
		Short: "Discard the pending transition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DiscardPending(ctx)
			})
		},
	}
	return cmd
}

func transitionRecordCmd() *cobra.Command {
	var from, to, at, detection string
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a confirmed transition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.TransitionRecordOptions{
					PreviousZone: from,
					NewZone:      to,
					Detection:    domain.DetectionMethod(detection),
				}
				if at != "" {
					parsed, err := time.Parse(time.RFC3339, at)
					if err != nil {
						return fmt.Errorf("invalid --at: %w", err)
					}
					opts.OccurredAt = parsed
				}
				evt, err := e.RecordTransition(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(evt)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "previous zone")
	cmd.Flags().StringVar(&to, "to", "", "new zone")
	cmd.Flags().StringVar(&at, "at", "", "occurrence instant (RFC3339, default now)")
	cmd.Flags().StringVar(&detection, "detection", "manual", "detection method")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func transitionListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListTransitionEvents(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "From", "To", "Occurred", "Detection", "Confirmed"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.PreviousZone, e.NewZone, e.OccurredAt.Format(time.RFC3339), e.Detection, e.UserConfirmed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max events")
	return cmd
}

func parseCustomTimes(pairs []string) (map[string]zoneclock.CivilTime, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]zoneclock.CivilTime, len(pairs))
	for _, p := range pairs {
		id, val, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --custom %q, want schedule-id=HH:MM", p)
		}
		t, err := zoneclock.ParseCivilTime(val)
		if err != nil {
			return nil, err
		}
		out[id] = t
	}
	return out, nil
}

func transitionProposeCmd() *cobra.Command {
	var strategy string
	var gradualDays int
	var custom []string
	cmd := &cobra.Command{
		Use:   "propose <event-id>",
		Short: "Propose schedule adjustments (dry run)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := domain.ParseAdjustmentStrategy(strategy)
				if err != nil {
					return err
				}
				customTimes, err := parseCustomTimes(custom)
				if err != nil {
					return err
				}
				adjs, err := e.ProposeAdjustments(ctx, args[0], st, gradualDays, customTimes)
				if err != nil {
					return err
				}
				return printJSONOrTable(adjs)
			})
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "keep_local_time", "re-anchoring strategy")
	cmd.Flags().IntVar(&gradualDays, "days", 0, "steps for gradual_shift")
	cmd.Flags().StringSliceVar(&custom, "custom", nil, "custom times, schedule-id=HH:MM")
	return cmd
}

func transitionApplyCmd() *cobra.Command {
	var strategy string
	var gradualDays int
	var custom []string
	cmd := &cobra.Command{
		Use:   "apply <event-id>",
		Short: "Apply schedule adjustments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := domain.ParseAdjustmentStrategy(strategy)
				if err != nil {
					return err
				}
				customTimes, err := parseCustomTimes(custom)
				if err != nil {
					return err
				}
				adjs, err := e.ApplyAdjustments(ctx, args[0], st, gradualDays, customTimes)
				if err != nil {
					return err
				}
				return printJSONOrTable(adjs)
			})
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "keep_local_time", "re-anchoring strategy")
	cmd.Flags().IntVar(&gradualDays, "days", 0, "steps for gradual_shift")
	cmd.Flags().StringSliceVar(&custom, "custom", nil, "custom times, schedule-id=HH:MM")
	return cmd
}

func transitionAssociateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "associate <event-id>",
		Short: "Associate nearby pending doses with an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.AssociateAffectedDoses(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("linked %d dose(s)\n", n)
				return nil
			})
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{Use: "report", Short: "Reports"}
	rep.AddCommand(reportAdherenceCmd())
	rep.AddCommand(reportOverdueCmd())
	return rep
}

func reportAdherenceCmd() *cobra.Command {
	var from, to, medicationID string
	cmd := &cobra.Command{
		Use:   "adherence",
		Short: "Adherence over a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := time.Parse(time.RFC3339, from)
				if err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
				t, err := time.Parse(time.RFC3339, to)
				if err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
				rep, err := e.Adherence(ctx, f, t, medicationID)
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "window end (RFC3339)")
	cmd.Flags().StringVar(&medicationID, "med", "", "medication filter")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func reportOverdueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List overdue pending doses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.OverdueDoses(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Audit log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func historyCmd() *cobra.Command {
	h := &cobra.Command{Use: "history", Short: "Dose history maintenance"}
	h.AddCommand(historyPruneCmd())
	return h
}

func historyPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete resolved records older than the retention horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.PruneDoseHistory(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("pruned %d record(s)\n", n)
				return nil
			})
		},
	}
	return cmd
}

func zoneCmd() *cobra.Command {
	z := &cobra.Command{Use: "zone", Short: "Zone utilities"}
	z.AddCommand(zoneCheckCmd())
	return z
}

func zoneCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <zone>",
		Short: "Validate and canonicalize a zone identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Open the workspace so configured zone aliases are registered.
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				canonical, err := zoneclock.Canonical(args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"zone": args[0], "canonical": canonical})
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer a.Close()
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Log: log})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Medtrack API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func watchCmd() *cobra.Command {
	var cronSpec string
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the dose dispatcher and zone watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer a.Close()
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			d := &notify.Dispatcher{Engine: a.Engine, Log: log}
			if err := d.Start(cronSpec); err != nil {
				return err
			}
			defer d.Stop()

			w := &notify.ZoneWatcher{
				Engine:   a.Engine,
				Interval: interval,
				Log:      log,
				CurrentZone: func() (string, error) {
					if z := a.Config.HomeZone; z != "" {
						return z, nil
					}
					zone, _ := time.Now().Zone()
					loc := time.Local.String()
					if loc != "" && loc != "Local" {
						return loc, nil
					}
					return zone, nil
				},
			}
			w.Start()
			defer w.Stop()

			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&cronSpec, "cron", "*/15 * * * *", "dispatch cron spec")
	cmd.Flags().DurationVar(&interval, "poll", time.Minute, "zone poll interval")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func newLogger() (*zap.Logger, error) {
	if viper.GetBool("verbose") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
