package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/larder/internal/app"
	"github.com/MrWong99/larder/internal/cloudsync"
	"github.com/MrWong99/larder/internal/inventory"
	"github.com/MrWong99/larder/internal/observe"
)

var inventoryCmd = &cobra.Command{
	Use:     "inventory",
	Aliases: []string{"inv"},
	Short:   "Inspect or edit the inventory without starting the assistant",
	Long: `Work on the configured inventory store directly. Changes are queued
for cloud sync exactly as voice edits are; the next 'larder run' with a
sync URL uploads them.`,
}

// ─── list ────────────────────────────────────────────────────────────────────

var listJSON bool

var inventoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List items, soonest to expire first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(ctx context.Context, s inventory.Store, threshold int) error {
			items, err := s.List(ctx)
			if err != nil {
				return err
			}
			t := time.Now()
			inventory.SortByExpiry(items, t)

			out := cmd.OutOrStdout()
			if listJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "The fridge is empty.")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Name", "Qty", "Category", "Location", "Expires", "Left"},
				itemRows(items, t),
				func(row int) bool { return items[row].RemainingDays(t) <= threshold },
			))
			fmt.Fprintln(out, plural(len(items), "item"))
			return nil
		})
	},
}

func itemRows(items []inventory.Item, t time.Time) [][]string {
	rows := make([][]string, len(items))
	for i, it := range items {
		qty := strconv.Itoa(it.Quantity)
		if it.Unit != "" {
			qty += " " + it.Unit
		}
		rows[i] = []string{
			it.Name,
			qty,
			it.Category,
			it.Location,
			it.ExpiresAt.Format(time.DateOnly),
			plural(it.RemainingDays(t), "day"),
		}
	}
	return rows
}

// ─── add ─────────────────────────────────────────────────────────────────────

var addFlags struct {
	quantity  int
	unit      string
	category  string
	location  string
	shelfLife int
	notes     string
}

var inventoryAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add an item",
	Example: `  larder inventory add 牛奶 -n 2 -u 盒 --category dairy
  larder inventory add eggs -n 6 --shelf-life 21`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, s inventory.Store, _ int) error {
			it, err := s.Add(ctx, inventory.Item{
				Name:          args[0],
				Quantity:      addFlags.quantity,
				Unit:          addFlags.unit,
				Category:      addFlags.category,
				Location:      addFlags.location,
				ShelfLifeDays: addFlags.shelfLife,
				Notes:         addFlags.notes,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s x%d, expires %s\n",
				it.Name, it.Quantity, it.ExpiresAt.Format(time.DateOnly))
			return nil
		})
	},
}

// ─── remove ──────────────────────────────────────────────────────────────────

var removeQuantity int

var inventoryRemoveCmd = &cobra.Command{
	Use:     "remove NAME",
	Aliases: []string{"rm"},
	Short:   "Take units of the best matching item out",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, s inventory.Store, _ int) error {
			r, err := s.Remove(ctx, args[0], removeQuantity)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if r.Deleted {
				fmt.Fprintf(out, "Removed %s (none left)\n", r.Item.Name)
				return nil
			}
			fmt.Fprintf(out, "Removed %d of %s, %d left\n", r.Removed, r.Item.Name, r.Item.Quantity)
			return nil
		})
	},
}

// ─── clear ───────────────────────────────────────────────────────────────────

var clearYes bool

var inventoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every item",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !clearYes {
			return errors.New("refusing to clear without --yes")
		}
		return withStore(cmd, func(ctx context.Context, s inventory.Store, _ int) error {
			n, err := s.Clear(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", plural(n, "item"))
			return nil
		})
	},
}

func init() {
	inventoryListCmd.Flags().BoolVar(&listJSON, "json", false, "print items as JSON")

	f := inventoryAddCmd.Flags()
	f.IntVarP(&addFlags.quantity, "quantity", "n", 1, "number of units")
	f.StringVarP(&addFlags.unit, "unit", "u", "", "unit, e.g. 盒 or bottle")
	f.StringVar(&addFlags.category, "category", "", "category; picks the default shelf life")
	f.StringVar(&addFlags.location, "location", "", "where in the fridge")
	f.IntVar(&addFlags.shelfLife, "shelf-life", 0, "shelf life in days (0 = category default)")
	f.StringVar(&addFlags.notes, "notes", "", "free-form notes")

	inventoryRemoveCmd.Flags().IntVarP(&removeQuantity, "quantity", "n", 1, "units to take out")
	inventoryClearCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm deleting everything")

	inventoryCmd.AddCommand(inventoryListCmd, inventoryAddCmd, inventoryRemoveCmd, inventoryClearCmd)
	rootCmd.AddCommand(inventoryCmd)
}

// withStore opens the configured store, wrapped so edits reach the sync
// queue, and runs fn. threshold is the reminder threshold in days.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, s inventory.Store, threshold int) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	backend, err := app.OpenStore(ctx, cfg.Inventory, appFs)
	if err != nil {
		return fmt.Errorf("open %s inventory: %w", cfg.Inventory.Backend, err)
	}
	defer backend.Close()

	metrics := observe.DefaultMetrics()
	queue, err := cloudsync.NewQueue(appFs, cfg.Sync.QueuePath, cloudsync.WithMetrics(metrics))
	if err != nil {
		return err
	}
	store := inventory.NewTracked(backend, queue, metrics)
	if err := fn(ctx, store, cfg.Notify.ThresholdDays); err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			return fmt.Errorf("no item matches %q", strings.Join(cmd.Flags().Args(), " "))
		}
		return err
	}
	return nil
}
