package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/skobkin/menulink/internal/menu"
	"github.com/spf13/cobra"
)

func treeCmd(opts *rootOptions) *cobra.Command {
	var (
		timeout    time.Duration
		showHidden bool
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Connect, wait for the menu bootstrap and print the tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := startReady(cmd.Context(), opts, timeout)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			renderTree(cmd.OutOrStdout(), rt.Controller.Tree(), showHidden)

			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultReadyTimeout, "how long to wait for the remote")
	cmd.Flags().BoolVar(&showHidden, "all", false, "include items the remote marks invisible")

	return cmd
}

// renderTree prints one line per item, children indented under their
// submenu.
func renderTree(w io.Writer, tree *menu.Tree, showHidden bool) {
	renderLevel(w, tree, menu.RootID, 0, showHidden)
}

func renderLevel(w io.Writer, tree *menu.Tree, subID, depth int, showHidden bool) {
	for _, item := range tree.ChildItems(subID) {
		base := item.Base()
		if !base.Visible && !showHidden {
			continue
		}
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), describeItem(tree, item))
		if item.Kind() == menu.KindSubMenu {
			renderLevel(w, tree, base.ID, depth+1, showHidden)
		}
	}
}

func describeItem(tree *menu.Tree, item menu.MenuItem) string {
	base := item.Base()
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s (%s)", base.ID, base.Name, item.Kind())

	if st, ok := tree.State(base.ID); ok && item.Kind() != menu.KindSubMenu && item.Kind() != menu.KindAction {
		fmt.Fprintf(&b, " = %s", formatItemValue(item, st.AnyValue()))
	}

	var flags []string
	if base.ReadOnly {
		flags = append(flags, "read-only")
	}
	if base.LocalOnly {
		flags = append(flags, "local")
	}
	if !base.Visible {
		flags = append(flags, "hidden")
	}
	if sub, ok := item.(menu.SubMenuItem); ok && sub.Secured {
		flags = append(flags, "secured")
	}
	if len(flags) > 0 {
		fmt.Fprintf(&b, " {%s}", strings.Join(flags, ", "))
	}

	return b.String()
}

// formatItemValue renders a cached value the way the device would show it
// where the definition carries enough to do so.
func formatItemValue(item menu.MenuItem, v any) string {
	switch it := item.(type) {
	case menu.AnalogMenuItem:
		raw, ok := v.(int)
		if !ok {
			break
		}
		text := formatAnalog(it, raw)
		if it.UnitName != "" {
			text += it.UnitName
		}
		return text
	case menu.EnumMenuItem:
		idx, ok := v.(int)
		if ok && idx >= 0 && idx < len(it.Entries) {
			return fmt.Sprintf("%s (%d)", it.Entries[idx], idx)
		}
	case menu.BooleanMenuItem:
		on, ok := v.(bool)
		if ok {
			return booleanText(it.Naming, on)
		}
	}

	return formatValue(v)
}

func formatAnalog(item menu.AnalogMenuItem, raw int) string {
	shifted := raw + item.Offset
	if item.Divisor <= 1 {
		return fmt.Sprint(shifted)
	}

	return fmt.Sprintf("%.*f", decimalsFor(item.Divisor), float64(shifted)/float64(item.Divisor))
}

func decimalsFor(divisor int) int {
	n := 0
	for d := divisor; d > 1; d /= 10 {
		n++
	}

	return n
}

func booleanText(naming menu.BooleanNaming, on bool) string {
	switch naming {
	case menu.NamingOnOff:
		if on {
			return "ON"
		}
		return "OFF"
	case menu.NamingYesNo:
		if on {
			return "YES"
		}
		return "NO"
	case menu.NamingCheckbox:
		if on {
			return "[x]"
		}
		return "[ ]"
	default:
		if on {
			return "TRUE"
		}
		return "FALSE"
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(val, ", ")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
