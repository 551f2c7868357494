package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/skobkin/menulink/internal/app"
	"github.com/skobkin/menulink/internal/bus"
	"github.com/skobkin/menulink/internal/commands"
	"github.com/skobkin/menulink/internal/events"
	"github.com/spf13/cobra"
)

const defaultAckTimeout = 10 * time.Second

// sendFunc issues one outbound request and returns its correlation.
type sendFunc func(rt *app.Runtime) (commands.CorrelationID, error)

type sendOptions struct {
	readyTimeout time.Duration
	ackTimeout   time.Duration
	noWait       bool
}

func (o *sendOptions) bind(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&o.readyTimeout, "timeout", defaultReadyTimeout, "how long to wait for the remote")
	cmd.Flags().DurationVar(&o.ackTimeout, "ack-timeout", defaultAckTimeout, "how long to wait for the acknowledgement")
	cmd.Flags().BoolVar(&o.noWait, "no-wait", false, "return once the change is written")
}

func setCmd(opts *rootOptions) *cobra.Command {
	so := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "set <item-id> <value> [value...]",
		Short: "Send an absolute value to an item",
		Long: `Send an absolute value to an item. Several values replace the rows
of a runtime list.

Examples:
  menuctl set 3 55
  menuctl set 12 "Living room"
  menuctl set 20 first second third`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			values := args[1:]

			return runSend(cmd, opts, so, func(rt *app.Runtime) (commands.CorrelationID, error) {
				if len(values) > 1 {
					return rt.Controller.SendListUpdate(id, values)
				}
				return rt.Controller.SendAbsoluteUpdate(id, values[0])
			})
		},
	}
	so.bind(cmd)

	return cmd
}

func deltaCmd(opts *rootOptions) *cobra.Command {
	so := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "delta <item-id> <amount>",
		Short: "Step an item's value up or down",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.Atoi(strings.TrimSpace(args[1]))
			if err != nil {
				return fmt.Errorf("invalid delta %q: %w", args[1], err)
			}

			return runSend(cmd, opts, so, func(rt *app.Runtime) (commands.CorrelationID, error) {
				return rt.Controller.SendDeltaUpdate(id, amount)
			})
		},
	}
	cmd.Flags().SetInterspersed(false)
	so.bind(cmd)

	return cmd
}

func dialogCmd(opts *rootOptions) *cobra.Command {
	so := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "dialog <accept|cancel|ok|close>",
		Short: "Press a button on the dialog the remote is showing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			button, err := parseButton(args[0])
			if err != nil {
				return err
			}

			return runSend(cmd, opts, so, func(rt *app.Runtime) (commands.CorrelationID, error) {
				return rt.Controller.SendDialogAction(button)
			})
		},
	}
	so.bind(cmd)

	return cmd
}

func runSend(cmd *cobra.Command, opts *rootOptions, so *sendOptions, send sendFunc) error {
	ctx := cmd.Context()
	rt, err := startReady(ctx, opts, so.readyTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	sub := rt.Bus.Subscribe(events.TopicMenuAck, events.TopicSendResult)
	defer rt.Bus.Unsubscribe(sub, events.TopicMenuAck, events.TopicSendResult)

	correlation, err := send(rt)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, so.ackTimeout)
	defer cancel()
	ack, err := awaitOutcome(wctx, sub, correlation, so.noWait)
	if err != nil {
		return err
	}
	printOutcome(cmd.OutOrStdout(), correlation, ack, so.noWait)
	if ack.Status.IsError() {
		return fmt.Errorf("remote rejected the change: %s", ack.Status)
	}

	return nil
}

var errNoAck = errors.New("no acknowledgement from the remote")

// awaitOutcome waits for the acknowledgement with the given correlation.
// A failed send ends the wait early; with writtenOnly a successful send
// is enough.
func awaitOutcome(ctx context.Context, sub bus.Subscription, correlation commands.CorrelationID, writtenOnly bool) (events.Ack, error) {
	for {
		select {
		case <-ctx.Done():
			return events.Ack{}, fmt.Errorf("%w for %s: %v", errNoAck, correlation, ctx.Err())
		case raw, ok := <-sub:
			if !ok {
				return events.Ack{}, errors.New("event stream closed")
			}
			switch msg := raw.(type) {
			case events.SendResult:
				if msg.Correlation != correlation {
					continue
				}
				if msg.Err != "" {
					return events.Ack{}, fmt.Errorf("send %s: %s", correlation, msg.Err)
				}
				if writtenOnly {
					return events.Ack{Correlation: correlation, MenuID: msg.MenuID}, nil
				}
			case events.Ack:
				if msg.Correlation == correlation {
					return msg, nil
				}
			}
		}
	}
}

func printOutcome(w io.Writer, correlation commands.CorrelationID, ack events.Ack, writtenOnly bool) {
	if writtenOnly {
		fmt.Fprintf(w, "sent %s\n", correlation)
		return
	}
	fmt.Fprintf(w, "%s %s\n", correlation, ack.Status)
}

func parseItemID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid item id %q", raw)
	}

	return id, nil
}

func parseButton(raw string) (commands.ButtonType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case commands.ButtonAccept.String():
		return commands.ButtonAccept, nil
	case commands.ButtonCancel.String():
		return commands.ButtonCancel, nil
	case commands.ButtonOK.String():
		return commands.ButtonOK, nil
	case commands.ButtonClose.String():
		return commands.ButtonClose, nil
	default:
		return 0, fmt.Errorf("unknown dialog button %q", raw)
	}
}
