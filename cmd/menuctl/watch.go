package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skobkin/menulink/internal/bus"
	"github.com/skobkin/menulink/internal/events"
	"github.com/skobkin/menulink/internal/menu"
	"github.com/spf13/cobra"
)

const maxPreviewLen = 96

func watchCmd(opts *rootOptions) *cobra.Command {
	var (
		raw       bool
		listenFor time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and log every event from the remote",
		Long: `Stay connected and log connection changes, menu structure, value
changes, acknowledgements and dialogs until interrupted. The session is
re-established automatically when the remote goes away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if listenFor > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, listenFor)
				defer cancel()
			}

			rt, err := startRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			logger := rt.LogManager.Logger("watch")
			logger.Info("watching remote", "transport", rt.Transport.Name(), "target", rt.Transport.StatusTarget())
			watch(ctx, rt.Bus, logger, raw)

			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "also log every frame as it crosses the wire")
	cmd.Flags().DurationVar(&listenFor, "for", 0, "stop after this long, e.g. 30s")

	return cmd
}

// watch logs bus events until ctx ends.
func watch(ctx context.Context, b bus.MessageBus, logger *slog.Logger, raw bool) {
	topics := []string{
		events.TopicConnStatus,
		events.TopicMenuStructure,
		events.TopicMenuValue,
		events.TopicMenuAck,
		events.TopicDialog,
		events.TopicBootstrap,
		events.TopicSendResult,
	}
	if raw {
		topics = append(topics, events.TopicRawFrameIn, events.TopicRawFrameOut)
	}

	sub := b.Subscribe(topics...)
	defer b.Unsubscribe(sub, topics...)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			text, attrs := describeEvent(msg)
			if text == "" {
				continue
			}
			logger.Info(text, attrs...)
		}
	}
}

// describeEvent turns a bus payload into a log message and attributes.
// Unknown payloads yield an empty message.
func describeEvent(msg any) (string, []any) {
	switch ev := msg.(type) {
	case events.ConnStatus:
		attrs := []any{"state", ev.State, "ready", ev.Ready, "transport", ev.TransportName}
		if ev.Remote.Name != "" {
			attrs = append(attrs, "remote", ev.Remote.Name, "platform", ev.Remote.Platform.String(), "api", ev.Remote.APIVersion)
		}
		if ev.Err != "" {
			attrs = append(attrs, "error", ev.Err)
		}
		return "connection", attrs
	case events.StructureChange:
		return "structure", []any{"parent", ev.ParentID, "item", menu.Describe(ev.Item)}
	case events.ValueChange:
		attrs := []any{"id", ev.ID, "remote", ev.Remote}
		if ev.State != nil {
			attrs = append(attrs, "value", formatItemValue(ev.State.Item(), ev.State.AnyValue()), "changed", ev.State.Changed())
		}
		return "value", attrs
	case events.Ack:
		return "ack", []any{"correlation", ev.Correlation.String(), "status", ev.Status.String(), "id", ev.MenuID}
	case events.Dialog:
		return "dialog", []any{
			"mode", ev.Mode.String(),
			"header", ev.Header,
			"message", ev.Message,
			"buttons", fmt.Sprintf("%s/%s", ev.Button1, ev.Button2),
		}
	case events.Bootstrap:
		return "bootstrap", []any{"phase", ev.Type.String(), "items", ev.ItemCount}
	case events.SendResult:
		attrs := []any{"correlation", ev.Correlation.String(), "command", ev.Command, "id", ev.MenuID}
		if ev.Err != "" {
			attrs = append(attrs, "error", ev.Err)
		}
		return "sent", attrs
	case events.RawFrame:
		return "frame", []any{"len", ev.Len, "text", preview(ev.Text)}
	default:
		return "", nil
	}
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxPreviewLen {
		return s
	}

	return s[:maxPreviewLen] + "..."
}
