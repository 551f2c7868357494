package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skobkin/menulink/internal/bus"
	"github.com/skobkin/menulink/internal/clock"
	"github.com/skobkin/menulink/internal/commands"
	"github.com/skobkin/menulink/internal/events"
	"github.com/skobkin/menulink/internal/menu"
	"github.com/skobkin/menulink/internal/remote"
)

const outboxSize = 64

var (
	ErrUnknownItem = errors.New("unknown menu item")
	ErrReadOnly    = errors.New("menu item is read only")
	ErrOutboxFull  = errors.New("outbound queue is full")
	ErrNotStarted  = errors.New("controller not started")
)

// Connector is the part of remote.Connector the controller drives.
type Connector interface {
	SendCommand(cmd commands.MenuCommand) error
	AddCommandListener(fn remote.CommandListener)
	AddStatusListener(fn remote.StatusListener)
}

type outboundRequest struct {
	cmd         commands.MenuCommand
	correlation commands.CorrelationID
	menuID      int
}

// Controller keeps the menu tree in step with the remote and turns local
// edits into change requests.
type Controller struct {
	logger *slog.Logger
	bus    bus.MessageBus
	conn   Connector
	tree   *menu.Tree
	clock  clock.Clock
	ids    *commands.CorrelationGenerator
	outbox chan outboundRequest

	mu        sync.Mutex
	started   bool
	bootCount int
	// inflight maps an outstanding correlation to the item it changes.
	inflight map[commands.CorrelationID]int
}

func New(logger *slog.Logger, b bus.MessageBus, conn Connector, tree *menu.Tree, clk clock.Clock) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if tree == nil {
		tree = menu.NewTree()
	}
	if clk == nil {
		clk = clock.System()
	}
	c := &Controller{
		logger:   logger.With("component", "controller"),
		bus:      b,
		conn:     conn,
		tree:     tree,
		clock:    clk,
		ids:      commands.NewCorrelationGenerator(clk),
		outbox:   make(chan outboundRequest, outboxSize),
		inflight: make(map[commands.CorrelationID]int),
	}
	conn.AddCommandListener(c.HandleCommand)
	conn.AddStatusListener(c.handleStatus)

	return c
}

// Start runs the outbound queue until ctx is done.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.runOutbox(ctx)
}

func (c *Controller) Tree() *menu.Tree {
	return c.tree
}

// HandleCommand applies one command forwarded by the connector.
func (c *Controller) HandleCommand(cmd commands.MenuCommand) {
	switch v := cmd.(type) {
	case commands.AcknowledgementCommand:
		c.handleAck(v)
	case commands.BootstrapCommand:
		c.handleBootstrap(v)
	case commands.BootItemCommand:
		c.handleBootItem(v)
	case commands.ChangeCommand:
		c.handleChange(v)
	case commands.DialogCommand:
		c.publish(events.TopicDialog, events.Dialog{DialogCommand: v})
	default:
		c.logger.Debug("command ignored", "command", cmd)
	}
}

func (c *Controller) handleAck(ack commands.AcknowledgementCommand) {
	c.mu.Lock()
	menuID, ok := c.inflight[ack.Correlation]
	delete(c.inflight, ack.Correlation)
	c.mu.Unlock()
	if !ok {
		menuID = -1
	}
	if ack.Status.IsError() {
		c.logger.Warn("remote rejected request", "correlation", ack.Correlation, "status", ack.Status, "menu_id", menuID)
	}
	c.publish(events.TopicMenuAck, events.Ack{Correlation: ack.Correlation, Status: ack.Status, MenuID: menuID})
}

func (c *Controller) handleBootstrap(boot commands.BootstrapCommand) {
	c.mu.Lock()
	if boot.Type == commands.BootstrapStart {
		c.bootCount = 0
	}
	count := c.bootCount
	c.mu.Unlock()

	if boot.Type == commands.BootstrapEnd {
		c.logger.Info("bootstrap complete", "items", count)
	}
	c.publish(events.TopicBootstrap, events.Bootstrap{Type: boot.Type, ItemCount: count})
}

func (c *Controller) handleBootItem(cmd commands.BootItemCommand) {
	item := cmd.MenuItem()
	parent := cmd.ParentSubMenuID()
	if err := c.tree.AddOrUpdateItem(parent, item); err != nil {
		c.logger.Warn("bootstrap item not stored", "item", menu.Describe(item), "parent", parent, "error", err)
		return
	}
	prev, _ := c.tree.State(item.Base().ID)
	next := cmd.NextState(prev)
	c.tree.SetState(next)

	c.mu.Lock()
	c.bootCount++
	c.mu.Unlock()

	c.publish(events.TopicMenuStructure, events.StructureChange{ParentID: parent, Item: item})
	c.publish(events.TopicMenuValue, events.ValueChange{ID: item.Base().ID, State: next, Remote: true})
}

func (c *Controller) handleChange(cmd commands.ChangeCommand) {
	item, ok := c.tree.Item(cmd.MenuID)
	if !ok {
		c.logger.Warn("change for unknown item", "menu_id", cmd.MenuID)
		return
	}
	prev, _ := c.tree.State(cmd.MenuID)
	next, err := nextStateForChange(item, prev, cmd)
	if err != nil {
		c.logger.Warn("change not applied", "menu_id", cmd.MenuID, "change", cmd.ChangeType, "error", err)
		return
	}
	c.tree.SetState(next)
	c.publish(events.TopicMenuValue, events.ValueChange{ID: cmd.MenuID, State: next, Remote: true})
}

func (c *Controller) handleStatus(status remote.Status) {
	if status != remote.StatusAwaitingConnection {
		return
	}
	// Acks for requests sent on the old session will never arrive.
	c.mu.Lock()
	clear(c.inflight)
	c.mu.Unlock()
}

// SendDeltaUpdate asks the remote to add delta to an item's value.
func (c *Controller) SendDeltaUpdate(id, delta int) (commands.CorrelationID, error) {
	if err := c.checkWritable(id); err != nil {
		return commands.EmptyCorrelation, err
	}
	correlation := c.ids.Next()

	return correlation, c.enqueue(commands.NewDeltaChange(id, correlation, delta), correlation, id)
}

// SendAbsoluteUpdate asks the remote to replace an item's value.
func (c *Controller) SendAbsoluteUpdate(id int, value string) (commands.CorrelationID, error) {
	if err := c.checkWritable(id); err != nil {
		return commands.EmptyCorrelation, err
	}
	correlation := c.ids.Next()

	return correlation, c.enqueue(commands.NewAbsoluteChange(id, correlation, value), correlation, id)
}

// SendListUpdate asks the remote to replace a runtime list.
func (c *Controller) SendListUpdate(id int, values []string) (commands.CorrelationID, error) {
	if err := c.checkWritable(id); err != nil {
		return commands.EmptyCorrelation, err
	}
	correlation := c.ids.Next()

	return correlation, c.enqueue(commands.NewListChange(id, correlation, values), correlation, id)
}

// SendDialogAction presses a dialog button on the remote.
func (c *Controller) SendDialogAction(button commands.ButtonType) (commands.CorrelationID, error) {
	correlation := c.ids.Next()
	cmd := commands.DialogCommand{
		Mode:        commands.DialogAction,
		Button1:     button,
		Button2:     commands.ButtonNone,
		Correlation: correlation,
	}

	return correlation, c.enqueue(cmd, correlation, -1)
}

func (c *Controller) checkWritable(id int) error {
	item, ok := c.tree.Item(id)
	if !ok || id == menu.RootID {
		return fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	if item.Base().ReadOnly {
		return fmt.Errorf("%w: %d", ErrReadOnly, id)
	}

	return nil
}

func (c *Controller) enqueue(cmd commands.MenuCommand, correlation commands.CorrelationID, menuID int) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	select {
	case c.outbox <- outboundRequest{cmd: cmd, correlation: correlation, menuID: menuID}:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (c *Controller) runOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.outbox:
			c.handleSend(req)
		}
	}
}

func (c *Controller) handleSend(req outboundRequest) {
	if req.menuID >= 0 {
		c.mu.Lock()
		c.inflight[req.correlation] = req.menuID
		c.mu.Unlock()
	}

	result := events.SendResult{
		Correlation: req.correlation,
		MenuID:      req.menuID,
		Command:     req.cmd.CommandType().String(),
		Timestamp:   c.clock.Now(),
	}
	if err := c.conn.SendCommand(req.cmd); err != nil {
		c.logger.Warn("send failed", "command", req.cmd, "error", err)
		c.mu.Lock()
		delete(c.inflight, req.correlation)
		c.mu.Unlock()
		result.Err = err.Error()
	}
	c.publish(events.TopicSendResult, result)
}

func (c *Controller) publish(topic string, msg any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(topic, msg)
}
