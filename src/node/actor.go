package node

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnknownCommand is returned for a Command whose Args is not one of the
// request types of this package.
var ErrUnknownCommand = errors.New("unknown command")

// Actor owns a Node and runs the loop that serializes every access to it.
// Each iteration waits for either a network event or a command and handles
// exactly one of them.
type Actor struct {
	state

	node      *Node
	commandCh <-chan Command
	doneCh    chan struct{}

	metrics *Metrics
	logger  *logrus.Entry
}

// NewActor creates an actor around node, consuming commands from commandCh.
// The actor stops after a ShutdownRequest or once commandCh is closed.
func NewActor(node *Node, commandCh <-chan Command) *Actor {
	return &Actor{
		node:      node,
		commandCh: commandCh,
		doneCh:    make(chan struct{}),
		metrics:   node.metrics,
		logger:    node.logger.WithField("prefix", "actor"),
	}
}

// State returns the current state of the actor.
func (a *Actor) State() State {
	return a.getState()
}

// Done returns a channel that is closed once the actor has stopped.
func (a *Actor) Done() <-chan struct{} {
	return a.doneCh
}

// Run invokes the main loop of the actor. It returns when the actor stops.
func (a *Actor) Run() {
	defer a.stop()

	events := a.node.trans.Events()

	for {
		select {
		case ev := <-events:
			a.node.HandleEvent(ev)
		case cmd, ok := <-a.commandCh:
			if !ok {
				a.logger.Info("Command channel closed, stopping")
				return
			}
			if stop := a.processCommand(cmd); stop {
				return
			}
		}
	}
}

// RunAsync calls Run in a separate goroutine.
func (a *Actor) RunAsync() {
	go a.Run()
}

// processCommand executes cmd and replies to it. It returns true when the
// actor must stop.
func (a *Actor) processCommand(cmd Command) bool {
	kind := kindOf(cmd.Args)
	start := time.Now()

	a.logger.WithField("command", kind).Debug("Processing command")

	var (
		resp interface{}
		err  error
		stop bool
	)

	switch args := cmd.Args.(type) {
	case *GetPeersRequest:
		resp = a.node.ConnectedPeers()
	case *SendGossipRequest:
		a.node.SendGossip(args.Data)
	case *SendToPeerRequest:
		a.node.SendToPeer(args.Peer, args.Message)
	case *AddShareRequest:
		if cerr := a.node.chain.AddShare(args.Share); cerr != nil {
			a.logger.WithField("error", cerr).Error("Failed to add share")
			err = ErrAddShare
		}
	case *StoreWorkbaseRequest:
		if cerr := a.node.chain.Store().AddWorkbase(args.Workbase); cerr != nil {
			a.logger.WithField("error", cerr).Error("Failed to store workbase")
			err = ErrStoreWorkbase
		}
	case *ShutdownRequest:
		a.logger.Info("Shutting down")
		a.node.Shutdown()
		stop = true
	default:
		a.logger.WithField("command", kind).Error("Unknown command")
		err = ErrUnknownCommand
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	a.metrics.Commands.WithLabelValues(kind, status).Inc()
	a.metrics.CommandDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	cmd.Respond(resp, err, a.logger)

	return stop
}

func (a *Actor) stop() {
	a.setState(Stopped)
	a.node.Close()
	close(a.doneCh)
	a.logger.Debug("Stopped")
}
