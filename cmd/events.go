package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/zjrosen/registrar/internal/log"
	"github.com/zjrosen/registrar/internal/pubsub"
	"github.com/zjrosen/registrar/internal/registry"
)

// syncWriter lets the command loop and the followers share one output.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// followLifecycle prints registry lifecycle events to w until ctx ends or
// the registry shuts down. The returned channel closes when it stops.
func followLifecycle(ctx context.Context, r *registry.Registry, w io.Writer) <-chan struct{} {
	listener := pubsub.NewListener(ctx, r.Events())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ev, ok := listener.Next(ctx)
			if !ok {
				return
			}
			line := formatLifecycle(ev)
			log.Debug(log.CatRegistry, "lifecycle", "event", line)
			_, _ = fmt.Fprintln(w, line)
		}
	}()
	return done
}

func formatLifecycle(ev pubsub.Event[registry.Lifecycle]) string {
	p := ev.Payload
	switch ev.Type {
	case pubsub.CreatedEvent, pubsub.RegisteredEvent, pubsub.UnregisteredEvent:
		return fmt.Sprintf("%s %s (%s)", ev.Type, p.Index, p.Priority)
	case pubsub.ResetEvent:
		return fmt.Sprintf("%s %d object(s)", ev.Type, p.Objects)
	default:
		return string(ev.Type)
	}
}

// echoLog copies log lines to w until ctx ends. Without an initialized
// logger there is nothing to follow and the returned channel is closed.
func echoLog(ctx context.Context, w io.Writer) <-chan struct{} {
	done := make(chan struct{})
	listener := log.NewListener(ctx)
	if listener == nil {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		for {
			ev, ok := listener.Next(ctx)
			if !ok {
				return
			}
			_, _ = io.WriteString(w, ev.Payload)
		}
	}()
	return done
}
