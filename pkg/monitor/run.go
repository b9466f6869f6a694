package monitor

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"dsumotion/pkg/engine"
)

// Run shows the dashboard until the user quits or ctx is done. Events are
// read from a dedicated hub subscription.
func Run(ctx context.Context, hub *engine.Hub, m Model, opts ...tea.ProgramOption) error {
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	p := tea.NewProgram(m, opts...)

	pumpCtx, stop := context.WithCancel(ctx)
	defer stop()
	go Forward(pumpCtx, p, sub)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Forward relays hub events to the program until ctx is done or the
// subscription closes.
func Forward(ctx context.Context, p Sender, sub <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			p.Send(EventMsg(ev))
		}
	}
}
