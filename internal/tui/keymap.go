package tui

import "charm.land/bubbles/v2/key"

// keyMap holds the watch view's key bindings.
type keyMap struct {
	quit         key.Binding
	resync       key.Binding
	toggleHelp   key.Binding
	toggleLedger key.Binding
	scrollUp     key.Binding
	scrollDown   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		quit:         key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		resync:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resync")),
		toggleHelp:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		toggleLedger: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "activity ledger")),
		scrollUp:     key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "scroll up")),
		scrollDown:   key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "scroll down")),
	}
}

// ShortHelp satisfies help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.resync, k.toggleLedger, k.toggleHelp, k.quit}
}

// FullHelp satisfies help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.resync, k.toggleLedger, k.toggleHelp, k.quit},
		{k.scrollUp, k.scrollDown},
	}
}
