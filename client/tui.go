package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/driftlabs/scopesync/commons"
	"github.com/driftlabs/scopesync/engine"
	"github.com/driftlabs/scopesync/scope"
)

// UI starts the scope inspector and blocks until it exits.
func UI(coord *engine.Coordinator, flags Flags, t *wsTransport) error {
	p := tea.NewProgram(initialModel(coord, flags))
	program = p
	go readPump(p, t, coord, flags)
	return p.Start()
}

type model struct {
	coord  *engine.Coordinator
	flags  Flags
	input  textinput.Model
	status string
	online bool
}

func initialModel(coord *engine.Coordinator, flags Flags) model {
	ti := textinput.New()
	ti.Placeholder = "add root item  |  set <obj> <key> <value>  |  move <obj> <parent>  |  del <obj>  |  cancel <seq>"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 80

	return model{
		coord:  coord,
		flags:  flags,
		input:  ti,
		status: "connecting...",
	}
}

// changeMsg delivers a graph change notification into the update loop.
type changeMsg scope.ChangeSet

// watchChanges waits for the next change notification. The command is
// re-issued after every delivery, so the channel stays drained.
func watchChanges(events <-chan scope.ChangeSet) tea.Cmd {
	return func() tea.Msg {
		return changeMsg(<-events)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, watchChanges(m.coord.Graph().Events()))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line != "" {
				m.status = m.runCommand(line)
			}
			return m, nil
		}

	case remoteMsg:
		if err := m.coord.HandleMessage(commons.Message(msg)); err != nil {
			m.status = fmt.Sprintf("sync error: %v", err)
		}
		return m, nil

	case changeMsg:
		m.status = changeSummary(scope.ChangeSet(msg))
		return m, watchChanges(m.coord.Graph().Events())

	case rejectionMsg:
		if msg.Cascading {
			m.status = fmt.Sprintf("seq %d dropped (cascading): %s", msg.Seq, msg.Reason)
		} else {
			m.status = fmt.Sprintf("seq %d rejected: %s", msg.Seq, msg.Reason)
		}
		return m, nil

	case connStateMsg:
		m.online = msg.up
		if msg.up {
			m.status = "connected"
		} else if msg.err != nil {
			m.status = fmt.Sprintf("offline: %v", msg.err)
		} else {
			m.status = "offline, edits are queued"
		}
		return m, nil
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder

	state := "offline"
	if m.online {
		state = "online"
	}
	fmt.Fprintf(&b, "scope %q (%s), %d pending\n\n", m.flags.Scope, state, m.coord.PendingCount())

	m.coord.Graph().Traverse(func(obj scope.SyncObject, depth int) {
		fmt.Fprintf(&b, "%s%s [%s]%s\n",
			strings.Repeat("  ", depth), obj.Class, shortID(obj.ID), propertyList(obj))
	})

	fmt.Fprintf(&b, "\n%s\n\n%s\n%s\n", m.status, m.input.View(), "(esc to quit)")
	return b.String()
}

// runCommand executes one line of input against the coordinator and
// returns the status line to display.
func (m model) runCommand(line string) string {
	fields := strings.Fields(line)
	g := m.coord.Graph()

	switch fields[0] {
	case "add":
		if len(fields) < 3 {
			return "usage: add <parent> <class> [key=value ...]"
		}
		parentID, err := resolveRef(g, fields[1])
		if err != nil {
			return err.Error()
		}
		properties := make(map[string]scope.Value)
		for _, pair := range fields[3:] {
			name, raw, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Sprintf("bad property %q, want key=value", pair)
			}
			value, err := parseValue(g, raw)
			if err != nil {
				return err.Error()
			}
			properties[name] = value
		}
		id := uuid.New()
		seq, err := m.coord.Mutate(scope.Add(id, parentID, fields[2], scope.PositionEnd, properties))
		if err != nil {
			return fmt.Sprintf("add failed: %v", err)
		}
		return fmt.Sprintf("added %s as seq %d", shortID(id), seq)

	case "set":
		if len(fields) != 4 {
			return "usage: set <obj> <key> <value>"
		}
		targetID, err := resolveRef(g, fields[1])
		if err != nil {
			return err.Error()
		}
		value, err := parseValue(g, fields[3])
		if err != nil {
			return err.Error()
		}
		seq, err := m.coord.Mutate(scope.ChangeProperty(targetID, map[string]scope.Value{fields[2]: value}))
		if err != nil {
			return fmt.Sprintf("set failed: %v", err)
		}
		return fmt.Sprintf("set %s.%s as seq %d", shortID(targetID), fields[2], seq)

	case "move":
		if len(fields) != 3 && len(fields) != 4 {
			return "usage: move <obj> <parent> [position]"
		}
		targetID, err := resolveRef(g, fields[1])
		if err != nil {
			return err.Error()
		}
		parentID, err := resolveRef(g, fields[2])
		if err != nil {
			return err.Error()
		}
		position := scope.PositionEnd
		if len(fields) == 4 {
			position, err = strconv.Atoi(fields[3])
			if err != nil {
				return fmt.Sprintf("bad position %q", fields[3])
			}
		}
		seq, err := m.coord.Mutate(scope.Move(targetID, parentID, position))
		if err != nil {
			return fmt.Sprintf("move failed: %v", err)
		}
		return fmt.Sprintf("moved %s as seq %d", shortID(targetID), seq)

	case "del":
		if len(fields) != 2 {
			return "usage: del <obj>"
		}
		targetID, err := resolveRef(g, fields[1])
		if err != nil {
			return err.Error()
		}
		seq, err := m.coord.Mutate(scope.Remove(targetID))
		if err != nil {
			return fmt.Sprintf("del failed: %v", err)
		}
		return fmt.Sprintf("removed %s as seq %d", shortID(targetID), seq)

	case "cancel":
		if len(fields) != 2 {
			return "usage: cancel <seq>"
		}
		seq, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return fmt.Sprintf("bad sequence %q", fields[1])
		}
		if err := m.coord.Cancel(seq); err != nil {
			return fmt.Sprintf("cancel failed: %v", err)
		}
		return fmt.Sprintf("cancelled seq %d", seq)

	case "save":
		if len(fields) != 2 {
			return "usage: save <file>"
		}
		if err := scope.Save(fields[1], g); err != nil {
			return fmt.Sprintf("save failed: %v", err)
		}
		return "saved scope to " + fields[1]
	}

	return fmt.Sprintf("unknown command %q", fields[0])
}

// resolveRef resolves "root" or a unique object ID prefix.
func resolveRef(g *scope.Graph, ref string) (uuid.UUID, error) {
	if ref == "root" {
		return g.RootID(), nil
	}

	var matches []uuid.UUID
	g.Traverse(func(obj scope.SyncObject, depth int) {
		if strings.HasPrefix(obj.ID.String(), ref) {
			matches = append(matches, obj.ID)
		}
	})
	switch len(matches) {
	case 0:
		return uuid.Nil, fmt.Errorf("no object matches %q", ref)
	case 1:
		return matches[0], nil
	}
	return uuid.Nil, fmt.Errorf("%q is ambiguous (%d matches)", ref, len(matches))
}

// parseValue reads a property value: null, true/false, a number, @ref for
// a reference to another object, or a plain string.
func parseValue(g *scope.Graph, raw string) (scope.Value, error) {
	switch {
	case raw == "null":
		return scope.Null(), nil
	case raw == "true":
		return scope.Bool(true), nil
	case raw == "false":
		return scope.Bool(false), nil
	case strings.HasPrefix(raw, "@"):
		id, err := resolveRef(g, strings.TrimPrefix(raw, "@"))
		if err != nil {
			return scope.Value{}, err
		}
		return scope.Reference(id), nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return scope.Number(n), nil
	}
	return scope.String(strings.Trim(raw, `"`)), nil
}

func changeSummary(cs scope.ChangeSet) string {
	var parts []string
	if n := len(cs.Added); n > 0 {
		parts = append(parts, fmt.Sprintf("%d added", n))
	}
	if n := len(cs.Removed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", n))
	}
	if n := len(cs.Modified); n > 0 {
		parts = append(parts, fmt.Sprintf("%d changed", n))
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, ", ")
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func propertyList(obj scope.SyncObject) string {
	if len(obj.Properties) == 0 {
		return ""
	}
	names := make([]string, 0, len(obj.Properties))
	for name := range obj.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+obj.Properties[name].Display())
	}
	return " {" + strings.Join(parts, ", ") + "}"
}
