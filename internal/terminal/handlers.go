package terminal

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/libraryterminal/archive/internal/store"
)

const helpText = `Player Commands:
    note [text]         - Archive a note
    notes               - List notes
    delete [#]          - Remove a note
    add [item]          - Add item to inventory
    take [#]            - Remove item from inventory
    inventory           - List inventory
    weather             - Show current temperature
    radio               - Listen to the current broadcast
    bank [+/-amount]    - Show or adjust your gold
    shop                - Browse the shop
    buy [item name]     - Purchase an item
    clear               - Clear screen
    exit                - Seal the Archive`

const dmHelpText = `DM Commands:
    dm temp [text]      - Set the current temperature
    dm broadcast [text] - Set the radio transmission
    dm stock [name];[price] - Add an item to the shop
    dm help             - Show this list of DM-only commands`

func (s *Session) registerCommands() {
	register := func(name string, handler HandlerFunc) {
		s.commands[name] = handler
	}

	register("help", s.cmdHelp)
	register("note", s.cmdNote)
	register("notes", s.cmdNotes)
	register("delete", s.cmdDelete)
	register("add", s.cmdAdd)
	register("take", s.cmdTake)
	register("inventory", s.cmdInventory)
	register("weather", s.cmdWeather)
	register("radio", s.cmdRadio)
	register("bank", s.cmdBank)
	register("shop", s.cmdShop)
	register("buy", s.cmdBuy)
	register("clear", s.cmdClear)
	register("exit", s.cmdExit)

	register(privilegedPrefix+" help", s.cmdDMHelp)
	register(privilegedPrefix+" temp", s.cmdSetTemperature)
	register(privilegedPrefix+" broadcast", s.cmdSetBroadcast)
	register(privilegedPrefix+" stock", s.cmdStock)
}

func (s *Session) cmdHelp(_ context.Context, _ string) (string, error) {
	return helpText, nil
}

func (s *Session) cmdDMHelp(_ context.Context, _ string) (string, error) {
	return dmHelpText, nil
}

func (s *Session) cmdNote(ctx context.Context, arg string) (string, error) {
	if arg == "" {
		return "Usage: note [your text]", nil
	}
	id, err := s.store.Add(ctx, store.CollectionNotes, store.Fields{
		"text":               arg,
		store.FieldTimestamp: s.nowMillis(),
	})
	if err != nil {
		return "", err
	}
	s.cache.Append(store.CollectionNotes, id)
	return "Note inscribed.", nil
}

func (s *Session) cmdNotes(ctx context.Context, _ string) (string, error) {
	snapshots, err := s.cache.Refresh(ctx, store.CollectionNotes)
	if err != nil {
		return "", err
	}
	if len(snapshots) == 0 {
		return "No notes stored.", nil
	}
	return renderListing(snapshots, renderNoteLine), nil
}

func (s *Session) cmdDelete(ctx context.Context, arg string) (string, error) {
	ordinal, ok := parseOrdinal(arg)
	if !ok {
		return "Invalid note number.", nil
	}
	id, ok := s.cache.Resolve(store.CollectionNotes, ordinal)
	if !ok {
		return "Invalid note number.", nil
	}
	if err := s.store.Delete(ctx, store.CollectionNotes, id); err != nil {
		return "", err
	}
	return fmt.Sprintf("Note %d removed.", ordinal), nil
}

func (s *Session) cmdAdd(ctx context.Context, arg string) (string, error) {
	if arg == "" {
		return "Usage: add [item]", nil
	}
	id, err := s.store.Add(ctx, store.CollectionInventory, store.Fields{
		"text":               arg,
		store.FieldTimestamp: s.nowMillis(),
	})
	if err != nil {
		return "", err
	}
	s.cache.Append(store.CollectionInventory, id)
	return "Item stored.", nil
}

func (s *Session) cmdInventory(ctx context.Context, _ string) (string, error) {
	snapshots, err := s.cache.Refresh(ctx, store.CollectionInventory)
	if err != nil {
		return "", err
	}
	if len(snapshots) == 0 {
		return "Inventory is empty.", nil
	}
	return renderListing(snapshots, renderInventoryLine), nil
}

func (s *Session) cmdTake(ctx context.Context, arg string) (string, error) {
	ordinal, ok := parseOrdinal(arg)
	if !ok {
		return "Invalid item number.", nil
	}
	id, ok := s.cache.Resolve(store.CollectionInventory, ordinal)
	if !ok {
		return "Invalid item number.", nil
	}
	if err := s.store.Delete(ctx, store.CollectionInventory, id); err != nil {
		return "", err
	}
	return fmt.Sprintf("Item %d removed.", ordinal), nil
}

func (s *Session) cmdWeather(ctx context.Context, _ string) (string, error) {
	fields, found, err := s.store.GetSingleton(ctx, store.CollectionMeta, store.SingletonTemperature)
	if err != nil {
		return "", err
	}
	if !found {
		return "No temperature set.", nil
	}
	text, _ := fields.String("text")
	return fmt.Sprintf("Current temperature: %s", text), nil
}

func (s *Session) cmdSetTemperature(ctx context.Context, arg string) (string, error) {
	if arg == "" {
		return "Usage: dm temp [description]", nil
	}
	err := s.store.SetSingleton(ctx, store.CollectionMeta, store.SingletonTemperature, store.Fields{
		"text":               arg,
		store.FieldTimestamp: s.nowMillis(),
	})
	if err != nil {
		return "", err
	}
	s.publish(EventKindTemperature, arg)
	return fmt.Sprintf("Temperature set to: %s", arg), nil
}

func (s *Session) cmdRadio(ctx context.Context, _ string) (string, error) {
	fields, found, err := s.store.GetSingleton(ctx, store.CollectionMeta, store.SingletonBroadcast)
	if err != nil {
		return "", err
	}
	if !found {
		return "Silence... No active broadcast.", nil
	}
	text, _ := fields.String("text")
	return fmt.Sprintf("Radio transmission: %s", text), nil
}

func (s *Session) cmdSetBroadcast(ctx context.Context, arg string) (string, error) {
	if arg == "" {
		return "Usage: dm broadcast [message]", nil
	}
	err := s.store.SetSingleton(ctx, store.CollectionMeta, store.SingletonBroadcast, store.Fields{
		"text":               arg,
		store.FieldTimestamp: s.nowMillis(),
	})
	if err != nil {
		return "", err
	}
	s.publish(EventKindBroadcast, arg)
	return fmt.Sprintf("Broadcast set: %q", arg), nil
}

// cmdClear performs no store I/O; clearing the display belongs to the
// surface rendering the session.
func (s *Session) cmdClear(_ context.Context, _ string) (string, error) {
	return "", nil
}

func (s *Session) cmdExit(_ context.Context, _ string) (string, error) {
	return "Archive sealed. Float freely.", nil
}

func parseOrdinal(arg string) (int, bool) {
	ordinal, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, false
	}
	return ordinal, true
}

func renderListing(snapshots []store.Snapshot, line func(int, store.Snapshot) string) string {
	if len(snapshots) == 0 {
		return "  — None —"
	}
	lines := make([]string, 0, len(snapshots))
	for i, snapshot := range snapshots {
		lines = append(lines, line(i+1, snapshot))
	}
	return strings.Join(lines, "\n")
}

func renderNoteLine(ordinal int, snapshot store.Snapshot) string {
	text, _ := snapshot.Fields.String("text")
	timestamp, _ := snapshot.Fields.Int(store.FieldTimestamp)
	return fmt.Sprintf("%d. [%s] %s", ordinal, formatTimestamp(timestamp), text)
}

func renderInventoryLine(ordinal int, snapshot store.Snapshot) string {
	text, _ := snapshot.Fields.String("text")
	return fmt.Sprintf("%d. %s", ordinal, text)
}

func formatTimestamp(millis int64) string {
	return time.UnixMilli(millis).UTC().Format("Jan 2, 2006 3:04 PM")
}
