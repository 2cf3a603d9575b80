// Package command declares the bot's closed command table. Handlers are
// bound at startup; anything not listed here is rejected by the router.
package command

// Spec describes one chat command.
type Spec struct {
	Name        string
	Description string
	OwnerOnly   bool
}

// AllCommands contains all of the commands.
var AllCommands = []Spec{
	{Name: "new", Description: "Start a new release post"},
	{Name: "cancel", Description: "Cancel your in-progress post"},
	{Name: "search", Description: "Search published posts by device, ROM or version"},
	{Name: "listdevices", Description: "List devices with published posts"},
	{Name: "device", Description: "Show the published posts for one device"},
	{Name: "presets", Description: "List available field presets"},
	{Name: "help", Description: "Show this command list"},

	{Name: "ban", Description: "Ban a user from posting", OwnerOnly: true},
	{Name: "unban", Description: "Lift a user's ban", OwnerOnly: true},
	{Name: "listbanned", Description: "List banned users", OwnerOnly: true},
	{Name: "addpreset", Description: "Create or replace a preset", OwnerOnly: true},
	{Name: "delpreset", Description: "Delete a preset", OwnerOnly: true},
	{Name: "showpreset", Description: "Show a preset's fields", OwnerOnly: true},
	{Name: "rebuild", Description: "Rebuild the post index from channel history", OwnerOnly: true},
	{Name: "stats", Description: "Show usage statistics", OwnerOnly: true},
	{Name: "pmon", Description: "Re-enable a user's direct messages", OwnerOnly: true},
	{Name: "pmoff", Description: "Ignore a user's direct messages", OwnerOnly: true},
}

// Lookup returns the spec for name, if it exists.
func Lookup(name string) (Spec, bool) {
	for _, c := range AllCommands {
		if c.Name == name {
			return c, true
		}
	}
	return Spec{}, false
}
