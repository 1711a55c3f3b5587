package commands

var builtins = NewSet(
	Command{Kind: KindBuiltin, Name: "ping", Trigger: "ping", Response: "Pong!"},
	Command{Kind: KindBuiltin, Name: "test", Trigger: "test", Response: "Hello from BerryBot!"},
)

// Builtins returns the process-wide built-in commands.
func Builtins() Set {
	return builtins
}

// IsReserved reports whether name is taken by a built-in.
func IsReserved(name string) bool {
	_, ok := builtins.Lookup(normalizeCommandName(name))
	return ok
}
