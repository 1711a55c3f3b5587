package commands

// CommandDescriptor describes a built-in command for listings.
type CommandDescriptor struct {
	Name        string
	Description string
	Usage       string
	Response    string
}

// BuiltinCommandCatalog describes the commands shipped with the bot.
func BuiltinCommandCatalog() []CommandDescriptor {
	ping, _ := builtins.Lookup("ping")
	test, _ := builtins.Lookup("test")
	return []CommandDescriptor{
		{
			Name:        ping.Name,
			Description: "Answers to check the bot is connected.",
			Usage:       Marker + ping.Trigger,
			Response:    ping.Response,
		},
		{
			Name:        test.Name,
			Description: "Greets the channel.",
			Usage:       Marker + test.Trigger,
			Response:    test.Response,
		},
	}
}
