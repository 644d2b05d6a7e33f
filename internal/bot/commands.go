package bot

// Command constants for Telegram bot commands.
const (
	CommandStart     = "/start"
	CommandSubscribe = "/subscribe"
	CommandStatus    = "/status"
	CommandCancel    = "/cancel"
	CommandHelp      = "/help"
)
