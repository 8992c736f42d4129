package bot

const (
	helpText = "👋 *Welcome!*\n\n" +
		"Send `/like <region> <uid>` to send likes to a player profile.\n" +
		"The first request for a player asks you to open a short verification link.\n" +
		"Each user can send likes once every 24 hours."
	internalErrorText = "❌ Something went wrong. Please try again later."
	notAuthorizedText = "❌ You are not authorized to use this command."
)
