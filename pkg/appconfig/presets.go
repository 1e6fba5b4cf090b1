package appconfig

// Default returns the built-in AU Small Finance Bank configuration record.
//
// This is the record a process runs with when no configuration file is
// supplied. It takes no inputs, has no error conditions, and has no side
// effects; every call constructs a fresh copy so callers can never reach
// shared state.
func Default() Config {
	return Config{
		PageTitle:                 "AU Small Finance Bank | Voice Assistant",
		PageDescription:           "Talk to the AU Small Finance Bank assistant about accounts, payments, and fraud support.",
		CompanyName:               "AU Small Finance Bank",
		SupportsChatInput:         true,
		SupportsVideoInput:        false,
		SupportsScreenShare:       false,
		IsPreConnectBufferEnabled: true,
		Logo:                      "/au1.png",
		StartButtonText:           "Start call",
		Accent:                    String("#6d2077"),
		AccentDark:                String("#fd5f04"),
	}
}

// FlipMin returns the built-in FlipMin configuration record.
//
// FlipMin and the AU Small Finance Bank record are both valid instances of
// the same schema. There is no selection mechanism between them inside this
// package; the deployment decides which literal it constructs.
func FlipMin() Config {
	return Config{
		PageTitle:                 "FlipMin | Voice Shopping Assistant",
		PageDescription:           "FlipMin helps you shop by voice. Ask about orders, offers, and delivery slots.",
		CompanyName:               "FlipMin",
		SupportsChatInput:         true,
		SupportsVideoInput:        true,
		SupportsScreenShare:       false,
		IsPreConnectBufferEnabled: true,
		Logo:                      "/flipmin.png",
		StartButtonText:           "Start shopping",
		Accent:                    String("#2874f0"),
		LogoDark:                  String("/flipmin-dark.png"),
		AccentDark:                String("#ffe11b"),
	}
}
