package loginflow

// Selector sets for the Telegram Web UI. The UI markup changes without
// notice; waits always race several candidates and take the first match.
var (
	loginFormSelectors = []string{
		`input[type="tel"]`,
		`input[placeholder*="phone" i]`,
		`button[type="submit"]`,
	}

	phoneInputSelectors = []string{
		`input[type="tel"]`,
		`input[placeholder*="phone" i]`,
	}

	otpInputSelectors = []string{
		`input[inputmode="numeric"]`,
		`input[name*="code" i]`,
	}

	twoFactorSelectors = []string{
		`input[type="password"]`,
	}

	submitButtonSelectors = []string{
		`button[type="submit"]`,
	}

	loggedInSelectors = []string{
		`.chat-list`,
		`input[placeholder*="Search" i]`,
		`.sidebar`,
	}
)
