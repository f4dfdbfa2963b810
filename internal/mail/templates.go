// AngelaMos | 2026
// templates.go

package mail

import (
	"fmt"
	"time"
)

type Message struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// VerificationEmail builds the account-verification message. The raw
// token rides in the link; the server only ever stores its hash.
func VerificationEmail(
	frontendURL, name, token string,
	validFor time.Duration,
) Message {
	link := fmt.Sprintf("%s/verify-email?token=%s", frontendURL, token)
	hours := int(validFor.Hours())

	return Message{
		Subject: "Verify your email address",
		HTMLBody: fmt.Sprintf(`<html><body>
<p>Hi %s,</p>
<p>Welcome! Please confirm your email address by clicking the link below:</p>
<p><a href="%s">Verify email</a></p>
<p>This link expires in %d hours. If you did not create an account, you
can safely ignore this message.</p>
</body></html>`, name, link, hours),
		TextBody: fmt.Sprintf(
			"Hi %s,\n\n"+
				"Welcome! Please confirm your email address:\n\n%s\n\n"+
				"This link expires in %d hours. If you did not create an "+
				"account, you can safely ignore this message.\n",
			name, link, hours,
		),
	}
}

// PasswordResetEmail builds the reset message. Kept deliberately vague
// about account state so the email itself leaks nothing.
func PasswordResetEmail(
	frontendURL, name, token string,
	validFor time.Duration,
) Message {
	link := fmt.Sprintf("%s/reset-password?token=%s", frontendURL, token)
	minutes := int(validFor.Minutes())

	return Message{
		Subject: "Reset your password",
		HTMLBody: fmt.Sprintf(`<html><body>
<p>Hi %s,</p>
<p>A password reset was requested for your account. Click the link below
to choose a new password:</p>
<p><a href="%s">Reset password</a></p>
<p>This link expires in %d minutes. If you did not request a reset, no
action is needed and your password remains unchanged.</p>
</body></html>`, name, link, minutes),
		TextBody: fmt.Sprintf(
			"Hi %s,\n\n"+
				"A password reset was requested for your account:\n\n%s\n\n"+
				"This link expires in %d minutes. If you did not request a "+
				"reset, no action is needed.\n",
			name, link, minutes,
		),
	}
}
