package rbac

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// User-facing denial messages, keyed by canonical reason. Internal reasons
// (which permission was missing, which level was required) stay in logs and
// API detail fields; the localized message is what a UI shows the user.
const (
	msgAccessDenied = "You do not have access to this area."
	msgNoRoles      = "Your account has no roles assigned. Contact an administrator."
)

var supportedLanguages = []language.Tag{
	language.English,
	language.Spanish,
	language.Indonesian,
}

func init() {
	message.SetString(language.Spanish, msgAccessDenied, "No tienes acceso a esta sección.")
	message.SetString(language.Spanish, msgNoRoles, "Tu cuenta no tiene roles asignados. Contacta a un administrador.")
	message.SetString(language.Indonesian, msgAccessDenied, "Anda tidak memiliki akses ke area ini.")
	message.SetString(language.Indonesian, msgNoRoles, "Akun Anda belum memiliki peran. Hubungi administrator.")
}

// Localizer renders denial decisions as user-facing messages in the best
// matching language for an Accept-Language header.
type Localizer struct {
	matcher language.Matcher
}

// NewLocalizer builds a Localizer for the supported language set.
func NewLocalizer() *Localizer {
	return &Localizer{matcher: language.NewMatcher(supportedLanguages)}
}

// DenialMessage maps a denial to a localized, safe-to-display message.
func (l *Localizer) DenialMessage(acceptLanguage string, d Decision) string {
	tag := language.English
	if l != nil && acceptLanguage != "" {
		if tags, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil {
			tag, _, _ = l.matcher.Match(tags...)
		}
	}
	p := message.NewPrinter(tag)
	if d.Reason == ReasonNoRoles {
		return p.Sprintf(msgNoRoles)
	}
	return p.Sprintf(msgAccessDenied)
}
