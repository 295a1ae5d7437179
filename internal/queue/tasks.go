package queue

const (
	TypeInvitationEmail = "email:invitation"
	TypeWelcomeEmail    = "email:welcome"
)
