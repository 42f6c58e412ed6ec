package domain

// User is the authenticated profile returned by the auth collaborator.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Session pairs an identity with its credential token.
type Session struct {
	Token string
	User  User
}

func NewSession(token string, user User) Session {
	return Session{
		Token: token,
		User:  user,
	}
}

func (s Session) IsValid() bool {
	return s.Token != "" && s.User.Username != ""
}

func (s Session) String() string {
	if !s.IsValid() {
		return "(no session)"
	}
	return s.User.Username + " <" + s.User.Email + ">"
}
