package meetup

import (
	"errors"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// the signed-in user, read out of the platform jwt.
// the jwt is verified by the server. the client only reads the claims.
type Viewer struct {
	Username    string
	DisplayName string
	Image       string
	Token       string
}

func ViewerFromJwt(jwt string) (*Viewer, error) {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(jwt, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := token.Claims.(gojwt.MapClaims)

	viewer := &Viewer{
		Token: jwt,
	}

	stringClaim := func(keys ...string) string {
		for _, key := range keys {
			if value, ok := claims[key]; ok {
				if s, ok := value.(string); ok {
					return s
				}
			}
		}
		return ""
	}

	viewer.Username = stringClaim("username", "unique_name", "nameid")
	if viewer.Username == "" {
		return nil, errors.New("jwt is missing a username claim")
	}
	viewer.DisplayName = stringClaim("displayName", "given_name")
	if viewer.DisplayName == "" {
		viewer.DisplayName = viewer.Username
	}
	viewer.Image = stringClaim("image")

	return viewer, nil
}

// the attendee profile the viewer contributes when joining an activity.
// follow counts start at zero until the server sends authoritative values.
func (self *Viewer) Profile() *Profile {
	return &Profile{
		Username:    self.Username,
		DisplayName: self.DisplayName,
		Image:       self.Image,
	}
}
