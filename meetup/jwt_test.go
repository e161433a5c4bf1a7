package meetup

import (
	"testing"

	"github.com/go-playground/assert/v2"
	gojwt "github.com/golang-jwt/jwt/v5"
)

func signTestJwt(t *testing.T, claims gojwt.MapClaims) string {
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	jwt, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return jwt
}

func TestViewerFromJwt(t *testing.T) {
	jwt := signTestJwt(t, gojwt.MapClaims{
		"username":    "alice",
		"displayName": "Alice Smith",
		"image":       "https://img.example.com/alice.png",
	})

	viewer, err := ViewerFromJwt(jwt)
	assert.Equal(t, err, nil)
	assert.Equal(t, viewer.Username, "alice")
	assert.Equal(t, viewer.DisplayName, "Alice Smith")
	assert.Equal(t, viewer.Image, "https://img.example.com/alice.png")
	assert.Equal(t, viewer.Token, jwt)
}

func TestViewerFromJwtClaimFallbacks(t *testing.T) {
	// asp.net style identity claims
	jwt := signTestJwt(t, gojwt.MapClaims{
		"unique_name": "bob",
	})

	viewer, err := ViewerFromJwt(jwt)
	assert.Equal(t, err, nil)
	assert.Equal(t, viewer.Username, "bob")
	assert.Equal(t, viewer.DisplayName, "bob")
	assert.Equal(t, viewer.Image, "")

	jwt = signTestJwt(t, gojwt.MapClaims{
		"nameid":     "carol",
		"given_name": "Carol",
	})

	viewer, err = ViewerFromJwt(jwt)
	assert.Equal(t, err, nil)
	assert.Equal(t, viewer.Username, "carol")
	assert.Equal(t, viewer.DisplayName, "Carol")
}

func TestViewerFromJwtMissingUsername(t *testing.T) {
	jwt := signTestJwt(t, gojwt.MapClaims{
		"sub": "1234",
	})

	viewer, err := ViewerFromJwt(jwt)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, viewer, nil)
}

func TestViewerFromJwtMalformed(t *testing.T) {
	viewer, err := ViewerFromJwt("not a jwt")
	assert.NotEqual(t, err, nil)
	assert.Equal(t, viewer, nil)
}

func TestViewerProfile(t *testing.T) {
	viewer := &Viewer{
		Username:    "alice",
		DisplayName: "Alice Smith",
		Image:       "https://img.example.com/alice.png",
	}
	profile := viewer.Profile()
	assert.Equal(t, profile.Username, "alice")
	assert.Equal(t, profile.DisplayName, "Alice Smith")
	assert.Equal(t, profile.Image, "https://img.example.com/alice.png")
	assert.Equal(t, profile.FollowersCount, 0)
	assert.Equal(t, profile.Following, false)
}
