package meetup

import (
	"time"
)

// `Api.Activities` wire model. The derived fields are viewer-relative,
// computed on every registry write and never sent to the server.
type Activity struct {
	Id           Id         `json:"id"`
	Title        string     `json:"title"`
	Category     string     `json:"category"`
	Description  string     `json:"description"`
	Date         time.Time  `json:"date"`
	City         string     `json:"city"`
	Venue        string     `json:"venue"`
	HostUsername string     `json:"hostUsername"`
	Attendees    []*Profile `json:"attendees"`
	IsCancelled  bool       `json:"isCancelled"`

	// derived, see deriveViewerFields
	IsGoing bool     `json:"-"`
	IsHost  bool     `json:"-"`
	Host    *Profile `json:"-"`
}

type Profile struct {
	Username       string `json:"username"`
	DisplayName    string `json:"displayName"`
	Image          string `json:"image,omitempty"`
	FollowersCount int    `json:"followersCount"`
	FollowingCount int    `json:"followingCount"`
	// viewer-relative. changes only together with FollowersCount
	Following bool `json:"following"`
}

type Comment struct {
	Id          Id        `json:"id"`
	Body        string    `json:"body"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// canonical instant representation for wire timestamps
func normalizeComment(comment *Comment) {
	comment.CreatedAt = comment.CreatedAt.UTC()
}

type DerivedFields struct {
	IsGoing bool
	IsHost  bool
	Host    *Profile
}

// pure function of (activity, viewerUsername), invoked by every write path.
// an empty viewerUsername means no derived relationship.
// a host username missing from the attendees means the host stays unresolved.
func deriveViewerFields(activity *Activity, viewerUsername string) DerivedFields {
	derived := DerivedFields{}
	if viewerUsername != "" {
		for _, attendee := range activity.Attendees {
			if attendee.Username == viewerUsername {
				derived.IsGoing = true
				break
			}
		}
		derived.IsHost = activity.HostUsername == viewerUsername
	}
	for _, attendee := range activity.Attendees {
		if attendee.Username == activity.HostUsername {
			derived.Host = attendee
			break
		}
	}
	return derived
}

// shallow merge onto an existing registry entry.
// nil fields keep the prior value.
type ActivityUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Description *string    `json:"description,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	City        *string    `json:"city,omitempty"`
	Venue       *string    `json:"venue,omitempty"`
	IsCancelled *bool      `json:"isCancelled,omitempty"`
}

func (self *ActivityUpdate) applyTo(activity *Activity) {
	if self.Title != nil {
		activity.Title = *self.Title
	}
	if self.Category != nil {
		activity.Category = *self.Category
	}
	if self.Description != nil {
		activity.Description = *self.Description
	}
	if self.Date != nil {
		activity.Date = *self.Date
	}
	if self.City != nil {
		activity.City = *self.City
	}
	if self.Venue != nil {
		activity.Venue = *self.Venue
	}
	if self.IsCancelled != nil {
		activity.IsCancelled = *self.IsCancelled
	}
}
