package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/rubimoon/meetup-ui/meetup"
)

const MeetupCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := fmt.Sprintf(
		`Meetup control.

The default urls are:
    api_url: %s
    chat_url: %s

Usage:
    meetupctl list [--jwt=<jwt>] [--api_url=<api_url>]
        [--predicate=<predicate>]
        [--start_date=<start_date>]
        [--page=<page>]
    meetupctl get --jwt=<jwt> [--api_url=<api_url>] <activity_id>
    meetupctl create --jwt=<jwt> [--api_url=<api_url>]
        --title=<title>
        --category=<category>
        --date=<date>
        [--description=<description>]
        [--city=<city>]
        [--venue=<venue>]
    meetupctl attend --jwt=<jwt> [--api_url=<api_url>] <activity_id>
    meetupctl cancel --jwt=<jwt> [--api_url=<api_url>] <activity_id>
    meetupctl delete --jwt=<jwt> [--api_url=<api_url>] <activity_id>
    meetupctl sink --jwt=<jwt> [--api_url=<api_url>] [--chat_url=<chat_url>]
        [--comment_count=<comment_count>]
        <activity_id>
    meetupctl send --jwt=<jwt> [--api_url=<api_url>] [--chat_url=<chat_url>]
        <activity_id> <body>

Options:
    -h --help                        Show this screen.
    --version                        Show version.
    --api_url=<api_url>
    --chat_url=<chat_url>
    --jwt=<jwt>                      Your platform JWT.
    --predicate=<predicate>          One of all, isGoing, isHost [default: all].
    --start_date=<start_date>        RFC3339 lower bound on the activity date.
    --page=<page>                    Page number to load [default: 1].
    --title=<title>
    --category=<category>
    --date=<date>                    RFC3339 activity date.
    --description=<description>
    --city=<city>
    --venue=<venue>
    --comment_count=<comment_count>  Print this many comments then exit.`,
		meetup.DefaultApiUrl,
		meetup.DefaultChatUrl,
	)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], MeetupCtlVersion)
	if err != nil {
		panic(err)
	}

	if list_, _ := opts.Bool("list"); list_ {
		list(opts)
	} else if get_, _ := opts.Bool("get"); get_ {
		get(opts)
	} else if create_, _ := opts.Bool("create"); create_ {
		create(opts)
	} else if attend_, _ := opts.Bool("attend"); attend_ {
		attend(opts)
	} else if cancel_, _ := opts.Bool("cancel"); cancel_ {
		cancel(opts)
	} else if deleteCmd, _ := opts.Bool("delete"); deleteCmd {
		delete_(opts)
	} else if sink_, _ := opts.Bool("sink"); sink_ {
		sink(opts)
	} else if send_, _ := opts.Bool("send"); send_ {
		send(opts)
	}
}

func newSession(ctx context.Context, opts docopt.Opts) *meetup.Session {
	config, err := meetup.ReadConfig(meetup.ConfigFileName)
	if err != nil {
		Err.Fatalf("Could not read config (%s).", err)
	}
	if apiUrl, err := opts.String("--api_url"); err == nil && apiUrl != "" {
		config.Conf.ApiUrl = apiUrl
	}
	if chatUrl, err := opts.String("--chat_url"); err == nil && chatUrl != "" {
		config.Conf.ChatUrl = chatUrl
	}

	session := meetup.NewSessionWithDefaults(ctx, config)

	if jwt, err := opts.String("--jwt"); err == nil && jwt != "" {
		viewer, err := meetup.ViewerFromJwt(jwt)
		if err != nil {
			Err.Fatalf("Invalid jwt (%s).", err)
		}
		session.SetViewer(viewer)
	}
	return session
}

func requireActivityId(opts docopt.Opts) meetup.Id {
	activityIdStr, _ := opts.String("<activity_id>")
	activityId, err := meetup.ParseId(activityIdStr)
	if err != nil {
		Err.Fatalf("Invalid activity_id (%s).", err)
	}
	return activityId
}

func awaitWindow(session *meetup.Session) {
	phases := make(chan meetup.FetchPhase, 8)
	removeListener := session.Fetch().AddPhaseListener(func(phase meetup.FetchPhase) {
		phases <- phase
	})
	defer removeListener()

	timeout := time.After(30 * time.Second)
	for {
		select {
		case phase := <-phases:
			switch phase {
			case meetup.FetchLoaded:
				return
			case meetup.FetchFailed:
				Err.Fatalf("Fetch failed (%s).", session.Fetch().LastError())
			}
		case <-timeout:
			Err.Fatalf("Fetch timeout.")
		}
	}
}

func list(opts docopt.Opts) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := newSession(cancelCtx, opts)
	defer session.Close()

	if startDateStr, err := opts.String("--start_date"); err == nil && startDateStr != "" {
		startDate, err := time.Parse(time.RFC3339, startDateStr)
		if err != nil {
			Err.Fatalf("Invalid start_date (%s).", err)
		}
		session.Fetch().SetStartDate(startDate)
	}
	predicateStr, _ := opts.String("--predicate")
	switch meetup.PredicateKey(predicateStr) {
	case meetup.PredicateAll, meetup.PredicateIsGoing, meetup.PredicateIsHost:
		session.Fetch().SetPredicate(meetup.PredicateKey(predicateStr))
	default:
		Err.Fatalf("Invalid predicate (%s).", predicateStr)
	}
	if page, err := opts.Int("--page"); err == nil && 1 < page {
		session.Fetch().RequestPage(page)
	} else {
		session.Fetch().Refresh()
	}
	awaitWindow(session)

	for _, group := range session.Registry().GroupedByDate() {
		Out.Printf("%s", group.Date)
		for _, activity := range group.Activities {
			printActivity(activity)
		}
	}
	if pagination := session.Fetch().Pagination(); pagination != nil {
		Out.Printf(
			"page %d of %d (%d activities)",
			pagination.CurrentPage,
			pagination.TotalPages,
			pagination.TotalItems,
		)
	}
}

func printActivity(activity *meetup.Activity) {
	flags := ""
	if activity.IsCancelled {
		flags += " [cancelled]"
	}
	if activity.IsHost {
		flags += " [hosting]"
	} else if activity.IsGoing {
		flags += " [going]"
	}
	Out.Printf(
		"  %s  %-24s %s/%s by %s (%d attending)%s",
		activity.Id,
		activity.Title,
		activity.Category,
		activity.City,
		activity.HostUsername,
		len(activity.Attendees),
		flags,
	)
}

func get(opts docopt.Opts) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := newSession(cancelCtx, opts)
	defer session.Close()

	activityId := requireActivityId(opts)
	activity, err := session.SelectActivity(activityId)
	if err != nil {
		Err.Fatalf("Could not load activity (%s).", err)
	}

	printActivity(activity)
	Out.Printf("  %s @ %s", activity.Date.Format(time.RFC3339), activity.Venue)
	if activity.Description != "" {
		Out.Printf("  %s", activity.Description)
	}
	for _, attendee := range activity.Attendees {
		Out.Printf("  - %s (%s)", attendee.DisplayName, attendee.Username)
	}
}

func create(opts docopt.Opts) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := newSession(cancelCtx, opts)
	defer session.Close()

	dateStr, _ := opts.String("--date")
	date, err := time.Parse(time.RFC3339, dateStr)
	if err != nil {
		Err.Fatalf("Invalid date (%s).", err)
	}

	form := &meetup.ActivityFormArgs{
		Date: date,
	}
	form.Title, _ = opts.String("--title")
	form.Category, _ = opts.String("--category")
	form.Description, _ = opts.String("--description")
	form.City, _ = opts.String("--city")
	form.Venue, _ = opts.String("--venue")

	activity, err := session.Mutate().Create(form)
	if err != nil {
		Err.Fatalf("Could not create activity (%s).", err)
	}
	Out.Printf("%s", activity.Id)
}

func attend(opts docopt.Opts) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := newSession(cancelCtx, opts)
	defer session.Close()

	activityId := requireActivityId(opts)
	if _, err := session.SelectActivity(activityId); err != nil {
		Err.Fatalf("Could not load activity (%s).", err)
	}

	callback, c := meetup.NewBlockingApiCallback[*meetup.UpdateAttendanceResult]()
	if err := session.Mutate().ToggleAttendance(activityId, callback); err != nil {
		Err.Fatalf("Could not toggle attendance (%s).", err)
	}
	result := <-c
	if result.Error != nil {
		Err.Fatalf("Attendance not accepted (%s).", result.Error)
	}

	if activity, ok := session.Registry().Get(activityId); ok && activity.IsGoing {
		Out.Printf("Going to %s.", activity.Title)
	} else if ok {
		Out.Printf("No longer going to %s.", activity.Title)
	}
}

func cancel(opts docopt.Opts) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := newSession(cancelCtx, opts)
	defer session.Close()

	activityId := requireActivityId(opts)
	if _, err := session.SelectActivity(activityId); err != nil {
		Err.Fatalf("Could not load activity (%s).", err)
	}

	activity, err := session.Mutate().ToggleCancelled(activityId)
	if err != nil {
		Err.Fatalf("Could not toggle cancellation (%s).", err)
	}
	if activity.IsCancelled {
		Out.Printf("Cancelled %s.", activity.Title)
	} else {
		Out.Printf("Reactivated %s.", activity.Title)
	}
}

func delete_(opts docopt.Opts) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := newSession(cancelCtx, opts)
	defer session.Close()

	activityId := requireActivityId(opts)
	if err := session.Mutate().Delete(activityId); err != nil {
		Err.Fatalf("Could not delete activity (%s).", err)
	}
	Out.Printf("Deleted %s.", activityId)
}

// stream comments for an activity
func sink(opts docopt.Opts) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := newSession(cancelCtx, opts)
	defer session.Close()

	var commentCount int
	if commentCount_, err := opts.Int("--comment_count"); err == nil {
		commentCount = commentCount_
	} else {
		commentCount = -1
	}

	activityId := requireActivityId(opts)
	activity, err := session.SelectActivity(activityId)
	if err != nil {
		Err.Fatalf("Could not load activity (%s).", err)
	}
	Out.Printf("Comments on %s:", activity.Title)

	printed := 0
	for {
		comments := session.Comments().Comments()
		if len(comments) < printed {
			// the sequence was reseeded after a reconnect
			printed = 0
		}
		for _, comment := range comments[printed:] {
			Out.Printf(
				"[%s] %s: %s",
				comment.CreatedAt.Format(time.RFC3339),
				comment.Username,
				comment.Body,
			)
			printed += 1
			if 0 <= commentCount && commentCount <= printed {
				return
			}
		}
		select {
		case <-cancelCtx.Done():
			return
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// post a comment to an activity
func send(opts docopt.Opts) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := newSession(cancelCtx, opts)
	defer session.Close()

	body, _ := opts.String("<body>")

	activityId := requireActivityId(opts)
	if _, err := session.SelectActivity(activityId); err != nil {
		Err.Fatalf("Could not load activity (%s).", err)
	}

	states := make(chan meetup.ChannelState, 8)
	removeListener := session.Channel().AddStateListener(func(state meetup.ChannelState) {
		states <- state
	})
	defer removeListener()

	timeout := time.After(15 * time.Second)
	for session.Channel().State() != meetup.ChannelConnected {
		select {
		case <-states:
		case <-timeout:
			Err.Fatalf("Channel connect timeout.")
		}
	}

	if err := session.SendComment(body); err != nil {
		Err.Fatalf("Could not send comment (%s).", err)
	}
	// let the write flush before teardown
	time.Sleep(1 * time.Second)
	Out.Printf("Sent.")
}
