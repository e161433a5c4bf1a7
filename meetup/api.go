package meetup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R], 1)
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

// the server rejected the payload shape or a business rule.
// no local state mutation is performed for these.
type ValidationError struct {
	Message string              `json:"message"`
	Fields  map[string][]string `json:"errors,omitempty"`
}

func (self *ValidationError) Error() string {
	if len(self.Fields) == 0 {
		return self.Message
	}
	fields := []string{}
	for field, messages := range self.Fields {
		fields = append(fields, fmt.Sprintf("%s: %s", field, strings.Join(messages, ", ")))
	}
	return fmt.Sprintf("%s (%s)", self.Message, strings.Join(fields, "; "))
}

type MeetupApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	byJwt string
}

func NewMeetupApi(apiUrl string) *MeetupApi {
	return NewMeetupApiWithContext(context.Background(), apiUrl)
}

func NewMeetupApiWithContext(ctx context.Context, apiUrl string) *MeetupApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &MeetupApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

// this gets attached to api calls that need it
func (self *MeetupApi) SetByJwt(byJwt string) {
	self.byJwt = byJwt
}

func (self *MeetupApi) Close() {
	self.cancel()
}

type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalItems  int `json:"totalItems"`
}

type ListActivitiesCallback apiCallback[*ListActivitiesResult]

type ListActivitiesArgs struct {
	// filter name -> value, e.g. "isGoing" -> "true", "startDate" -> rfc3339
	Predicate  map[string]string
	PageNumber int
	PageSize   int
}

func (self *ListActivitiesArgs) query() string {
	params := url.Values{}
	params.Set("pageNumber", strconv.Itoa(self.PageNumber))
	params.Set("pageSize", strconv.Itoa(self.PageSize))
	for name, value := range self.Predicate {
		params.Set(name, value)
	}
	return params.Encode()
}

type ListActivitiesResult struct {
	Items      []*Activity `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

func (self *MeetupApi) ListActivities(listActivities *ListActivitiesArgs, callback ListActivitiesCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/activities?%s", self.apiUrl, listActivities.query()),
		self.byJwt,
		&ListActivitiesResult{},
		callback,
	)
}

func (self *MeetupApi) ListActivitiesSync(listActivities *ListActivitiesArgs) (*ListActivitiesResult, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/activities?%s", self.apiUrl, listActivities.query()),
		self.byJwt,
		&ListActivitiesResult{},
		NewNoopApiCallback[*ListActivitiesResult](),
	)
}

type GetActivityCallback apiCallback[*Activity]

func (self *MeetupApi) GetActivity(activityId Id, callback GetActivityCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/activities/%s", self.apiUrl, activityId),
		self.byJwt,
		&Activity{},
		callback,
	)
}

func (self *MeetupApi) GetActivitySync(activityId Id) (*Activity, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/activities/%s", self.apiUrl, activityId),
		self.byJwt,
		&Activity{},
		NewNoopApiCallback[*Activity](),
	)
}

type CreateActivityCallback apiCallback[*CreateActivityResult]

// the submittable fields of an activity.
// the id is chosen by the caller so the entity can be addressed
// locally before the create call resolves.
type ActivityFormArgs struct {
	Id          Id        `json:"id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	City        string    `json:"city"`
	Venue       string    `json:"venue"`
}

type CreateActivityResult struct{}

func (self *MeetupApi) CreateActivity(form *ActivityFormArgs, callback CreateActivityCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/activities", self.apiUrl),
		form,
		self.byJwt,
		&CreateActivityResult{},
		callback,
	)
}

func (self *MeetupApi) CreateActivitySync(form *ActivityFormArgs) (*CreateActivityResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/activities", self.apiUrl),
		form,
		self.byJwt,
		&CreateActivityResult{},
		NewNoopApiCallback[*CreateActivityResult](),
	)
}

type UpdateActivityCallback apiCallback[*UpdateActivityResult]

type UpdateActivityArgs struct {
	ActivityId Id
	Update     *ActivityUpdate
}

type UpdateActivityResult struct{}

func (self *MeetupApi) UpdateActivity(updateActivity *UpdateActivityArgs, callback UpdateActivityCallback) {
	go put(
		self.ctx,
		fmt.Sprintf("%s/activities/%s", self.apiUrl, updateActivity.ActivityId),
		updateActivity.Update,
		self.byJwt,
		&UpdateActivityResult{},
		callback,
	)
}

func (self *MeetupApi) UpdateActivitySync(updateActivity *UpdateActivityArgs) (*UpdateActivityResult, error) {
	return put(
		self.ctx,
		fmt.Sprintf("%s/activities/%s", self.apiUrl, updateActivity.ActivityId),
		updateActivity.Update,
		self.byJwt,
		&UpdateActivityResult{},
		NewNoopApiCallback[*UpdateActivityResult](),
	)
}

type DeleteActivityCallback apiCallback[*DeleteActivityResult]

type DeleteActivityResult struct{}

func (self *MeetupApi) DeleteActivity(activityId Id, callback DeleteActivityCallback) {
	go del(
		self.ctx,
		fmt.Sprintf("%s/activities/%s", self.apiUrl, activityId),
		self.byJwt,
		&DeleteActivityResult{},
		callback,
	)
}

func (self *MeetupApi) DeleteActivitySync(activityId Id) (*DeleteActivityResult, error) {
	return del(
		self.ctx,
		fmt.Sprintf("%s/activities/%s", self.apiUrl, activityId),
		self.byJwt,
		&DeleteActivityResult{},
		NewNoopApiCallback[*DeleteActivityResult](),
	)
}

type UpdateAttendanceCallback apiCallback[*UpdateAttendanceResult]

// joins or leaves as attendee, or toggles cancellation when the caller hosts
type UpdateAttendanceResult struct{}

func (self *MeetupApi) UpdateAttendance(activityId Id, callback UpdateAttendanceCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/activities/%s/attend", self.apiUrl, activityId),
		nil,
		self.byJwt,
		&UpdateAttendanceResult{},
		callback,
	)
}

func (self *MeetupApi) UpdateAttendanceSync(activityId Id) (*UpdateAttendanceResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/activities/%s/attend", self.apiUrl, activityId),
		nil,
		self.byJwt,
		&UpdateAttendanceResult{},
		NewNoopApiCallback[*UpdateAttendanceResult](),
	)
}

func post[R any](ctx context.Context, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	return call(ctx, "POST", url, args, byJwt, result, callback)
}

func put[R any](ctx context.Context, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	return call(ctx, "PUT", url, args, byJwt, result, callback)
}

func del[R any](ctx context.Context, url string, byJwt string, result R, callback apiCallback[R]) (R, error) {
	return call(ctx, "DELETE", url, nil, byJwt, result, callback)
}

func get[R any](ctx context.Context, url string, byJwt string, result R, callback apiCallback[R]) (R, error) {
	return call(ctx, "GET", url, nil, byJwt, result, callback)
}

func call[R any](ctx context.Context, method string, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")

	if byJwt != "" {
		auth := fmt.Sprintf("Bearer %s", byJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		if r.StatusCode == http.StatusBadRequest {
			validationError := &ValidationError{}
			if jsonErr := json.Unmarshal(responseBodyBytes, validationError); jsonErr == nil {
				callback.Result(result, validationError)
				return result, validationError
			}
		}
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	if 0 < len(responseBodyBytes) {
		err = json.Unmarshal(responseBodyBytes, &result)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	callback.Result(result, nil)
	return result, nil
}
