package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// User is a business backend user record.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar"`
	DeptID    int64  `json:"dept_id"`
	Status    int    `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Department is a business backend department record.
type Department struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	ParentID int64  `json:"parent_id"`
	Level    int    `json:"level"`
	Sort     int    `json:"sort"`
	Status   int    `json:"status"`
}

var errMissingData = errors.New("response envelope carries no data")

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

type page[T any] struct {
	Total int64 `json:"total"`
	Items []T   `json:"items"`
}

// BusinessClient talks to the business backend. Every call forwards the
// caller's bearer credential.
type BusinessClient struct {
	baseURL string
	client  *http.Client
}

// NewBusinessClient creates a business backend client rooted at baseURL.
func NewBusinessClient(baseURL string, client *http.Client) *BusinessClient {
	if client == nil {
		client = NewHTTPClient(Options{})
	}
	return &BusinessClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  client,
	}
}

// GetUser loads one user by id.
func (c *BusinessClient) GetUser(ctx context.Context, id int64, credential string) (User, error) {
	var user User
	err := getEnvelope(ctx, c.client, request{
		what:       "user lookup",
		url:        c.baseURL + "/api/v1/user/" + strconv.FormatInt(id, 10),
		credential: credential,
	}, &user)
	return user, err
}

// FindDepartments lists departments matching a name query.
func (c *BusinessClient) FindDepartments(ctx context.Context, query, credential string) ([]Department, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("page", "1")
	params.Set("limit", "10")

	var result page[Department]
	err := getEnvelope(ctx, c.client, request{
		what:       "department lookup",
		url:        c.baseURL + "/api/v1/department/list?" + params.Encode(),
		credential: credential,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// CountUsers returns the number of users assigned to a department.
func (c *BusinessClient) CountUsers(ctx context.Context, deptID int64, credential string) (int64, error) {
	params := url.Values{}
	params.Set("dept_id", strconv.FormatInt(deptID, 10))
	params.Set("page", "1")
	params.Set("limit", "1")

	var result page[User]
	err := getEnvelope(ctx, c.client, request{
		what:       "department head count",
		url:        c.baseURL + "/api/v1/user/list?" + params.Encode(),
		credential: credential,
	}, &result)
	if err != nil {
		return 0, err
	}
	return result.Total, nil
}

func getEnvelope[T any](ctx context.Context, client *http.Client, r request, out *T) error {
	var body envelope[T]
	if err := getJSON(ctx, client, r, &body); err != nil {
		return err
	}
	if body.Code != 0 {
		return &Error{
			What:       r.what,
			StatusCode: http.StatusOK,
			Code:       body.Code,
			Message:    body.Message,
		}
	}
	if body.Data == nil {
		return &MalformedResponseError{What: r.what, Err: errMissingData}
	}
	*out = *body.Data
	return nil
}
