package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_SetsUserAgentAndTimeout(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(Options{UserAgent: "mcp-gateway/test"})
	require.Equal(t, DefaultTimeout, client.Timeout)

	_, err := NewWeatherClient(srv.URL, client).ActiveAlerts(context.Background(), "CA")
	require.NoError(t, err)
	require.Equal(t, "mcp-gateway/test", gotUA)
}

func TestWeatherClient_ActiveAlerts(t *testing.T) {
	var gotPath, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"features":[
			{"properties":{"event":"Flood Warning","headline":"Flooding","description":"Rivers rising"}},
			{"properties":{"event":"Wind Advisory","headline":"Windy","description":"Gusts"}}
		]}`))
	}))
	defer srv.Close()

	alerts, err := NewWeatherClient(srv.URL+"/", srv.Client()).ActiveAlerts(context.Background(), "CA")
	require.NoError(t, err)
	require.Equal(t, "/alerts/active/area/CA", gotPath)
	require.Equal(t, "application/geo+json", gotAccept)
	require.Len(t, alerts, 2)
	require.Equal(t, "Flood Warning", alerts[0].Event)
	require.Equal(t, "Gusts", alerts[1].Description)
}

func TestWeatherClient_ForecastFlow(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/points/37.7749,-122.4194", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"properties":{"forecast":"` + srv.URL + `/gridpoints/MTR/85,105/forecast"}}`))
	})
	mux.HandleFunc("/gridpoints/MTR/85,105/forecast", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"properties":{"periods":[
			{"name":"Tonight","temperature":52,"temperatureUnit":"F","shortForecast":"Clear"}
		]}}`))
	})

	client := NewWeatherClient(srv.URL, srv.Client())
	forecastURL, err := client.ForecastURL(context.Background(), 37.7749, -122.4194)
	require.NoError(t, err)

	periods, err := client.Forecast(context.Background(), forecastURL)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	require.Equal(t, "Tonight", periods[0].Name)
	require.InDelta(t, 52, periods[0].Temperature, 0.001)
}

func TestWeatherClient_ForecastURLMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"properties":{}}`))
	}))
	defer srv.Close()

	_, err := NewWeatherClient(srv.URL, srv.Client()).ForecastURL(context.Background(), 1, 2)
	require.ErrorIs(t, err, ErrNoForecastURL)
}

func TestGetJSON_ErrorKinds(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewWeatherClient(srv.URL, srv.Client()).ActiveAlerts(context.Background(), "CA")
		var upstreamErr *Error
		require.ErrorAs(t, err, &upstreamErr)
		require.Equal(t, http.StatusServiceUnavailable, upstreamErr.StatusCode)
		require.Equal(t, "weather alerts failed: HTTP 503", err.Error())
	})

	t.Run("malformed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{not json`))
		}))
		defer srv.Close()

		_, err := NewWeatherClient(srv.URL, srv.Client()).ActiveAlerts(context.Background(), "CA")
		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
		require.Contains(t, err.Error(), "weather alerts returned a malformed response")
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		baseURL := srv.URL
		srv.Close()

		_, err := NewWeatherClient(baseURL, &http.Client{Timeout: time.Second}).ActiveAlerts(context.Background(), "CA")
		var requestErr *RequestError
		require.ErrorAs(t, err, &requestErr)
		require.Contains(t, err.Error(), "weather alerts request failed")
	})
}

func TestBusinessClient_GetUserForwardsCredential(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"code":0,"message":"ok","data":{
			"id":12,"username":"alice","name":"Alice","email":"alice@example.com","dept_id":3,"status":1,
			"created_at":"2025-01-02T03:04:05Z"}}`))
	}))
	defer srv.Close()

	user, err := NewBusinessClient(srv.URL, srv.Client()).GetUser(context.Background(), 12, "tok-1")
	require.NoError(t, err)
	require.Equal(t, "/api/v1/user/12", gotPath)
	require.Equal(t, "Bearer tok-1", gotAuth)
	require.Equal(t, int64(12), user.ID)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, int64(3), user.DeptID)
	require.Equal(t, "2025-01-02T03:04:05Z", user.CreatedAt)
}

func TestBusinessClient_EnvelopeErrors(t *testing.T) {
	t.Run("non-zero code", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"code":1004,"message":"user not found"}`))
		}))
		defer srv.Close()

		_, err := NewBusinessClient(srv.URL, srv.Client()).GetUser(context.Background(), 9, "")
		require.EqualError(t, err, "user lookup failed: user not found (code 1004)")
	})

	t.Run("missing data", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"code":0,"message":"ok"}`))
		}))
		defer srv.Close()

		_, err := NewBusinessClient(srv.URL, srv.Client()).GetUser(context.Background(), 9, "")
		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
	})

	t.Run("not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := NewBusinessClient(srv.URL, srv.Client()).GetUser(context.Background(), 9, "")
		require.True(t, IsNotFound(err))
		require.False(t, IsNotFound(errors.New("other")))
	})
}

func TestBusinessClient_DepartmentsAndHeadCount(t *testing.T) {
	var deptQuery, userQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/department/list", func(w http.ResponseWriter, r *http.Request) {
		deptQuery = r.URL.Query().Get("query")
		_, _ = w.Write([]byte(`{"code":0,"message":"ok","data":{"total":1,"items":[
			{"id":4,"name":"Engineering","code":"ENG","parent_id":1,"level":2,"sort":0,"status":1}]}}`))
	})
	mux.HandleFunc("/api/v1/user/list", func(w http.ResponseWriter, r *http.Request) {
		userQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"code":0,"message":"ok","data":{"total":17,"items":[]}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewBusinessClient(srv.URL, srv.Client())
	departments, err := client.FindDepartments(context.Background(), "Engineering", "tok")
	require.NoError(t, err)
	require.Equal(t, "Engineering", deptQuery)
	require.Len(t, departments, 1)
	require.Equal(t, "ENG", departments[0].Code)

	count, err := client.CountUsers(context.Background(), departments[0].ID, "tok")
	require.NoError(t, err)
	require.Equal(t, int64(17), count)
	require.Contains(t, userQuery, "dept_id=4")
	require.Contains(t, userQuery, "limit=1")
}
