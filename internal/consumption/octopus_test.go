package consumption

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOctopusConsumptionPaginates(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "sk_test", user)
		assert.Empty(t, pass)
		assert.Equal(t, "/electricity-meter-points/1200000000000/meters/21L1234567/consumption/", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"count":2,"next":null,"results":[
				{"consumption":0.25,"interval_start":"2024-03-01T00:30:00Z","interval_end":"2024-03-01T01:00:00Z"}]}`)
			return
		}
		assert.Equal(t, "2024-03-01T00:00:00Z", r.URL.Query().Get("period_from"))
		assert.Equal(t, "period", r.URL.Query().Get("order_by"))
		fmt.Fprintf(w, `{"count":2,"next":"%s%s?page=2","results":[
			{"consumption":0.113,"interval_start":"2024-03-01T00:00:00Z","interval_end":"2024-03-01T00:30:00Z"}]}`,
			srv.URL, r.URL.Path)
	}))
	defer srv.Close()

	client := NewOctopusClient("sk_test", "1200000000000", "21L1234567").WithBaseURL(srv.URL)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	readings, err := client.Consumption(context.Background(), from, from.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, readings, 2)

	assert.True(t, readings[0].Period.Equal(from.Add(30*time.Minute)))
	assert.Equal(t, "0.113", readings[0].Value.String())
	assert.True(t, readings[1].Period.Equal(from.Add(time.Hour)))
	assert.Equal(t, "0.25", readings[1].Value.String())
}

func TestOctopusConsumptionErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Invalid API key."}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	now := time.Now()
	_, err := NewOctopusClient("bad", "1", "2").WithBaseURL(srv.URL).Consumption(context.Background(), now, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")

	_, err = NewOctopusClient("", "1", "2").Consumption(context.Background(), now, now)
	assert.Error(t, err)
}
