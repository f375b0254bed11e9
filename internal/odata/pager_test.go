// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package odata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinjernot/eloqua/internal/transport"
)

func newClient(srv *httptest.Server) *transport.Client {
	return transport.NewWithDoer(srv.Client(), srv.URL, nil, transport.Options{
		MaxRetries: -1,
		PageDelay:  time.Millisecond,
	})
}

func rows(start, n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{"id": strconv.Itoa(start + i)}
	}
	return out
}

// TestPager_PageNumberStopsOnShortPage verifies numbered paging ends on a short page.
func TestPager_PageNumberStopsOnShortPage(t *testing.T) {
	var mu sync.Mutex
	var pages []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mu.Lock()
		pages = append(pages, q.Get("page"))
		mu.Unlock()

		assert.Equal(t, "3", q.Get("count"))
		assert.Equal(t, "dateHour ge 2025-01-10T00:00:00Z", q.Get("$filter"))

		var body []map[string]any
		switch q.Get("page") {
		case "1":
			body = rows(0, 3)
		case "2":
			body = rows(3, 1)
		default:
			t.Errorf("unexpected page %q", q.Get("page"))
		}
		json.NewEncoder(w).Encode(map[string]any{"value": body})
	}))
	defer srv.Close()

	p := NewPager(newClient(srv), 3, 10)
	params := url.Values{"$filter": {"dateHour ge 2025-01-10T00:00:00Z"}}

	got, err := p.Fetch(context.Background(), "/API/OData/ActivityDetails/1/EmailOpen", params)
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, []string{"1", "2"}, pages)
	assert.Empty(t, params.Get("page"), "caller params must not be mutated")
}

// TestPager_FollowsNextLink verifies paging follows next links.
func TestPager_FollowsNextLink(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users":
			json.NewEncoder(w).Encode(map[string]any{
				"value":           rows(0, 2),
				"@odata.nextLink": srv.URL + "/users/next?skiptoken=abc",
			})
		case "/users/next":
			assert.Equal(t, "abc", r.URL.Query().Get("skiptoken"))
			// Short page with no cursor ends the walk.
			json.NewEncoder(w).Encode(map[string]any{"value": rows(2, 1)})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	got, err := NewPager(newClient(srv), 2, 10).Fetch(context.Background(), "/users", nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2", got[2]["id"])
}

// TestPager_StopsOnEmptyPage verifies paging ends on an empty page.
func TestPager_StopsOnEmptyPage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			json.NewEncoder(w).Encode(map[string]any{"value": rows(0, 2)})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
	}))
	defer srv.Close()

	got, err := NewPager(newClient(srv), 2, 10).Fetch(context.Background(), "/campaigns", nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, calls)
}

// TestPager_PageCap verifies paging stops at the page cap.
func TestPager_PageCap(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"value": rows(calls*10, 2)})
	}))
	defer srv.Close()

	got, err := NewPager(newClient(srv), 2, 3).Fetch(context.Background(), "/clicks", nil)
	require.NoError(t, err)
	assert.Len(t, got, 6)
	assert.Equal(t, 3, calls)
}

// TestPager_ErrorCarriesEndpointAndPage verifies errors name the endpoint and page.
func TestPager_ErrorCarriesEndpointAndPage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "denied")
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"value": rows(0, 2)})
	}))
	defer srv.Close()

	got, err := NewPager(newClient(srv), 2, 10).Fetch(context.Background(), "/opens", nil)
	assert.Nil(t, got)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "/opens", fe.Endpoint)
	assert.Equal(t, 2, fe.Page)

	var se *transport.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
}
