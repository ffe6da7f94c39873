package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/models"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

type recorded struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   string
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []recorded
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeBackend) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, tokens TokenSource, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fb.mu.Lock()
		fb.requests = append(fb.requests, recorded{r.Method, r.URL.Path, r.URL.Query(), r.Header.Clone(), string(body)})
		fb.mu.Unlock()
		fb.handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, APIKey: "anon-key", Tokens: tokens}), fb
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestFetchBuildsFilters(t *testing.T) {
	c, fb := newTestClient(t, staticToken("user-jwt"), func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `[]`)
	})

	var rows []map[string]interface{}
	err := c.From("chat_messages").
		Select("*,users(username,avatar_url)").
		Eq("room_id", "r1").
		Order("created_at", true).
		Limit(50).
		Fetch(context.Background(), &rows)
	require.NoError(t, err)

	req := fb.last()
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/rest/v1/chat_messages", req.path)
	assert.Equal(t, "eq.r1", req.query.Get("room_id"))
	assert.Equal(t, "*,users(username,avatar_url)", req.query.Get("select"))
	assert.Equal(t, "created_at.asc", req.query.Get("order"))
	assert.Equal(t, "50", req.query.Get("limit"))
	assert.Equal(t, "anon-key", req.header.Get("apikey"))
	assert.Equal(t, "Bearer user-jwt", req.header.Get("Authorization"))
}

func TestBearerFallsBackToAPIKey(t *testing.T) {
	c, fb := newTestClient(t, staticToken(""), func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `[]`)
	})

	var rows []interface{}
	require.NoError(t, c.From("live_challenges").Fetch(context.Background(), &rows))
	assert.Equal(t, "Bearer anon-key", fb.last().header.Get("Authorization"))
}

func TestFilterEncoding(t *testing.T) {
	q := (&Client{}).From("users").
		NotIn("id", []string{"a", "b c"}).
		In("status", []string{"pending"}).
		Neq("status", "dismissed").
		Is("deleted_at", nil).
		Or("username.ilike."+ContainsPattern("zo(e)"), "bio.ilike."+ContainsPattern("zoe"))

	params := q.Params()
	assert.Equal(t, `not.in.(a,"b c")`, params.Get("id"))
	assert.Equal(t, []string{"in.(pending)", "neq.dismissed"}, params["status"])
	assert.Equal(t, "is.null", params.Get("deleted_at"))
	assert.Equal(t, "(username.ilike.*zoe*,bio.ilike.*zoe*)", params.Get("or"))
}

func TestSanitizeTerm(t *testing.T) {
	assert.Equal(t, "dance", SanitizeTerm(" (da,n*ce) "))
	assert.Equal(t, "", SanitizeTerm("()"))
}

func TestCountParsesContentRange(t *testing.T) {
	c, fb := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "*/42")
		w.WriteHeader(200)
	})

	n, err := c.From("users").Count(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 42, n)
	assert.Equal(t, http.MethodHead, fb.last().method)
	assert.Equal(t, "count=exact", fb.last().header.Get("Prefer"))
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"0-24/312", 312, true},
		{"*/0", 0, true},
		{"0-9/*", 0, false},
		{"", 0, false},
		{"0-9/abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, err := ParseContentRange(tt.in)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.want, n)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestInsertReturnsRepresentation(t *testing.T) {
	c, fb := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 201, `[{"id":"n1","user_id":"u1","title":"hi","read":false}]`)
	})

	var created []models.Notification
	err := c.From("notifications").Insert(context.Background(), map[string]string{"user_id": "u1"}, &created)
	require.NoError(t, err)

	require.Len(t, created, 1)
	assert.Equal(t, "n1", created[0].ID)
	assert.Equal(t, "return=representation", fb.last().header.Get("Prefer"))
	assert.JSONEq(t, `{"user_id":"u1"}`, fb.last().body)
}

func TestUpsertPrefersMerge(t *testing.T) {
	c, fb := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(201)
	})

	err := c.From("video_likes").OnConflict("video_id,user_id").
		Upsert(context.Background(), models.VideoLike{VideoID: "v", UserID: "u"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "resolution=merge-duplicates,return=minimal", fb.last().header.Get("Prefer"))
	assert.Equal(t, "video_id,user_id", fb.last().query.Get("on_conflict"))
}

func TestUnfilteredWritesRejectedLocally(t *testing.T) {
	c, fb := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(204)
	})

	err := c.From("notifications").Update(context.Background(), map[string]bool{"read": true}, nil)
	var cliErr *clierrors.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, clierrors.ErrorTypeValidation, cliErr.Type)

	err = c.From("followers").Delete(context.Background())
	require.ErrorAs(t, err, &cliErr)

	assert.Empty(t, fb.requests, "no request may reach the network")
}

func TestUpdateAndDeleteCarryFilters(t *testing.T) {
	c, fb := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(204)
	})

	require.NoError(t, c.From("notifications").Eq("id", "n1").Update(context.Background(), map[string]bool{"read": true}, nil))
	assert.Equal(t, http.MethodPatch, fb.last().method)
	assert.Equal(t, "eq.n1", fb.last().query.Get("id"))

	require.NoError(t, c.From("followers").Eq("follower_id", "a").Eq("following_id", "b").Delete(context.Background()))
	assert.Equal(t, http.MethodDelete, fb.last().method)
	assert.Equal(t, "eq.b", fb.last().query.Get("following_id"))
}

func TestErrorResponses(t *testing.T) {
	c, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/reports":
			writeJSON(w, 403, `{"code":"42501","message":"new row violates row-level security policy","details":null,"hint":null}`)
		case "/rest/v1/followers":
			writeJSON(w, 409, `{"code":"23505","message":"duplicate key","details":"Key exists"}`)
		default:
			w.WriteHeader(500)
		}
	})

	var rows []interface{}
	err := c.From("reports").Fetch(context.Background(), &rows)
	assert.True(t, IsForbidden(err))
	assert.Contains(t, err.Error(), "row-level security")
	assert.Equal(t, clierrors.ErrorTypeForbidden, clierrors.CategorizeError(err).Type)

	err = c.From("followers").Insert(context.Background(), models.Follow{FollowerID: "a", FollowingID: "b"}, nil)
	assert.True(t, IsConflict(err))

	err = c.From("videos").Fetch(context.Background(), &rows)
	assert.True(t, IsServerError(err))
	assert.False(t, IsNotFound(err))
}

func TestFetchOneNoRows(t *testing.T) {
	c, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 406, `{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned","details":"The result contains 0 rows"}`)
	})

	_, err := FetchOne[models.User](context.Background(), c.From("users").Eq("id", "u1"))
	assert.True(t, IsNoRows(err))
	assert.False(t, IsNotFound(err))
	assert.False(t, IsNoRows(errors.New("dial tcp: refused")))
}

func TestFetchAllDropsInvalidRows(t *testing.T) {
	c, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `[
			{"id":"n1","user_id":"u","title":"ok","read":false},
			{"id":"","user_id":"u"},
			{"id":"n3","user_id":"u","read":"not-a-bool"},
			{"id":"n4","user_id":"u","title":"ok too","read":true}
		]`)
	})

	rows, err := FetchAll[models.Notification](context.Background(), c.From("notifications"))
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "n1", rows[0].ID)
	assert.Equal(t, "n4", rows[1].ID)
}

func TestFetchOneUsesObjectAccept(t *testing.T) {
	c, fb := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"id":"u1","username":"zoe"}`)
	})

	u, err := FetchOne[models.User](context.Background(), c.From("users").Eq("id", "u1"))
	require.NoError(t, err)

	assert.Equal(t, "zoe", u.Username)
	assert.Equal(t, "application/vnd.pgrst.object+json", fb.last().header.Get("Accept"))
}

func TestInvoke(t *testing.T) {
	c, fb := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"suggestions":[]}`)
	})

	var out models.DareResponse
	require.NoError(t, c.Invoke(context.Background(), "dare-suggestions", models.DareRequest{UserID: "u"}, &out))

	assert.Equal(t, "/functions/v1/dare-suggestions", fb.last().path)
	assert.Contains(t, fb.last().body, `"userId":"u"`)
}

func TestSignInWithPassword(t *testing.T) {
	c, fb := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "password" {
			writeJSON(w, 400, `{"error":"unsupported_grant_type"}`)
			return
		}
		writeJSON(w, 200, `{"access_token":"at","refresh_token":"rt","expires_in":3600,"user":{"id":"u1","email":"a@b.co"}}`)
	})

	s, err := c.SignInWithPassword(context.Background(), " a@b.co ", "pw")
	require.NoError(t, err)

	assert.Equal(t, "at", s.AccessToken)
	assert.Equal(t, "u1", s.User.ID)
	assert.JSONEq(t, `{"email":"a@b.co","password":"pw"}`, fb.last().body)
}

func TestSignInValidation(t *testing.T) {
	c, fb := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})

	_, err := c.SignInWithPassword(context.Background(), "", "pw")
	assert.Error(t, err)
	_, err = c.SignInWithPassword(context.Background(), "a@b.co", "")
	assert.Error(t, err)
	assert.Empty(t, fb.requests)
}

func TestSignInRejected(t *testing.T) {
	c, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`)
	})

	_, err := c.SignInWithPassword(context.Background(), "a@b.co", "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid login credentials")
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestSignOutUsesGivenToken(t *testing.T) {
	c, fb := newTestClient(t, staticToken("other"), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(204)
	})

	require.NoError(t, c.SignOut(context.Background(), "session-token"))
	assert.Equal(t, "Bearer session-token", fb.last().header.Get("Authorization"))
	assert.Equal(t, "/auth/v1/logout", fb.last().path)
}
