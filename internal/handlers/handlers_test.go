package handlers

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/nightstake/internal/auth"
	"github.com/jason-s-yu/nightstake/internal/game"
	"github.com/jason-s-yu/nightstake/internal/models"
	"github.com/jason-s-yu/nightstake/internal/realtime"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	events []models.MatchEventRecord
	err    error
}

func (f *fakeHistory) ListMatchEvents(_ context.Context, id uuid.UUID) ([]models.MatchEventRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.MatchEventRecord
	for _, e := range f.events {
		if e.MatchID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type testServer struct {
	*Server
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	hub := realtime.NewHub(16, logger)
	issuer, err := auth.NewIssuer(time.Hour)
	require.NoError(t, err)
	mg := game.NewManager(game.DefaultConfig(), game.WithBroadcaster(hub), game.WithLogger(logger))
	t.Cleanup(mg.Close)

	s := &Server{
		Manager:    mg,
		Hub:        hub,
		Issuer:     issuer,
		Challenges: auth.NewChallenges(time.Minute),
		Logger:     logger,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("nightstake_matches_created_total 0\n"))
		}),
	}
	return &testServer{Server: s, handler: s.Routes()}
}

func (ts *testServer) token(t *testing.T, address string) string {
	t.Helper()
	tok, err := ts.Issuer.CreateJWT(address)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decodeBody[errorBody](t, rec).Kind
}

func (ts *testServer) create(t *testing.T, creator string, body map[string]any) game.PublicView {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/match/create", ts.token(t, creator), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[game.PublicView](t, rec)
}

func TestWalletLoginFlow(t *testing.T) {
	ts := newTestServer(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	addr := auth.AddressFromPublicKey(pub)

	rec := ts.do(t, http.MethodPost, "/auth/challenge", "", map[string]string{"address": addr})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	msg := decodeBody[map[string]string](t, rec)["message"]
	require.Contains(t, msg, addr)

	rec = ts.do(t, http.MethodPost, "/auth/session", "", map[string]string{
		"address":   addr,
		"publicKey": hex.EncodeToString(pub),
		"signature": hex.EncodeToString(ed25519.Sign(priv, []byte(msg))),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := decodeBody[map[string]string](t, rec)
	assert.Equal(t, addr, session["address"])
	require.NotEmpty(t, rec.Result().Cookies())

	rec = ts.do(t, http.MethodPost, "/match/create", session["token"], nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, addr, decodeBody[game.PublicView](t, rec).Creator)
}

func TestWalletLoginRejectsBadProof(t *testing.T) {
	ts := newTestServer(t)
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	addr := auth.AddressFromPublicKey(pub)

	rec := ts.do(t, http.MethodPost, "/auth/challenge", "", map[string]string{"address": "not-an-address"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/auth/challenge", "", map[string]string{"address": addr}).Code)
	rec = ts.do(t, http.MethodPost, "/auth/session", "", map[string]string{
		"address":   addr,
		"publicKey": hex.EncodeToString(pub),
		"signature": hex.EncodeToString(make([]byte, ed25519.SignatureSize)),
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthenticated", errorKind(t, rec))
}

func TestMutationsRequireToken(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/match/create", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/match/create", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/match/create", nil)
	req.Header.Set("Cookie", "theme=dark; auth_token="+ts.token(t, "0xc00c1e"))
	cookieRec := httptest.NewRecorder()
	ts.handler.ServeHTTP(cookieRec, req)
	assert.Equal(t, http.StatusCreated, cookieRec.Code, "cookie token is accepted")

	req = httptest.NewRequest(http.MethodPost, "/match/create", nil)
	req.Header.Set("Cookie", "xauth_token="+ts.token(t, "0xc00c1e"))
	lookalike := httptest.NewRecorder()
	ts.handler.ServeHTTP(lookalike, req)
	assert.Equal(t, http.StatusUnauthorized, lookalike.Code, "only the auth_token cookie counts")
}

func TestCreateJoinAndView(t *testing.T) {
	ts := newTestServer(t)
	view := ts.create(t, "0xa", map[string]any{"stakeAmount": 500, "minPlayers": 3, "maxPlayers": 4, "public": true})
	assert.Equal(t, uint64(500), view.Stake.Amount)
	assert.Equal(t, game.PhaseLobby, view.Phase)

	rec := ts.do(t, http.MethodPost, "/match/join", ts.token(t, "0xb"), map[string]string{"code": view.JoinCode})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody[game.PublicView](t, rec).Participants, 2)

	rec = ts.do(t, http.MethodPost, "/match/"+view.ID.String()+"/join", ts.token(t, "0xc"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/match/"+view.ID.String(), ts.token(t, "0xb"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0xb", decodeBody[game.ParticipantView](t, rec).You)

	rec = ts.do(t, http.MethodGet, "/match/"+view.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"you"`, "anonymous callers get the public view")

	rec = ts.do(t, http.MethodGet, "/match/"+view.ID.String(), ts.token(t, "0xoutsider"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"you"`)

	rec = ts.do(t, http.MethodGet, "/room/"+view.JoinCode, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, view.ID, decodeBody[game.PublicView](t, rec).ID)

	rec = ts.do(t, http.MethodGet, "/lobbies", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lobbies := decodeBody[map[string][]models.LobbySummary](t, rec)["lobbies"]
	require.Len(t, lobbies, 1)
	assert.Equal(t, 3, lobbies[0].Participants)

	rec = ts.do(t, http.MethodPost, "/match/"+view.ID.String()+"/leave", ts.token(t, "0xc"), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGameErrorsMapToStatus(t *testing.T) {
	ts := newTestServer(t)
	view := ts.create(t, "0xa", map[string]any{"minPlayers": 3, "maxPlayers": 3})
	id := view.ID.String()
	for _, p := range []string{"0xb", "0xc"} {
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/match/"+id+"/join", ts.token(t, p), nil).Code)
	}

	cases := []struct {
		name   string
		method string
		path   string
		who    string
		body   any
		status int
		kind   string
	}{
		{"unknown match", http.MethodPost, "/match/" + uuid.NewString() + "/join", "0xd", nil, http.StatusNotFound, "NotFound"},
		{"malformed id", http.MethodPost, "/match/nope/join", "0xd", nil, http.StatusBadRequest, "BadRequest"},
		{"full", http.MethodPost, "/match/" + id + "/join", "0xd", nil, http.StatusConflict, "Full"},
		{"vote in lobby", http.MethodPost, "/match/" + id + "/vote", "0xa", map[string]string{"target": "0xb"}, http.StatusConflict, "InvalidPhase"},
		{"settings by non-creator", http.MethodPatch, "/match/" + id + "/settings", "0xb", map[string]int{"nightPhaseDuration": 20}, http.StatusForbidden, "Unauthorized"},
		{"settings out of bounds", http.MethodPatch, "/match/" + id + "/settings", "0xa", map[string]int{"nightPhaseDuration": 500}, http.StatusBadRequest, "InvalidConfig"},
		{"settings not positive", http.MethodPatch, "/match/" + id + "/settings", "0xa", map[string]int{"votingPhaseDuration": 0}, http.StatusBadRequest, "BadRequest"},
		{"unknown field", http.MethodPost, "/match/" + id + "/stake", "0xa", map[string]string{"hash": "0x1"}, http.StatusBadRequest, "BadRequest"},
		{"blank vote target", http.MethodPost, "/match/" + id + "/vote", "0xa", map[string]string{"target": " "}, http.StatusBadRequest, "BadRequest"},
		{"visibility by non-creator", http.MethodPost, "/match/" + id + "/visibility", "0xc", nil, http.StatusForbidden, "Unauthorized"},
		{"unknown code", http.MethodGet, "/room/ZZZZZZ", "", nil, http.StatusNotFound, "NotFound"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token := ""
			if tc.who != "" {
				token = ts.token(t, tc.who)
			}
			rec := ts.do(t, tc.method, tc.path, token, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.kind, errorKind(t, rec))
		})
	}
}

func TestCreatorControls(t *testing.T) {
	ts := newTestServer(t)
	view := ts.create(t, "0xa", nil)
	id := view.ID.String()

	rec := ts.do(t, http.MethodPost, "/match/"+id+"/visibility", ts.token(t, "0xa"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, !view.Public, decodeBody[map[string]bool](t, rec)["public"])

	rec = ts.do(t, http.MethodPatch, "/match/"+id+"/settings", ts.token(t, "0xa"), map[string]int{"taskPhaseDuration": 45})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 45, decodeBody[game.Settings](t, rec).TaskSeconds)
}

func TestHistoryEndpoint(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()

	rec := ts.do(t, http.MethodGet, "/match/"+id.String()+"/history", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ts.History = &fakeHistory{events: []models.MatchEventRecord{
		{MatchID: id, Seq: 1, EventType: "match_created"},
		{MatchID: uuid.New(), Seq: 1, EventType: "match_created"},
		{MatchID: id, Seq: 2, EventType: "participant_joined"},
	}}
	rec = ts.do(t, http.MethodGet, "/match/"+id.String()+"/history", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Events []models.MatchEventRecord `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 2)
	assert.Equal(t, "participant_joined", body.Events[1].EventType)

	ts.History = &fakeHistory{err: errors.New("db down")}
	rec = ts.do(t, http.MethodGet, "/match/"+id.String()+"/history", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, "0xa", nil)

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody[map[string]any](t, rec)["activeMatches"])

	rec = ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nightstake_matches_created_total")
}

func readFrame(t *testing.T, ctx context.Context, c *websocket.Conn) map[string]any {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func dialMatch(t *testing.T, ctx context.Context, srv *httptest.Server, id uuid.UUID, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/match/" + id.String() + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	c, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{Subprotocols: []string{matchSubprotocol}})
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func TestMatchSocket(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	view := ts.create(t, "0xa", nil)

	player := dialMatch(t, ctx, srv, view.ID, ts.token(t, "0xa"))
	first := readFrame(t, ctx, player)
	assert.Equal(t, "sync_state", first["type"])
	assert.Equal(t, "0xa", first["state"].(map[string]any)["you"])

	require.NoError(t, player.Write(ctx, websocket.MessageText, []byte(`{"type":"vote","target":"0xb","ref":"r1"}`)))
	reply := readFrame(t, ctx, player)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, "InvalidPhase", reply["kind"])
	assert.Equal(t, "r1", reply["ref"])

	require.NoError(t, player.Write(ctx, websocket.MessageText, []byte(`{"type":"dance"}`)))
	assert.Equal(t, "BadRequest", readFrame(t, ctx, player)["kind"])

	require.NoError(t, player.Write(ctx, websocket.MessageText, []byte(`{"type":"sync","ref":"r2"}`)))
	// sync_state and the ack are queued from the same goroutine in that order.
	assert.Equal(t, "sync_state", readFrame(t, ctx, player)["type"])
	ack := readFrame(t, ctx, player)
	assert.Equal(t, "ack", ack["type"])
	assert.Equal(t, "r2", ack["ref"])

	watcher := dialMatch(t, ctx, srv, view.ID, "")
	state := readFrame(t, ctx, watcher)
	assert.Equal(t, "sync_state", state["type"])
	assert.NotContains(t, state["state"], "you")
	require.NoError(t, watcher.Write(ctx, websocket.MessageText, []byte(`{"type":"ready"}`)))
	assert.Equal(t, "Unauthenticated", readFrame(t, ctx, watcher)["kind"])

	require.Eventually(t, func() bool { return ts.Hub.Clients(view.ID) == 2 }, time.Second, 5*time.Millisecond)
	rec := ts.do(t, http.MethodPost, "/match/"+view.ID.String()+"/join", ts.token(t, "0xb"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range []*websocket.Conn{player, watcher} {
		assert.Equal(t, "participant_joined", readFrame(t, ctx, c)["type"])
	}
	assert.Equal(t, "sync_state", readFrame(t, ctx, player)["type"], "members also get their own view")
}

func TestMatchSocketRejects(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/match/"+uuid.NewString()+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	view := ts.create(t, "0xa", nil)
	_, resp, err = websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/match/"+view.ID.String()+"/ws?token=bad", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/match/"+view.ID.String()+"/ws", nil)
	require.NoError(t, err)
	defer c.CloseNow()
	_, _, err = c.Read(ctx)
	assert.Equal(t, websocket.StatusCode(BadSubprotocolError), websocket.CloseStatus(err))
}
