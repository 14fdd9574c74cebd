package multiworld_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/multiworld/internal/multiworld"
	"github.com/cory-johannsen/multiworld/internal/protocol"
	"github.com/cory-johannsen/multiworld/internal/testutil"
)

type gameFixture struct {
	session *multiworld.GameSession
	dialer  *testutil.FakeDialer
	sock    *testutil.FakeSocket
}

func newGameFixture(t *testing.T, entry *protocol.LobbyEntry, kind multiworld.Kind, password string) *gameFixture {
	t.Helper()
	dir := multiworld.NewDirectory()
	g := dir.Upsert(entry)
	dialer := testutil.NewFakeDialer()
	gs, err := multiworld.NewGameSession(g, multiworld.GameConfig{
		SessionConfig: testSessionConfig,
		Kind:          kind,
		PlayerName:    "bot",
		Password:      password,
	}, dialer, zaptest.NewLogger(t))
	require.NoError(t, err)
	g.Attach(gs)
	t.Cleanup(gs.Disconnect)
	require.NoError(t, gs.Connect(context.Background()))
	return &gameFixture{session: gs, dialer: dialer, sock: dialer.WaitDial(t)}
}

// settle pushes a marker Identify and waits for it.
func (f *gameFixture) settle(t *testing.T) {
	t.Helper()
	f.sock.Push(t, "marker", &protocol.Identify{Name: "marker"})
	testutil.Eventually(t, func() bool {
		_, ok := f.session.GetPlayer("marker")
		return ok
	}, "marker identify not applied")
}

func bindKnock(t *testing.T, env protocol.Envelope) protocol.Knock {
	t.Helper()
	var k protocol.Knock
	require.NoError(t, env.Bind(&k))
	return k
}

func TestKind_Endpoint(t *testing.T) {
	for kind, want := range map[multiworld.Kind]string{
		multiworld.KindMultiworld: "api/mw/G1",
		multiworld.KindSecure1P:   "api/s1p/G1",
		multiworld.KindGame:       "api/game/G1",
	} {
		got, err := kind.Endpoint("G1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := multiworld.Kind("bogus").Endpoint("G1")
	assert.True(t, errors.Is(err, multiworld.ErrUnknownKind))
}

func TestParseKind(t *testing.T) {
	k, err := multiworld.ParseKind("s1p")
	require.NoError(t, err)
	assert.Equal(t, multiworld.KindSecure1P, k)
	_, err = multiworld.ParseKind("")
	assert.ErrorIs(t, err, multiworld.ErrUnknownKind)
}

func TestNewGameSession_UnknownKind(t *testing.T) {
	g := multiworld.NewDirectory().Ensure("G1")
	_, err := multiworld.NewGameSession(g, multiworld.GameConfig{SessionConfig: testSessionConfig, Kind: "nope"},
		testutil.NewFakeDialer(), nil)
	assert.ErrorIs(t, err, multiworld.ErrUnknownKind)
}

func TestGameSession_ConnectKnocksWithoutPasswordWhenOpen(t *testing.T) {
	f := newGameFixture(t, &protocol.LobbyEntry{Game: "G1", HasPassword: boolPtr(false)}, multiworld.KindMultiworld, "secret")
	assert.Equal(t, "wss://mw.example.test/api/mw/G1", f.sock.URL)

	frames := f.sock.WaitWritten(t, 1)
	require.Equal(t, protocol.TypeKnock, frames[0].Type)
	k := bindKnock(t, frames[0])
	assert.Equal(t, "bot", k.PlayerName)
	assert.Equal(t, "", k.Password)
}

func TestGameSession_ConnectKnocksWithPasswordWhenProtected(t *testing.T) {
	f := newGameFixture(t, &protocol.LobbyEntry{Game: "G1", HasPassword: boolPtr(true)}, multiworld.KindSecure1P, "secret")
	assert.Equal(t, "wss://mw.example.test/api/s1p/G1", f.sock.URL)
	k := bindKnock(t, f.sock.WaitWritten(t, 1)[0])
	assert.Equal(t, "secret", k.Password)
}

func TestGameSession_IdentifyUpsertsPlayerBySender(t *testing.T) {
	f := newGameFixture(t, &protocol.LobbyEntry{Game: "G1"}, multiworld.KindMultiworld, "")
	f.sock.Push(t, "p-2", &protocol.Identify{Name: "Zelda"})
	f.sock.Push(t, "p-1", &protocol.Identify{Name: "Link"})
	f.sock.Push(t, "p-1", &protocol.Identify{Name: "Link Renamed"})
	f.settle(t)

	p, ok := f.session.GetPlayer("p-1")
	require.True(t, ok)
	assert.Equal(t, "Link Renamed", p.Name)

	var names []string
	for _, p := range f.session.Players() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Link Renamed", "Zelda", "marker"}, names)

	_, ok = f.session.GetPlayer("nobody")
	assert.False(t, ok)
}

func TestGameSession_WorldDescriptionAppliesDefaults(t *testing.T) {
	f := newGameFixture(t, &protocol.LobbyEntry{Game: "G1"}, multiworld.KindMultiworld, "")
	f.sock.PushRaw(t, `{"type":22,"world":2,"title":"Two","description":"second","rng":"abc"}`)
	f.settle(t)

	w, ok := f.session.GetWorld(2)
	require.True(t, ok)
	assert.Equal(t, "Two", w.Title)
	assert.Equal(t, "abc", w.RNG)
	assert.False(t, w.Mystery)
	assert.False(t, w.Claimed)
	assert.NotNil(t, w.Logic)
	assert.Empty(t, w.Logic)
	assert.NotNil(t, w.Difficulty)
}

func TestGameSession_WorldDescriptionPassesSettingsThrough(t *testing.T) {
	f := newGameFixture(t, &protocol.LobbyEntry{Game: "G1"}, multiworld.KindMultiworld, "")
	f.sock.Push(t, "server", &protocol.WorldDescription{
		World: 1, Title: "One", Mystery: true,
		Logic: map[string]any{"glitches": "none", "nested": map[string]any{"k": []any{"a", "b"}}},
	})
	f.settle(t)

	w, ok := f.session.GetWorld(1)
	require.True(t, ok)
	assert.True(t, w.Mystery)
	assert.Equal(t, "none", w.Logic["glitches"])
	assert.Equal(t, map[string]any{"k": []any{"a", "b"}}, w.Logic["nested"])
}

func TestGameSession_WorldClaimBeforeDescriptionIsNoOp(t *testing.T) {
	f := newGameFixture(t, &protocol.LobbyEntry{Game: "G1"}, multiworld.KindMultiworld, "")
	f.sock.Push(t, "server", &protocol.WorldClaim{World: 7, Claim: true})
	f.settle(t)

	_, ok := f.session.GetWorld(7)
	assert.False(t, ok, "a claim must not create a world")
	assert.Empty(t, f.session.Worlds())

	f.sock.Push(t, "server", &protocol.WorldDescription{World: 7, Title: "Seven"})
	f.sock.Push(t, "server", &protocol.WorldClaim{World: 7, Claim: true})
	f.settle(t)
	w, _ := f.session.GetWorld(7)
	assert.True(t, w.Claimed)

	f.sock.Push(t, "server", &protocol.WorldClaim{World: 7, Claim: false})
	f.settle(t)
	w, _ = f.session.GetWorld(7)
	assert.False(t, w.Claimed)
}

func TestGameSession_InboundImportRecordsReknocks(t *testing.T) {
	f := newGameFixture(t, &protocol.LobbyEntry{Game: "G1"}, multiworld.KindMultiworld, "")
	f.sock.WaitWritten(t, 1)
	f.sock.Push(t, "server", &protocol.ImportRecords{})
	frames := f.sock.WaitWritten(t, 2)
	assert.Equal(t, protocol.TypeKnock, frames[1].Type)
	assert.Len(t, f.sock.WrittenOfType(t, protocol.TypeKnock), 2)
}

func TestGameSession_Actions(t *testing.T) {
	f := newGameFixture(t, &protocol.LobbyEntry{Game: "G1"}, multiworld.KindMultiworld, "")
	ctx := context.Background()
	f.sock.Push(t, "server", &protocol.WorldDescription{World: 3, Title: "Three"})
	f.sock.Push(t, "p-9", &protocol.Identify{Name: "Griefer"})
	f.settle(t)

	w, ok := f.session.GetWorld(3)
	require.True(t, ok)
	p, ok := f.session.GetPlayer("p-9")
	require.True(t, ok)

	require.NoError(t, w.Claim(ctx))
	require.NoError(t, w.Unclaim(ctx))
	require.NoError(t, p.Kick(ctx, "afk", protocol.Resolution(2)))
	require.NoError(t, f.session.ImportRecords(ctx, `{"records":[]}`, protocol.ImportV31JSON))
	require.NoError(t, f.session.Destroy(ctx, true))
	require.NoError(t, f.session.Chat(ctx, "gl hf"))

	claims := f.sock.WrittenOfType(t, protocol.TypeWorldClaim)
	require.Len(t, claims, 2)
	var c protocol.WorldClaim
	require.NoError(t, claims[0].Bind(&c))
	assert.Equal(t, protocol.WorldClaim{Header: claims[0].Header, World: 3, Claim: true}, c)
	require.NoError(t, claims[1].Bind(&c))
	assert.False(t, c.Claim)

	var k protocol.Kick
	require.NoError(t, f.sock.WrittenOfType(t, protocol.TypeKick)[0].Bind(&k))
	assert.Equal(t, "p-9", k.Target)
	assert.Equal(t, "afk", k.Reason)
	assert.Equal(t, protocol.Resolution(2), k.Resolution)

	var ir protocol.ImportRecords
	require.NoError(t, f.sock.WrittenOfType(t, protocol.TypeImportRecords)[0].Bind(&ir))
	assert.Equal(t, `{"records":[]}`, ir.Body)
	assert.Equal(t, protocol.ImportV31JSON, ir.ImportType)

	var d protocol.Destroy
	require.NoError(t, f.sock.WrittenOfType(t, protocol.TypeDestroy)[0].Bind(&d))
	assert.True(t, d.Save)

	assert.Len(t, f.sock.WrittenOfType(t, protocol.TypeChat), 1)
}

func TestGameSession_RejoinAfterDropKnocksAgain(t *testing.T) {
	f := newGameFixture(t, &protocol.LobbyEntry{Game: "G1"}, multiworld.KindGame, "")
	f.sock.WaitWritten(t, 1)
	f.sock.Close()
	second := f.dialer.WaitDial(t)
	assert.Equal(t, protocol.TypeKnock, second.WaitWritten(t, 1)[0].Type)
	assert.Equal(t, "wss://mw.example.test/api/game/G1", second.URL)
}

func TestGameSession_ManyWorldsOrdered(t *testing.T) {
	f := newGameFixture(t, &protocol.LobbyEntry{Game: "G1"}, multiworld.KindMultiworld, "")
	for _, i := range []int{5, 1, 4, 2, 3} {
		f.sock.Push(t, "server", &protocol.WorldDescription{World: i, Title: fmt.Sprint("W", i)})
	}
	f.settle(t)
	var idx []int
	for _, w := range f.session.Worlds() {
		idx = append(idx, w.Index)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, idx)
}
