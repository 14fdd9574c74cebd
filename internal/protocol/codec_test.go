package protocol

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }

func fixedStamper(id string, at time.Time) *Stamper {
	return &Stamper{
		now:   func() time.Time { return at },
		newID: func() string { return id },
	}
}

func TestDecode_RoundTripEveryOutboundKind(t *testing.T) {
	mode := ModeMultiworld
	cases := []struct {
		msg   Message
		fresh func() Message
	}{
		{&LobbyRequest{}, func() Message { return &LobbyRequest{} }},
		{&Create{
			Name: "Foo", Description: "bar", Password: "pw", Mode: ModeMultiworld,
			FinishResolution: 1, ForfeitResolution: 2, ItemAnimation: 3, ItemJingle: 4, ItemToast: 5,
			CreationToken: "tok",
		}, func() Message { return &Create{} }},
		{&Destroy{Save: true}, func() Message { return &Destroy{} }},
		{&Knock{PlayerName: "bot", Password: "pw"}, func() Message { return &Knock{} }},
		{&WorldClaim{World: 7, Claim: true}, func() Message { return &WorldClaim{} }},
		{&Kick{Target: "p1", Reason: "afk", Resolution: 2}, func() Message { return &Kick{} }},
		{&ImportRecords{Body: `{"a":1}`, ImportType: ImportV31JSON}, func() Message { return &ImportRecords{} }},
		{&Chat{Body: "hello"}, func() Message { return &Chat{} }},
		{&Identify{Name: "Alice"}, func() Message { return &Identify{} }},
		{&WorldDescription{
			World: 3, Title: "t", Description: "d", RNG: "seed", Mystery: true,
			Logic: map[string]any{"mode": "glitched"}, Goals: map[string]any{"ganon": "pedestal"},
			Gameplay: map[string]any{"hints": true}, Difficulty: map[string]any{"level": float64(2)},
		}, func() Message { return &WorldDescription{} }},
		{&LobbyEntry{
			Game: "G1", Name: strPtr("Alpha"), Description: strPtr("desc"),
			HasPassword: boolPtr(true), WorldCount: intPtr(4), Mode: &mode,
		}, func() Message { return &LobbyEntry{} }},
		{&RoomReady{CreationToken: "tok", Game: LobbyEntry{Game: "G2", Name: strPtr("Beta")}},
			func() Message { return &RoomReady{} }},
	}

	stamper := fixedStamper("id-1", time.Unix(1700000000, 0))
	for _, tc := range cases {
		t.Run(tc.msg.Kind().String(), func(t *testing.T) {
			stamper.Stamp(tc.msg, "sender-token")
			data, err := Encode(tc.msg)
			require.NoError(t, err)

			env, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tc.msg.Kind(), env.Type)
			assert.Equal(t, "id-1", env.ID)
			assert.Equal(t, int64(1700000000), env.Created)
			assert.Equal(t, "sender-token", env.Sender)

			got := tc.fresh()
			require.NoError(t, env.Bind(got))
			assert.Equal(t, tc.msg, got)
		})
	}
}

func TestStamp_SetsFreshMetadataEachCall(t *testing.T) {
	s := NewStamper()
	msg := &Chat{Body: "hi"}

	s.Stamp(msg, "tok")
	first := msg.Header
	s.Stamp(msg, "tok")

	assert.Equal(t, TypeChat, msg.Type)
	assert.Equal(t, "tok", msg.Sender)
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, msg.ID)
	assert.InDelta(t, time.Now().UTC().Unix(), msg.Created, 2)
}

func TestEncode_TypeAlwaysFromKind(t *testing.T) {
	msg := &Knock{PlayerName: "bot"}
	msg.Type = TypeChat
	data, err := Encode(msg)
	require.NoError(t, err)
	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeKnock, env.Type)
}

func TestEncode_UnrepresentableField(t *testing.T) {
	msg := &WorldDescription{World: 1, Logic: map[string]any{"bad": math.NaN()}}
	_, err := Encode(msg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSerialization))
}

func TestDecode_Malformed(t *testing.T) {
	for name, input := range map[string]string{
		"empty":        "",
		"not json":     "hello",
		"array":        "[1,2,3]",
		"missing type": `{"body":"x"}`,
		"unknown type": `{"type":99}`,
		"string type":  `{"type":"chat"}`,
		"truncated":    `{"type":16`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrProtocol), "got %v", err)
		})
	}
}

func TestBind_KindMismatch(t *testing.T) {
	env, err := Decode([]byte(`{"type":240,"body":"hi"}`))
	require.NoError(t, err)
	err = env.Bind(&Knock{})
	assert.True(t, errors.Is(err, ErrProtocol))
}

func TestBind_AbsentOptionalFieldsStayZero(t *testing.T) {
	env, err := Decode([]byte(`{"type":22,"world":2,"title":"t","description":"d","rng":"r"}`))
	require.NoError(t, err)
	var wd WorldDescription
	require.NoError(t, env.Bind(&wd))
	assert.False(t, wd.Mystery)
	assert.Nil(t, wd.Logic)
}

func TestSummary_ElidesImportBody(t *testing.T) {
	assert.Equal(t, "import records request", Summary(&ImportRecords{Body: "huge"}))
	assert.Contains(t, Summary(&Chat{Body: "hi"}), `"body":"hi"`)
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "RoomReady", TypeRoomReady.String())
	assert.Equal(t, "MessageType(0x99)", MessageType(0x99).String())
	assert.True(t, TypeLog.Known())
	assert.False(t, MessageType(0x20).Known())
}

func TestParseGameMode(t *testing.T) {
	m, err := ParseGameMode("Secure1P")
	require.NoError(t, err)
	assert.Equal(t, ModeSecure1P, m)
	assert.Equal(t, "DungeonCrawl", ModeDungeonCrawl.String())
	_, err = ParseGameMode("nope")
	assert.Error(t, err)
}

// Property: any Create built from arbitrary strings and resolutions survives
// an encode/decode/bind cycle unchanged.
func TestPropertyCreate_RoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		msg := &Create{
			Name:              rapid.StringMatching(`[ -~]{0,40}`).Draw(rt, "name"),
			Description:       rapid.StringMatching(`[ -~]{0,40}`).Draw(rt, "description"),
			Password:          rapid.StringMatching(`[ -~]{0,40}`).Draw(rt, "password"),
			Mode:              GameMode(rapid.IntRange(0, 6).Draw(rt, "mode")),
			FinishResolution:  Resolution(rapid.IntRange(0, 255).Draw(rt, "finish")),
			ForfeitResolution: Resolution(rapid.IntRange(0, 255).Draw(rt, "forfeit")),
			CreationToken:     rapid.StringMatching(`[a-f0-9-]{8,36}`).Draw(rt, "token"),
		}
		NewStamper().Stamp(msg, rapid.StringMatching(`[ -~]{0,40}`).Draw(rt, "sender"))
		data, err := Encode(msg)
		require.NoError(rt, err)
		env, err := Decode(data)
		require.NoError(rt, err)
		var got Create
		require.NoError(rt, env.Bind(&got))
		assert.Equal(rt, *msg, got)
	})
}
