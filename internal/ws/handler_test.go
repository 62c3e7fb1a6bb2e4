package ws

import (
	"testing"

	"github.com/pointdeck/pointdeck/internal/engine"
	"github.com/pointdeck/pointdeck/pkg/types"
)

func TestToCommand_MapsTypes(t *testing.T) {
	cases := []struct {
		msg  types.ClientMessage
		want engine.CommandType
	}{
		{types.ClientMessage{Type: types.MsgSubmitVote, Value: "5"}, engine.CmdSubmitVote},
		{types.ClientMessage{Type: types.MsgRevealCards}, engine.CmdReveal},
		{types.ClientMessage{Type: types.MsgResetGame}, engine.CmdReset},
		{types.ClientMessage{Type: types.MsgDeleteStory, StoryID: "s1"}, engine.CmdDeleteStory},
		{types.ClientMessage{Type: types.MsgTimerStart, Seconds: 30, Mode: "countdown"}, engine.CmdTimerStart},
		{types.ClientMessage{Type: types.MsgTimerAdjust, Seconds: -10}, engine.CmdTimerAdjust},
		{types.ClientMessage{Type: types.MsgHeartbeat}, engine.CmdHeartbeat},
		{types.ClientMessage{Type: types.MsgActivityPing}, engine.CmdActivity},
	}

	for _, tc := range cases {
		cmd, ok := toCommand(tc.msg, "p1")
		if !ok {
			t.Fatalf("%s: not mapped", tc.msg.Type)
		}
		if cmd.Type != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.msg.Type, cmd.Type, tc.want)
		}
		if cmd.PlayerID != "p1" {
			t.Fatalf("%s: issuer must come from the authenticated player", tc.msg.Type)
		}
	}
}

func TestToCommand_RejectsUnknown(t *testing.T) {
	if _, ok := toCommand(types.ClientMessage{Type: "Bogus"}, "p1"); ok {
		t.Fatalf("unknown type should not map")
	}
	if _, ok := toCommand(types.ClientMessage{Type: types.MsgTimerStart, Mode: "sundial"}, "p1"); ok {
		t.Fatalf("invalid timer mode should not map")
	}
}

func TestToCommand_CreateStoryAssignsID(t *testing.T) {
	cmd, ok := toCommand(types.ClientMessage{Type: types.MsgCreateStory, Title: "x"}, "p1")
	if !ok || cmd.StoryID == "" {
		t.Fatalf("story creation needs a server-assigned id, got %+v", cmd)
	}
}
